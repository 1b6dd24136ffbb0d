package config

import (
	"strings"

	"github.com/nacos-go/nacos-client-go/internal/model"
)

// encodeListenBody builds the v1 long-poll request body: for each entry,
// "data_id\x02group\x02md5\x02tenant\x01" concatenated (spec §4.6).
func encodeListenBody(entries []*entry) string {
	var b strings.Builder
	fsep, isep := string(model.WireFieldSep), string(model.WireItemSep)
	for _, e := range entries {
		b.WriteString(e.key.DataID)
		b.WriteString(fsep)
		b.WriteString(e.key.Group)
		b.WriteString(fsep)
		b.WriteString(e.md5)
		b.WriteString(fsep)
		b.WriteString(e.key.Tenant)
		b.WriteString(isep)
	}
	return b.String()
}

// decodeChangedKeys parses the long-poll response's "v" value (after
// url-decoding, spec §6): items separated by \x01, each item's fields
// (dataId, group[, tenant]) separated by \x02.
func decodeChangedKeys(raw string) []model.ConfigKey {
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, string(model.WireItemSep))
	keys := make([]model.ConfigKey, 0, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		fields := strings.Split(item, string(model.WireFieldSep))
		if len(fields) < 2 {
			continue
		}
		tenant := ""
		if len(fields) >= 3 {
			tenant = fields[2]
		}
		keys = append(keys, model.NewConfigKey(fields[0], fields[1], tenant))
	}
	return keys
}
