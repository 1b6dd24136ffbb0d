package model

// DefaultGroup is used when a ConfigKey/ServiceKey omits its group.
const DefaultGroup = "DEFAULT_GROUP"

// wire delimiters used throughout the v1 config protocol (spec §9 design
// note: a single codec shared between request-body assembly and response
// parsing, defined here as typed byte constants so both
// internal/config/wire.go and model callers agree on one source of truth).
const (
	WireFieldSep byte = 0x02
	WireItemSep  byte = 0x01
)

// ConfigKey identifies one configuration entry. Group defaults to
// DefaultGroup; tenant is empty when using the v1 default namespace.
//
// Equality covers all three fields (spec §9 open question: the original's
// ConfigKey equality compared tenant to itself; this type does not replicate
// that bug).
type ConfigKey struct {
	DataID string
	Group  string
	Tenant string
}

// NewConfigKey fills in the DefaultGroup when group is empty.
func NewConfigKey(dataID, group, tenant string) ConfigKey {
	if group == "" {
		group = DefaultGroup
	}
	return ConfigKey{DataID: dataID, Group: group, Tenant: tenant}
}

// Equal reports tri-field equality.
func (k ConfigKey) Equal(other ConfigKey) bool {
	return k.DataID == other.DataID && k.Group == other.Group && k.Tenant == other.Tenant
}

// WireKey returns "data_id\x02group" or, when Tenant is set,
// "data_id\x02group\x02tenant" (spec §3).
func (k ConfigKey) WireKey() string {
	if k.Tenant == "" {
		return k.DataID + string(WireFieldSep) + k.Group
	}
	return k.DataID + string(WireFieldSep) + k.Group + string(WireFieldSep) + k.Tenant
}
