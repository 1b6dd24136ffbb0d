package nacos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nacos-go/nacos-client-go/internal/model"
)

// fakeConfigServer is a minimal stand-in for a v1 config cluster, just
// enough to drive a Subscribe/SetConfig roundtrip through the public
// façade (the same shape internal/config/engine_test.go's server uses).
type fakeConfigServer struct {
	mu      sync.Mutex
	content map[string]string
	changed chan string
}

func newFakeConfigServer() *fakeConfigServer {
	return &fakeConfigServer{content: map[string]string{}, changed: make(chan string, 8)}
}

func (f *fakeConfigServer) wireKey(dataID, group, tenant string) string {
	return model.NewConfigKey(dataID, group, tenant).WireKey()
}

func (f *fakeConfigServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/nacos/v1/cs/configs" && r.Method == http.MethodGet:
			q := r.URL.Query()
			f.mu.Lock()
			content := f.content[f.wireKey(q.Get("dataId"), q.Get("group"), q.Get("tenant"))]
			f.mu.Unlock()
			w.Write([]byte(content))

		case r.URL.Path == "/nacos/v1/cs/configs" && r.Method == http.MethodPost:
			r.ParseForm()
			key := f.wireKey(r.Form.Get("dataId"), r.Form.Get("group"), r.Form.Get("tenant"))
			f.mu.Lock()
			f.content[key] = r.Form.Get("content")
			f.mu.Unlock()
			select {
			case f.changed <- key:
			default:
			}
			w.Write([]byte("true"))

		case r.URL.Path == "/nacos/v1/cs/configs/listener":
			select {
			case key := <-f.changed:
				parts := strings.SplitN(key, string(model.WireFieldSep), 3)
				dataID, group := parts[0], parts[1]
				tenant := ""
				if len(parts) == 3 {
					tenant = parts[2]
				}
				body := dataID + string(model.WireFieldSep) + group
				if tenant != "" {
					body += string(model.WireFieldSep) + tenant
				}
				body += string(model.WireItemSep)
				v := url.Values{"v": {body}}
				w.Write([]byte(v.Encode()))
			case <-time.After(200 * time.Millisecond):
				w.Write([]byte("v="))
			}

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func addrOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestConfigClientSubscribeAndSetConfigRoundtrip(t *testing.T) {
	fake := newFakeConfigServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	useGRPC := false
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewConfigClient(ctx, ClientConfig{
		EndpointAddrs: addrOf(srv),
		UseGRPC:       &useGRPC,
	})
	require.NoError(t, err)
	defer client.Close()

	key := client.Key("001", "foo", "")
	require.NoError(t, client.SetConfig(ctx, key, "1234"))

	content, err := client.GetConfig(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "1234", content)

	received := make(chan string, 4)
	_, err = client.Subscribe(ctx, key, func(content string) { received <- content })
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Equal(t, "1234", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial Subscribe delivery")
	}

	require.NoError(t, client.SetConfig(ctx, key, "5678"))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-received:
			if got == "5678" {
				return
			}
			// the change signal queued by the first SetConfig, before
			// Subscribe registered, may redeliver "1234"; keep waiting.
			require.Equal(t, "1234", got)
		case <-deadline:
			t.Fatal("timed out waiting for change notification")
		}
	}
}

func TestConfigClientSubscribeAllBulkSubscribes(t *testing.T) {
	fake := newFakeConfigServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	useGRPC := false
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewConfigClient(ctx, ClientConfig{
		EndpointAddrs: addrOf(srv),
		UseGRPC:       &useGRPC,
	})
	require.NoError(t, err)
	defer client.Close()

	keys := []ConfigKey{
		client.Key("a", "", ""),
		client.Key("b", "", ""),
		client.Key("c", "", ""),
	}
	for _, k := range keys {
		require.NoError(t, client.SetConfig(ctx, k, "v-"+k.DataID))
	}

	var mu sync.Mutex
	seen := map[string]string{}
	ids, err := client.SubscribeAll(ctx, keys, func(content string) {
		mu.Lock()
		seen[content] = content
		mu.Unlock()
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
}

func TestClientConfigDefaults(t *testing.T) {
	cfg := ClientConfig{EndpointAddrs: "127.0.0.1:8848"}
	require.Equal(t, DefaultTenant, cfg.tenant())
	require.True(t, cfg.useGRPC())

	off := false
	cfg.UseGRPC = &off
	require.False(t, cfg.useGRPC())
}

func TestClientConfigRejectsEmptyEndpoints(t *testing.T) {
	cfg := ClientConfig{}
	_, err := cfg.hosts()
	require.Error(t, err)
}
