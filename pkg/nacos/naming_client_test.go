package nacos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nacos-go/nacos-client-go/internal/model"
)

// fakeNamingCluster serves both the v1 register/beat endpoints and the
// instance-list query, enough to drive Register/Subscribe through the
// public façade end to end.
type fakeNamingCluster struct {
	mu          sync.Mutex
	hosts       []wireInstance
	registers   int32
	deregisters int32
	beats       int32
}

type wireInstance struct {
	IP          string            `json:"ip"`
	Port        uint16            `json:"port"`
	Weight      float32           `json:"weight"`
	Enabled     bool              `json:"enabled"`
	Healthy     bool              `json:"healthy"`
	Ephemeral   bool              `json:"ephemeral"`
	ClusterName string            `json:"clusterName"`
	ServiceName string            `json:"serviceName"`
	GroupName   string            `json:"groupName"`
	NamespaceID string            `json:"namespaceId"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (f *fakeNamingCluster) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/nacos/v1/ns/instance" && r.Method == http.MethodPost:
			atomic.AddInt32(&f.registers, 1)
			r.ParseForm()
			f.mu.Lock()
			f.hosts = append(f.hosts, wireInstance{
				IP: r.Form.Get("ip"), Port: 8080, Weight: 1, Enabled: true, Healthy: true,
				ClusterName: "DEFAULT", ServiceName: r.Form.Get("serviceName"),
				GroupName: r.Form.Get("groupName"), NamespaceID: r.Form.Get("namespaceId"),
			})
			f.mu.Unlock()
			w.Write([]byte("ok"))

		case r.URL.Path == "/nacos/v1/ns/instance" && r.Method == http.MethodDelete:
			atomic.AddInt32(&f.deregisters, 1)
			w.Write([]byte("ok"))

		case r.URL.Path == "/nacos/v1/ns/instance/beat":
			atomic.AddInt32(&f.beats, 1)
			w.Write([]byte(`{"clientBeatInterval":5000}`))

		case r.URL.Path == "/nacos/v1/ns/instance/list":
			f.mu.Lock()
			hosts := append([]wireInstance{}, f.hosts...)
			f.mu.Unlock()
			out := struct {
				ServiceName string         `json:"serviceName"`
				GroupName   string         `json:"groupName"`
				Hosts       []wireInstance `json:"hosts"`
				CacheMillis int64          `json:"cacheMillis"`
			}{Hosts: hosts, CacheMillis: 3000}
			raw, _ := json.Marshal(out)
			w.Header().Set("Content-Type", "application/json")
			w.Write(raw)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestNamingClientRegisterHeartbeatsAndDiscovers(t *testing.T) {
	fake := &fakeNamingCluster{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	useGRPC := false
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewNamingClient(ctx, ClientConfig{
		EndpointAddrs: addrOf(srv),
		UseGRPC:       &useGRPC,
	})
	require.NoError(t, err)
	defer client.Close()

	key := client.Key("", "", "orders")
	inst := model.NewInstance("10.0.0.9", 8080)
	inst.ServiceName = key.ServiceName
	inst.GroupName = key.GroupName
	inst.NamespaceID = key.NamespaceID
	require.NoError(t, client.Register(ctx, inst))

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&fake.beats) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected at least one heartbeat within 2s")
		case <-time.After(10 * time.Millisecond):
		}
	}

	hosts, err := client.QueryInstances(ctx, key, "", false)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	require.Equal(t, "10.0.0.9", hosts[0].IP)

	picked, err := client.SelectInstance(hosts)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.9", picked.IP)

	client.Close()
	require.NotZero(t, atomic.LoadInt32(&fake.deregisters))
}

func TestNewStandaloneBuildsNamingOnlyClient(t *testing.T) {
	fake := &fakeNamingCluster{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	useGRPC := false
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewStandalone(ctx, ClientConfig{
		EndpointAddrs: addrOf(srv),
		UseGRPC:       &useGRPC,
	})
	require.NoError(t, err)
	defer client.Close()
	require.Nil(t, client.client.cfgEngine)
}
