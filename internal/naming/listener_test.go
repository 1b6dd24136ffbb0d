package naming

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nacos-go/nacos-client-go/internal/model"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func TestDiffAddedAndRemoved(t *testing.T) {
	old := []model.Instance{
		{IP: "10.0.0.1", Port: 8080},
		{IP: "10.0.0.2", Port: 8080},
	}
	next := []model.Instance{
		{IP: "10.0.0.2", Port: 8080},
		{IP: "10.0.0.3", Port: 8080},
	}

	added, removed := diff(old, next)
	if len(added) != 1 || added[0].IP != "10.0.0.3" {
		t.Fatalf("expected 10.0.0.3 added, got %+v", added)
	}
	if len(removed) != 1 || removed[0].IP != "10.0.0.1" {
		t.Fatalf("expected 10.0.0.1 removed, got %+v", removed)
	}
}

func TestDiffNoChange(t *testing.T) {
	hosts := []model.Instance{{IP: "10.0.0.1", Port: 8080}}
	added, removed := diff(hosts, hosts)
	if len(added) != 0 || len(removed) != 0 {
		t.Fatalf("expected no delta for an unchanged list, got added=%+v removed=%+v", added, removed)
	}
}

func TestFilterInstancesDropsNegligibleWeightAndUnhealthy(t *testing.T) {
	hosts := []model.Instance{
		{IP: "10.0.0.1", Port: 1, Weight: 1.0, Healthy: true, ClusterName: "DEFAULT"},
		{IP: "10.0.0.2", Port: 2, Weight: 0.0001, Healthy: true, ClusterName: "DEFAULT"},
		{IP: "10.0.0.3", Port: 3, Weight: 1.0, Healthy: false, ClusterName: "DEFAULT"},
		{IP: "10.0.0.4", Port: 4, Weight: 1.0, Healthy: true, ClusterName: "OTHER"},
	}

	got := filterInstances(hosts, true, "DEFAULT")
	if len(got) != 1 || got[0].IP != "10.0.0.1" {
		t.Fatalf("expected only 10.0.0.1 to survive filtering, got %+v", got)
	}
}

func TestSelectInstanceEmptyReturnsNotFound(t *testing.T) {
	l := &Listener{rng: newTestRand()}
	if _, err := l.SelectInstance(nil); err == nil {
		t.Fatal("expected an error selecting from an empty list")
	}
}

func TestSelectInstanceWeightedDistribution(t *testing.T) {
	l := &Listener{rng: newTestRand()}
	hosts := []model.Instance{
		{IP: "10.0.0.1", Port: 1, Weight: 1},
		{IP: "10.0.0.2", Port: 2, Weight: 9},
	}

	counts := map[string]int{}
	for i := 0; i < 500; i++ {
		picked, err := l.SelectInstance(hosts)
		if err != nil {
			t.Fatalf("SelectInstance: %v", err)
		}
		counts[picked.IP]++
	}

	if counts["10.0.0.2"] < counts["10.0.0.1"] {
		t.Fatalf("expected the weight-9 instance to be picked more often, got %+v", counts)
	}
}

// fakeNamingServer serves the v1 instance-list endpoint in-memory.
type fakeNamingServer struct {
	mu    sync.Mutex
	hosts []nacosHostWire
}

type nacosHostWire struct {
	IP      string  `json:"ip"`
	Port    uint16  `json:"port"`
	Weight  float32 `json:"weight"`
	Healthy bool    `json:"healthy"`
	Cluster string  `json:"clusterName"`
}

func (f *fakeNamingServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nacos/v1/ns/instance/list" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.mu.Lock()
		hosts := f.hosts
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write(marshalQueryListResult(hosts))
	}
}

func marshalQueryListResult(hosts []nacosHostWire) []byte {
	type wireInst struct {
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
	wire := make([]wireInst, 0, len(hosts))
	for _, h := range hosts {
		wire = append(wire, wireInst{IP: h.IP, Port: h.Port, Weight: h.Weight, Enabled: true, Healthy: h.Healthy, ClusterName: h.Cluster})
	}
	out := struct {
		ServiceName string     `json:"serviceName"`
		GroupName   string     `json:"groupName"`
		Hosts       []wireInst `json:"hosts"`
		CacheMillis int64      `json:"cacheMillis"`
	}{Hosts: wire, CacheMillis: 3000}
	raw, _ := json.Marshal(out)
	return raw
}

func TestListenerSubscribePollsAndNotifiesOnChange(t *testing.T) {
	fake := &fakeNamingServer{hosts: []nacosHostWire{{IP: "10.0.0.1", Port: 8080, Weight: 1, Healthy: true, Cluster: model.DefaultCluster}}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManagerForNaming(t, srv)
	defer m.Close()

	l, err := NewListener(m, "127.0.0.1", nil)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	l.Run()
	defer l.Close()

	key := model.NewServiceKey("", "", "orders")

	type event struct {
		hosts, added, removed []model.Instance
	}
	events := make(chan event, 8)

	ctx := context.Background()
	if _, err := l.Subscribe(ctx, key, "", false, func(k model.ServiceKey, hosts, added, removed []model.Instance) {
		events <- event{hosts, added, removed}
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case ev := <-events:
		if len(ev.hosts) != 1 || ev.hosts[0].IP != "10.0.0.1" {
			t.Fatalf("expected initial snapshot with 10.0.0.1, got %+v", ev.hosts)
		}
	case <-time.After(time.Second):
		t.Fatal("expected synchronous initial snapshot")
	}

	fake.mu.Lock()
	fake.hosts = append(fake.hosts, nacosHostWire{IP: "10.0.0.2", Port: 8080, Weight: 1, Healthy: true, Cluster: model.DefaultCluster})
	fake.mu.Unlock()

	// the fake reports cacheMillis 3000 and the refresh scan ticks every
	// second from Run, so the next poll lands about 4s after Run.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			for _, a := range ev.added {
				if a.IP == "10.0.0.2" {
					return
				}
			}
		case <-deadline:
			t.Fatal("expected a poll to eventually observe the added instance")
		}
	}
}
