package grpcresolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/resolver"

	"github.com/nacos-go/nacos-client-go/pkg/nacos"
)

// fakeInstanceServer serves just enough of the v1 instance-list endpoint to
// drive Build/onUpdate; it never changes its host list, so the test only
// needs the initial UpdateState call that Build triggers via Subscribe.
type fakeInstanceServer struct{}

func (fakeInstanceServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nacos/v1/ns/instance/list" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		out := struct {
			Hosts []struct {
				IP          string  `json:"ip"`
				Port        uint16  `json:"port"`
				Weight      float32 `json:"weight"`
				Healthy     bool    `json:"healthy"`
				Enabled     bool    `json:"enabled"`
				ClusterName string  `json:"clusterName"`
			} `json:"hosts"`
			CacheMillis int64 `json:"cacheMillis"`
		}{CacheMillis: 3000}
		out.Hosts = append(out.Hosts, struct {
			IP          string  `json:"ip"`
			Port        uint16  `json:"port"`
			Weight      float32 `json:"weight"`
			Healthy     bool    `json:"healthy"`
			Enabled     bool    `json:"enabled"`
			ClusterName string  `json:"clusterName"`
		}{IP: "10.1.1.1", Port: 9000, Weight: 1, Healthy: true, Enabled: true, ClusterName: "DEFAULT"})
		raw, _ := json.Marshal(out)
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	}
}

// fakeClientConn captures every resolver.State pushed by a serviceResolver.
type fakeClientConn struct {
	resolver.ClientConn
	mu     sync.Mutex
	states []resolver.State
}

func (f *fakeClientConn) UpdateState(s resolver.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
	return nil
}

func (f *fakeClientConn) last() (resolver.State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return resolver.State{}, false
	}
	return f.states[len(f.states)-1], true
}

func TestBuilderResolvesServiceIntoAddresses(t *testing.T) {
	srv := httptest.NewServer(fakeInstanceServer{}.handler())
	defer srv.Close()

	useGRPC := false
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := nacos.NewStandalone(ctx, nacos.ClientConfig{
		EndpointAddrs: srv.Listener.Addr().String(),
		UseGRPC:       &useGRPC,
	})
	require.NoError(t, err)
	defer client.Close()

	b := NewBuilder(client)
	cc := &fakeClientConn{}
	r, err := b.Build(resolver.Target{URL: url.URL{Scheme: Scheme, Opaque: "orders"}}, cc, resolver.BuildOptions{})
	require.NoError(t, err)
	defer r.Close()

	deadline := time.After(2 * time.Second)
	for {
		if state, ok := cc.last(); ok && len(state.Addresses) == 1 {
			require.Equal(t, "10.1.1.1:9000", state.Addresses[0].Addr)
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected one address within 2s")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBuilderRejectsEmptyServiceName(t *testing.T) {
	b := &Builder{}
	_, err := b.Build(resolver.Target{URL: url.URL{Scheme: Scheme}}, &fakeClientConn{}, resolver.BuildOptions{})
	require.Error(t, err)
}
