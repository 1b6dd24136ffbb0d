package endpoint

import (
	"testing"

	"github.com/nacos-go/nacos-client-go/internal/breaker"
	"github.com/nacos-go/nacos-client-go/internal/model"
)

func TestWeightedSelectFairness(t *testing.T) {
	hosts := []model.HostInfo{
		{IP: "10.0.0.1", HTTPPort: 8848},
		{IP: "10.0.0.2", HTTPPort: 8848},
		{IP: "10.0.0.3", HTTPPort: 8848},
	}
	s, err := New(hosts, breaker.Config{})
	if err != nil {
		t.Fatal(err)
	}
	s.SetSeed(7)
	// weights [1,3,6] -> set index weights accordingly.
	s.entries[0].weight = 1
	s.entries[1].weight = 3
	s.entries[2].weight = 6

	const trials = 10000
	counts := make([]int, 3)
	for i := 0; i < trials; i++ {
		counts[s.Select()]++
	}

	expected := []float64{0.1, 0.3, 0.6}
	for i, c := range counts {
		frac := float64(c) / float64(trials)
		if diff := frac - expected[i]; diff > 0.03 || diff < -0.03 {
			t.Fatalf("index %d: observed frequency %.4f outside +-3%% of expected %.4f", i, frac, expected[i])
		}
	}
}

func TestSelectZeroWeightReturnsZero(t *testing.T) {
	hosts := []model.HostInfo{{IP: "a"}, {IP: "b"}}
	s, err := New(hosts, breaker.Config{})
	if err != nil {
		t.Fatal(err)
	}
	s.entries[0].weight = 0
	s.entries[1].weight = 0
	if got := s.Select(); got != 0 {
		t.Fatalf("expected index 0 when all weights are zero, got %d", got)
	}
}

func TestParseHostList(t *testing.T) {
	hosts, err := model.ParseHostList("127.0.0.1:8848,127.0.0.2:8849#9849")
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}
	if hosts[0].GRPCPort != 9848 {
		t.Fatalf("expected default grpc port http+1000=9848, got %d", hosts[0].GRPCPort)
	}
	if hosts[1].GRPCPort != 9849 {
		t.Fatalf("expected explicit grpc port 9849, got %d", hosts[1].GRPCPort)
	}
}
