// Package endpoint holds the EndpointSet: the ordered list of cluster hosts,
// their weights, and their circuit breakers (spec §3, §4.1).
package endpoint

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nacos-go/nacos-client-go/internal/breaker"
	"github.com/nacos-go/nacos-client-go/internal/model"
)

// entry pairs one host with its mutable selection state.
type entry struct {
	host    model.HostInfo
	weight  float64
	breaker *breaker.Breaker
}

// Set is the ordered set of candidate hosts plus per-host breaker state. A
// Set always holds at least one host once built (spec §3 invariant);
// construction fails fast otherwise (spec §7: fatal conditions surfaced at
// build() time only).
type Set struct {
	mu      sync.Mutex
	entries []*entry
	rng     *rand.Rand
}

// New builds a Set from a non-empty host list. Each host starts with
// weight 1 and a CLOSED breaker using cfg.
func New(hosts []model.HostInfo, cfg breaker.Config) (*Set, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("endpoint: host list must not be empty")
	}
	s := &Set{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, h := range hosts {
		s.entries = append(s.entries, &entry{host: h, weight: 1, breaker: breaker.New(cfg)})
	}
	return s, nil
}

// SetSeed reseeds the weighted-random draw, for deterministic tests.
func (s *Set) SetSeed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}

// Len returns the number of hosts in the set.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Host returns the HostInfo at index i.
func (s *Set) Host(i int) model.HostInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[i].host
}

// Breaker returns the breaker owning index i's failure state.
func (s *Set) Breaker(i int) *breaker.Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[i].breaker
}

// ExcludeTemporarily sets index i's weight to 0, marking it out of the
// weighted draw until RestoreWeight is called (spec §4.5 failover step).
func (s *Set) ExcludeTemporarily(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[i].weight = 0
}

// RestoreWeight resets index i's weight to 1.
func (s *Set) RestoreWeight(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[i].weight = 1
}

// Select draws one index by weighted-random selection (spec §4.1):
// cumulative sums of weights, uniform draw in [0, sum), binary-search the
// cumulative array. If sum == 0, index 0 is returned.
func (s *Set) Select() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked()
}

func (s *Set) selectLocked() int {
	n := len(s.entries)
	cum := make([]float64, n)
	var sum float64
	for i, e := range s.entries {
		sum += e.weight
		cum[i] = sum
	}
	if sum == 0 {
		return 0
	}
	target := s.rng.Float64() * sum
	lo, hi := 0, n-1
	for lo < hi {
		mid := (lo + hi) / 2
		if cum[mid] <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Next picks a new active index distinct from current when possible (used
// by the connection manager on failover); falls back to Select()'s result
// if only one host remains with non-zero weight.
func (s *Set) Next(current int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for attempt := 0; attempt < len(s.entries)*2; attempt++ {
		idx := s.selectLocked()
		if idx != current {
			return idx
		}
	}
	return s.selectLocked()
}
