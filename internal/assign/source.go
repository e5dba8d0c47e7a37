package assign

import (
	rand "math/rand/v2"
	"sync"
)

// Source is the engine's only source of randomness.
// IntN returns a uniform value in [0, n) and must not be called with n <= 0.
type Source interface {
	IntN(n int) int
}

// NewSource returns a deterministic PCG source for a non-zero seed.
// A zero seed selects the package-level generator.
//
//nolint:gosec // club placement does not need a cryptographic RNG
func NewSource(seed uint64) Source {
	if seed == 0 {
		return globalSource{}
	}

	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type globalSource struct{}

func (globalSource) IntN(n int) int {
	return rand.IntN(n) //nolint:gosec
}

// lockedSource makes a seeded generator safe for concurrent recomputes
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// Shuffle permutes items in place with the Fisher-Yates algorithm:
// for i from the last index down to 1, swap i with a uniform j in [0, i].
func Shuffle[T any](src Source, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
