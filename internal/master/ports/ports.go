// Package ports picks a free TCP port for a new application on a shard.
package ports

import (
	"fmt"
	"math/rand/v2"

	"github.com/thaispalmer/yn-automation/internal/common"
)

// DefaultRandomAttempts is how many random candidates are tried before the
// allocator falls back to a linear scan.
const DefaultRandomAttempts = 16

// Allocator hands out ports from [Min, Max).
type Allocator struct {
	Min            int
	Max            int
	RandomAttempts int
	// IntN returns a uniform value in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
}

// NewAllocator builds an Allocator over [min, max) that tries
// DefaultRandomAttempts random ports before scanning.
//
// Parameters:
//
//	min - first port of the range (inclusive)
//	max - end of the range (exclusive)
//
// Returns:
//
//	An Allocator using math/rand/v2 as its random source.
func NewAllocator(min, max int) *Allocator {
	return &Allocator{Min: min, Max: max, RandomAttempts: DefaultRandomAttempts, IntN: rand.IntN}
}

// Allocate returns a port in range that is not in used. Random candidates
// come first so concurrent allocations rarely collide; a linear scan from
// Min guarantees that the last free port is found.
func (a *Allocator) Allocate(used []int) (int, error) {
	if a.Min >= a.Max {
		return 0, fmt.Errorf("%w: empty range [%d, %d)", common.ErrPortRangeExhausted, a.Min, a.Max)
	}

	taken := make(map[int]struct{}, len(used))
	for _, p := range used {
		taken[p] = struct{}{}
	}

	span := a.Max - a.Min
	intN := a.IntN
	if intN == nil {
		intN = rand.IntN
	}

	for i := 0; i < a.RandomAttempts; i++ {
		p := a.Min + intN(span)
		if _, ok := taken[p]; !ok {
			return p, nil
		}
	}

	for p := a.Min; p < a.Max; p++ {
		if _, ok := taken[p]; !ok {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: all %d ports in [%d, %d) are in use", common.ErrPortRangeExhausted, span, a.Min, a.Max)
}
