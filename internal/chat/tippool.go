package chat

import (
	"math/rand/v2"
	"slices"
)

// Rand is the random source used for tip draws.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// TipPool draws tips without replacement from a fixed catalog. The pool
// itself is immutable; the remaining sequence travels with the session state.
type TipPool struct {
	catalog []string
	index   map[string]struct{}
}

// NewTipPool builds a pool over catalog.
func NewTipPool(catalog []string) TipPool {
	index := make(map[string]struct{}, len(catalog))
	for _, tip := range catalog {
		index[tip] = struct{}{}
	}
	return TipPool{catalog: slices.Clone(catalog), index: index}
}

// Full returns a fresh copy of the whole catalog.
func (p TipPool) Full() []string {
	return slices.Clone(p.catalog)
}

// Size returns the catalog size.
func (p TipPool) Size() int {
	return len(p.catalog)
}

// Draw picks a uniformly random tip from remaining and returns it together
// with the remaining tips after removal. An empty remaining is refilled from
// the catalog first. remaining is never modified.
func (p TipPool) Draw(remaining []string, rng Rand) (string, []string) {
	if len(remaining) == 0 {
		remaining = p.catalog
	}
	i := rng.IntN(len(remaining))
	tip := remaining[i]

	rest := make([]string, 0, len(remaining)-1)
	rest = append(rest, remaining[:i]...)
	rest = append(rest, remaining[i+1:]...)
	return tip, rest
}

// Restrict drops entries of remaining that are not in the catalog, which can
// happen when state persisted under an older catalog is loaded.
func (p TipPool) Restrict(remaining []string) []string {
	out := remaining[:0:0]
	for _, tip := range remaining {
		if _, ok := p.index[tip]; ok {
			out = append(out, tip)
		}
	}
	return out
}
