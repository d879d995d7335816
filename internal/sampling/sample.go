// Package sampling draws random row subsets from a table.
package sampling

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

// Policy selects whether a row may be drawn more than once.
type Policy int

const (
	WithoutReplacement Policy = iota
	WithReplacement
)

func (p Policy) String() string {
	if p == WithReplacement {
		return "with-replacement"
	}
	return "without-replacement"
}

// Seeded returns a deterministic source for seed.
func Seeded(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed)
}

// Entropy returns a source seeded from the runtime's random generator.
func Entropy() rand.Source {
	return rand.NewPCG(rand.Uint64(), rand.Uint64())
}

// Indices draws k row indices from [0, n).
//
// WithoutReplacement yields k distinct indices and requires k <= n.
// WithReplacement draws each index independently and requires n > 0.
func Indices(n, k int, policy Policy, src rand.Source) ([]int, error) {
	if k <= 0 {
		return nil, nil
	}
	if src == nil {
		src = Entropy()
	}
	switch policy {
	case WithReplacement:
		if n <= 0 {
			return nil, errs.Validation("cannot draw %d rows from an empty table", k)
		}
		r := rand.New(src)
		idx := make([]int, k)
		for i := range idx {
			idx[i] = r.IntN(n)
		}
		return idx, nil
	default:
		if k > n {
			return nil, errs.Validation("requested more rows than available: %d > %d", k, n)
		}
		idx := make([]int, k)
		sampleuv.WithoutReplacement(idx, n, src)
		return idx, nil
	}
}

// Sample returns k rows of t drawn under policy.
//
// k <= 0 returns t unchanged. A nil src uses an entropy-seeded source.
func Sample(t *table.Table, k int, policy Policy, src rand.Source) (*table.Table, error) {
	if k <= 0 {
		return t, nil
	}
	idx, err := Indices(t.NumRows(), k, policy, src)
	if err != nil {
		return nil, err
	}
	return t.Take(idx)
}
