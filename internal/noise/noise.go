// Package noise perturbs simulated magnitudes with Gaussian noise and adds
// per-magnitude error columns.
package noise

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/logging"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

const (
	DefaultMagNoise = 0.1
	DefaultMagErr   = 0.01
	DefaultSeed     = 42

	// ErrSuffix is appended to a magnitude column name to form its error
	// column.
	ErrSuffix = "_err"
)

// Injector adds noise to every column whose name contains "mag".
//
// The zero value is disabled. Use Default for the standard parameters.
type Injector struct {
	Enabled  bool
	MagNoise float64
	MagErr   float64
	Seed     uint64
	Logger   *zerolog.Logger
}

// Default returns a disabled injector with the standard parameters.
func Default() Injector {
	return Injector{MagNoise: DefaultMagNoise, MagErr: DefaultMagErr, Seed: DefaultSeed}
}

// IsMagnitude reports whether name is a magnitude column.
func IsMagnitude(name string) bool { return strings.Contains(name, "mag") }

// Apply returns t with noise applied.
//
// When disabled, t is returned unchanged. Otherwise, for each magnitude
// column in order, every value is replaced by a draw from N(value, MagNoise)
// and a column "<name>_err" holding |N(0, MagErr)| is inserted right after
// it. All draws come from one generator seeded with Seed: the noise draws of
// a column, then its error draws, then the next column.
//
// Errors:
//   - ErrValidation for a negative standard deviation, a non-float magnitude
//     column, or an existing "<name>_err" column.
func (in Injector) Apply(t *table.Table) (*table.Table, error) {
	log := logging.OrNop(in.Logger)
	if !in.Enabled {
		log.Debug().Msg("noise injection disabled")
		return t, nil
	}
	if in.MagNoise < 0 || in.MagErr < 0 {
		return nil, errs.Validation("noise standard deviations must be >= 0 (mag_noise=%g, mag_err=%g)", in.MagNoise, in.MagErr)
	}

	src := rand.NewPCG(in.Seed, in.Seed)
	value := distuv.Normal{Mu: 0, Sigma: in.MagNoise, Src: src}
	spread := distuv.Normal{Mu: 0, Sigma: in.MagErr, Src: src}

	cols := t.Columns()
	out := make([]table.Column, 0, 2*len(cols))
	noised := 0
	for _, c := range cols {
		if !IsMagnitude(c.Name) {
			out = append(out, c)
			continue
		}
		if c.Kind != table.Float {
			return nil, errs.Validation("magnitude column %q is %s, want float64", c.Name, c.Kind)
		}
		errName := c.Name + ErrSuffix
		if t.Has(errName) {
			return nil, errs.Validation("error column %q already exists", errName)
		}

		orig := c.Floats()
		vals := make([]float64, len(orig))
		for i, v := range orig {
			vals[i] = v + value.Rand()
		}
		errv := make([]float64, len(orig))
		for i := range errv {
			errv[i] = math.Abs(spread.Rand())
		}

		nc := table.FloatColumn(c.Name, vals)
		nc.Unit, nc.Description = c.Unit, c.Description
		ec := table.FloatColumn(errName, errv)
		ec.Unit = c.Unit
		out = append(out, nc, ec)
		noised++
	}

	res, err := table.New(out...)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("columns", noised).
		Float64("mag_noise", in.MagNoise).
		Float64("mag_err", in.MagErr).
		Uint64("seed", in.Seed).
		Msg("noise applied")
	return res, nil
}
