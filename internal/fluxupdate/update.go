// Package fluxupdate reconciles an image-simulator input catalog with a
// reference catalog: per-filter reference measurements (AB magnitudes from
// the simulated catalog, or nJy fluxes) overwrite the matching target
// columns as maggies, and the reference labels and true redshifts are
// copied across.
package fluxupdate

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/logging"
	"github.com/mairanteodoro/roman-photoz/internal/sampling"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

const (
	DefaultStripPrefix     = "magnitude_"
	DefaultMagnitudeMarker = "magnitude"
	DefaultSeed            = 13

	// Column naming of nJy reference catalogs: segment_<band>_flux.
	DefaultFluxPrefix = "segment_"
	DefaultFluxSuffix = "_flux"
	DefaultFluxMarker = "_flux"

	refLabel = "LABEL"
	refZTrue = "Z_TRUE"

	targetLabel = "label"

	// errSuffix marks uncertainty columns, which are never measurements.
	errSuffix = "_ERR"
)

// toUpper folds s to upper case. Casers carry state, so each call gets its
// own.
func toUpper(s string) string {
	return cases.Upper(language.Und).String(s)
}

func toLower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// NormalizeNames upper-cases every column name of ref and strips prefix and
// suffix (compared after upper-casing, so matching is case-insensitive).
//
// "magnitude_F062" and "MAGNITUDE_F062" both become "F062" with prefix
// "magnitude_"; "segment_f062_flux" becomes "F062" with prefix "segment_"
// and suffix "_flux"; "label" becomes "LABEL".
//
// Errors:
//   - ErrValidation when two columns normalize to the same name.
func NormalizeNames(ref *table.Table, prefix, suffix string) (*table.Table, error) {
	up, us := toUpper(prefix), toUpper(suffix)
	cols := ref.Columns()
	for i, c := range cols {
		name := toUpper(c.Name)
		if up != "" {
			name = strings.TrimPrefix(name, up)
		}
		if us != "" {
			name = strings.TrimSuffix(name, us)
		}
		cols[i] = c.WithName(name)
	}
	out, err := table.New(cols...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, err, "normalize reference column names")
	}
	return out, nil
}

// FilterPositive keeps the rows of ref whose measurement columns are all
// > 0. A measurement column is a float column whose name contains marker,
// case-insensitively, and does not end in "_err". NaN fails the test.
//
// Errors:
//   - ErrValidation when ref has no measurement column.
func FilterPositive(ref *table.Table, marker string) (*table.Table, error) {
	m := toUpper(marker)
	var mags [][]float64
	for _, c := range ref.Columns() {
		name := toUpper(c.Name)
		if c.Kind == table.Float && strings.Contains(name, m) && !strings.HasSuffix(name, errSuffix) {
			mags = append(mags, c.Floats())
		}
	}
	if len(mags) == 0 {
		return nil, errs.Validation("reference catalog has no %q columns", marker)
	}
	return ref.Filter(func(row int) bool {
		for _, v := range mags {
			if !(v[row] > 0) {
				return false
			}
		}
		return true
	}), nil
}

// MatchLength resamples ref with replacement to n rows when its length
// differs from n. Indices are drawn from the full range [0, len(ref)).
func MatchLength(ref *table.Table, n int, src rand.Source) (*table.Table, error) {
	if ref.NumRows() == n {
		return ref, nil
	}
	if n == 0 {
		return ref.Filter(func(int) bool { return false }), nil
	}
	return sampling.Sample(ref, n, sampling.WithReplacement, src)
}

// Conversion controls how Update turns reference values into target fluxes.
// The zero value converts AB magnitudes without scaling.
type Conversion struct {
	Unit Unit

	// ScaleFilter, when set, names a band present in both catalogs. Every
	// converted flux of a row is multiplied by target/reference in that
	// band, and the band's own target column is kept as is.
	ScaleFilter string

	// Redshift is the normalized reference true-redshift column. It is
	// copied to the lower-cased name. Empty means Z_TRUE.
	Redshift string
}

func (c Conversion) redshift() string {
	if c.Redshift == "" {
		return refZTrue
	}
	return toUpper(c.Redshift)
}

// Update converts every target column whose name is also a reference column
// from the reference unit to maggies, then copies LABEL and the true
// redshift from the reference into label and z_true (or the lower-cased
// Conversion.Redshift).
//
// ref must already be normalized and have the target's row count.
//
// Errors:
//   - ErrValidation on a row-count mismatch, a missing LABEL or redshift
//     column, a non-float matched column, a value the unit cannot convert,
//     or a scale band that is missing or has a non-positive reference flux.
//   - ErrConfiguration for an unknown unit.
func Update(target, ref *table.Table, conv Conversion) (*table.Table, error) {
	if !conv.Unit.Valid() {
		return nil, errs.Configuration("unknown reference unit %q", string(conv.Unit))
	}
	if ref.NumRows() != target.NumRows() {
		return nil, errs.Validation("reference has %d rows, target has %d", ref.NumRows(), target.NumRows())
	}
	label, ok := ref.Column(refLabel)
	if !ok {
		return nil, errs.Validation("reference catalog has no %s column", refLabel)
	}
	zName := conv.redshift()
	ztrue, ok := ref.Column(zName)
	if !ok {
		return nil, errs.Validation("reference catalog has no %s column", zName)
	}

	scale, err := scaleFactors(target, ref, conv)
	if err != nil {
		return nil, err
	}

	out := target
	for _, name := range MatchedColumns(target, ref, conv) {
		rc, _ := ref.Column(name)
		if rc.Kind != table.Float {
			return nil, errs.Validation("reference column %q is %s, want float64", name, rc.Kind)
		}
		flux := make([]float64, rc.Len())
		for i, v := range rc.Floats() {
			if flux[i], err = conv.Unit.ToMaggies(v); err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
			}
			if scale != nil {
				flux[i] *= scale[i]
			}
		}
		nc := table.FloatColumn(name, flux)
		nc.Unit = "maggies"
		if out, err = out.Set(nc); err != nil {
			return nil, err
		}
	}

	if out, err = out.Set(label.WithName(targetLabel)); err != nil {
		return nil, err
	}
	if out, err = out.Set(ztrue.WithName(toLower(zName))); err != nil {
		return nil, err
	}
	return out, nil
}

// scaleFactors returns target/reference in the scale band, per row, or nil
// when no band is configured.
func scaleFactors(target, ref *table.Table, conv Conversion) ([]float64, error) {
	if conv.ScaleFilter == "" {
		return nil, nil
	}
	band := toUpper(conv.ScaleFilter)
	tv, err := target.Floats(band)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, err, "scale band %s in target", band)
	}
	rv, err := ref.Floats(band)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, err, "scale band %s in reference", band)
	}
	out := make([]float64, len(tv))
	for i := range tv {
		f, err := conv.Unit.ToMaggies(rv[i])
		if err != nil {
			return nil, fmt.Errorf("scale band %s row %d: %w", band, i, err)
		}
		if !(f > 0) {
			return nil, errs.Validation("scale band %s row %d: reference flux %v cannot scale", band, i, f)
		}
		out[i] = tv[i] / f
	}
	return out, nil
}

// MatchedColumns returns the target columns that Update would convert.
func MatchedColumns(target, ref *table.Table, conv Conversion) []string {
	zName, band := conv.redshift(), toUpper(conv.ScaleFilter)
	var out []string
	for _, name := range target.Names() {
		if name == refLabel || name == zName || name == band {
			continue
		}
		if ref.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Options controls Process.
type Options struct {
	// Nobj subselects this many target rows without replacement before the
	// update. Zero keeps every row.
	Nobj int `validate:"gte=0"`

	// Source drives both the subselection and the reference resampling.
	// Nil uses Seeded(DefaultSeed).
	Source rand.Source

	Unit        Unit `validate:"omitempty,oneof=abmag njy"`
	StripPrefix string
	StripSuffix string

	// MagnitudeMarker identifies the reference measurement columns, which
	// hold magnitudes or fluxes depending on Unit.
	MagnitudeMarker string `validate:"required"`

	ScaleFilter    string
	RedshiftColumn string

	Logger *zerolog.Logger
}

// DefaultOptions returns the standard options for an AB magnitude reference.
func DefaultOptions() Options {
	return Options{Unit: ABMag, StripPrefix: DefaultStripPrefix, MagnitudeMarker: DefaultMagnitudeMarker}
}

// NanoJanskyOptions returns the standard options for a reference catalog of
// segment_<band>_flux columns in nJy.
func NanoJanskyOptions() Options {
	return Options{
		Unit:            NanoJansky,
		StripPrefix:     DefaultFluxPrefix,
		StripSuffix:     DefaultFluxSuffix,
		MagnitudeMarker: DefaultFluxMarker,
	}
}

// Process runs the full reconciliation: optional target subselection,
// reference positivity filter, name normalization, length matching and
// Update.
func Process(target, ref *table.Table, opts Options) (*table.Table, error) {
	log := logging.OrNop(opts.Logger)
	src := opts.Source
	if src == nil {
		src = sampling.Seeded(DefaultSeed)
	}
	marker := opts.MagnitudeMarker
	if marker == "" {
		marker = DefaultMagnitudeMarker
	}
	conv := Conversion{Unit: opts.Unit, ScaleFilter: opts.ScaleFilter, Redshift: opts.RedshiftColumn}

	start := time.Now()
	var err error
	if opts.Nobj > 0 {
		if target, err = sampling.Sample(target, opts.Nobj, sampling.WithoutReplacement, src); err != nil {
			return nil, err
		}
	}

	filtered, err := FilterPositive(ref, marker)
	if err != nil {
		return nil, err
	}
	if dropped := ref.NumRows() - filtered.NumRows(); dropped > 0 {
		log.Info().Int("dropped", dropped).Msg("removed reference rows with non-positive measurements")
	}
	if filtered.NumRows() == 0 && target.NumRows() > 0 {
		return nil, errs.Validation("no reference rows left after removing non-positive measurements")
	}

	normalized, err := NormalizeNames(filtered, opts.StripPrefix, opts.StripSuffix)
	if err != nil {
		return nil, err
	}
	matched, err := MatchLength(normalized, target.NumRows(), src)
	if err != nil {
		return nil, err
	}

	out, err := Update(target, matched, conv)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("unit", string(opts.Unit)).
		Int("rows", out.NumRows()).
		Strs("columns", MatchedColumns(target, matched, conv)).
		Dur("duration", time.Since(start)).
		Msg("fluxes updated")
	return out, nil
}
