// Package catalog turns a raw magnitude library into the simulated catalog
// schema.
//
// The simulated catalog has the columns, in order:
//
//	label, <mag columns> (each optionally followed by <mag>_err), context, zspec, z_true
package catalog

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/logging"
	"github.com/mairanteodoro/roman-photoz/internal/noise"
	"github.com/mairanteodoro/roman-photoz/internal/sampling"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

// Column names of the simulated catalog.
const (
	ColLabel   = "label"
	ColContext = "context"
	ColZSpec   = "zspec"
	ColZTrue   = "z_true"

	DefaultRedshiftColumn = "redshift"
)

// AssignLabels returns t with an int64 "label" column 1..N placed first. Row
// order is unchanged.
//
// Errors:
//   - ErrInternal if t already has a label column.
func AssignLabels(t *table.Table) (*table.Table, error) {
	if t.Has(ColLabel) {
		return nil, errs.Internal("table already has a %q column", ColLabel)
	}
	ids := make([]int64, t.NumRows())
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return t.Insert(0, table.IntColumn(ColLabel, ids))
}

// Retained reports whether a raw column survives reconciliation.
func Retained(name, redshiftColumn string) bool {
	return strings.Contains(name, "mag") || strings.Contains(name, "redshift") || name == redshiftColumn
}

// Reconcile keeps the magnitude and redshift columns of t, appends context
// (0), zspec and z_true (both copied from redshiftColumn), and drops
// redshiftColumn.
//
// An empty redshiftColumn means "redshift".
//
// Errors:
//   - ErrValidation if redshiftColumn is missing or not float64.
func Reconcile(t *table.Table, redshiftColumn string) (*table.Table, error) {
	if redshiftColumn == "" {
		redshiftColumn = DefaultRedshiftColumn
	}
	z, err := t.Floats(redshiftColumn)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{ColContext, ColZSpec, ColZTrue} {
		if t.Has(name) {
			return nil, errs.Validation("raw table already has a %q column", name)
		}
	}

	kept := t.SelectFunc(func(name string) bool { return Retained(name, redshiftColumn) }).
		Drop(redshiftColumn)

	context := make([]int64, t.NumRows())
	zspec := append([]float64(nil), z...)
	ztrue := append([]float64(nil), z...)

	for _, c := range []table.Column{
		table.IntColumn(ColContext, context),
		table.FloatColumn(ColZSpec, zspec),
		table.FloatColumn(ColZTrue, ztrue),
	} {
		if kept, err = kept.Append(c); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// Options controls Assemble.
type Options struct {
	// SampleSize is the number of rows drawn without replacement. Zero or
	// negative keeps every row.
	SampleSize int

	// SampleSource drives row sampling. Nil means an entropy-seeded source.
	SampleSource rand.Source

	// RedshiftColumn names the true-redshift column of the raw table.
	RedshiftColumn string

	Noise  noise.Injector
	Logger *zerolog.Logger
}

// Assemble runs sampling, reconciliation, noise injection and labelling over
// a raw magnitude table, in that order.
func Assemble(raw *table.Table, opts Options) (*table.Table, error) {
	log := logging.OrNop(opts.Logger)

	start := time.Now()
	sampled, err := sampling.Sample(raw, opts.SampleSize, sampling.WithoutReplacement, opts.SampleSource)
	if err != nil {
		return nil, err
	}
	logging.LogStep(log, "sample", sampled.NumRows(), time.Since(start))

	start = time.Now()
	reconciled, err := Reconcile(sampled, opts.RedshiftColumn)
	if err != nil {
		return nil, err
	}
	logging.LogStep(log, "reconcile", reconciled.NumRows(), time.Since(start))

	inj := opts.Noise
	if inj.Logger == nil {
		inj.Logger = opts.Logger
	}
	noised, err := inj.Apply(reconciled)
	if err != nil {
		return nil, err
	}

	return AssignLabels(noised)
}
