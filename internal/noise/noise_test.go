package noise

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

func catalog(t *testing.T) *table.Table {
	t.Helper()
	tb, err := table.New(
		table.FloatColumn("mag_F062", []float64{20, 21, 22, 23}),
		table.FloatColumn("redshift", []float64{0.1, 0.2, 0.3, 0.4}),
		table.FloatColumn("mag_F087", []float64{19, 20, 21, 22}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return tb
}

func TestApply_DisabledIsIdentity(t *testing.T) {
	t.Parallel()

	src := catalog(t)
	got, err := Default().Apply(src)
	if err != nil {
		t.Fatal(err)
	}
	if got != src {
		t.Fatalf("disabled injector must return its input")
	}
}

func TestApply_AddsErrorColumnsAfterParents(t *testing.T) {
	t.Parallel()

	in := Default()
	in.Enabled = true
	got, err := in.Apply(catalog(t))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"mag_F062", "mag_F062_err", "redshift", "mag_F087", "mag_F087_err"}
	if diff := cmp.Diff(want, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}

	z, _ := got.Floats("redshift")
	if diff := cmp.Diff([]float64{0.1, 0.2, 0.3, 0.4}, z); diff != "" {
		t.Fatalf("redshift changed (-want +got):\n%s", diff)
	}
	for _, name := range []string{"mag_F062_err", "mag_F087_err"} {
		v, _ := got.Floats(name)
		for _, e := range v {
			if e < 0 {
				t.Fatalf("%s has negative value %v", name, e)
			}
		}
	}
	m, _ := got.Floats("mag_F062")
	for i, v := range m {
		if math.Abs(v-float64(20+i)) > 1 {
			t.Fatalf("mag_F062[%d]=%v drifted more than 10 sigma", i, v)
		}
	}
}

func TestApply_SameSeedIsBitIdentical(t *testing.T) {
	t.Parallel()

	in := Default()
	in.Enabled = true
	a, err := in.Apply(catalog(t))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := in.Apply(catalog(t))
	if !a.Equal(b) {
		t.Fatalf("same seed produced different tables")
	}

	in.Seed = 7
	c, _ := in.Apply(catalog(t))
	if a.Equal(c) {
		t.Fatalf("different seeds produced identical tables")
	}
}

func TestApply_ZeroSigmaKeepsValues(t *testing.T) {
	t.Parallel()

	in := Injector{Enabled: true, Seed: 1}
	got, err := in.Apply(catalog(t))
	if err != nil {
		t.Fatal(err)
	}
	m, _ := got.Floats("mag_F087")
	if diff := cmp.Diff([]float64{19, 20, 21, 22}, m); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestApply_Rejects(t *testing.T) {
	t.Parallel()

	in := Default()
	in.Enabled = true
	in.MagErr = -1
	if _, err := in.Apply(catalog(t)); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("negative sigma err=%v", err)
	}

	strMag, _ := table.New(table.StringColumn("mag_X", []string{"a"}))
	if _, err := Default().withEnabled().Apply(strMag); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("string mag err=%v", err)
	}

	dup, _ := table.New(
		table.FloatColumn("mag_X", []float64{1}),
		table.FloatColumn("mag_X_err", []float64{1}),
	)
	if _, err := Default().withEnabled().Apply(dup); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("existing _err column err=%v", err)
	}
}

func (in Injector) withEnabled() Injector {
	in.Enabled = true
	return in
}
