package fluxupdate

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/sampling"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

func TestConversions(t *testing.T) {
	t.Parallel()

	if got := ABMagToMaggies(20); math.Abs(got-1e-8) > 1e-20 {
		t.Fatalf("ABMagToMaggies(20)=%g, want 1e-8", got)
	}
	if got := ABMagToMaggies(0); got != 1 {
		t.Fatalf("ABMagToMaggies(0)=%g", got)
	}
	for _, m := range []float64{15, 20.5, 27.3} {
		if back := -2.5 * math.Log10(ABMagToMaggies(m)); math.Abs(back-m) > 1e-9 {
			t.Fatalf("round trip %v -> %v", m, back)
		}
	}
	// 3631 Jy is one maggy.
	if got := NanoJanskyToMaggies(3631e9); math.Abs(got-1) > 1e-12 {
		t.Fatalf("NanoJanskyToMaggies(3631e9)=%g", got)
	}
}

func TestUnit_ToMaggies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		unit    Unit
		in      float64
		want    float64
		wantErr error
	}{
		{unit: "", in: 20, want: 1e-8},
		{unit: ABMag, in: 20, want: 1e-8},
		{unit: ABMag, in: 0, wantErr: errs.ErrValidation},
		{unit: NanoJansky, in: 7262e9, want: 2},
		{unit: NanoJansky, in: -3631, want: -1e-9},
		{unit: NanoJansky, in: math.Inf(1), wantErr: errs.ErrValidation},
		{unit: "mJy", in: 1, wantErr: errs.ErrConfiguration},
	}
	for _, tc := range tests {
		got, err := tc.unit.ToMaggies(tc.in)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%q(%v): err=%v, want %v", tc.unit, tc.in, err, tc.wantErr)
			}
			continue
		}
		if err != nil || math.Abs(got-tc.want) > 1e-12*math.Abs(tc.want) {
			t.Fatalf("%q(%v)=(%g,%v), want %g", tc.unit, tc.in, got, err, tc.want)
		}
	}
	if Unit("mJy").Valid() || !NanoJansky.Valid() || !Unit("").Valid() {
		t.Fatalf("Valid disagrees with ToMaggies")
	}
}

func TestNormalizeNames(t *testing.T) {
	t.Parallel()

	ref, _ := table.New(
		table.IntColumn("label", []int64{1}),
		table.FloatColumn("magnitude_F062", []float64{20}),
		table.FloatColumn("MAGNITUDE_F087", []float64{21}),
		table.FloatColumn("z_true", []float64{0.3}),
	)
	got, err := NormalizeNames(ref, DefaultStripPrefix, "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"LABEL", "F062", "F087", "Z_TRUE"}, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}

	clash, _ := table.New(
		table.FloatColumn("magnitude_F062", []float64{20}),
		table.FloatColumn("f062", []float64{20}),
	)
	if _, err := NormalizeNames(clash, DefaultStripPrefix, ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("clash err=%v", err)
	}
}

func TestFilterPositive(t *testing.T) {
	t.Parallel()

	ref, _ := table.New(
		table.IntColumn("label", []int64{1, 2, 3, 4}),
		table.FloatColumn("MAGNITUDE_F062", []float64{20, -1, 21, 22}),
		table.FloatColumn("magnitude_F087", []float64{20, 20, 0, math.NaN()}),
		table.FloatColumn("z_true", []float64{-5, 0.2, 0.3, 0.4}),
	)
	got, err := FilterPositive(ref, DefaultMagnitudeMarker)
	if err != nil {
		t.Fatal(err)
	}
	lbl, _ := got.Column("label")
	if diff := cmp.Diff([]int64{1}, lbl.Ints()); diff != "" {
		t.Fatalf("kept labels (-want +got):\n%s", diff)
	}

	noMag, _ := table.New(table.FloatColumn("F062", []float64{1}))
	if _, err := FilterPositive(noMag, DefaultMagnitudeMarker); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("no magnitude columns err=%v", err)
	}
}

func TestFilterPositive_IgnoresErrorColumns(t *testing.T) {
	t.Parallel()

	ref, _ := table.New(
		table.IntColumn("label", []int64{1, 2}),
		table.FloatColumn("magnitude_F062", []float64{20, -1}),
		table.FloatColumn("magnitude_F062_err", []float64{0, 0}),
		table.FloatColumn("MAGNITUDE_F087_ERR", []float64{0, math.NaN()}),
	)
	got, err := FilterPositive(ref, DefaultMagnitudeMarker)
	if err != nil {
		t.Fatal(err)
	}
	lbl, _ := got.Column("label")
	if diff := cmp.Diff([]int64{1}, lbl.Ints()); diff != "" {
		t.Fatalf("kept labels (-want +got):\n%s", diff)
	}

	onlyErr, _ := table.New(table.FloatColumn("magnitude_F062_err", []float64{0.1}))
	if _, err := FilterPositive(onlyErr, DefaultMagnitudeMarker); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("error columns alone err=%v", err)
	}
}

func TestProcess_ZeroMagnitudeErrors(t *testing.T) {
	t.Parallel()

	target, _ := table.New(table.FloatColumn("F062", []float64{1, 1}))
	ref, _ := table.New(
		table.IntColumn("label", []int64{1, 2}),
		table.FloatColumn("magnitude_F062", []float64{20, 21}),
		table.FloatColumn("magnitude_F062_err", []float64{0, 0}),
		table.FloatColumn("z_true", []float64{0.1, 0.2}),
	)
	got, err := Process(target, ref, DefaultOptions())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.NumRows() != 2 || got.Has("F062_ERR") {
		t.Fatalf("rows=%d names=%v", got.NumRows(), got.Names())
	}
}

func TestMatchLength(t *testing.T) {
	t.Parallel()

	ref, _ := table.New(table.FloatColumn("F062", []float64{20, 21, 22}))

	same, err := MatchLength(ref, 3, sampling.Seeded(1))
	if err != nil || same != ref {
		t.Fatalf("equal length must be a no-op (err=%v)", err)
	}
	longer, err := MatchLength(ref, 10, sampling.Seeded(DefaultSeed))
	if err != nil {
		t.Fatal(err)
	}
	if longer.NumRows() != 10 {
		t.Fatalf("rows=%d", longer.NumRows())
	}
	shorter, _ := MatchLength(ref, 2, sampling.Seeded(DefaultSeed))
	if shorter.NumRows() != 2 {
		t.Fatalf("rows=%d", shorter.NumRows())
	}
	none, _ := MatchLength(ref, 0, nil)
	if none.NumRows() != 0 || none.NumCols() != 1 {
		t.Fatalf("zero target: %dx%d", none.NumRows(), none.NumCols())
	}
}

func TestUpdate_Scenario(t *testing.T) {
	t.Parallel()

	ref, _ := table.New(
		table.IntColumn("label", []int64{42}),
		table.FloatColumn("MAGNITUDE_F062", []float64{20.0}),
		table.FloatColumn("z_true", []float64{1.25}),
	)
	norm, err := NormalizeNames(ref, DefaultStripPrefix, "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"LABEL", "F062", "Z_TRUE"}, norm.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	f, _ := norm.Floats("F062")
	if f[0] != 20.0 {
		t.Fatalf("renamed values changed: %v", f)
	}

	target, _ := table.New(
		table.StringColumn("type", []string{"SER"}),
		table.FloatColumn("F062", []float64{0.5}),
		table.FloatColumn("F213", []float64{0.7}),
	)
	got, err := Update(target, norm, Conversion{})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"type", "F062", "F213", "label", "z_true"}, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	flux, _ := got.Floats("F062")
	if diff := cmp.Diff([]float64{1e-8}, flux, cmpopts.EquateApprox(1e-9, 0)); diff != "" {
		t.Fatalf("F062 (-want +got):\n%s", diff)
	}
	untouched, _ := got.Floats("F213")
	if untouched[0] != 0.7 {
		t.Fatalf("unmatched column changed: %v", untouched)
	}
	lbl, _ := got.Column("label")
	zt, _ := got.Floats("z_true")
	if lbl.Ints()[0] != 42 || zt[0] != 1.25 {
		t.Fatalf("label=%v z_true=%v", lbl.Ints(), zt)
	}
}

func TestUpdate_Rejects(t *testing.T) {
	t.Parallel()

	target, _ := table.New(table.FloatColumn("F062", []float64{0}))
	neg, _ := table.New(
		table.IntColumn("LABEL", []int64{1}),
		table.FloatColumn("F062", []float64{-2}),
		table.FloatColumn("Z_TRUE", []float64{0.1}),
	)
	if _, err := Update(target, neg, Conversion{}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("non-positive err=%v", err)
	}

	short, _ := table.New(
		table.IntColumn("LABEL", []int64{}),
		table.FloatColumn("Z_TRUE", []float64{}),
	)
	if _, err := Update(target, short, Conversion{}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("length mismatch err=%v", err)
	}

	noLabel, _ := table.New(table.FloatColumn("Z_TRUE", []float64{0.1}))
	if _, err := Update(target, noLabel, Conversion{}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("missing LABEL err=%v", err)
	}
}

// nJyReference mirrors a romanisim segmentation catalog.
func nJyReference(t *testing.T) *table.Table {
	t.Helper()
	ref, err := table.New(
		table.FloatColumn("segment_f213_flux", []float64{1e9, 2e9}),
		table.FloatColumn("segment_f184_flux", []float64{3e9, 4e9}),
		table.FloatColumn("segment_f184_flux_err", []float64{0, 0}),
		table.IntColumn("label", []int64{10, 20}),
		table.FloatColumn("redshift_true", []float64{0.1, 0.2}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

func TestProcess_NanoJansky(t *testing.T) {
	t.Parallel()

	target, _ := table.New(
		table.FloatColumn("F213", []float64{1, 2}),
		table.FloatColumn("F184", []float64{3, 4}),
	)
	approx := cmpopts.EquateApprox(1e-12, 0)

	opts := NanoJanskyOptions()
	opts.RedshiftColumn = "redshift_true"
	got, err := Process(target, nJyReference(t), opts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if diff := cmp.Diff([]string{"F213", "F184", "label", "redshift_true"}, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	f184, _ := got.Floats("F184")
	if diff := cmp.Diff([]float64{3.0 / 3631, 4.0 / 3631}, f184, approx); diff != "" {
		t.Fatalf("F184 (-want +got):\n%s", diff)
	}
	f213, _ := got.Floats("F213")
	if diff := cmp.Diff([]float64{1.0 / 3631, 2.0 / 3631}, f213, approx); diff != "" {
		t.Fatalf("F213 (-want +got):\n%s", diff)
	}
	lbl, _ := got.Column("label")
	if diff := cmp.Diff([]int64{10, 20}, lbl.Ints()); diff != "" {
		t.Fatalf("labels (-want +got):\n%s", diff)
	}

	// Scaling by F213 keeps the target's F213 and rescales the rest so
	// that the reference F213 would match it.
	opts.ScaleFilter = "f213"
	scaled, err := Process(target, nJyReference(t), opts)
	if err != nil {
		t.Fatalf("Process scaled: %v", err)
	}
	f184, _ = scaled.Floats("F184")
	if diff := cmp.Diff([]float64{3, 4}, f184, approx); diff != "" {
		t.Fatalf("scaled F184 (-want +got):\n%s", diff)
	}
	f213, _ = scaled.Floats("F213")
	if diff := cmp.Diff([]float64{1, 2}, f213); diff != "" {
		t.Fatalf("scale band changed (-want +got):\n%s", diff)
	}

	opts.ScaleFilter = "F062"
	if _, err := Process(target, nJyReference(t), opts); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("missing scale band err=%v", err)
	}
}

func TestUpdate_UnknownUnit(t *testing.T) {
	t.Parallel()

	target, _ := table.New(table.FloatColumn("F062", []float64{1}))
	ref, _ := table.New(
		table.IntColumn("LABEL", []int64{1}),
		table.FloatColumn("F062", []float64{20}),
		table.FloatColumn("Z_TRUE", []float64{0.1}),
	)
	if _, err := Update(target, ref, Conversion{Unit: "mJy"}); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("err=%v, want ErrConfiguration", err)
	}
}

func TestProcess(t *testing.T) {
	t.Parallel()

	target, _ := table.New(
		table.FloatColumn("F062", []float64{0, 0, 0, 0, 0}),
		table.FloatColumn("ra", []float64{1, 2, 3, 4, 5}),
	)
	ref, _ := table.New(
		table.IntColumn("label", []int64{1, 2, 3}),
		table.FloatColumn("magnitude_F062", []float64{20, -99, 25}),
		table.FloatColumn("z_true", []float64{0.1, 0.2, 0.3}),
	)

	opts := DefaultOptions()
	opts.Source = sampling.Seeded(DefaultSeed)
	got, err := Process(target, ref, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got.NumRows() != 5 {
		t.Fatalf("rows=%d", got.NumRows())
	}
	lbl, _ := got.Column("label")
	flux, _ := got.Floats("F062")
	for i, l := range lbl.Ints() {
		if l == 2 {
			t.Fatalf("row with a negative magnitude was used")
		}
		want := ABMagToMaggies(20)
		if l == 3 {
			want = ABMagToMaggies(25)
		}
		if flux[i] != want {
			t.Fatalf("row %d: flux %g does not match label %d", i, flux[i], l)
		}
	}

	opts.Nobj = 2
	opts.Source = sampling.Seeded(DefaultSeed)
	sub, err := Process(target, ref, opts)
	if err != nil {
		t.Fatal(err)
	}
	if sub.NumRows() != 2 {
		t.Fatalf("nobj rows=%d", sub.NumRows())
	}

	opts.Nobj = 6
	if _, err := Process(target, ref, opts); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("nobj too large err=%v", err)
	}
}
