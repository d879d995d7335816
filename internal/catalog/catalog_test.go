package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/libmag"
	"github.com/mairanteodoro/roman-photoz/internal/noise"
	"github.com/mairanteodoro/roman-photoz/internal/sampling"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

func TestAssignLabels(t *testing.T) {
	t.Parallel()

	src, _ := table.New(table.FloatColumn("mag_F062", []float64{3, 1, 2}))
	got, err := AssignLabels(src)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"label", "mag_F062"}, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	lbl, _ := got.Column("label")
	if diff := cmp.Diff([]int64{1, 2, 3}, lbl.Ints()); diff != "" {
		t.Fatalf("labels (-want +got):\n%s", diff)
	}
	m, _ := got.Floats("mag_F062")
	if diff := cmp.Diff([]float64{3, 1, 2}, m); diff != "" {
		t.Fatalf("row order changed (-want +got):\n%s", diff)
	}

	if _, err := AssignLabels(got); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("relabel err=%v, want ErrInternal", err)
	}
	empty, err := AssignLabels(table.Empty())
	if err != nil || empty.NumRows() != 0 {
		t.Fatalf("empty: rows=%d err=%v", empty.NumRows(), err)
	}
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	raw, _ := table.New(
		table.FloatColumn("MOD", []float64{1, 2}),
		table.FloatColumn("mag_F062", []float64{20, 21}),
		table.FloatColumn("redshift", []float64{0.5, 1.5}),
		table.FloatColumn("EBV", []float64{0, 0.1}),
	)
	got, err := Reconcile(raw, "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"mag_F062", "context", "zspec", "z_true"}, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	ctx, _ := got.Column("context")
	if diff := cmp.Diff([]int64{0, 0}, ctx.Ints()); diff != "" {
		t.Fatalf("context (-want +got):\n%s", diff)
	}
	zs, _ := got.Floats("zspec")
	zt, _ := got.Floats("z_true")
	if diff := cmp.Diff(zs, zt); diff != "" || zs[1] != 1.5 {
		t.Fatalf("zspec=%v z_true=%v", zs, zt)
	}

	if _, err := Reconcile(raw, "Z_STEP"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("missing redshift column err=%v", err)
	}
}

func TestRetained_SubstringRule(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"mag_F062":      true,
		"magnitude":     true,
		"MAG_F062":      false,
		"redshift_phot": true,
		"Z_STEP":        false,
		"age":           false,
	}
	for name, want := range tests {
		if got := Retained(name, "redshift"); got != want {
			t.Fatalf("Retained(%q)=%v want %v", name, got, want)
		}
	}
	if !Retained("Z_STEP", "Z_STEP") {
		t.Fatalf("configured redshift column must be retained")
	}
}

func TestAssemble_EndToEnd(t *testing.T) {
	t.Parallel()

	cols, err := libmag.ParseHeader(strings.NewReader("Z_STEP mag_vector age\n"), []string{"F062", "F087"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Z_STEP", "mag_F062", "mag_F087"}, cols); diff != "" {
		t.Fatalf("header (-want +got):\n%s", diff)
	}

	body := "Z_STEP mag_vector age\n" +
		"0.1 20.1 21.1\n" +
		"0.2 20.2 21.2\n" +
		"0.3 20.3 21.3\n" +
		"0.4 20.4 21.4\n" +
		"0.5 20.5 21.5\n"
	raw, err := libmag.Load(strings.NewReader(body), cols)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Assemble(raw, Options{
		SampleSize:     3,
		SampleSource:   sampling.Seeded(3),
		RedshiftColumn: "Z_STEP",
		Noise:          noise.Default(),
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	want := []string{"label", "mag_F062", "mag_F087", "context", "zspec", "z_true"}
	if diff := cmp.Diff(want, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if got.NumRows() != 3 {
		t.Fatalf("rows=%d", got.NumRows())
	}
	lbl, _ := got.Column("label")
	if diff := cmp.Diff([]int64{1, 2, 3}, lbl.Ints()); diff != "" {
		t.Fatalf("labels (-want +got):\n%s", diff)
	}
	ctx, _ := got.Column("context")
	zs, _ := got.Floats("zspec")
	zt, _ := got.Floats("z_true")
	m, _ := got.Floats("mag_F062")
	seen := map[float64]bool{}
	for i := 0; i < 3; i++ {
		if ctx.Ints()[i] != 0 {
			t.Fatalf("context[%d]=%d", i, ctx.Ints()[i])
		}
		if zs[i] != zt[i] {
			t.Fatalf("row %d: zspec=%v z_true=%v", i, zs[i], zt[i])
		}
		// mag_F062 = 20 + z in the fixture, so the sampled redshift must
		// follow its row.
		if d := m[i] - 20 - zs[i]; d > 1e-9 || d < -1e-9 {
			t.Fatalf("row %d: zspec %v does not match its magnitude %v", i, zs[i], m[i])
		}
		if seen[zs[i]] {
			t.Fatalf("redshift %v sampled twice", zs[i])
		}
		seen[zs[i]] = true
	}
}

func TestAssemble_WithNoiseAndAllRows(t *testing.T) {
	t.Parallel()

	raw, _ := table.New(
		table.FloatColumn("redshift", []float64{0.1, 0.2}),
		table.FloatColumn("mag_F062", []float64{20, 21}),
	)
	inj := noise.Default()
	inj.Enabled = true
	got, err := Assemble(raw, Options{Noise: inj})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"label", "mag_F062", "mag_F062_err", "context", "zspec", "z_true"}
	if diff := cmp.Diff(want, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	zs, _ := got.Floats("zspec")
	if diff := cmp.Diff([]float64{0.1, 0.2}, zs); diff != "" {
		t.Fatalf("zspec must not be noised (-want +got):\n%s", diff)
	}
}

func TestAssemble_SampleTooLarge(t *testing.T) {
	t.Parallel()

	raw, _ := table.New(table.FloatColumn("redshift", []float64{0.1}))
	if _, err := Assemble(raw, Options{SampleSize: 2}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
}
