package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mairanteodoro/roman-photoz/internal/storage"
)

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	got, err := buildCreateSQL(storage.TableSpec{
		Name: "catalog",
		Columns: []storage.ColumnSpec{
			{Name: "label", Type: storage.TypeInt},
			{Name: "mag_F062", Type: storage.TypeFloat},
			{Name: `odd"name`, Type: storage.TypeText},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `CREATE TABLE "catalog" ("label" INTEGER, "mag_F062" REAL, "odd""name" TEXT)`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}

	if _, err := buildCreateSQL(storage.TableSpec{Name: "x"}); err == nil {
		t.Fatalf("expected error for spec without columns")
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	q, args, err := buildInsertSQL("catalog", []string{"a", "b"}, [][]any{{1, 2.5}, {3, 4.5}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(q, `("a", "b") VALUES (?,?), (?,?)`) {
		t.Fatalf("unexpected SQL: %s", q)
	}
	if len(args) != 4 {
		t.Fatalf("args=%v", args)
	}

	if _, _, err := buildInsertSQL("catalog", []string{"a", "b"}, [][]any{{1}}); err == nil {
		t.Fatalf("expected error for short row")
	}
}

func TestRepo_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.sqlite")

	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()

	spec := storage.TableSpec{
		Name: "catalog",
		Columns: []storage.ColumnSpec{
			{Name: "label", Type: storage.TypeInt},
			{Name: "z_true", Type: storage.TypeFloat},
			{Name: "kind", Type: storage.TypeText},
		},
	}
	if err := repo.ReplaceTable(ctx, spec); err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	rows := [][]any{
		{int64(1), 0.25, "SER"},
		{int64(2), 1.5, "BULGE"},
	}
	n, err := repo.InsertRows(ctx, "catalog", spec.ColumnNames(), rows)
	if err != nil || n != 2 {
		t.Fatalf("InsertRows n=%d err=%v", n, err)
	}

	cols, got, err := repo.SelectAll(ctx, "catalog")
	if err != nil {
		t.Fatalf("SelectAll: %v", err)
	}
	if diff := cmp.Diff(spec.ColumnNames(), cols); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}

	// Replacing discards previous rows.
	if err := repo.ReplaceTable(ctx, spec); err != nil {
		t.Fatal(err)
	}
	_, got, err = repo.SelectAll(ctx, "catalog")
	if err != nil || len(got) != 0 {
		t.Fatalf("after replace rows=%d err=%v", len(got), err)
	}
}
