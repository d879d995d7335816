package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/mairanteodoro/roman-photoz/internal/storage"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeDB struct {
	queries []string
	nargs   []int
	failAt  int
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.nargs = append(f.nargs, len(args))
	if f.failAt > 0 && len(f.queries) == f.failAt {
		return nil, errors.New("boom")
	}
	return fakeResult(int64(strings.Count(query, "),") + 1)), nil
}

func (f *fakeDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) Close() error { return nil }

func TestBuildReplaceSQL(t *testing.T) {
	t.Parallel()

	got, err := buildReplaceSQL(storage.TableSpec{
		Name: "dbo.catalog",
		Columns: []storage.ColumnSpec{
			{Name: "label", Type: storage.TypeInt},
			{Name: "zspec", Type: storage.TypeFloat},
			{Name: "kind", Type: storage.TypeText},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "IF OBJECT_ID(N'[dbo].[catalog]', N'U') IS NOT NULL DROP TABLE [dbo].[catalog]; " +
		"CREATE TABLE [dbo].[catalog] ([label] BIGINT, [zspec] FLOAT, [kind] NVARCHAR(MAX));"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestBuildBulkInsertSQL_Placeholders(t *testing.T) {
	t.Parallel()

	q, args, err := buildBulkInsertSQL("catalog", []string{"a", "b"}, [][]any{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatal(err)
	}
	want := "INSERT INTO [catalog] ([a], [b]) VALUES (@p1, @p2), (@p3, @p4)"
	if q != want {
		t.Fatalf("got  %s\nwant %s", q, want)
	}
	if len(args) != 4 || args[3] != 4 {
		t.Fatalf("args=%v", args)
	}
}

func TestInsertRows_BatchesUnderLimits(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	repo := &Repo{db: db}

	// 3 columns -> 666 rows per statement under the parameter limit.
	rows := make([][]any, 1500)
	for i := range rows {
		rows[i] = []any{int64(i), 1.0, "x"}
	}
	n, err := repo.InsertRows(context.Background(), "catalog", []string{"a", "b", "c"}, rows)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1500 {
		t.Fatalf("n=%d", n)
	}
	if len(db.queries) != 3 {
		t.Fatalf("statements=%d, want 3", len(db.queries))
	}
	for _, na := range db.nargs {
		if na > maxParams {
			t.Fatalf("statement bound %d parameters", na)
		}
	}
}

func TestInsertRows_StopsOnError(t *testing.T) {
	t.Parallel()

	db := &fakeDB{failAt: 2}
	repo := &Repo{db: db}
	rows := make([][]any, 2500)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	if _, err := repo.InsertRows(context.Background(), "t", []string{"a"}, rows); err == nil {
		t.Fatalf("expected error")
	}
	if len(db.queries) != 2 {
		t.Fatalf("statements after failure=%d", len(db.queries))
	}
}
