package catalogio

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/storage"
	_ "github.com/mairanteodoro/roman-photoz/internal/storage/sqlite"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

const (
	// SQLiteTable holds catalog rows in a .sqlite catalog file.
	SQLiteTable = "catalog"
	// SQLiteMetaTable holds the key/value metadata of a .sqlite catalog file.
	SQLiteMetaTable = "catalog_meta"
)

// TableSpecFor describes t as a storage table named name.
func TableSpecFor(name string, t *table.Table) storage.TableSpec {
	spec := storage.TableSpec{Name: name}
	for _, c := range t.Columns() {
		typ := storage.TypeText
		switch c.Kind {
		case table.Float:
			typ = storage.TypeFloat
		case table.Int:
			typ = storage.TypeInt
		}
		spec.Columns = append(spec.Columns, storage.ColumnSpec{Name: c.Name, Type: typ})
	}
	return spec
}

// Rows returns t row-major for InsertRows. NaN floats become nil (SQL NULL).
func Rows(t *table.Table) [][]any {
	rows := make([][]any, t.NumRows())
	for i := range rows {
		row := t.Row(i)
		for j, v := range row {
			if f, ok := v.(float64); ok && math.IsNaN(f) {
				row[j] = nil
			}
		}
		rows[i] = row
	}
	return rows
}

// SaveToDatabase replaces tableName in repo with the contents of t and
// returns the number of rows written.
func SaveToDatabase(ctx context.Context, repo storage.Repository, tableName string, t *table.Table) (int64, error) {
	if t.NumCols() == 0 {
		return 0, errs.Validation("refusing to save a catalog without columns")
	}
	spec := TableSpecFor(tableName, t)
	if err := repo.ReplaceTable(ctx, spec); err != nil {
		return 0, err
	}
	n, err := repo.InsertRows(ctx, tableName, spec.ColumnNames(), Rows(t))
	if err != nil {
		return n, fmt.Errorf("save catalog to %s: %w", tableName, err)
	}
	return n, nil
}

// LoadFromDatabase reads tableName from repo.
//
// Column kinds are inferred from the values: all-integer columns are Int,
// numeric columns are Float (NULL reads as NaN), anything else is String.
func LoadFromDatabase(ctx context.Context, repo storage.Repository, tableName string) (*table.Table, error) {
	names, rows, err := repo.SelectAll(ctx, tableName)
	if err != nil {
		return nil, err
	}
	cols := make([]table.Column, len(names))
	for j, name := range names {
		cols[j] = inferColumn(name, rows, j)
	}
	return table.New(cols...)
}

func inferColumn(name string, rows [][]any, j int) table.Column {
	allInt, numeric := true, true
	for _, r := range rows {
		switch r[j].(type) {
		case int64:
		case float64, nil:
			allInt = false
		default:
			allInt, numeric = false, false
		}
	}
	switch {
	case allInt && len(rows) > 0:
		v := make([]int64, len(rows))
		for i, r := range rows {
			v[i] = r[j].(int64)
		}
		return table.IntColumn(name, v)
	case numeric:
		v := make([]float64, len(rows))
		for i, r := range rows {
			switch x := r[j].(type) {
			case int64:
				v[i] = float64(x)
			case float64:
				v[i] = x
			default:
				v[i] = math.NaN()
			}
		}
		return table.FloatColumn(name, v)
	default:
		v := make([]string, len(rows))
		for i, r := range rows {
			if r[j] != nil {
				v[i] = fmt.Sprint(r[j])
			}
		}
		return table.StringColumn(name, v)
	}
}

func writeSQLiteFile(ctx context.Context, path string, t *table.Table, meta map[string]string) error {
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: path})
	if err != nil {
		return err
	}
	defer repo.Close()

	if _, err := SaveToDatabase(ctx, repo, SQLiteTable, t); err != nil {
		return err
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{k, meta[k]}
	}
	spec := storage.TableSpec{
		Name: SQLiteMetaTable,
		Columns: []storage.ColumnSpec{
			{Name: "key", Type: storage.TypeText},
			{Name: "value", Type: storage.TypeText},
		},
	}
	if err := repo.ReplaceTable(ctx, spec); err != nil {
		return err
	}
	_, err = repo.InsertRows(ctx, SQLiteMetaTable, spec.ColumnNames(), rows)
	return err
}

func readSQLiteFile(ctx context.Context, path string) (*Catalog, error) {
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: path})
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	t, err := LoadFromDatabase(ctx, repo, SQLiteTable)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "read sqlite catalog %s", path)
	}
	meta := map[string]string{}
	if _, rows, err := repo.SelectAll(ctx, SQLiteMetaTable); err == nil {
		for _, r := range rows {
			if len(r) == 2 {
				meta[fmt.Sprint(r[0])] = fmt.Sprint(r[1])
			}
		}
	}
	return &Catalog{Table: t, Meta: meta}, nil
}
