package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mairanteodoro/roman-photoz/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It provides:
  - Table replacement (DROP + CREATE, with CREATE SCHEMA for qualified names)
  - Bulk loads through the COPY protocol
  - Full-table reads
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// ReplaceTable drops and recreates spec.Name inside a transaction.
func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec) error {
	schemaSQL, dropSQL, createSQL, err := buildReplaceSQL(spec)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range []string{schemaSQL, dropSQL, createSQL} {
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("replace table %s: %w", spec.Name, err)
		}
	}
	return tx.Commit(ctx)
}

// InsertRows loads rows with COPY FROM.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("insert into %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
	}
	n, err := r.pool.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// SelectAll reads every row of table.
func (r *Repo) SelectAll(ctx context.Context, table string) ([]string, [][]any, error) {
	rows, err := r.pool.Query(ctx, "SELECT * FROM "+identifier(table).Sanitize())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		for i, v := range vals {
			vals[i] = storage.NormalizeValue(v)
		}
		out = append(out, vals)
	}
	return cols, out, rows.Err()
}

// splitQualifiedName splits "schema.table" into its parts.
//
// This helper is intentionally conservative: it only handles a single dot.
// If callers pass a more complex expression, we treat it as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func identifier(name string) pgx.Identifier {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func pgType(t storage.ColumnType) string {
	switch t {
	case storage.TypeFloat:
		return "double precision"
	case storage.TypeInt:
		return "bigint"
	default:
		return "text"
	}
}

// buildReplaceSQL builds the DDL for replacing spec.Name. schemaSQL is empty
// for unqualified names.
//
// It is pure, so DDL can be unit tested without a database.
func buildReplaceSQL(spec storage.TableSpec) (schemaSQL, dropSQL, createSQL string, err error) {
	if err := spec.Validate(); err != nil {
		return "", "", "", err
	}
	schema, _ := splitQualifiedName(spec.Name)
	if schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema)
	}
	table := identifier(spec.Name).Sanitize()
	dropSQL = "DROP TABLE IF EXISTS " + table

	defs := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		defs[i] = pgIdent(c.Name) + " " + pgType(c.Type)
	}
	createSQL = "CREATE TABLE " + table + " (" + strings.Join(defs, ", ") + ")"
	return schemaSQL, dropSQL, createSQL, nil
}
