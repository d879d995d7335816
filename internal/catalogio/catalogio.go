// Package catalogio persists catalog tables.
//
// The on-disk format is chosen by file extension:
//
//	.parquet, .pq          Apache Parquet (arrow schema stored in the file)
//	.ecsv                  astropy Enhanced CSV (YAML header, space-delimited body)
//	.sqlite, .sqlite3, .db SQLite database with a "catalog" table
//
// Writes go to a temporary file in the destination directory that is renamed
// into place only once fully written, so a failed write never leaves a
// partial catalog behind.
package catalogio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

// Format is a catalog file format.
type Format string

const (
	Parquet Format = "parquet"
	ECSV    Format = "ecsv"
	SQLite  Format = "sqlite"
)

// Metadata keys written with every catalog.
const (
	MetaRunID     = "run_id"
	MetaCreatedBy = "created_by"
	MetaCreatedAt = "created_at"
	MetaDigest    = "catalog_sha256"
)

// CreatedBy is recorded as the writer of every catalog.
const CreatedBy = "roman-photoz"

// FormatFromPath picks the format from path's extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return Parquet, nil
	case ".ecsv":
		return ECSV, nil
	case ".sqlite", ".sqlite3", ".db":
		return SQLite, nil
	default:
		return "", errs.Validation("unsupported catalog extension %q (want .parquet, .ecsv or .sqlite)", filepath.Ext(path))
	}
}

// Catalog is a table plus its key/value metadata.
type Catalog struct {
	Table *table.Table
	Meta  map[string]string
}

// SaveOptions controls Save.
type SaveOptions struct {
	// Filename is joined to Path unless it is absolute.
	Filename string `validate:"required"`
	Path     string

	// Overwrite replaces an existing file. Without it an existing file is a
	// ValidationError.
	Overwrite bool

	// Format overrides the extension-derived format.
	Format Format

	// Meta is merged over the generated run metadata.
	Meta map[string]string
}

// Destination returns the final path for opts.
func (o SaveOptions) Destination() string {
	if filepath.IsAbs(o.Filename) || o.Path == "" {
		return filepath.Clean(o.Filename)
	}
	return filepath.Join(o.Path, o.Filename)
}

// RunMeta builds the metadata recorded with a catalog written now.
func RunMeta(t *table.Table, extra map[string]string) map[string]string {
	meta := map[string]string{
		MetaRunID:     uuid.NewString(),
		MetaCreatedBy: CreatedBy,
		MetaCreatedAt: time.Now().UTC().Format(time.RFC3339),
		MetaDigest:    table.Digest(t),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

// Save writes t to the destination described by opts and returns the final
// path.
//
// Errors:
//   - ErrValidation for an empty filename, an unknown extension, a table
//     without columns, or an existing file when Overwrite is false.
func Save(ctx context.Context, t *table.Table, opts SaveOptions) (string, error) {
	if strings.TrimSpace(opts.Filename) == "" {
		return "", errs.Validation("output filename is empty")
	}
	if t.NumCols() == 0 {
		return "", errs.Validation("refusing to save a catalog without columns")
	}
	dest := opts.Destination()
	format := opts.Format
	if format == "" {
		var err error
		if format, err = FormatFromPath(dest); err != nil {
			return "", err
		}
	}

	if _, err := os.Stat(dest); err == nil && !opts.Overwrite {
		return "", errs.Validation("%s already exists (set overwrite to replace it)", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	meta := RunMeta(t, opts.Meta)
	err := writeAtomic(dest, func(tmp string) error {
		switch format {
		case Parquet:
			return writeParquetFile(tmp, t, meta)
		case ECSV:
			return writeECSVFile(tmp, t, meta)
		case SQLite:
			return writeSQLiteFile(ctx, tmp, t, meta)
		default:
			return errs.Validation("unsupported catalog format %q", format)
		}
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

// Load reads the catalog at path. An empty format is derived from the
// extension.
func Load(ctx context.Context, path string, format Format) (*table.Table, error) {
	c, err := Read(ctx, path, format)
	if err != nil {
		return nil, err
	}
	return c.Table, nil
}

// Read is Load that also returns the stored metadata.
func Read(ctx context.Context, path string, format Format) (*Catalog, error) {
	if format == "" {
		var err error
		if format, err = FormatFromPath(path); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Wrap(errs.ErrValidation, err, "catalog %s", path)
	}
	switch format {
	case Parquet:
		return readParquetFile(ctx, path)
	case ECSV:
		return readECSVFile(path)
	case SQLite:
		return readSQLiteFile(ctx, path)
	default:
		return nil, errs.Validation("unsupported catalog format %q", format)
	}
}

// writeAtomic calls write with a temporary path next to dest and renames the
// result over dest on success.
func writeAtomic(dest string, write func(tmp string) error) error {
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_ = f.Close()
	_ = os.Remove(tmp)

	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
