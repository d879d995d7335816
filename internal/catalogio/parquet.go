package catalogio

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

const (
	fieldMetaUnit        = "unit"
	fieldMetaDescription = "description"
)

func arrowSchema(t *table.Table, meta map[string]string) *arrow.Schema {
	cols := t.Columns()
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		var typ arrow.DataType
		switch c.Kind {
		case table.Float:
			typ = arrow.PrimitiveTypes.Float64
		case table.Int:
			typ = arrow.PrimitiveTypes.Int64
		default:
			typ = arrow.BinaryTypes.String
		}
		var keys, vals []string
		if c.Unit != "" {
			keys, vals = append(keys, fieldMetaUnit), append(vals, c.Unit)
		}
		if c.Description != "" {
			keys, vals = append(keys, fieldMetaDescription), append(vals, c.Description)
		}
		fields[i] = arrow.Field{Name: c.Name, Type: typ, Metadata: arrow.NewMetadata(keys, vals)}
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = meta[k]
	}
	md := arrow.NewMetadata(keys, vals)
	return arrow.NewSchema(fields, &md)
}

// buildRecord converts t into a single arrow record.
func buildRecord(mem memory.Allocator, schema *arrow.Schema, t *table.Table) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i, c := range t.Columns() {
		switch fb := b.Field(i).(type) {
		case *array.Float64Builder:
			fb.AppendValues(c.Floats(), nil)
		case *array.Int64Builder:
			fb.AppendValues(c.Ints(), nil)
		case *array.StringBuilder:
			fb.AppendValues(c.Strings(), nil)
		}
	}
	return b.NewRecord()
}

func writeParquetFile(path string, t *table.Table, meta map[string]string) error {
	mem := memory.NewGoAllocator()
	schema := arrowSchema(t, meta)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	props := parquet.NewWriterProperties(
		parquet.WithDictionaryDefault(false),
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithCreatedBy(CreatedBy),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	w, err := pqarrow.NewFileWriter(schema, f, props, arrowProps)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	rec := buildRecord(mem, schema, t)
	defer rec.Release()

	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write parquet record: %w", err)
	}
	// Close also closes f.
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func readParquetFile(ctx context.Context, path string) (*Catalog, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "open parquet %s", path)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "read parquet %s", path)
	}
	// The table returned by ReadTable carries no key/value metadata.
	schema, err := fr.Schema()
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "read parquet schema %s", path)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "read parquet %s", path)
	}
	defer tbl.Release()

	out, err := fromArrowTable(tbl)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Catalog{Table: out, Meta: fileMeta(schema.Metadata())}, nil
}

// fileMeta drops the arrow-internal keys written by WithStoreSchema.
func fileMeta(md arrow.Metadata) map[string]string {
	meta := make(map[string]string, md.Len())
	for i, k := range md.Keys() {
		if strings.HasPrefix(k, "ARROW:") {
			continue
		}
		meta[k] = md.Values()[i]
	}
	return meta
}

// fromArrowTable copies an arrow table into a table.Table. Float32 and the
// signed integer widths are widened; nulls become NaN, 0 or "" respectively.
func fromArrowTable(tbl arrow.Table) (*table.Table, error) {
	n := int(tbl.NumRows())
	cols := make([]table.Column, 0, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		ac := tbl.Column(i)
		field := ac.Field()

		var col table.Column
		switch field.Type.ID() {
		case arrow.FLOAT64, arrow.FLOAT32:
			vals := make([]float64, 0, n)
			for _, chunk := range ac.Data().Chunks() {
				for j := 0; j < chunk.Len(); j++ {
					if chunk.IsNull(j) {
						vals = append(vals, math.NaN())
						continue
					}
					switch a := chunk.(type) {
					case *array.Float64:
						vals = append(vals, a.Value(j))
					case *array.Float32:
						vals = append(vals, float64(a.Value(j)))
					}
				}
			}
			col = table.FloatColumn(field.Name, vals)
		case arrow.INT64, arrow.INT32, arrow.INT16, arrow.INT8:
			vals := make([]int64, 0, n)
			for _, chunk := range ac.Data().Chunks() {
				for j := 0; j < chunk.Len(); j++ {
					if chunk.IsNull(j) {
						vals = append(vals, 0)
						continue
					}
					switch a := chunk.(type) {
					case *array.Int64:
						vals = append(vals, a.Value(j))
					case *array.Int32:
						vals = append(vals, int64(a.Value(j)))
					case *array.Int16:
						vals = append(vals, int64(a.Value(j)))
					case *array.Int8:
						vals = append(vals, int64(a.Value(j)))
					}
				}
			}
			col = table.IntColumn(field.Name, vals)
		case arrow.STRING, arrow.LARGE_STRING:
			vals := make([]string, 0, n)
			for _, chunk := range ac.Data().Chunks() {
				for j := 0; j < chunk.Len(); j++ {
					if chunk.IsNull(j) {
						vals = append(vals, "")
						continue
					}
					vals = append(vals, chunk.ValueStr(j))
				}
			}
			col = table.StringColumn(field.Name, vals)
		default:
			return nil, errs.DataFormat("column %q has unsupported parquet type %s", field.Name, field.Type)
		}

		if v, ok := field.Metadata.GetValue(fieldMetaUnit); ok {
			col.Unit = v
		}
		if v, ok := field.Metadata.GetValue(fieldMetaDescription); ok {
			col.Description = v
		}
		cols = append(cols, col)
	}
	return table.New(cols...)
}
