package libmag

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

// Load reads the data rows of a magnitude library into a table whose columns
// are named by columns, in order.
//
// The first non-blank line is the header and is skipped, as are blank lines
// and lines starting with '#'. Every other line is split on whitespace.
//
// A column becomes float64 when every one of its values parses as a float
// (including "nan" and "inf"); otherwise it is kept as strings.
//
// Errors:
//   - ErrDataFormat with the 1-based line number when a row's field count
//     differs from len(columns).
func Load(r io.Reader, columns []string) (*table.Table, error) {
	raw := make([][]string, len(columns))

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	headerSeen := false
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if !headerSeen {
			headerSeen = true
			continue
		}
		if strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != len(columns) {
			return nil, errs.DataFormat("line %d: got %d fields, want %d", line, len(fields), len(columns))
		}
		for i, f := range fields {
			raw[i] = append(raw[i], f)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "read magnitude library")
	}

	cols := make([]table.Column, len(columns))
	for i, name := range columns {
		cols[i] = inferColumn(name, raw[i])
	}
	return table.New(cols...)
}

// LoadFile is Load over the file at path.
func LoadFile(path string, columns []string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "open magnitude library")
	}
	defer f.Close()
	return Load(f, columns)
}

// ReadFile parses the header of path and loads its rows in one pass over the
// file system.
func ReadFile(path string, filters []string) (*table.Table, error) {
	cols, err := ParseHeaderFile(path, filters)
	if err != nil {
		return nil, err
	}
	return LoadFile(path, cols)
}

func inferColumn(name string, vals []string) table.Column {
	floats := make([]float64, len(vals))
	for i, s := range vals {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return table.StringColumn(name, vals)
		}
		floats[i] = v
	}
	return table.FloatColumn(name, floats)
}
