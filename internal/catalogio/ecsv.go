package catalogio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

const (
	ecsvSignature = "%ECSV 1.0"
	ecsvSeparator = "---"
	ecsvSchema    = "astropy-2.0"
)

type ecsvColumn struct {
	Name        string `yaml:"name"`
	Unit        string `yaml:"unit,omitempty"`
	Datatype    string `yaml:"datatype"`
	Description string `yaml:"description,omitempty"`
	Subtype     string `yaml:"subtype,omitempty"`
}

type ecsvHeader struct {
	Datatype  []ecsvColumn `yaml:"datatype"`
	Delimiter string       `yaml:"delimiter,omitempty"`
	Meta      yaml.Node    `yaml:"meta,omitempty"`
	Schema    string       `yaml:"schema,omitempty"`
}

func ecsvDatatype(k table.Kind) string {
	switch k {
	case table.Float:
		return "float64"
	case table.Int:
		return "int64"
	default:
		return "string"
	}
}

// kindForDatatype maps an ECSV datatype onto a column kind. bool and string
// columns are held as strings.
func kindForDatatype(dt string) table.Kind {
	switch {
	case strings.HasPrefix(dt, "float"):
		return table.Float
	case strings.HasPrefix(dt, "int"), strings.HasPrefix(dt, "uint"):
		return table.Int
	default:
		return table.String
	}
}

func formatECSVFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteECSV encodes t and meta as an ECSV 1.0 document.
func WriteECSV(w io.Writer, t *table.Table, meta map[string]string) error {
	hdr := ecsvHeader{Schema: ecsvSchema}
	for _, c := range t.Columns() {
		hdr.Datatype = append(hdr.Datatype, ecsvColumn{
			Name:        c.Name,
			Unit:        c.Unit,
			Datatype:    ecsvDatatype(c.Kind),
			Description: c.Description,
		})
	}
	if len(meta) > 0 {
		if err := hdr.Meta.Encode(meta); err != nil {
			return err
		}
	}
	y, err := yaml.Marshal(&hdr)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n# %s\n", ecsvSignature, ecsvSeparator)
	for _, line := range strings.Split(strings.TrimRight(string(y), "\n"), "\n") {
		fmt.Fprintf(bw, "# %s\n", line)
	}

	writeECSVRecord(bw, t.Names())
	cols := t.Columns()
	rec := make([]string, len(cols))
	for i := 0; i < t.NumRows(); i++ {
		for j, c := range cols {
			switch c.Kind {
			case table.Float:
				rec[j] = formatECSVFloat(c.Floats()[i])
			case table.Int:
				rec[j] = strconv.FormatInt(c.Ints()[i], 10)
			default:
				rec[j] = c.Strings()[i]
			}
		}
		writeECSVRecord(bw, rec)
	}
	return bw.Flush()
}

// writeECSVRecord writes one space-delimited line. Empty fields are written
// as "" so whitespace readers keep the field count.
func writeECSVRecord(w *bufio.Writer, rec []string) {
	for i, field := range rec {
		if i > 0 {
			w.WriteByte(' ')
		}
		if field != "" && !strings.ContainsAny(field, " \t\"\r\n") && !strings.HasPrefix(field, "#") {
			w.WriteString(field)
			continue
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(field, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}

// ReadECSV decodes an ECSV document.
//
// Errors:
//   - ErrDataFormat for a missing signature, a malformed YAML header, a
//     column line that disagrees with the header, multidimensional
//     (subtype) columns, or unparsable values.
func ReadECSV(r io.Reader) (*Catalog, error) {
	br := bufio.NewReader(r)

	var yamlLines []string
	first := true
	var body bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if line == "" && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if !strings.HasPrefix(line, "#") {
			body.WriteString(line)
			if _, err := io.Copy(&body, br); err != nil {
				return nil, err
			}
			break
		}
		text := strings.TrimRight(strings.TrimPrefix(line, "#"), "\r\n")
		text = strings.TrimPrefix(text, " ")
		if first {
			if strings.TrimSpace(text) != ecsvSignature {
				return nil, errs.DataFormat("not an ECSV file: first line is %q", strings.TrimSpace(line))
			}
			first = false
			continue
		}
		if strings.TrimSpace(text) == ecsvSeparator && len(yamlLines) == 0 {
			continue
		}
		yamlLines = append(yamlLines, text)
		if err != nil {
			break
		}
	}
	if first {
		return nil, errs.DataFormat("not an ECSV file: missing %q signature", ecsvSignature)
	}

	var hdr ecsvHeader
	if err := yaml.Unmarshal([]byte(strings.Join(yamlLines, "\n")), &hdr); err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "ECSV header")
	}
	if len(hdr.Datatype) == 0 {
		return nil, errs.DataFormat("ECSV header declares no columns")
	}
	meta, err := flattenMeta(&hdr.Meta)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(&body)
	cr.Comma = ' '
	if hdr.Delimiter == "," {
		cr.Comma = ','
	}
	cr.Comment = '#'
	cr.FieldsPerRecord = len(hdr.Datatype)

	names, err := cr.Read()
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "ECSV column line")
	}
	for i, c := range hdr.Datatype {
		if c.Subtype != "" {
			return nil, errs.DataFormat("column %q: subtype %q is not supported", c.Name, c.Subtype)
		}
		if names[i] != c.Name {
			return nil, errs.DataFormat("column line has %q at position %d, header declares %q", names[i], i, c.Name)
		}
	}

	floats := make([][]float64, len(hdr.Datatype))
	ints := make([][]int64, len(hdr.Datatype))
	strs := make([][]string, len(hdr.Datatype))
	kinds := make([]table.Kind, len(hdr.Datatype))
	for i, c := range hdr.Datatype {
		kinds[i] = kindForDatatype(c.Datatype)
	}

	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrDataFormat, err, "ECSV row %d", row)
		}
		for j, field := range rec {
			switch kinds[j] {
			case table.Float:
				v := math.NaN()
				if field != "" {
					v, err = strconv.ParseFloat(field, 64)
					if err != nil {
						return nil, errs.DataFormat("row %d column %q: %q is not a float", row, hdr.Datatype[j].Name, field)
					}
				}
				floats[j] = append(floats[j], v)
			case table.Int:
				v, err := strconv.ParseInt(field, 10, 64)
				if err != nil {
					return nil, errs.DataFormat("row %d column %q: %q is not an integer", row, hdr.Datatype[j].Name, field)
				}
				ints[j] = append(ints[j], v)
			default:
				strs[j] = append(strs[j], field)
			}
		}
	}

	cols := make([]table.Column, len(hdr.Datatype))
	for j, c := range hdr.Datatype {
		switch kinds[j] {
		case table.Float:
			cols[j] = table.FloatColumn(c.Name, nonNil(floats[j]))
		case table.Int:
			cols[j] = table.IntColumn(c.Name, nonNil(ints[j]))
		default:
			cols[j] = table.StringColumn(c.Name, nonNil(strs[j]))
		}
		cols[j].Unit = c.Unit
		cols[j].Description = c.Description
	}
	t, err := table.New(cols...)
	if err != nil {
		return nil, err
	}
	return &Catalog{Table: t, Meta: meta}, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// flattenMeta reads the scalar top-level entries of an ECSV meta block.
// Both a plain mapping and astropy's !!omap sequence of single-key mappings
// are accepted; nested values are skipped.
func flattenMeta(n *yaml.Node) (map[string]string, error) {
	meta := map[string]string{}
	if n.Kind == 0 {
		return meta, nil
	}
	add := func(m *yaml.Node) {
		for i := 0; i+1 < len(m.Content); i += 2 {
			k, v := m.Content[i], m.Content[i+1]
			if v.Kind == yaml.ScalarNode {
				meta[k.Value] = v.Value
			}
		}
	}
	switch n.Kind {
	case yaml.MappingNode:
		add(n)
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind == yaml.MappingNode {
				add(item)
			}
		}
	default:
		return nil, errs.DataFormat("ECSV meta must be a mapping, got %q", n.Value)
	}
	return meta, nil
}

func writeECSVFile(path string, t *table.Table, meta map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteECSV(f, t, meta); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readECSVFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := ReadECSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
