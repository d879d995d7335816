// Package libmag reads the magnitude library the spectral-synthesis engine
// writes to <work>/lib_mag/<stem>.dat.
//
// The file is whitespace-delimited text. Its first non-blank line names the
// columns; names containing "vector" are placeholders that expand to one
// column per filter.
package libmag

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
)

const vectorToken = "vector"

// ParseHeader derives the column names of a magnitude library from its
// first non-blank line, the same line Load skips as the header.
//
// Rules, applied in order:
//   - literal tokens keep their order;
//   - every token containing "vector" is expanded into one name per filter
//     (the placeholder replaced by the filter name), token-major then filter
//     order, and the expansions are appended after all literals;
//   - names containing "#" or "age" are dropped.
//
// Errors:
//   - ErrConfiguration when a vector token is present but filters is empty.
//   - ErrDataFormat when the input has no header line.
func ParseHeader(r io.Reader, filters []string) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		return ExpandHeader(strings.Fields(text), filters)
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "read header")
	}
	return nil, errs.DataFormat("missing header line")
}

// ExpandHeader applies the ParseHeader rules to already-split tokens.
func ExpandHeader(tokens []string, filters []string) ([]string, error) {
	literals := make([]string, 0, len(tokens))
	var vectors []string
	for _, tok := range tokens {
		if strings.Contains(tok, vectorToken) {
			vectors = append(vectors, tok)
			continue
		}
		literals = append(literals, tok)
	}
	if len(vectors) > 0 && len(filters) == 0 {
		return nil, errs.Configuration("header has %d vector columns but the filter set is empty", len(vectors))
	}

	names := literals
	for _, v := range vectors {
		for _, f := range filters {
			names = append(names, strings.ReplaceAll(v, vectorToken, f))
		}
	}

	out := names[:0]
	for _, n := range names {
		if strings.Contains(n, "#") || strings.Contains(n, "age") {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseHeaderFile is ParseHeader over the file at path.
func ParseHeaderFile(path string, filters []string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "open magnitude library")
	}
	defer f.Close()
	return ParseHeader(f, filters)
}
