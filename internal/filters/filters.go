// Package filters manages the Roman filter transmission curves used by the
// engine.
//
// Curves live under <FILTER_REP>/roman as roman_<band>.pb files. When they are
// missing, EffAreaGenerator builds them from the Roman effective-area
// workbook.
package filters

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mairanteodoro/roman-photoz/internal/config"
	"github.com/mairanteodoro/roman-photoz/internal/errs"
)

// Subdir is the directory under FILTER_REP holding the Roman curves.
const Subdir = "roman"

// FilePrefix starts the name of every Roman curve file.
const FilePrefix = "roman_"

// Generator produces the filter curve files.
type Generator interface {
	Generate(ctx context.Context) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context) error

// Generate calls f(ctx).
func (f GeneratorFunc) Generate(ctx context.Context) error { return f(ctx) }

// Dir returns the Roman curve directory under filterRep.
func Dir(filterRep string) string {
	return filepath.Join(filterRep, Subdir)
}

// Exist reports whether dir/roman exists and holds at least one file whose
// name contains "roman_".
//
// A missing directory is not an error.
func Exist(dir string) (bool, error) {
	entries, err := os.ReadDir(Dir(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.Contains(e.Name(), FilePrefix) {
			return true, nil
		}
	}
	return false, nil
}

// Names returns the band names listed in cfg's FILTER_LIST, in order.
//
// Each entry is reduced to its base name without extension, with the
// "roman_" prefix removed: "roman/roman_F062.pb" becomes "F062".
//
// Errors:
//   - ErrConfiguration when FILTER_LIST is unset, empty, or lists a band
//     twice.
func Names(cfg config.Keywords) ([]string, error) {
	raw, ok := cfg.Get("FILTER_LIST")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errs.Configuration("FILTER_LIST is not set")
	}
	var out []string
	seen := map[string]bool{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		base := filepath.Base(entry)
		name := strings.TrimPrefix(strings.TrimSuffix(base, filepath.Ext(base)), FilePrefix)
		if seen[name] {
			return nil, errs.Configuration("FILTER_LIST lists %q more than once", name)
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, errs.Configuration("FILTER_LIST is empty")
	}
	return out, nil
}
