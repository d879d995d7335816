package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
)

// Keywords is an engine keyword mapping (LePhare ".para" keys to values).
//
// A Keywords value is treated as immutable once built; use Merge to derive a
// variant.
type Keywords map[string]string

// Get returns the value for key and whether it is set.
func (k Keywords) Get(key string) (string, bool) {
	v, ok := k[key]
	return v, ok
}

// Merge returns a new mapping holding k overlaid by each override in order.
// Neither k nor the overrides are modified.
func (k Keywords) Merge(overrides ...Keywords) Keywords {
	n := len(k)
	for _, o := range overrides {
		n += len(o)
	}
	out := make(Keywords, n)
	for key, v := range k {
		out[key] = v
	}
	for _, o := range overrides {
		for key, v := range o {
			out[key] = v
		}
	}
	return out
}

// Keys returns the keys sorted lexically.
func (k Keywords) Keys() []string {
	keys := make([]string, 0, len(k))
	for key := range k {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// WritePara writes the mapping in ".para" form, one "KEY value" line per key
// in sorted order.
func (k Keywords) WritePara(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, key := range k.Keys() {
		if _, err := fmt.Fprintf(bw, "%s %s\n", key, k[key]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// RomanBands is the ordered Roman filter set.
var RomanBands = []string{"F062", "F087", "F106", "F129", "F158", "F184", "F213", "F146"}

// DefaultRoman returns the Roman engine defaults rooted at env's directories.
func DefaultRoman(env Env) Keywords {
	filterList := make([]string, len(RomanBands))
	for i, b := range RomanBands {
		filterList[i] = "roman/roman_" + b + ".pb"
	}
	sed := filepath.Join(env.LephareDir, "sed")
	return Keywords{
		"STAR_SED":      filepath.Join(sed, "STAR", "STAR_MOD_ALL.list"),
		"STAR_FSCALE":   "3.432E-09",
		"STAR_LIB":      "LIB_STAR",
		"QSO_SED":       filepath.Join(sed, "QSO", "SALVATO09", "AGN_MOD.list"),
		"QSO_FSCALE":    "1",
		"QSO_LIB":       "LIB_QSO",
		"GAL_SED":       filepath.Join(env.LephareDir, "examples", "COSMOS_MOD.list"),
		"GAL_FSCALE":    "1.",
		"GAL_LIB":       "LIB_CE",
		"SEL_AGE":       filepath.Join(sed, "GAL", "HYPERZ", "AGE_GISSEL_HZ.dat"),
		"AGE_RANGE":     "0.,15.e9",
		"FILTER_REP":    filepath.Join(env.LephareDir, "filt"),
		"FILTER_LIST":   strings.Join(filterList, ","),
		"TRANS_TYPE":    "1",
		"FILTER_CALIB":  "0",
		"FILTER_FILE":   "filter_roman",
		"STAR_LIB_IN":   "LIB_STAR",
		"STAR_LIB_OUT":  "ROMAN_STAR_MAG",
		"QSO_LIB_IN":    "LIB_QSO",
		"QSO_LIB_OUT":   "ROMAN_QSO_MAG",
		"GAL_LIB_IN":    "LIB_CE",
		"GAL_LIB_OUT":   "ROMAN_GAL_MAG",
		"MAGTYPE":       "AB",
		"Z_STEP":        "0.01,0.,7.",
		"COSMOLOGY":     "70,0.3,0.7",
		"MOD_EXTINC":    "18,26,26,33,26,33,26,33",
		"EXTINC_LAW":    "SMC_prevot.dat,SB_calzetti.dat,SB_calzetti_bump1.dat,SB_calzetti_bump2.dat",
		"EB_V":          "0.,0.1,0.2,0.3,0.4,0.5",
		"EM_LINES":      "EMP_UV",
		"EM_DISPERSION": "0.5,0.75,1.,1.5,2.",
		"LIB_ASCII":     "NO",
	}
}

// GalaxySimulationOverrides returns the galaxy-class keywords used to produce
// the simulated magnitude library.
func GalaxySimulationOverrides(env Env) Keywords {
	return Keywords{
		"GAL_LIB_IN":  "LIB_CE",
		"GAL_LIB_OUT": SimulatedMagsStem,
		"GAL_SED":     filepath.Join(env.LephareDir, "examples", "COSMOS_MOD.list"),
		"LIB_ASCII":   "YES",
	}
}

// SimulatedMagsStem is the engine output stem of the galaxy magnitude library.
const SimulatedMagsStem = "ROMAN_SIMULATED_MAGS"

// LoadKeywordsFile reads a keyword file.
//
// Files ending in .yaml or .yml are decoded as a flat YAML mapping; anything
// else is read as ".para": one "KEY value" pair per line, with blank lines and
// lines starting with '#' skipped. Values may contain spaces.
func LoadKeywordsFile(path string) (Keywords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "open keyword file %s", path)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAMLKeywords(f, path)
	default:
		return decodePara(f, path)
	}
}

func decodeYAMLKeywords(r io.Reader, path string) (Keywords, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return Keywords{}, nil
		}
		return nil, errs.Wrap(errs.ErrConfiguration, err, "decode %s", path)
	}
	out := make(Keywords, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case map[string]any, []any:
			return nil, errs.Configuration("%s: key %q must be a scalar", path, k)
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	return out, nil
}

func decodePara(r io.Reader, path string) (Keywords, error) {
	out := Keywords{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		key, val := s, ""
		if i := strings.IndexAny(s, " \t"); i >= 0 {
			key, val = s[:i], strings.TrimSpace(s[i+1:])
		}
		if i := strings.Index(val, "#"); i >= 0 {
			val = strings.TrimSpace(val[:i])
		}
		out[key] = val
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "read %s", path)
	}
	return out, nil
}
