package config

import (
	"bufio"
	"os"
	"strings"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
)

// ReadOutputKeys reads an output-keys list: one key per line. Blank lines and
// lines starting with '#' are skipped; surrounding whitespace is trimmed.
//
// A missing file is a ConfigurationError wrapping fs.ErrNotExist.
func ReadOutputKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "output keys file")
	}
	defer f.Close()

	var keys []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		if s := strings.TrimSpace(line); s != "" {
			keys = append(keys, s)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "read %s", path)
	}
	return keys, nil
}
