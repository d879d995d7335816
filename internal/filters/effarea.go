package filters

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/logging"
)

// DefaultWorkbook is the effective-area workbook used when none is given.
const DefaultWorkbook = "Roman_effarea_20210614.xlsx"

// DefaultBaseURL is the download location template; %s is the workbook date
// (the trailing _YYYYMMDD of its file name).
const DefaultBaseURL = "https://roman.gsfc.nasa.gov/science/RRI/Roman_effarea_%s.xlsx"

// ParFile is the filter-library parameter file written next to the curves.
const ParFile = "roman_phot.par"

// micronToAngstrom converts workbook wavelengths to the engine's unit.
const micronToAngstrom = 1e4

var (
	bandHeader   = regexp.MustCompile(`^F\d{3}$`)
	workbookDate = regexp.MustCompile(`_(\d{8})\.xlsx$`)
)

// Curve is one band's transmission as a function of wavelength (Å).
type Curve struct {
	Band         string
	Wavelength   []float64
	Transmission []float64
}

// EffAreaGenerator builds roman_<band>.pb curves and roman_phot.par from the
// Roman effective-area workbook.
type EffAreaGenerator struct {
	// Workbook is the local .xlsx path. It is downloaded when missing.
	Workbook string
	// BaseURL overrides DefaultBaseURL.
	BaseURL string
	// FilterRep is the engine FILTER_REP; output goes to FilterRep/roman.
	FilterRep string

	Client *http.Client
	Logger *zerolog.Logger
}

// Generate implements Generator.
func (g EffAreaGenerator) Generate(ctx context.Context) error {
	log := logging.OrNop(g.Logger)
	if strings.TrimSpace(g.FilterRep) == "" {
		return errs.Configuration("filter generation: FILTER_REP is empty")
	}
	workbook := g.Workbook
	if workbook == "" {
		workbook = DefaultWorkbook
	}

	if _, err := os.Stat(workbook); err != nil {
		url, err := g.downloadURL(workbook)
		if err != nil {
			return err
		}
		log.Info().Str("url", url).Str("dest", workbook).Msg("downloading effective-area workbook")
		if err := download(ctx, g.client(), url, workbook); err != nil {
			return err
		}
	}

	curves, err := ReadWorkbook(workbook)
	if err != nil {
		return err
	}
	files, err := WriteCurves(Dir(g.FilterRep), curves)
	if err != nil {
		return err
	}
	log.Info().Int("bands", len(curves)).Str("dir", Dir(g.FilterRep)).Msg("filter curves written")

	return WritePar(Dir(g.FilterRep), files, g.FilterRep)
}

func (g EffAreaGenerator) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (g EffAreaGenerator) downloadURL(workbook string) (string, error) {
	m := workbookDate.FindStringSubmatch(filepath.Base(workbook))
	if m == nil {
		return "", errs.Configuration("workbook %s is missing and its name carries no _YYYYMMDD date to download it by", workbook)
	}
	base := g.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf(base, m[1]), nil
}

func download(ctx context.Context, c *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// ReadWorkbook reads the first sheet of an effective-area workbook.
//
// The header is on the second row: a wavelength column (name containing
// "wave", case-insensitive, in microns) and one column per band named F\d{3}.
// Rows whose wavelength does not parse are skipped; an empty band cell reads
// as zero transmission.
//
// Errors:
//   - ErrDataFormat when the sheet is too short, has no wavelength column,
//     no band columns, or a band cell that is not a number.
func ReadWorkbook(path string) ([]Curve, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "open workbook %s", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errs.DataFormat("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errs.Wrap(errs.ErrDataFormat, err, "read sheet %s", sheets[0])
	}
	if len(rows) < 2 {
		return nil, errs.DataFormat("workbook %s: header row missing", path)
	}

	header := rows[1]
	waveCol := -1
	var bandCols []int
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch {
		case waveCol < 0 && strings.Contains(strings.ToLower(h), "wave"):
			waveCol = i
		case bandHeader.MatchString(h):
			bandCols = append(bandCols, i)
		}
	}
	if waveCol < 0 {
		return nil, errs.DataFormat("workbook %s: no wavelength column in %v", path, header)
	}
	if len(bandCols) == 0 {
		return nil, errs.DataFormat("workbook %s: no F### band columns in %v", path, header)
	}

	curves := make([]Curve, len(bandCols))
	for j, c := range bandCols {
		curves[j].Band = strings.TrimSpace(header[c])
	}
	for r, row := range rows[2:] {
		if waveCol >= len(row) {
			continue
		}
		wl, err := strconv.ParseFloat(strings.TrimSpace(row[waveCol]), 64)
		if err != nil {
			continue
		}
		for j, c := range bandCols {
			v := 0.0
			if c < len(row) && strings.TrimSpace(row[c]) != "" {
				v, err = strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
				if err != nil {
					return nil, errs.DataFormat("workbook %s row %d band %s: %q is not a number", path, r+3, curves[j].Band, row[c])
				}
			}
			curves[j].Wavelength = append(curves[j].Wavelength, wl*micronToAngstrom)
			curves[j].Transmission = append(curves[j].Transmission, v)
		}
	}
	return curves, nil
}

// WriteCurves writes dir/roman_<band>.pb for each curve and returns the file
// names in curve order.
func WriteCurves(dir string, curves []Curve) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	names := make([]string, len(curves))
	for i, c := range curves {
		names[i] = FilePrefix + c.Band + ".pb"
		if err := writeCurve(filepath.Join(dir, names[i]), c); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func writeCurve(path string, c Curve) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# %s\n", c.Band)
	for i := range c.Wavelength {
		fmt.Fprintf(w, "%s %s\n",
			strconv.FormatFloat(c.Wavelength[i], 'f', -1, 64),
			strconv.FormatFloat(c.Transmission[i], 'g', -1, 64))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WritePar writes dir/roman_phot.par listing files under filterRep.
func WritePar(dir string, files []string, filterRep string) error {
	list := make([]string, len(files))
	for i, name := range files {
		list[i] = Subdir + "/" + name
	}
	content := fmt.Sprintf("FILTER_LIST %s\nFILTER_REP %s\nFILTER_CALIB 0,0\n",
		strings.Join(list, ","), filepath.ToSlash(filterRep))
	return os.WriteFile(filepath.Join(dir, ParFile), []byte(content), 0o644)
}
