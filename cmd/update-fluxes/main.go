// Command update-fluxes replaces the fluxes of a romanisim input catalog with
// magnitudes drawn from a simulated Roman catalog.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mairanteodoro/roman-photoz/internal/catalogio"
	"github.com/mairanteodoro/roman-photoz/internal/cli"
	"github.com/mairanteodoro/roman-photoz/internal/config"
	"github.com/mairanteodoro/roman-photoz/internal/fluxupdate"
	"github.com/mairanteodoro/roman-photoz/internal/logging"
	"github.com/mairanteodoro/roman-photoz/internal/metrics"
	"github.com/mairanteodoro/roman-photoz/internal/sampling"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

const (
	jobName = "update_fluxes"

	defaultTarget = "romanisim_input_catalog.ecsv"
	defaultFlux   = "roman_simulated_catalog.parquet"
	defaultOutput = "romanisim_input_catalog_fluxes_updated.ecsv"
)

type appDeps struct {
	loadEnv     func() (config.Env, error)
	initMetrics func(ctx context.Context, opts cli.MetricsOptions) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{loadEnv: config.LoadEnv, initMetrics: cli.InitMetrics}
}

type flags struct {
	target          string
	flux            string
	output          string
	nobj            int
	seed            uint64
	unit            string
	stripPrefix     string
	stripSuffix     string
	magnitudeMarker string
	scaleFilter     string
	redshiftColumn  string
	overwrite       bool

	metricsBackend string
	pushgatewayURL string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	var f flags
	cmd := &cobra.Command{
		Use:   "update-fluxes",
		Short: "Update fluxes in a romanisim catalog using a reference catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			unitDefaults(cmd, &f)
			return run(cmd.Context(), f, stdout, stderr, deps)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.target, "target-catalog", defaultTarget, "target catalog to update fluxes in")
	fs.StringVar(&f.flux, "flux-catalog", defaultFlux, "reference catalog to take magnitudes from")
	fs.StringVar(&f.output, "output-filename", defaultOutput, "output filename for the updated catalog")
	fs.IntVar(&f.nobj, "nobj", 0, "number of sources to subselect from the target catalog (0 keeps all)")
	fs.Uint64Var(&f.seed, "seed", fluxupdate.DefaultSeed, "seed for subselection and reference resampling")
	fs.StringVar(&f.unit, "reference-unit", string(fluxupdate.ABMag), "unit of the reference measurements (abmag|njy)")
	fs.StringVar(&f.stripPrefix, "strip-prefix", fluxupdate.DefaultStripPrefix, "prefix removed from reference column names (njy default \""+fluxupdate.DefaultFluxPrefix+"\")")
	fs.StringVar(&f.stripSuffix, "strip-suffix", "", "suffix removed from reference column names (njy default \""+fluxupdate.DefaultFluxSuffix+"\")")
	fs.StringVar(&f.magnitudeMarker, "magnitude-marker", fluxupdate.DefaultMagnitudeMarker, "substring identifying reference measurement columns (njy default \""+fluxupdate.DefaultFluxMarker+"\")")
	fs.StringVar(&f.scaleFilter, "scale-filter", "", "band whose target fluxes rescale every converted flux (empty disables scaling)")
	fs.StringVar(&f.redshiftColumn, "redshift-column", "z_true", "true-redshift column of the reference catalog")
	fs.BoolVar(&f.overwrite, "overwrite", true, "replace an existing output file")
	fs.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend (none|pushgateway|datadog, default $METRICS_BACKEND)")
	fs.StringVar(&f.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")

	return cli.Execute(ctx, cmd, args, stdout, stderr)
}

// unitDefaults replaces the column-naming flags left unset with the
// defaults of the chosen reference unit.
func unitDefaults(cmd *cobra.Command, f *flags) {
	if fluxupdate.Unit(f.unit) != fluxupdate.NanoJansky {
		return
	}
	def := fluxupdate.NanoJanskyOptions()
	fs := cmd.Flags()
	if !fs.Changed("strip-prefix") {
		f.stripPrefix = def.StripPrefix
	}
	if !fs.Changed("strip-suffix") {
		f.stripSuffix = def.StripSuffix
	}
	if !fs.Changed("magnitude-marker") {
		f.magnitudeMarker = def.MagnitudeMarker
	}
}

func run(ctx context.Context, f flags, stdout, stderr io.Writer, deps appDeps) error {
	for _, fl := range []struct{ name, value string }{
		{"--target-catalog", f.target},
		{"--flux-catalog", f.flux},
		{"--output-filename", f.output},
		{"--magnitude-marker", f.magnitudeMarker},
		{"--redshift-column", f.redshiftColumn},
	} {
		if strings.TrimSpace(fl.value) == "" {
			return cli.Usagef("%s must not be empty", fl.name)
		}
	}
	if f.nobj < 0 {
		return cli.Usagef("--nobj must be >= 0, got %d", f.nobj)
	}
	unit := fluxupdate.Unit(f.unit)
	if !unit.Valid() {
		return cli.Usagef("--reference-unit must be %s or %s, got %q", fluxupdate.ABMag, fluxupdate.NanoJansky, f.unit)
	}

	env, err := deps.loadEnv()
	if err != nil {
		return err
	}
	logger := logging.NewWithOptions("update-fluxes", logging.Options{Level: env.LogLevel, Environment: env.Environment, Out: stderr})
	log := &logger

	cleanup, err := deps.initMetrics(ctx, cli.MetricsOptions{
		Backend:    f.metricsBackend,
		Job:        jobName,
		GatewayURL: f.pushgatewayURL,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer cleanup()

	var target, ref, updated *table.Table
	if err := step(log, "load_target", func() (err error) {
		target, err = catalogio.Load(ctx, f.target, "")
		return err
	}); err != nil {
		return err
	}
	if err := step(log, "load_reference", func() (err error) {
		ref, err = catalogio.Load(ctx, f.flux, "")
		return err
	}); err != nil {
		return err
	}
	log.Info().Int("target_rows", target.NumRows()).Int("reference_rows", ref.NumRows()).Str("unit", f.unit).Msg("catalogs loaded")

	opts := fluxupdate.Options{
		Nobj:            f.nobj,
		Source:          sampling.Seeded(f.seed),
		Unit:            unit,
		StripPrefix:     f.stripPrefix,
		StripSuffix:     f.stripSuffix,
		MagnitudeMarker: f.magnitudeMarker,
		ScaleFilter:     f.scaleFilter,
		RedshiftColumn:  f.redshiftColumn,
		Logger:          log,
	}
	if err := config.Validate(opts); err != nil {
		return err
	}
	if err := step(log, "update", func() (err error) {
		updated, err = fluxupdate.Process(target, ref, opts)
		return err
	}); err != nil {
		return err
	}
	metrics.AddRows("updated", updated.NumRows())

	var path string
	if err := step(log, "save", func() (err error) {
		meta := map[string]string{
			"target_catalog": f.target,
			"flux_catalog":   f.flux,
			"seed":           fmt.Sprint(f.seed),
			"reference_unit": f.unit,
		}
		if f.scaleFilter != "" {
			meta["scale_filter"] = f.scaleFilter
		}
		path, err = catalogio.Save(ctx, updated, catalogio.SaveOptions{
			Filename:  f.output,
			Overwrite: f.overwrite,
			Meta:      meta,
		})
		return err
	}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s (%d rows)\n", path, updated.NumRows())
	return nil
}

func step(log *zerolog.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(name, metrics.Status(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Debug().Str("step", name).Dur("duration", time.Since(start)).Msg("step finished")
	return nil
}
