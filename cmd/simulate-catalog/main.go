// Command simulate-catalog builds a simulated Roman photometric catalog from
// the LePhare galaxy magnitude library.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mairanteodoro/roman-photoz/internal/cli"
	"github.com/mairanteodoro/roman-photoz/internal/config"
	"github.com/mairanteodoro/roman-photoz/internal/engine"
	"github.com/mairanteodoro/roman-photoz/internal/filters"
	"github.com/mairanteodoro/roman-photoz/internal/logging"
	"github.com/mairanteodoro/roman-photoz/internal/noise"
	"github.com/mairanteodoro/roman-photoz/internal/simulate"
	"github.com/mairanteodoro/roman-photoz/internal/storage"

	// register all backends with the storage factory.
	_ "github.com/mairanteodoro/roman-photoz/internal/storage/all"
)

const jobName = "simulate_catalog"

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	loadEnv     func() (config.Env, error)
	newEngine   func(env config.Env, log *zerolog.Logger) engine.Engine
	newFilters  func(filterRep, workbook string, log *zerolog.Logger) filters.Generator
	openDB      func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	initMetrics func(ctx context.Context, opts cli.MetricsOptions) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		loadEnv: config.LoadEnv,
		newEngine: func(env config.Env, log *zerolog.Logger) engine.Engine {
			return engine.Exec{Env: env, BinDir: os.Getenv("LEPHARE_BIN"), Logger: log}
		},
		newFilters: func(filterRep, workbook string, log *zerolog.Logger) filters.Generator {
			return filters.EffAreaGenerator{Workbook: workbook, FilterRep: filterRep, Logger: log}
		},
		openDB:      storage.New,
		initMetrics: cli.InitMetrics,
	}
}

type flags struct {
	outputPath     string
	outputFilename string
	overwrite      bool
	addError       bool
	nobj           int
	magNoise       float64
	magErr         float64
	noiseSeed      uint64
	sampleSeed     int64
	redshiftColumn string
	keywordFile    string
	outputKeys     string
	workbook       string

	dbKind  string
	dbDSN   string
	dbTable string

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
		Use:   "simulate-catalog",
		Short: "Create a simulated Roman photometric catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f, stdout, stderr, deps)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.outputPath, "output-path", "", "output directory (default $LEPHAREWORK)")
	fs.StringVar(&f.outputFilename, "output-filename", simulate.DefaultOutputFilename, "output catalog file name (.parquet, .ecsv or .sqlite)")
	fs.BoolVar(&f.overwrite, "overwrite", true, "replace an existing output file")
	fs.BoolVar(&f.addError, "add-error", false, "perturb magnitudes and add <mag>_err columns")
	fs.IntVar(&f.nobj, "nobj", 0, "number of rows to draw from the library (0 keeps all)")
	fs.Float64Var(&f.magNoise, "mag-noise", noise.DefaultMagNoise, "standard deviation of the magnitude perturbation")
	fs.Float64Var(&f.magErr, "mag-err", noise.DefaultMagErr, "standard deviation of the reported magnitude error")
	fs.Uint64Var(&f.noiseSeed, "noise-seed", noise.DefaultSeed, "seed of the noise generator")
	fs.Int64Var(&f.sampleSeed, "sample-seed", -1, "seed of the row sampler (negative uses entropy)")
	fs.StringVar(&f.redshiftColumn, "redshift-column", "", "true-redshift column of the library (default \"redshift\")")
	fs.StringVar(&f.keywordFile, "config", "", "keyword file (.para or .yaml) merged over the Roman defaults")
	fs.StringVar(&f.outputKeys, "output-keys", "", "file listing the catalog columns to save, one per line")
	fs.StringVar(&f.workbook, "effarea-workbook", "", "effective-area workbook used when filter curves are missing (default $LEPHAREWORK/"+filters.DefaultWorkbook+")")
	fs.StringVar(&f.dbKind, "db-kind", "", "also write the catalog to a database ("+strings.Join(storage.Kinds(), "|")+")")
	fs.StringVar(&f.dbDSN, "db-dsn", "", "database DSN for --db-kind")
	fs.StringVar(&f.dbTable, "db-table", simulate.DefaultDBTable, "database table for --db-kind")
	fs.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend (none|pushgateway|datadog, default $METRICS_BACKEND)")
	fs.StringVar(&f.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")

	return cli.Execute(ctx, cmd, args, stdout, stderr)
}

func run(ctx context.Context, f flags, stdout, stderr io.Writer, deps appDeps) error {
	if strings.TrimSpace(f.outputFilename) == "" {
		return cli.Usagef("--output-filename must not be empty")
	}
	if f.nobj < 0 {
		return cli.Usagef("--nobj must be >= 0, got %d", f.nobj)
	}
	if (f.dbKind == "") != (f.dbDSN == "") {
		return cli.Usagef("--db-kind and --db-dsn must be given together")
	}

	env, err := deps.loadEnv()
	if err != nil {
		return err
	}
	logger := logging.NewWithOptions("simulate-catalog", logging.Options{Level: env.LogLevel, Environment: env.Environment, Out: stderr})
	log := &logger

	var kw config.Keywords
	if f.keywordFile != "" {
		if kw, err = config.LoadKeywordsFile(f.keywordFile); err != nil {
			return err
		}
	}
	var keys []string
	if f.outputKeys != "" {
		if keys, err = config.ReadOutputKeys(f.outputKeys); err != nil {
			return err
		}
	}

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

	inj := noise.Injector{Enabled: f.addError, MagNoise: f.magNoise, MagErr: f.magErr, Seed: f.noiseSeed}
	opts := simulate.Options{
		OutputPath:     f.outputPath,
		OutputFilename: f.outputFilename,
		Overwrite:      f.overwrite,
		Nobj:           f.nobj,
		RedshiftColumn: f.redshiftColumn,
		Noise:          inj,
		Keywords:       kw,
		DBTable:        f.dbTable,
		OutputKeys:     keys,
	}
	if f.sampleSeed >= 0 {
		seed := uint64(f.sampleSeed)
		opts.SampleSeed = &seed
	}

	workbook := f.workbook
	if workbook == "" {
		workbook = filepath.Join(env.LephareWork, filters.DefaultWorkbook)
	}
	rep, _ := config.DefaultRoman(env).Merge(kw).Get("FILTER_REP")
	sim := &simulate.Simulator{
		Env:     env,
		Options: opts,
		Engine:  deps.newEngine(env, log),
		Filters: deps.newFilters(rep, workbook, log),
		Logger:  log,
	}

	if f.dbKind != "" {
		repo, err := deps.openDB(ctx, storage.Config{Kind: f.dbKind, DSN: f.dbDSN})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer repo.Close()
		sim.DB = repo
	}

	res, err := sim.Process(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s (%d rows)\n", res.Path, res.Rows)
	return nil
}
