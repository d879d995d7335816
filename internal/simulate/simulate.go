// Package simulate builds the simulated Roman photometric catalog.
//
// Simulator.Process runs the whole pipeline:
//
//	filter curves present (or generated)
//	→ engine prepare with the merged keywords
//	→ resolve the magnitude library path
//	→ parse header and load rows
//	→ sample, reconcile, add noise, label, select output keys
//	→ save (and optionally copy into a database)
//
// Every step failure stops the run and nothing is written.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mairanteodoro/roman-photoz/internal/catalog"
	"github.com/mairanteodoro/roman-photoz/internal/catalogio"
	"github.com/mairanteodoro/roman-photoz/internal/config"
	"github.com/mairanteodoro/roman-photoz/internal/engine"
	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/filters"
	"github.com/mairanteodoro/roman-photoz/internal/libmag"
	"github.com/mairanteodoro/roman-photoz/internal/logging"
	"github.com/mairanteodoro/roman-photoz/internal/metrics"
	"github.com/mairanteodoro/roman-photoz/internal/noise"
	"github.com/mairanteodoro/roman-photoz/internal/storage"
	"github.com/mairanteodoro/roman-photoz/internal/table"
)

// DefaultOutputFilename is the catalog file written when none is given.
const DefaultOutputFilename = "roman_simulated_catalog.parquet"

// DefaultDBTable receives the catalog when a database sink is configured.
const DefaultDBTable = "roman_simulated_catalog"

// Options are the user-facing run parameters.
type Options struct {
	// OutputPath defaults to the engine work directory.
	OutputPath     string
	OutputFilename string `validate:"required"`
	Overwrite      bool

	// Nobj rows are drawn from the library without replacement. Zero keeps
	// every row.
	Nobj int `validate:"gte=0"`

	RedshiftColumn string
	Noise          noise.Injector

	// SampleSeed makes row sampling reproducible. Nil uses entropy.
	SampleSeed *uint64

	// Keywords are merged over the Roman defaults before the run.
	Keywords config.Keywords

	// DBTable names the table written when Simulator.DB is set.
	DBTable string

	// OutputKeys, when set, selects and orders the saved columns.
	OutputKeys []string
}

// Simulator wires the pipeline collaborators.
type Simulator struct {
	Env     config.Env
	Options Options

	Engine  engine.Engine
	Filters filters.Generator

	// Resolve defaults to engine.LibMagResolver(Env.LephareWork).
	Resolve engine.Resolver

	// DB, when set, also receives the catalog. The caller owns and closes it.
	DB storage.Repository

	Logger *zerolog.Logger
}

// Result describes a completed run.
type Result struct {
	Path    string
	Rows    int
	DBRows  int64
	Columns []string
}

// Process runs the pipeline.
//
// Errors:
//   - ErrConfiguration for invalid options or a missing engine environment.
//   - Any step's error, wrapped with the step name.
func (s *Simulator) Process(ctx context.Context) (Result, error) {
	log := logging.OrNop(s.Logger)
	if err := config.Validate(s.Options); err != nil {
		return Result{}, err
	}
	if err := s.Env.RequireEngine(); err != nil {
		return Result{}, err
	}
	if s.Engine == nil {
		return Result{}, errs.Internal("simulator has no engine")
	}

	cfg := config.DefaultRoman(s.Env).Merge(s.Options.Keywords)
	bands, err := filters.Names(cfg)
	if err != nil {
		return Result{}, err
	}

	if err := step(log, "filters", func() error { return s.ensureFilters(ctx, cfg) }); err != nil {
		return Result{}, err
	}

	gal := config.GalaxySimulationOverrides(s.Env)
	if err := step(log, "engine", func() error { return s.Engine.Prepare(ctx, cfg, nil, gal, nil) }); err != nil {
		return Result{}, err
	}

	resolve := s.Resolve
	if resolve == nil {
		resolve = engine.LibMagResolver(s.Env.LephareWork)
	}
	stem, _ := gal.Get("GAL_LIB_OUT")
	libPath := resolve(stem)

	var raw *table.Table
	if err := step(log, "load", func() error {
		var err error
		raw, err = libmag.ReadFile(libPath, bands)
		return err
	}); err != nil {
		return Result{}, err
	}
	metrics.AddRows("library", raw.NumRows())
	log.Info().Str("path", libPath).Int("rows", raw.NumRows()).Int("columns", raw.NumCols()).Msg("magnitude library loaded")

	var cat *table.Table
	if err := step(log, "assemble", func() error {
		var err error
		if cat, err = catalog.Assemble(raw, s.assembleOptions()); err != nil {
			return err
		}
		if len(s.Options.OutputKeys) > 0 {
			cat, err = cat.Select(s.Options.OutputKeys...)
		}
		return err
	}); err != nil {
		return Result{}, err
	}
	metrics.AddRows("catalog", cat.NumRows())

	res := Result{Rows: cat.NumRows(), Columns: cat.Names()}
	if err := step(log, "save", func() error {
		var err error
		res.Path, err = catalogio.Save(ctx, cat, s.saveOptions(bands))
		return err
	}); err != nil {
		return Result{}, err
	}

	if s.DB != nil {
		tableName := s.Options.DBTable
		if tableName == "" {
			tableName = DefaultDBTable
		}
		if err := step(log, "database", func() error {
			var err error
			res.DBRows, err = catalogio.SaveToDatabase(ctx, s.DB, tableName, cat)
			return err
		}); err != nil {
			return Result{}, err
		}
		metrics.AddRows("db_inserted", int(res.DBRows))
	}

	log.Info().Str("path", res.Path).Int("rows", res.Rows).Msg("simulated catalog written")
	return res, nil
}

func (s *Simulator) ensureFilters(ctx context.Context, cfg config.Keywords) error {
	rep, _ := cfg.Get("FILTER_REP")
	ok, err := filters.Exist(rep)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if s.Filters == nil {
		return errs.Configuration("no filter curves under %s and no generator configured", filters.Dir(rep))
	}
	logging.OrNop(s.Logger).Info().Str("dir", filters.Dir(rep)).Msg("filter files not found, generating them")
	if err := s.Filters.Generate(ctx); err != nil {
		return err
	}
	if ok, err := filters.Exist(rep); err != nil || !ok {
		return errs.Internal("filter generation left no curves under %s", filters.Dir(rep))
	}
	return nil
}

func (s *Simulator) assembleOptions() catalog.Options {
	var src rand.Source
	if s.Options.SampleSeed != nil {
		src = rand.NewPCG(*s.Options.SampleSeed, *s.Options.SampleSeed)
	}
	inj := s.Options.Noise
	inj.Logger = s.Logger
	return catalog.Options{
		SampleSize:     s.Options.Nobj,
		SampleSource:   src,
		RedshiftColumn: s.Options.RedshiftColumn,
		Noise:          inj,
		Logger:         s.Logger,
	}
}

func (s *Simulator) saveOptions(bands []string) catalogio.SaveOptions {
	path := s.Options.OutputPath
	if path == "" {
		path = s.Env.LephareWork
	}
	meta := map[string]string{
		"nobj":       strconv.Itoa(s.Options.Nobj),
		"add_error":  strconv.FormatBool(s.Options.Noise.Enabled),
		"filters":    fmt.Sprint(bands),
		"engine_lib": config.SimulatedMagsStem,
	}
	if s.Options.Noise.Enabled {
		meta["noise_seed"] = strconv.FormatUint(s.Options.Noise.Seed, 10)
	}
	return catalogio.SaveOptions{
		Filename:  s.Options.OutputFilename,
		Path:      path,
		Overwrite: s.Options.Overwrite,
		Meta:      meta,
	}
}

// step runs fn, records its metrics and wraps its error with the step name.
func step(log *zerolog.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	metrics.RecordStep(name, metrics.Status(err), d)
	if err != nil {
		log.Error().Err(err).Str("step", name).Dur("duration", d).Msg("step failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Debug().Str("step", name).Dur("duration", d).Msg("step finished")
	return nil
}
