// Package engine drives the LePhare programs that build the magnitude
// libraries.
//
// The engine is a black box: Exec writes one keyword (.para) file per object
// class into the work directory and runs the programs through a Runner.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mairanteodoro/roman-photoz/internal/config"
	"github.com/mairanteodoro/roman-photoz/internal/errs"
	"github.com/mairanteodoro/roman-photoz/internal/logging"
)

// Engine prepares the filter and magnitude libraries for cfg, applying the
// per-class overrides on top of it.
type Engine interface {
	Prepare(ctx context.Context, cfg, star, gal, qso config.Keywords) error
}

// Class is a LePhare object class passed as "-t".
type Class string

const (
	Star   Class = "S"
	QSO    Class = "Q"
	Galaxy Class = "G"
)

// ParaPrefix names the keyword files written into the work directory.
const ParaPrefix = "roman_photoz"

// Resolver maps an engine output stem (e.g. GAL_LIB_OUT) to the file the
// engine wrote for it.
type Resolver func(stem string) string

// LibMagResolver resolves stems to <workDir>/lib_mag/<stem>.dat.
func LibMagResolver(workDir string) Resolver {
	return func(stem string) string {
		return filepath.Join(workDir, "lib_mag", stem+".dat")
	}
}

// Exec runs the LePhare programs as external processes.
type Exec struct {
	Env config.Env

	// BinDir holds the LePhare executables. Empty means look them up on PATH.
	BinDir string

	// Runner defaults to CommandRunner writing to the process stdout/stderr.
	Runner Runner

	Logger *zerolog.Logger
}

type classStep struct {
	class     Class
	overrides config.Keywords
}

// Prepare implements Engine.
//
// It runs "filter" once with cfg, then "sedtolib" and "mag_gal" for the star,
// QSO and galaxy classes with cfg merged with the class overrides. The
// programs see LEPHAREDIR and LEPHAREWORK in their environment.
//
// Errors:
//   - ErrConfiguration when LEPHAREDIR or LEPHAREWORK is unset.
//   - The first failing program's error, wrapped with its name and class.
func (e Exec) Prepare(ctx context.Context, cfg, star, gal, qso config.Keywords) error {
	if err := e.Env.RequireEngine(); err != nil {
		return err
	}
	log := logging.OrNop(e.Logger)
	if err := os.MkdirAll(e.Env.LephareWork, 0o755); err != nil {
		return err
	}
	run := e.Runner
	if run == nil {
		run = CommandRunner{}
	}
	env := []string{
		"LEPHAREDIR=" + e.Env.LephareDir,
		"LEPHAREWORK=" + e.Env.LephareWork,
	}

	base, err := e.writePara("", cfg)
	if err != nil {
		return err
	}
	if err := e.run(ctx, run, log, "filter", "", []string{"-c", base}, env); err != nil {
		return err
	}

	for _, s := range []classStep{{Star, star}, {QSO, qso}, {Galaxy, gal}} {
		para, err := e.writePara(s.class, cfg.Merge(s.overrides))
		if err != nil {
			return err
		}
		args := []string{"-t", string(s.class), "-c", para}
		for _, prog := range []string{"sedtolib", "mag_gal"} {
			if err := e.run(ctx, run, log, prog, s.class, args, env); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e Exec) run(ctx context.Context, r Runner, log *zerolog.Logger, prog string, class Class, args, env []string) error {
	start := time.Now()
	name := prog
	if e.BinDir != "" {
		name = filepath.Join(e.BinDir, prog)
	}
	err := r.Run(ctx, Command{Name: name, Args: args, Env: env, Dir: e.Env.LephareWork})
	var ev *zerolog.Event
	if err != nil {
		ev = log.Error().Err(err)
	} else {
		ev = log.Info()
	}
	ev.Str("program", prog).Str("class", string(class)).Dur("duration", time.Since(start)).Msg("engine program finished")
	if err != nil {
		if class != "" {
			return fmt.Errorf("engine %s -t %s: %w", prog, class, err)
		}
		return fmt.Errorf("engine %s: %w", prog, err)
	}
	return nil
}

// writePara writes kw to <work>/roman_photoz[_<class>].para.
func (e Exec) writePara(class Class, kw config.Keywords) (string, error) {
	name := ParaPrefix + ".para"
	if class != "" {
		name = ParaPrefix + "_" + string(class) + ".para"
	}
	path := filepath.Join(e.Env.LephareWork, name)
	f, err := os.Create(path)
	if err != nil {
		return "", errs.Wrap(errs.ErrConfiguration, err, "write engine keywords")
	}
	if err := kw.WritePara(f); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

var _ Engine = Exec{}
