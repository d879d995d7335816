// Package config loads the process environment and the engine keyword
// mapping used by the catalog pipeline.
//
// Nothing in this package holds global mutable state: the Roman defaults are
// rebuilt on each call to DefaultRoman and overrides are applied with
// Keywords.Merge, which returns a new mapping.
package config

import (
	"path/filepath"

	"github.com/kelseyhightower/envconfig"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
)

// Env is the process environment the pipeline depends on.
type Env struct {
	// LephareDir is the engine installation root (SED and filter data).
	LephareDir string `envconfig:"LEPHAREDIR"`

	// LephareWork is the engine work directory. It defaults to
	// <LephareDir>/../work when unset.
	LephareWork string `envconfig:"LEPHAREWORK"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, errs.Wrap(errs.ErrConfiguration, err, "read environment")
	}
	e.applyDefaults()
	return e, nil
}

func (e *Env) applyDefaults() {
	if e.LephareWork == "" && e.LephareDir != "" {
		e.LephareWork = filepath.Join(filepath.Dir(filepath.Clean(e.LephareDir)), "work")
	}
}

// RequireEngine reports a ConfigurationError when the variables the engine
// needs are missing.
func (e Env) RequireEngine() error {
	if e.LephareDir == "" {
		return errs.Configuration("LEPHAREDIR is not set")
	}
	if e.LephareWork == "" {
		return errs.Configuration("LEPHAREWORK is not set")
	}
	return nil
}
