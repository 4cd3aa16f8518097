// Package app wires config, store backend, and engine together for the
// CLI and the server.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"orderline/internal/config"
	"orderline/internal/engine"
	"orderline/internal/logger"
	"orderline/internal/store/memory"
	"orderline/internal/store/sheetdb"
)

// Options select the workspace and an optional explicit config file.
type Options struct {
	Workspace  string
	ConfigFile string
	Dev        bool
}

// App holds the assembled runtime. Close releases the store backend.
type App struct {
	Config *config.Config
	Engine engine.Engine
	Log    zerolog.Logger

	store *sheetdb.Store
}

// New loads configuration and opens the configured store backend.
func New(opts Options) (*App, error) {
	var cfg *config.Config
	var err error
	if opts.ConfigFile != "" {
		cfg, err = config.FromFile(opts.ConfigFile)
	} else {
		cfg, err = config.Load(opts.Workspace)
	}
	if err != nil {
		return nil, err
	}
	log := logger.Setup(opts.Dev)

	a := &App{Config: cfg, Log: log}
	switch cfg.Store.Backend {
	case config.BackendMemory:
		a.Engine = engine.New(memory.New(), cfg, log)
	case config.BackendSheetDB:
		st, err := sheetdb.Open(opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = st
		a.Engine = engine.New(st, cfg, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return a, nil
}

func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
