package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/datallboy/rangefetch/internal/app"
	"github.com/datallboy/rangefetch/internal/cache"
	"github.com/datallboy/rangefetch/internal/engine"
	"github.com/datallboy/rangefetch/internal/infra/config"
	"github.com/datallboy/rangefetch/internal/infra/logger"
	"github.com/datallboy/rangefetch/internal/rawhttp"
	"github.com/datallboy/rangefetch/internal/store"
)

func defaultConfigHint() string {
	return "./" + config.DefaultPath
}

// bootstrap loads config and opens the logger, history store and payload
// cache. On error anything already opened has been released.
func bootstrap(ctx context.Context, cfgPath string, flags *pflag.FlagSet) (*app.Context, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	cfg, err := config.Load(cfgPath, flags)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	closers = append(closers, log.Close)

	appCtx := app.NewContext(cfg, log)

	if cfg.Store.Enabled {
		s, err := store.NewPersistentStore(cfg.Store)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to open history store: %w", err)
		}
		closers = append(closers, s.Close)
		appCtx.Store = s
	}

	if cfg.Download.OutputURL != "" {
		c, err := cache.Open(ctx, cfg.Download.OutputURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, c.Close)
		appCtx.Cache = c
	}

	return appCtx, cleanup, nil
}

func transportOptions(cfg *config.Config) rawhttp.Options {
	return rawhttp.Options{
		DialTimeout:      cfg.Transport.DialTimeout,
		ReadTimeout:      cfg.Transport.ReadTimeout,
		WriteTimeout:     cfg.Transport.WriteTimeout,
		MaxResponseBytes: cfg.Transport.MaxResponseBytes,
	}
}

// newSource returns a factory of raw HTTP clients configured from cfg.
// Range mode is validated by config.Load.
func newSource(cfg *config.Config) engine.SourceFactory {
	mode, _ := rawhttp.ParseRangeMode(cfg.Download.RangeMode)
	opts := transportOptions(cfg)

	return func(endpoint string) app.Source {
		return rawhttp.NewClient(endpoint, mode, opts)
	}
}
