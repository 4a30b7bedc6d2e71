package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/njoerd114/notionrelay/internal/config"
	"github.com/njoerd114/notionrelay/internal/fieldmap"
	"github.com/njoerd114/notionrelay/internal/notion"
	"github.com/njoerd114/notionrelay/internal/state"
	"github.com/njoerd114/notionrelay/internal/supermemory"
	syncp "github.com/njoerd114/notionrelay/internal/sync"
	"github.com/njoerd114/notionrelay/internal/telemetry"
)

// app bundles everything a command needs once config is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *state.Store
	notion *notion.Client
	sink   *supermemory.Client
	engine *syncp.Engine

	closers []func()
}

// newLogger builds the process logger. With a log file configured, output
// is teed into a lumberjack-rotated file. The OTel bridge is always on; it
// is a no-op until telemetry.Setup runs.
func newLogger(lc config.LogConfig, verbose bool, stderr io.Writer) (*slog.Logger, func()) {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	out := stderr
	closeFn := func() {}
	if lc.File != "" {
		lj := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    orDefault(lc.MaxSizeMB, 10),
			MaxBackups: orDefault(lc.MaxBackups, 5),
			MaxAge:     orDefault(lc.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(stderr, lj)
		closeFn = func() { _ = lj.Close() }
	}

	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(telemetry.NewLogHandler(h, "notionrelay")), closeFn
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// setupRuntime loads config, logging, telemetry, the state store and the
// sync engine. Call close when done.
func setupRuntime(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", flags.configPath, err)
	}

	logger, closeLog := newLogger(cfg.Log, flags.verbose, os.Stderr)
	slog.SetDefault(logger)
	rt := &app{cfg: cfg, logger: logger, closers: []func(){closeLog}}

	if telCfg, ok := telemetry.FromConfig(cfg.Telemetry, version); ok {
		shutdownTel, err := telemetry.Setup(ctx, telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", telCfg.OTLPEndpoint)
			rt.closers = append(rt.closers, func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			})
		}
	}

	storeCfg := state.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}
	if storeCfg.Driver == config.DriverSQLite && storeCfg.DSN == "" {
		if storeCfg.DSN, err = state.DefaultDBPath(); err != nil {
			rt.close()
			return nil, fmt.Errorf("resolving state DB path: %w", err)
		}
	}
	store, err := state.Open(ctx, storeCfg)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("opening %s state store: %w", storeCfg.Driver, err)
	}
	rt.store = store
	rt.closers = append(rt.closers, func() {
		if err := store.Close(); err != nil {
			logger.Error("closing state store", "error", err)
		}
	})
	logger.Info("state store opened", "driver", storeCfg.Driver)

	rt.notion = notion.NewClient(cfg.Notion.APIURL, cfg.Notion.RateLimit, logger)
	rt.sink = supermemory.NewClient(cfg.Supermemory.APIURL, cfg.Supermemory.APIKey, logger)

	sources := func(token string) syncp.Source { return rt.notion.WithToken(token) }
	mapper := fieldmap.NewMapper(logger)
	tag := cfg.Supermemory.ContainerTag

	backfiller := syncp.NewBackfiller(sources, rt.sink, store, mapper, tag, logger)
	reconciler := syncp.NewReconciler(sources, rt.sink, store, mapper, tag, logger)
	discoverer := syncp.NewDiscoverer(sources, store, backfiller.Run, logger)
	rt.engine = syncp.NewEngine(store, backfiller, reconciler, discoverer, cfg.DiscoveryInterval, logger)

	return rt, nil
}

// close runs the registered cleanups in reverse order.
func (rt *app) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
