package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/obsidianstack/trapbridge/internal/api"
	"github.com/obsidianstack/trapbridge/internal/auth"
	"github.com/obsidianstack/trapbridge/internal/config"
	"github.com/obsidianstack/trapbridge/internal/daemon"
	"github.com/obsidianstack/trapbridge/internal/dispatch"
	"github.com/obsidianstack/trapbridge/internal/logging"
	"github.com/obsidianstack/trapbridge/internal/metrics"
	"github.com/obsidianstack/trapbridge/internal/mib"
	"github.com/obsidianstack/trapbridge/internal/rules"
	"github.com/obsidianstack/trapbridge/internal/store"
	"github.com/obsidianstack/trapbridge/internal/stream"
	"github.com/obsidianstack/trapbridge/internal/trap"
	"github.com/obsidianstack/trapbridge/pkg/types"
)

func main() {
	configPath := flag.String("config", "conf/config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "trapbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, level, logCloser, err := logging.New(cfg.Daemon)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("trapbridge starting",
		"config", configPath,
		"trap_file", cfg.Daemon.TrapFile,
		"listen", cfg.SNMP.Address(),
		"collector", cfg.Dispatcher.Address(),
	)

	table, err := mib.NewTable(cfg.MIBs.CacheSize)
	if err != nil {
		return err
	}
	if err := table.Extend(cfg.MIBs.Symbols, cfg.MIBs.Enums); err != nil {
		return err
	}

	loader := rules.NewLoader(table, logger)
	ruleSet, err := loader.LoadFile(cfg.Daemon.TrapFile)
	if err != nil {
		return err
	}
	logger.Info("rules loaded", "path", cfg.Daemon.TrapFile, "rules", ruleSet.Len())

	hosts, err := trap.NewHostResolver(cfg.SNMP.ResolveHostnames, cfg.SNMP.ResolveTimeout.Duration(), 0, logger)
	if err != nil {
		return err
	}

	queue := dispatch.NewQueue()
	m := metrics.New(queue.Len)
	sources := store.New(cfg.Sources.TTL.Duration(), logger)
	hub := stream.New(logger)

	var eventsLog *slog.Logger
	if cfg.Dispatcher.EventsLog != "" {
		var closer io.Closer
		eventsLog, closer, err = logging.NewEventsLog(cfg.Dispatcher.EventsLog)
		if err != nil {
			return err
		}
		defer closer.Close()
	}

	coord, err := daemon.New(daemon.Options{
		Config:   cfg,
		Rules:    ruleSet,
		Resolver: table,
		Hosts:    hosts,
		Queue:    queue,
		Store:    sources,
		Metrics:  m,
		Recorder: m,
		OnDelivered: func(ev *types.AlertEvent) {
			if eventsLog != nil {
				logging.LogDelivered(eventsLog, ev)
			}
			if cfg.API.Enabled {
				hub.Publish(ev)
			}
		},
		OnReject: m.TrapRejected,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()

	if cfg.Daemon.WatchRules {
		loader.OnReloadError = func(error) { m.RuleReload(false) }
		go func() {
			err := loader.Watch(ctx, cfg.Daemon.TrapFile, func(rs *rules.RuleSet) {
				coord.SetRules(rs)
				m.RuleReload(true)
			})
			if err != nil {
				logger.Error("rule watcher stopped", "err", err)
			}
		}()
	}

	go func() {
		err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
			applyConfig(logger, level, cfg, next)
		})
		if err != nil {
			logger.Error("config watcher stopped", "err", err)
		}
	}()

	var httpSrv *http.Server
	if cfg.API.Enabled {
		go hub.Run(ctx)

		handler := api.Mux(
			api.New(coord, sources),
			auth.APIKey(cfg.API.Auth.Mode, cfg.API.Auth.EffectiveHeader(), cfg.API.Auth.Key()),
			m.Handler(),
			hub,
		)
		httpSrv = &http.Server{
			Addr:              cfg.API.Listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.API.Listen, "auth_mode", cfg.API.Auth.Mode)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("trapbridge shutting down", "pending", queue.Len())

	if httpSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
	return nil
}

// applyConfig applies the reloadable part of a new config. Only the log
// level changes at runtime; anything else is reported as needing a restart.
func applyConfig(logger *slog.Logger, level *slog.LevelVar, current, next *config.Config) {
	if lvl, err := logging.ParseLevel(next.Daemon.LogLevel); err == nil && lvl != level.Level() {
		level.Set(lvl)
		logger.Info("log level changed", "level", lvl.String())
	}

	cmp := *next
	cmp.Daemon.LogLevel = current.Daemon.LogLevel
	if !reflect.DeepEqual(&cmp, current) {
		logger.Warn("config changed; restart to apply settings other than daemon.log_level")
	}
}
