package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/probewire/internal/action"
	"github.com/gyaneshwarpardhi/probewire/internal/action/logging"
	"github.com/gyaneshwarpardhi/probewire/internal/action/webhook"
	"github.com/gyaneshwarpardhi/probewire/internal/api"
	"github.com/gyaneshwarpardhi/probewire/internal/config"
	"github.com/gyaneshwarpardhi/probewire/internal/consumer"
	"github.com/gyaneshwarpardhi/probewire/internal/contrib"
	"github.com/gyaneshwarpardhi/probewire/internal/dispatch"
	"github.com/gyaneshwarpardhi/probewire/internal/engine"
	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/middleware"
	"github.com/gyaneshwarpardhi/probewire/internal/notification"
	"github.com/gyaneshwarpardhi/probewire/internal/probe"
	"github.com/gyaneshwarpardhi/probewire/internal/queue"
)

func main() {
	cfgPath := flag.String("config", "configs/app.yaml", "Path to the application YAML config")
	flag.Parse()

	// ── Load config ──────────────────────────────────────────────────────────
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Event types ──────────────────────────────────────────────────────────
	events := event.NewRegistry(logger)
	if err := contrib.RegisterAll(events, contrib.Options{InventoryBaseURL: cfg.Inventory.BaseURL}); err != nil {
		slog.Error("failed to register event types", "err", err)
		os.Exit(1)
	}
	slog.Info("event types registered", "types", events.Types())

	// ── Middlewares ──────────────────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.MachineTags.Backend == "redis" || cfg.Queue.Backend == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	middlewares := middleware.NewRegistry()
	if err := middleware.RegisterBuiltins(middlewares, middleware.BuiltinOptions{
		RedactFields: cfg.Redactor.Fields,
		Tags:         newTagStore(cfg.MachineTags, rdb),
		Logger:       logger,
	}); err != nil {
		slog.Error("failed to register middlewares", "err", err)
		os.Exit(1)
	}
	chain := middleware.NewHandler(middlewares, cfg.Middlewares, logger)
	if err := chain.Init(); err != nil {
		slog.Error("failed to build middleware chain", "err", err)
		os.Exit(1)
	}
	dispatcher := dispatch.New(events, chain, logger)

	// ── Action registry ───────────────────────────────────────────────────────
	actions := action.NewRegistry()
	actions.Register(logging.New(logger))
	actions.Register(webhook.New(nil, logger))

	// ── Probes ───────────────────────────────────────────────────────────────
	src, closeSrc, err := newProbeSource(cfg.Probes)
	if err != nil {
		slog.Error("failed to open probe source", "err", err)
		os.Exit(1)
	}
	defer closeSrc()
	store, err := probe.NewStore(ctx, src,
		probe.WithValidator(actions.ValidateProbes),
		probe.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to load probes", "err", err)
		os.Exit(1)
	}
	slog.Info("probes loaded", "count", store.Current().Len())

	// ── Outbound queue ───────────────────────────────────────────────────────
	poster, err := newPoster(cfg.Queue, rdb, logger)
	if err != nil {
		slog.Error("failed to create event poster", "err", err)
		os.Exit(1)
	}
	defer poster.Close()

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(ctx, engine.Deps{
		Dispatcher: dispatcher,
		Probes:     store.Current(),
		Notifier:   event.NewNotifier(notification.NewTemplateLoader(cfg.Templates.Dir), logger),
		Poster:     poster,
		Actions:    actions,
		Logger:     logger,
	}, cfg.Engine)

	// ── Probe hot-reload ──────────────────────────────────────────────────────
	store.OnChange(func(set *probe.Set) {
		eng.SwapProbes(set)
		slog.Info("probes reloaded", "count", set.Len())
	})
	switch {
	case cfg.Probes.Watch:
		stopWatch, err := store.Watch()
		if err != nil {
			slog.Warn("probe watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	case cfg.Probes.PollInterval > 0:
		go store.Poll(ctx, cfg.Probes.PollInterval)
	}

	// ── Kafka ingestion ───────────────────────────────────────────────────────
	ingestCtx, stopIngest := context.WithCancel(ctx)
	defer stopIngest()
	var ingest *consumer.Consumer
	ingestDone := make(chan struct{})
	if cfg.Ingest.Enabled {
		ingest, err = consumer.New(cfg.Ingest.Brokers, cfg.Ingest.Topic, cfg.Ingest.GroupID, eng, logger)
		if err != nil {
			slog.Error("failed to create consumer", "err", err)
			os.Exit(1)
		}
		go func() {
			defer close(ingestDone)
			if err := ingest.Run(ingestCtx); err != nil {
				slog.Error("consumer error", "err", err)
			}
		}()
	} else {
		close(ingestDone)
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	var limiter *rate.Limiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.RateLimit), cfg.HTTP.RateBurst)
	}
	handler := api.New(api.Deps{
		Engine:  eng,
		Probes:  store,
		Events:  events,
		Limiter: limiter,
		Logger:  logger,
	})
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)

	// Stop intake first, then drain the pools while their context is live.
	stopIngest()
	<-ingestDone
	if ingest != nil {
		_ = ingest.Close()
	}
	eng.Shutdown()
	cancel()
	slog.Info("goodbye")
}

func newLogger(conf config.LogConf) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(conf.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newTagStore(conf config.MachineTagsConf, rdb *redis.Client) middleware.TagStore {
	if conf.Backend == "redis" {
		return middleware.NewRedisTagStore(rdb, conf.KeyPrefix)
	}
	return middleware.StaticTagStore(conf.Static)
}

func newProbeSource(conf config.ProbesConf) (probe.Source, func(), error) {
	switch conf.Source {
	case "postgres":
		src, err := probe.OpenPostgres(conf.DSN)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { _ = src.Close() }, nil
	case "file":
		return probe.NewFileSource(conf.Path), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown probe source %q", conf.Source)
	}
}

func newPoster(conf config.QueueConf, rdb *redis.Client, logger *slog.Logger) (queue.Poster, error) {
	switch conf.Backend {
	case "kafka":
		return queue.NewKafkaPoster(conf.Brokers, conf.Topic, logger)
	case "redis":
		stream := conf.Stream
		if stream == "" {
			stream = queue.DefaultStream
		}
		return queue.NewStreamPoster(rdb, stream, conf.MaxLen, logger), nil
	case "memory":
		return queue.NewRing(int(conf.MaxLen), logger), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", conf.Backend)
	}
}
