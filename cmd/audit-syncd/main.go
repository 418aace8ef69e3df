package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/godamri/helix-audit/app"
	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/cache"
	"github.com/godamri/helix-audit/config"
	"github.com/godamri/helix-audit/crypto"
	"github.com/godamri/helix-audit/database"
	"github.com/godamri/helix-audit/eventstore"
	"github.com/godamri/helix-audit/log"
	"github.com/godamri/helix-audit/server"
	"github.com/godamri/helix-audit/server/health"
	"github.com/godamri/helix-audit/server/middleware"
	"github.com/godamri/helix-audit/sink"
	"github.com/godamri/helix-audit/syncer"
)

const envPrefix = "HELIX_AUDIT"

func main() {
	cfgPath := flag.String("config", os.Getenv("HELIX_AUDIT_CONFIG"), "path to YAML config file (optional)")
	flag.Parse()

	loader := config.NewLoader[app.Config](envPrefix, *cfgPath)
	cfg, err := loader.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := log.New(cfg.Log)
	slog.SetDefault(logger)

	runner := app.NewRunner(cfg.Service, logger)
	runner.Run(func(ctx context.Context) error {
		return run(ctx, cfg, loader, *cfgPath, logger)
	})
}

func run(ctx context.Context, cfg *app.Config, loader *config.Loader[app.Config], cfgPath string, logger *slog.Logger) error {
	db, err := database.Open(ctx, cfg.DB, cfg.Service)
	if err != nil {
		return err
	}
	defer db.Close()

	dialect := eventstore.DialectPostgres
	if cfg.DB.Driver == "sqlite" {
		dialect = eventstore.DialectSQLite
	}
	store := eventstore.New(db, dialect)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	sinkClient, err := sink.Open(ctx, cfg.Sink)
	if err != nil {
		return err
	}
	defer sinkClient.Close()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	var lock *syncer.RunLock
	if cfg.Sync.LockEnabled {
		if rdb == nil {
			return fmt.Errorf("sync.lock_enabled requires redis.enabled")
		}
		lock = syncer.NewRunLock(rdb, cfg.Sync.LockTTL, logger)
	}

	exporter := syncer.New(cfg.Sync, store, sinkClient, lock, logger)
	sched := syncer.NewScheduler(exporter, cfg.Sync, logger)

	recorder, closeBackends, err := buildRecorder(cfg, store, logger)
	if err != nil {
		return err
	}
	defer closeBackends()

	urlFilter, err := audit.NewURLFilter(cfg.Capture.IncludeURLs, cfg.Capture.ExcludeURLs)
	if err != nil {
		return err
	}

	authMW, err := buildAuth(cfg, logger)
	if err != nil {
		return err
	}

	var rateLimit func(http.Handler) http.Handler
	if cfg.Auth.RateLimitEnabled {
		if rdb == nil {
			return fmt.Errorf("auth.rate_limit_enabled requires redis.enabled")
		}
		rateLimit = middleware.RateLimitMiddleware(rdb, cfg.Auth.RateLimitRPS, time.Second, cfg.Auth.RateLimitBurst)
	}

	router := server.NewRouter(server.RouterDeps{
		ServiceName:      cfg.Service,
		Logger:           logger,
		API:              server.NewAPI(store, logger),
		Health:           health.NewChecker(db, sinkClient, rdb, logger),
		Auth:             authMW,
		RateLimit:        rateLimit,
		Recorder:         recorder,
		URLFilter:        urlFilter,
		RemoteAddrHeader: cfg.Capture.RemoteAddrHeader,
	})
	srv := server.New(cfg.Server, logger, router)

	// Live reload: only the capture/export switches are hot-swappable.
	// Everything else (connections, auth, schema) needs a restart.
	if cfgPath != "" {
		container := config.NewContainer(*cfg)
		watcher := config.NewFileWatcher(cfgPath, 5*time.Second, logger)
		go watcher.Watch(ctx, func() {
			next, err := loader.Load()
			if err != nil {
				logger.Error("config reload rejected", "error", err)
				return
			}
			if err := container.Update(*next); err != nil {
				logger.Error("config reload rejected", "error", err)
				return
			}
			current := container.Get()
			recorder.SetEnabled(current.Capture.Enabled)
			exporter.SetEnabled(current.Sync.Enabled)
			logger.Info("config reloaded",
				"capture_enabled", current.Capture.Enabled,
				"sync_enabled", current.Sync.Enabled,
			)
		})
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	start("scheduler", sched.Run)
	if cfg.Server.Enabled {
		start("http", srv.Start)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	wg.Wait()
	return nil
}

// buildRecorder assembles the capture backend chain:
// async -> kafka mirror -> store. The returned closer drains the
// chain outside-in so buffered events reach the store before exit.
func buildRecorder(cfg *app.Config, store *eventstore.Store, logger *slog.Logger) (*audit.Recorder, func(), error) {
	var backend audit.Backend = audit.NewStoreBackend(store)
	var closers []func() error

	if len(cfg.Capture.KafkaBrokers) > 0 {
		kb, err := audit.NewKafkaBackend(backend, cfg.Capture.KafkaBrokers, cfg.Capture.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, kb.Close)
		backend = kb
	}

	if cfg.Capture.Async {
		ab := audit.NewAsyncBackend(backend, cfg.Capture.BufferSize, cfg.Capture.BlockOnFull, logger)
		closers = append(closers, ab.Close)
		backend = ab
	}

	recorder := audit.NewRecorder(cfg.Capture, backend, nil, logger)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	return recorder, cleanup, nil
}

func buildAuth(cfg *app.Config, logger *slog.Logger) (*middleware.AuthMiddleware, error) {
	switch cfg.Auth.Mode {
	case "api_key":
		strategy, err := middleware.NewAPIKeyStrategy(cfg.Auth.APIKeys, logger)
		if err != nil {
			return nil, err
		}
		return middleware.NewAuthMiddleware(strategy), nil

	case "jwt":
		verifier, err := crypto.NewJWKSCachingClient(cfg.Auth.JWKSURL, cfg.Auth.JWTIssuer, cfg.Auth.JWKSRefresh, logger)
		if err != nil {
			return nil, err
		}
		return middleware.NewAuthMiddleware(middleware.NewJWTStrategy(verifier, logger)), nil

	case "trusted_header":
		strategy, err := middleware.NewTrustedHeaderStrategy(middleware.TrustedHeaderConfig{
			TrustedProxies: cfg.Auth.TrustedProxies,
		}, logger)
		if err != nil {
			return nil, err
		}
		return middleware.NewAuthMiddleware(strategy), nil

	default: // none
		return nil, nil
	}
}
