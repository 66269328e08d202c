package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/internal/config"
	"github.com/realchillguyclub/backend-sub000/internal/members"
	"github.com/realchillguyclub/backend-sub000/internal/migrations"
	"github.com/realchillguyclub/backend-sub000/internal/transport/httpapi"
	promexport "github.com/realchillguyclub/backend-sub000/metrics/export/prometheus"
	"github.com/realchillguyclub/backend-sub000/oauth"
	"github.com/realchillguyclub/backend-sub000/session/postgres"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting authd", "env", cfg.Env)

	if err := run(cfg, log); err != nil {
		log.Error("authd_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("authd_stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	providerCfgs, err := cfg.ProviderConfigs()
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", cfg.DB.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(rootCtx, 10*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		return err
	}
	log.Info("postgres_connected")

	if cfg.DB.Migrate {
		if err := migrations.Up(rootCtx, db); err != nil {
			return err
		}
		log.Info("migrations_applied")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(rootCtx).Err(); err != nil {
		return err
	}
	log.Info("redis_connected")

	builder := auth.New().
		WithConfig(engineCfg).
		WithStore(postgres.New(db)).
		WithRedis(rdb).
		WithLogger(log).
		WithAuditSink(auth.NewSlogSink(log))

	if len(providerCfgs) > 0 {
		providers := make([]oauth.IdentityProvider, 0, len(providerCfgs))
		for _, pc := range providerCfgs {
			p, err := oauth.NewOAuth2Provider(pc)
			if err != nil {
				return err
			}
			providers = append(providers, p)
		}
		builder.WithIdentityProviders(providers...).WithUserProvider(members.New(db))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()
	log.Info("engine_ready", slog.Any("providers", engine.Providers()))

	retentionDone := make(chan struct{})
	go func() {
		defer close(retentionDone)
		if err := engine.StartRetention(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("retention_stopped", slog.String("err", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	var ready atomic.Bool
	root := chi.NewRouter()
	root.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	root.Mount("/", httpapi.NewRouter(engine, httpapi.Options{
		Logger:  log,
		Timeout: cfg.HTTP.WriteTimeout,
	}))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout + time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	ready.Store(true)

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
	}
	rootCancel()
	<-retentionDone
	return nil
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
