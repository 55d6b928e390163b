package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/quartzlabs/chatvault/internal/app"
	"github.com/quartzlabs/chatvault/internal/app/cache"
	"github.com/quartzlabs/chatvault/internal/app/httpapi"
	"github.com/quartzlabs/chatvault/internal/app/metrics"
	"github.com/quartzlabs/chatvault/internal/app/storage/postgres"
	"github.com/quartzlabs/chatvault/internal/config"
	"github.com/quartzlabs/chatvault/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatvaultd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores := app.Stores{}
	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = openDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := postgres.RunMigrations(db); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		store := postgres.New(db)
		stores = app.Stores{Users: store, Providers: store, Credentials: store}
	} else {
		log.Warn("DATABASE_DSN not set; using in-memory storage")
	}

	opts := app.Options{
		TokenTTL:      cfg.Auth.TokenTTL(),
		CacheTTL:      cfg.Vault.CacheTTL(),
		KDFIterations: cfg.Vault.KDFIterations,
		KDFWorkers:    cfg.Vault.DeriveWorkers,
	}
	if cfg.Auth.JWTSecret != "" {
		opts.JWTSecret = []byte(cfg.Auth.JWTSecret)
	}
	if cfg.Vault.CacheKey != "" {
		key, err := cfg.Vault.ParseCacheKey()
		if err != nil {
			return fmt.Errorf("parse cache key: %w", err)
		}
		opts.CacheKey = key
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.WithError(err).Warn("redis unreachable; falling back to in-memory session cache")
		} else {
			defer client.Close()
			opts.Sessions = cache.NewRedis(client, cfg.Vault.CacheTTL())
		}
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	if len(cfg.Vault.SeedProviders) > 0 {
		if err := application.Providers.Seed(ctx, cfg.Vault.SeedProviders); err != nil {
			return fmt.Errorf("seed providers: %w", err)
		}
	}

	handlerOpts := []httpapi.Option{}
	if path := os.Getenv("AUDIT_LOG_FILE"); path != "" {
		handlerOpts = append(handlerOpts, httpapi.WithAuditFile(path))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", metrics.InstrumentHandler(httpapi.NewHandler(application, handlerOpts...)))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
