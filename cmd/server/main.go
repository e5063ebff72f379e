package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/licensekit/edd-export/internal/config"
	"github.com/licensekit/edd-export/internal/export"
	"github.com/licensekit/edd-export/internal/logging"
	"github.com/licensekit/edd-export/internal/session"
	"github.com/licensekit/edd-export/internal/vat"
	"github.com/licensekit/edd-export/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"export_dir", cfg.Export.Dir,
		"batch_size", cfg.Export.BatchSize,
		"session_ttl", cfg.Export.SessionTTL,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// Transient session store for the export correlation token
	sessions, err := session.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Error("failed to connect to session store", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	// Pick the record source adapter matching the database's schema shape.
	// The probe runs once; the adapter never re-checks per record.
	source, err := export.NewSource(ctx, pool)
	if err != nil {
		slog.Error("failed to detect license schema", "error", err)
		os.Exit(1)
	}

	// The VAT extension is optional; a nil lookup disables the fallback.
	vatLookup, err := vat.Detect(ctx, pool)
	if err != nil {
		slog.Error("failed to probe VAT extension", "error", err)
		os.Exit(1)
	}
	slog.Info("vat extension", "present", vatLookup != nil)

	opts := export.Options{
		Source:     source,
		Sessions:   sessions,
		Spawner:    export.NewHTTPSpawner(cfg.Export.SpawnTimeout),
		Dir:        cfg.Export.Dir,
		FileName:   cfg.Export.FileName,
		BatchSize:  cfg.Export.BatchSize,
		SessionTTL: cfg.Export.SessionTTL,
		DebugRows:  cfg.Export.DebugRows,
	}
	if vatLookup != nil {
		opts.VAT = vatLookup
	}
	service := export.NewService(opts)

	// Create server with config
	server := web.NewServer(service, pool, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
