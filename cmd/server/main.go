package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/schoolbulk/internal/config"
	"github.com/JonMunkholm/schoolbulk/internal/core"
	"github.com/JonMunkholm/schoolbulk/internal/core/modules"
	"github.com/JonMunkholm/schoolbulk/internal/identity"
	"github.com/JonMunkholm/schoolbulk/internal/logging"
	"github.com/JonMunkholm/schoolbulk/internal/notify"
	"github.com/JonMunkholm/schoolbulk/internal/store/memory"
	"github.com/JonMunkholm/schoolbulk/internal/store/postgres"
	"github.com/JonMunkholm/schoolbulk/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"identity", cfg.Identity.Provider,
		"mail_enabled", cfg.Mail.Enabled,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if path := cfg.Import.CatalogPath; path != "" {
		n, err := modules.InstallFile(core.DefaultRegistry(), path)
		if err != nil {
			slog.Error("failed to install module catalog", "path", path, "error", err)
			os.Exit(1)
		}
		slog.Info("module catalog installed", "path", path, "modules", n)
	}

	ctx := context.Background()

	deps, closeDeps, err := buildDependencies(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise dependencies", "error", err)
		os.Exit(1)
	}
	defer closeDeps()

	service, err := core.NewService(deps, core.Options{
		AccountWorkers: cfg.Import.AccountWorkers,
		AccountTimeout: cfg.Import.AccountTimeout,
		EmailTimeout:   cfg.Import.EmailTimeout,
		MaxConcurrent:  cfg.Import.MaxConcurrent,
		MaxWait:        cfg.Import.MaxWaitTime,
		LoginURL:       cfg.Import.LoginURL,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	slog.Info("modules registered", "count", service.Registry().Count())

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running imports finish so their history is written
		if status := service.ImportLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// buildDependencies wires the stores, identity provider and mail transport
// selected by configuration. The returned func releases whatever was opened.
func buildDependencies(ctx context.Context, cfg *config.Config) (core.Dependencies, func(), error) {
	var deps core.Dependencies
	closeFn := func() {}

	switch cfg.Store.Driver {
	case config.StoreMemory:
		store := memory.New()
		deps.Records = store
		deps.History = store
		deps.Accounts = store
		slog.Warn("using in-memory store, data will not survive a restart")

	default:
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return deps, closeFn, err
		}
		closeFn = pool.Close

		deps.Records = postgres.NewRecordsRepository(pool)
		deps.History = postgres.NewHistoryRepository(pool)
		deps.Accounts = postgres.NewAccountsRepository(pool, postgres.NewTxManager(pool))
	}

	if cfg.Identity.Provider == config.IdentitySupabase {
		client, err := identity.New(identity.Config{
			ProjectURL: cfg.Identity.SupabaseURL,
			ServiceKey: cfg.Identity.SupabaseServiceKey,
			Timeout:    cfg.Identity.Timeout,
		})
		if err != nil {
			closeFn()
			return deps, func() {}, fmt.Errorf("create identity client: %w", err)
		}
		deps.Accounts = client
	}

	if cfg.Mail.Enabled {
		deps.Notifier = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	} else {
		deps.Notifier = notify.NewLogSender(slog.Default())
	}

	return deps, closeFn, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := postgres.NewConnection(ctx, slog.Default(), poolConfig)
	if err != nil {
		return nil, err
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
