package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationTypeUp   = "up"
	migrationTypeDown = "down"
)

const (
	exitCodeOK = iota
	exitCodeInputErr
	exitCodeInternalErr
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	exitCode := exitCodeOK
	cmd := &cli.Command{
		Name:  "migrator",
		Usage: "apply schoolbulk database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:      "type",
				Aliases:   []string{"t"},
				Usage:     "migration type: up/down",
				Value:     migrationTypeUp,
				Validator: validateMigrationType,
			},
			&cli.StringFlag{
				Name:     "database-url",
				Aliases:  []string{"d"},
				Usage:    "PostgreSQL connection `URL`",
				Sources:  cli.EnvVars("DATABASE_URL", "DB_URL"),
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var err error
			exitCode, err = Run(ctx, log, cmd.String("type"), cmd.String("database-url"))
			return err
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.ErrorContext(ctx, "failed to apply migrations", slog.String("err", err.Error()))
		if exitCode == exitCodeOK {
			exitCode = exitCodeInputErr
		}
	}

	stop()
	os.Exit(exitCode)
}

func Run(ctx context.Context, log *slog.Logger, migrationType, databaseURL string) (exitCode int, err error) {
	dsn, err := migrateURL(databaseURL)
	if err != nil {
		return exitCodeInputErr, fmt.Errorf("invalid database url: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return exitCodeInternalErr, fmt.Errorf("failed to create migrations source: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return exitCodeInternalErr, fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if closeErr := errors.Join(srcErr, dbErr); closeErr != nil {
			if err == nil {
				exitCode = exitCodeInternalErr
			}
			err = errors.Join(err, closeErr)
		}
	}()

	if err := applyMigration(migrator, migrationType); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.InfoContext(ctx, "no migrations to apply")
			return exitCodeOK, nil
		}

		return exitCodeInternalErr, fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.InfoContext(ctx, "migrations applied successfully", slog.String("type", migrationType))

	return exitCodeOK, nil
}

func applyMigration(migrator *migrate.Migrate, migrationType string) error {
	switch migrationType {
	case migrationTypeUp:
		return migrator.Up()
	case migrationTypeDown:
		return migrator.Down()
	default:
		return fmt.Errorf("unknown migration type %q", migrationType)
	}
}

func validateMigrationType(t string) error {
	if t != migrationTypeUp && t != migrationTypeDown {
		return fmt.Errorf("migration type must be %q or %q, got %q", migrationTypeUp, migrationTypeDown, t)
	}
	return nil
}

// migrateURL checks that raw is a postgres connection URL.
func migrateURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	return u.String(), nil
}
