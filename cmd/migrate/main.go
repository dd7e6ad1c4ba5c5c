// Command migrate применяет встроенные SQL-миграции storefront к PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
}

type options struct {
	direction string
	steps     int
	dsn       string
	timeout   time.Duration
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)

	var opts options
	fs.StringVar(&opts.direction, "direction", "up", "up, down or status")
	fs.IntVar(&opts.steps, "steps", 0, "migrations to apply (0 = all) or roll back (0 = one)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (default $STORE_POSTGRES_DSN)")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	if opts.dsn = strings.TrimSpace(opts.dsn); opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv("STORE_POSTGRES_DSN"))
	}

	switch {
	case opts.dsn == "":
		return options{}, errors.New("postgres DSN is required (-dsn or STORE_POSTGRES_DSN)")
	case opts.steps < 0:
		return options{}, fmt.Errorf("steps must be >= 0, got %d", opts.steps)
	case opts.timeout <= 0:
		return options{}, fmt.Errorf("timeout must be > 0, got %s", opts.timeout)
	}
	return opts, nil
}

// migrate выполняет команду и возвращает версию схемы и число применённых миграций.
func migrate(ctx context.Context, m migrator, direction string, steps int) (int64, int, error) {
	switch direction {
	case "up":
		if err := m.MigrateUp(ctx, steps); err != nil {
			return 0, 0, fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := m.MigrateDown(ctx, max(steps, 1)); err != nil {
			return 0, 0, fmt.Errorf("migrate down: %w", err)
		}
	case "status":
	default:
		return 0, 0, fmt.Errorf("unsupported direction %q, use up, down or status", direction)
	}

	ver, applied, err := m.MigrationStatus(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read migration status: %w", err)
	}
	return ver, applied, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithFields(version.Current().Fields()).WithField("component", "migrate")

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logger.WithError(err).Fatal("invalid arguments")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		logger.WithError(err).Fatal("open postgres")
	}
	defer store.Close()

	ver, applied, err := migrate(ctx, store, opts.direction, opts.steps)
	logger = logger.WithField("direction", opts.direction)
	if err != nil {
		_ = store.Close()
		logger.WithError(err).Fatal("migration failed")
	}
	logger.WithFields(log.Fields{"schema_version": ver, "applied": applied}).Info("migration finished")
}
