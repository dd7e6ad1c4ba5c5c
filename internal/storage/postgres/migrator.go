package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Миграции схемы витрины лежат в sql/migrations как пары NNNN_name.up.sql / NNNN_name.down.sql.
// Применённые версии хранятся в schema_migrations; параллельные мигрирующие процессы
// сериализуются через pg_advisory_lock.

const (
	migrationsDir     = "sql/migrations"
	migrationLockKey  = int64(0x5f0e_0001)
	migrationTimeout  = 5 * time.Second
	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileRe = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)
)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) label() string { return fmt.Sprintf("%04d_%s", m.Version, m.Name) }

// MigrateUp применяет ещё не применённые миграции по возрастанию версии; steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает последние steps миграций, по умолчанию одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

// MigrationStatus возвращает последнюю применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errors.New("postgres store is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, migrationTableDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		version int64
		count   int
	)
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`).
		Scan(&version, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	if direction != migrationUp && direction != migrationDown {
		return fmt.Errorf("unsupported migration direction: %s", direction)
	}

	all, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	// advisory lock живёт на сессии, поэтому вся работа идёт через одно соединение
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	unlock, err := lockMigrations(ctx, conn)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	var plan []migration
	if direction == migrationUp {
		plan = planUp(all, applied, steps)
	} else {
		if plan, err = planDown(all, applied, steps); err != nil {
			return err
		}
	}

	logger := log.WithFields(log.Fields{"component": "postgres-migrator", "direction": direction})
	for _, m := range plan {
		if err := runMigration(ctx, conn, direction, m); err != nil {
			return err
		}
		logger.WithField("migration", m.label()).Info("migration applied")
	}
	return nil
}

func lockMigrations(ctx context.Context, conn *sql.Conn) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}, nil
}

// appliedVersions возвращает применённые версии по возрастанию.
func appliedVersions(ctx context.Context, conn *sql.Conn) ([]int64, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

func planUp(all []migration, applied []int64, steps int) []migration {
	var plan []migration
	for _, m := range all {
		if slices.Contains(applied, m.Version) {
			continue
		}
		plan = append(plan, m)
		if steps > 0 && len(plan) == steps {
			break
		}
	}
	return plan
}

func planDown(all []migration, applied []int64, steps int) ([]migration, error) {
	plan := make([]migration, 0, steps)
	for i := len(applied) - 1; i >= 0 && len(plan) < steps; i-- {
		idx := slices.IndexFunc(all, func(m migration) bool { return m.Version == applied[i] })
		if idx < 0 {
			return nil, fmt.Errorf("cannot rollback unknown migration version %d", applied[i])
		}
		plan = append(plan, all[idx])
	}
	return plan, nil
}

// runMigration выполняет тело миграции и запись в schema_migrations в одной транзакции.
func runMigration(ctx context.Context, conn *sql.Conn, direction migrationDirection, m migration) (err error) {
	body, record, args := m.UpSQL, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, []any{m.Version, m.Name}
	if direction == migrationDown {
		body, record, args = m.DownSQL, `DELETE FROM schema_migrations WHERE version = $1`, []any{m.Version}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", direction, m.label(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute %s migration %s: %w", direction, m.label(), err)
	}
	if _, err = tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, m.label(), err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m.label(), err)
	}
	return nil
}

// loadMigrationsFromFS собирает пары up/down и сортирует их по версии.
func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := addMigrationFile(fsys, byVersion, entry.Name()); err != nil {
			return nil, err
		}
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.label())
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return migrations, nil
}

func addMigrationFile(fsys fs.FS, byVersion map[int64]*migration, file string) error {
	parts := migrationFileRe.FindStringSubmatch(file)
	if parts == nil {
		return fmt.Errorf("invalid migration file name: %s", file)
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("parse migration version from %s: %w", file, err)
	}
	name, direction := parts[2], migrationDirection(parts[3])

	raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, file))
	if err != nil {
		return fmt.Errorf("read migration file %s: %w", file, err)
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return fmt.Errorf("migration file is empty: %s", file)
	}

	m, ok := byVersion[version]
	if !ok {
		m = &migration{Version: version, Name: name}
		byVersion[version] = m
	}
	if m.Name != name {
		return fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, name)
	}

	target := &m.UpSQL
	if direction == migrationDown {
		target = &m.DownSQL
	}
	if *target != "" {
		return fmt.Errorf("duplicate %s migration for version %d", direction, version)
	}
	*target = body
	return nil
}
