package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

//go:embed migrations/*.up.sql
var embeddedMigrations embed.FS

const (
	busyTimeoutMS      = 5000
	defaultMaxOpen     = 4
	defaultConnMaxIdle = time.Minute
)

// Open opens the device database, applies pragmas and pending migrations,
// and wraps it in a bun.DB.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*bun.DB, error) {
	if dsn == "" {
		return nil, errors.New("sqlite: empty dsn")
	}

	sqlDB, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Every connection to an in-memory database sees its own empty
	// database, so pin to a single connection that never expires.
	if isMemory(dsn) {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	} else {
		sqlDB.SetMaxOpenConns(defaultMaxOpen)
		sqlDB.SetConnMaxIdleTime(defaultConnMaxIdle)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	start := time.Now()
	applied, err := RunMigrations(ctx, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info().
		Bool("in_memory", isMemory(dsn)).
		Int("migrations_applied", applied).
		Dur("took", time.Since(start)).
		Msg("SQLite wallet database ready")

	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

// RunMigrations applies embedded *.up.sql files in name order, each in its
// own transaction, recording versions in schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) (int, error) {
	entries, err := fs.ReadDir(embeddedMigrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}

	var ups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied := 0
	for _, name := range ups {
		version := strings.TrimSuffix(name, ".up.sql")

		var exists int
		err := db.QueryRowContext(ctx, "SELECT 1 FROM schema_migrations WHERE version = ?", version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return applied, fmt.Errorf("checking migration %s: %w", version, err)
		}

		data, err := embeddedMigrations.ReadFile(path.Join("migrations", name))
		if err != nil {
			return applied, fmt.Errorf("reading migration %s: %w", name, err)
		}

		if err := applyMigration(ctx, db, version, string(data)); err != nil {
			return applied, err
		}
		applied++
	}

	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, version, script string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration %s: %w", version, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("executing migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", version, time.Now().Unix()); err != nil {
		return fmt.Errorf("recording migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %s: %w", version, err)
	}
	return nil
}

func withPragmas(dsn string) string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeoutMS),
		"_pragma=foreign_keys(1)",
	}
	if !isMemory(dsn) {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
