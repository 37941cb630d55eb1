package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/shopbot/core/logger"
)

// RunMigrations applies the pending up migrations kept in fsys under the
// driver's directory, e.g. "sqlite/0001_init.up.sql". A dirty schema version
// stops startup.
func RunMigrations(db *sqlx.DB, cfg Config, fsys fs.FS) error {
	if db == nil {
		return errors.New("run migrations: nil db")
	}
	driver := normalizeDriver(cfg.Driver)
	files := upFiles(fsys, driver)
	logger.MIG.Debug("migrations resolved",
		append([]any{slog.String("event", "resolve"), slog.String("driver", driver)}, fileAttrs(files)...)...)

	m, release, err := newMigrator(db, driver, cfg, fsys)
	if err != nil {
		logger.MIG.Error("init failed", slog.String("event", "db.migrate"), slog.String("err", err.Error()))
		return err
	}
	defer release()

	from, dirty, _ := m.Version()
	if dirty {
		logger.MIG.Error("schema is dirty", slog.String("event", "db.migrate"), slog.Uint64("from_ver", uint64(from)))
		return fmt.Errorf("schema version %d is dirty; fix it manually before restarting", from)
	}

	start := time.Now()
	err = m.Up()
	took := logger.RoundMS(time.Since(start))
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("err", err.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("apply migrations: %w", err)
	}

	to, _, _ := m.Version()
	applied := between(files, uint64(from), uint64(to))
	if len(applied) > 0 {
		logger.MIG.Debug("applied files", append([]any{slog.String("event", "apply")}, fileAttrs(applied)...)...)
	}
	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

// newMigrator binds the iofs source to the target database. SQLite runs
// through the shared pool, because an in-memory database only exists there,
// and release leaves it open. Postgres gets its own handle that release
// closes together with the migrator.
func newMigrator(db *sqlx.DB, driver string, cfg Config, fsys fs.FS) (*migrate.Migrate, func(), error) {
	src, err := iofs.New(fsys, driver)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration source: %w", err)
	}

	var (
		target  database.Driver
		release = func() {}
	)
	switch driver {
	case DriverPostgres:
		dsn, _, err := buildDSN(driver, cfg)
		if err != nil {
			return nil, nil, err
		}
		conn, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open migration connection: %w", err)
		}
		if target, err = migratepg.WithInstance(conn, &migratepg.Config{}); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("postgres migration driver: %w", err)
		}
	default:
		if target, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{}); err != nil {
			return nil, nil, fmt.Errorf("sqlite migration driver: %w", err)
		}
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		if driver == DriverPostgres {
			_ = target.Close()
		}
		return nil, nil, fmt.Errorf("init migrations: %w", err)
	}
	if driver == DriverPostgres {
		release = func() { _, _ = m.Close() }
	}
	return m, release, nil
}

// upFiles lists the up migrations of dir in version order.
func upFiles(fsys fs.FS, dir string) []string {
	names, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil
	}
	for i, n := range names {
		names[i] = path.Base(n)
	}
	return names
}

func fileAttrs(names []string) []any {
	attrs := []any{slog.Int("files_total", len(names))}
	preview, truncated := logger.SummarizeStrings(names, 6)
	if preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
	}
	if truncated {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	return attrs
}

// between returns the files whose version prefix lies in (from, to].
func between(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		prefix, _, _ := strings.Cut(f, "_")
		if v, err := strconv.ParseUint(prefix, 10, 64); err == nil && v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
