package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/shopbot/core/logger"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"

// Connect opens the database connection, configures the pool, and verifies connectivity.
func Connect(cfg Config) (*sqlx.DB, error) {
	driver := normalizeDriver(cfg.Driver)
	dsn, target, err := buildDSN(driver, cfg)
	if err != nil {
		return nil, err
	}

	if driver == DriverPostgres {
		if err := WaitForPostgres(dsn, 30*time.Second); err != nil {
			logger.DB.Error("db not ready",
				slog.String("event", "db.connect"),
				slog.String("driver", driver),
				slog.String("db", target),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("database not ready: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	sqlxDB, err := sqlx.ConnectContext(ctx, driver, dsn)
	took := time.Since(start)
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("driver", driver),
			slog.String("db", target),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if pingErr := sqlxDB.PingContext(ctx); pingErr != nil {
		_ = sqlxDB.Close()
		logger.DB.Error("db ping failed",
			slog.String("event", "db.ping"),
			slog.String("driver", driver),
			slog.String("db", target),
			slog.String("err", pingErr.Error()),
		)
		return nil, fmt.Errorf("db ping: %w", pingErr)
	}

	pool := cfg.MaxConnections
	switch {
	case driver == DriverSQLite:
		// SQLite serializes writers itself; one connection keeps
		// transactions and plain statements from contending for the lock.
		pool = 1
	case pool <= 0:
		pool = 4
	}
	sqlxDB.SetMaxOpenConns(pool)
	sqlxDB.SetMaxIdleConns(pool)
	logger.DB.Debug("db pool configured",
		slog.String("event", "db.pool"),
		slog.Int("pool_open", pool),
	)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", driver),
		slog.String("db", target),
		slog.Int("pool_open", pool),
		slog.Duration("duration", logger.RoundMS(took)),
	)

	return sqlxDB, nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql", "pg":
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

func buildDSN(driver string, cfg Config) (dsn, target string, err error) {
	switch driver {
	case DriverPostgres:
		dsn = fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
		)
		return dsn, cfg.Host + ":" + cfg.Port + "/" + cfg.Name, nil
	default:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = "shopping_list.db"
		}
		if path == ":memory:" {
			return "file::memory:?" + sqlitePragmas, path, nil
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", "", fmt.Errorf("create database directory: %w", err)
			}
		}
		return "file:" + path + "?" + sqlitePragmas, path, nil
	}
}

// WaitForPostgres tries to connect to the DB until it is ready or timeout is reached.
func WaitForPostgres(dsn string, timeout time.Duration) error {
	start := time.Now()
	var lastErr error
	for {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				_ = db.Close()
				return nil
			}
			_ = db.Close()
		}
		lastErr = err
		if time.Since(start) > timeout {
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		}
		time.Sleep(2 * time.Second)
	}
}
