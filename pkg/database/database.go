package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // driver: postgres
	_ "modernc.org/sqlite" // driver: sqlite

	"github.com/aneeshlingala/grade-melon-nsd/pkg/config"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know the placeholder style for.
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// Open connects to the configured driver and makes sure the gradebook schema exists.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver, dsn, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func resolve(cfg config.DatabaseConfig) (string, string, error) {
	switch cfg.Driver {
	case config.DriverPostgres, "":
		if cfg.DSN != "" {
			return config.DriverPostgres, cfg.DSN, nil
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		)
		return config.DriverPostgres, dsn, nil
	case config.DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file:grade_melon.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
		return config.DriverSQLite, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// EnsureSchema creates the gradebook tables when missing. The DDL is portable across postgres and sqlite.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS gradebooks (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  period_index INTEGER NOT NULL,
  period_name TEXT NOT NULL,
  snapshot TEXT NOT NULL,
  grades TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS gradebooks_student_idx ON gradebooks (student_id, updated_at)`,
}
