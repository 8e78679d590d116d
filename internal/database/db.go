package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

type Config struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens a pooled handle for cfg and verifies it with a ping.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := LookupDialect(cfg.Driver)
	if err != nil {
		return nil, Dialect{}, err
	}
	if dialect.Name != "duckdb" && cfg.Host == "" {
		return nil, Dialect{}, fmt.Errorf("database host is required")
	}

	db, err := sql.Open(dialect.DriverName, dialect.DSN(cfg))
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("open %s database: %w", dialect.Name, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Dialect{}, fmt.Errorf("ping %s database: %w", dialect.Name, err)
	}

	return db, dialect, nil
}

// HealthCheck returns a readiness probe bound to db.
func HealthCheck(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db == nil {
			return fmt.Errorf("database is not configured")
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		return nil
	}
}
