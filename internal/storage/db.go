package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/stolasapp/permits/internal/config"
	"github.com/stolasapp/permits/internal/storage/db"
)

// DB is a [Pool] backed by a database/sql connection pool.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// NewDB opens the pool described by cfg. SQL Server is the production store;
// SQLite is a local development stand-in that is migrated on open.
func NewDB(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*DB, error) {
	var (
		handle  *sql.DB
		dialect Dialect
		err     error
	)
	switch cfg.Driver {
	case config.DriverSQLServer:
		handle, err = db.OpenSQLServer(ctx, db.SQLServerOptions{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Database: cfg.Database,
			User:     cfg.User,
			Password: cfg.Password,
		})
		dialect = SQLServer
	case config.DriverSQLite:
		handle, err = db.OpenSQLite(ctx, logger, cfg.Path)
		dialect = SQLite
	default:
		return nil, ErrUnsupportedDriver
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 && cfg.Path != ":memory:" {
		handle.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		handle.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	handle.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.DebugContext(ctx, "storage pool opened",
		slog.String("dialect", dialect.String()),
		slog.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return &DB{db: handle, dialect: dialect}, nil
}

// Conn satisfies the [Pool] interface.
func (d *DB) Conn(ctx context.Context) (*sql.Conn, error) {
	return d.db.Conn(ctx)
}

// PingContext satisfies the [Pool] interface.
func (d *DB) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Dialect satisfies the [Pool] interface.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Handle exposes the underlying pool for maintenance tasks such as seeding
// the development store.
func (d *DB) Handle() *sql.DB {
	return d.db
}

// Close releases every connection held by the pool.
func (d *DB) Close() error {
	return d.db.Close()
}

var _ Pool = (*DB)(nil)
