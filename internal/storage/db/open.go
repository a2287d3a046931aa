// Package db opens the database handles used by the storage package and
// carries the development schema migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/microsoft/go-mssqldb" // sqlserver sql.DB driver initialization
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite" // sqlite sql.DB driver initialization
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	registerHook sync.Once
	// goose keeps its configuration in package globals
	migrateMu sync.Mutex
)

// appName identifies this service in SQL Server session metadata.
const appName = "permits"

// SQLServerOptions are the connection parameters for the production store.
type SQLServerOptions struct {
	// Host is a hostname, optionally followed by a backslash and a named
	// instance (host\instance).
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DSN renders the options as a go-mssqldb connection URL.
func (o SQLServerOptions) DSN() string {
	host, instance, _ := strings.Cut(o.Host, `\`)
	if o.Port > 0 {
		host += ":" + strconv.Itoa(o.Port)
	}
	query := url.Values{}
	query.Set("database", o.Database)
	query.Set("app name", appName)

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(o.User, o.Password),
		Host:     host,
		RawQuery: query.Encode(),
	}
	if instance != "" {
		u.Path = instance
	}
	return u.String()
}

// OpenSQLServer initializes a SQL Server connection pool and verifies the
// server is reachable. The records view is owned upstream, so no migrations
// are applied.
func OpenSQLServer(ctx context.Context, opts SQLServerOptions) (*sql.DB, error) {
	handle, err := sql.Open("sqlserver", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create DB handler: %w", err)
	}
	if err = handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return handle, nil
}

// OpenSQLite initializes a SQLite DB connection to the specified dbPath. If the
// database file does not exist, it attempts to create it, and then migrates the
// database to the development records schema.
func OpenSQLite(ctx context.Context, logger *slog.Logger, dbPath string) (*sql.DB, error) {
	if dbPath == ":memory:" { //nolint:revive // for documentation
		// noop
	} else if _, err := os.Stat(dbPath); err != nil {
		const userOnlyDirPerms = 0o700
		if err = os.MkdirAll(filepath.Dir(dbPath), userOnlyDirPerms); err != nil {
			return nil, fmt.Errorf("failed to create db parent directory: %w", err)
		}
	}

	if strings.ContainsRune(dbPath, '?') {
		dbPath += "&"
	} else {
		dbPath += "?"
	}
	dbPath += "_time_format=sqlite"

	registerHook.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, _ string) error {
			const initSQL = `
			pragma journal_mode = WAL; -- readers do not block the seeder
			pragma synchronous = normal;
			pragma temp_store = memory;
			pragma busy_timeout = 5000;
			`
			_, err := conn.ExecContext(context.Background(), initSQL, nil)
			return err
		})
	})

	handle, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create DB handler: %w", err)
	} else if err = handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		// every connection to :memory: is a distinct database
		handle.SetMaxOpenConns(1)
	}

	logger = logger.With(slog.String("db", dbPath))
	if err = migrate(ctx, logger, handle); err != nil {
		_ = handle.Close()
		return nil, err
	}
	return handle, nil
}

func migrate(ctx context.Context, logger *slog.Logger, handle *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, handle, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate DB: %w", err)
	}
	return nil
}
