// Package storage provides the connection pool to the records store and the
// SQL dialect differences between the supported backends.
package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

const (
	// ErrUnsupportedDriver is returned when the configured driver is unknown.
	ErrUnsupportedDriver Error = "unsupported storage driver"
	// ErrNotSQLite is returned by operations that only apply to the SQLite
	// development store.
	ErrNotSQLite Error = "operation requires the sqlite driver"
)

// Error is an error type returned by the storage implementation.
type Error string

// Error satisfies [error].
func (e Error) Error() string { return string(e) }

// Pool is the shared, long-lived handle to the records store. Callers acquire
// a scoped connection per unit of work and release it when done.
type Pool interface {
	// Conn acquires a single connection from the pool. The caller must Close
	// it to return it to the pool.
	Conn(ctx context.Context) (*sql.Conn, error)
	// PingContext verifies the store is reachable.
	PingContext(ctx context.Context) error
	// Dialect reports the SQL dialect spoken by the store.
	Dialect() Dialect
}

// Dialect enumerates the SQL flavors the query builder can target.
type Dialect uint8

// Supported dialects.
const (
	SQLServer Dialect = iota + 1
	SQLite
)

// String satisfies [fmt.Stringer].
func (d Dialect) String() string {
	switch d {
	case SQLServer:
		return "sqlserver"
	case SQLite:
		return "sqlite"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// Quote returns ident as a delimited identifier. Storage column names may
// contain characters such as '#' that are not valid in bare identifiers.
// SQLite identifiers use backticks: a double-quoted name matching no column
// is read as a string literal, which would hide schema drift.
func (d Dialect) Quote(ident string) string {
	if d == SQLServer {
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	}
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// Placeholder returns the bind parameter marker for the n-th (1-based)
// argument.
func (d Dialect) Placeholder(n int) string {
	if d == SQLServer {
		return "@p" + strconv.Itoa(n)
	}
	return "?"
}

// UsesTop reports whether row bounds are expressed as SELECT TOP (n) rather
// than a trailing LIMIT clause.
func (d Dialect) UsesTop() bool {
	return d == SQLServer
}
