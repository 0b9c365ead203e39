package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Driver names as registered with database/sql.
const (
	SQLite3 = "sqlite3"
	PGX     = "pgx"
)

// Options selects and configures a SQL backend.
type Options struct {
	Driver   string // sqlite or postgres
	Path     string
	DSN      string
	MaxConns int
	MinConns int
}

// Open returns an sqlx handle for the configured driver.
func Open(opts Options) (*sqlx.DB, error) {
	switch strings.ToLower(opts.Driver) {
	case "sqlite", SQLite3:
		raw, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		return sqlx.NewDb(raw, SQLite3), nil
	case "postgres", PGX:
		raw, err := OpenPostgres(opts)
		if err != nil {
			return nil, err
		}
		return sqlx.NewDb(raw, PGX), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", opts.Driver)
	}
}

// IsPostgres reports whether driver is the pgx driver.
func IsPostgres(driver string) bool {
	return driver == PGX
}

// BlobType returns the binary column type for the driver.
func BlobType(driver string) string {
	if IsPostgres(driver) {
		return "BYTEA"
	}
	return "BLOB"
}
