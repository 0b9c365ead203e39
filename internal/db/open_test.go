package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports.db")

	db, err := Open(Options{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.Equal(t, SQLite3, db.DriverName())
	assert.FileExists(t, path)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestBlobType(t *testing.T) {
	assert.Equal(t, "BYTEA", BlobType(PGX))
	assert.Equal(t, "BLOB", BlobType(SQLite3))
	assert.True(t, IsPostgres(PGX))
	assert.False(t, IsPostgres(SQLite3))
}

func TestOpenPostgresBadDSN(t *testing.T) {
	_, err := Open(Options{Driver: "postgres", DSN: "postgres://%zz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse postgres dsn")
}
