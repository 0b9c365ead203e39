package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/db"
)

// SQLStore keeps blobs in a single table on SQLite or PostgreSQL.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates the blob table if it does not exist. The store owns conn.
func NewSQLStore(conn *sqlx.DB) (*SQLStore, error) {
	s := &SQLStore{db: conn}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize blob schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS report_blobs (
		key TEXT PRIMARY KEY,
		data %s NOT NULL,
		size BIGINT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`, db.BlobType(s.db.DriverName()))
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO report_blobs (key, data, size, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET data = excluded.data, size = excluded.size, updated_at = excluded.updated_at
	`), key, data, len(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put blob %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, s.db.Rebind(`SELECT data FROM report_blobs WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return data, nil
}

func (s *SQLStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var rows []Object
	query := `SELECT key, size, updated_at FROM report_blobs WHERE substr(key, 1, ?) = ? ORDER BY key`
	// substr counts characters, not bytes
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), utf8.RuneCountInString(prefix), prefix); err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	return rows, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM report_blobs WHERE key = ?`), key)
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
