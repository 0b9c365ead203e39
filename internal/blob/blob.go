// Package blob is a small key/blob store used to persist rendered reports.
// Keys are slash-separated paths such as "preview/weekly/<id>.json".
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get and Delete for unknown keys.
var ErrNotFound = errors.New("blob not found")

// Object describes a stored blob.
type Object struct {
	Key       string    `db:"key" json:"key"`
	Size      int64     `db:"size" json:"size"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Store persists blobs by key. List returns objects ordered by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// ValidateKey rejects empty keys, absolute keys and keys containing "." or ".." segments.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("blob key is empty")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("invalid blob key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid blob key %q", key)
		}
	}
	return nil
}
