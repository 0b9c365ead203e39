// Package reportstore persists rendered reports with a preview/archive lifecycle.
//
// Previews are cached, unsent reports that expire after a freshness window. Archives
// are reports that were sent; they are never touched by expiry or ClearPreviews and
// only go away through Delete.
package reportstore

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no record matches, including a stale latest preview.
var ErrNotFound = errors.New("report not found")

// Category is the lifecycle bucket of a record.
type Category string

const (
	CategoryPreview Category = "preview"
	CategoryArchive Category = "archive"
)

// ExtraDeliverTo is the Metadata.Extra key naming the destination an archived
// report should be delivered to by event subscribers.
const ExtraDeliverTo = "deliver_to"

// Metadata describes how a report was produced.
type Metadata struct {
	PeriodStart   time.Time         `json:"period_start"`
	PeriodEnd     time.Time         `json:"period_end"`
	GeneratedAt   time.Time         `json:"generated_at"`
	ActiveMembers int               `json:"active_members"`
	Repositories  []string          `json:"repositories,omitempty"`
	TaskID        string            `json:"task_id,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Record is one stored report.
type Record struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Category Category `json:"category"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Age returns how long ago the record was generated.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.Metadata.GeneratedAt)
}

// CategoryStats totals one category.
type CategoryStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// StorageStats totals the store by category.
type StorageStats struct {
	Preview CategoryStats `json:"preview"`
	Archive CategoryStats `json:"archive"`
}

// ListOptions filters List. Empty fields match everything; Limit <= 0 means no limit.
type ListOptions struct {
	Kind     string
	Category Category
	Limit    int
}
