package reportstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/blob"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events/bus"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/metrics"
)

// Store keeps records in a blob store under "<category>/<kind>/<id>.json".
type Store struct {
	blobs   blob.Store
	logger  *logger.Logger
	bus     bus.EventBus
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithEventBus publishes report.preview_saved and report.archived events on b.
func WithEventBus(b bus.EventBus) Option {
	return func(s *Store) { s.bus = b }
}

// WithMetrics counts saved reports on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over blobs.
func New(blobs blob.Store, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		blobs:  blobs,
		logger: log.Component("report-store"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func recordKey(c Category, kind, id string) string {
	return path.Join(string(c), kind, id+".json")
}

// parseKey splits "<category>/<kind>/<id>.json".
func parseKey(key string) (Category, string, string, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], ".json") {
		return "", "", "", false
	}
	c := Category(parts[0])
	if c != CategoryPreview && c != CategoryArchive {
		return "", "", "", false
	}
	return c, parts[1], strings.TrimSuffix(parts[2], ".json"), true
}

// SavePreview stores content as a new preview record and returns its id.
func (s *Store) SavePreview(ctx context.Context, kind, content string, meta Metadata) (string, error) {
	return s.save(ctx, CategoryPreview, kind, content, meta)
}

// Archive stores content as a new, immutable archive record and returns its id.
func (s *Store) Archive(ctx context.Context, kind, content string, meta Metadata) (string, error) {
	return s.save(ctx, CategoryArchive, kind, content, meta)
}

func (s *Store) save(ctx context.Context, c Category, kind, content string, meta Metadata) (string, error) {
	if err := blob.ValidateKey(kind); err != nil || strings.Contains(kind, "/") {
		return "", fmt.Errorf("invalid report kind %q", kind)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate report id: %w", err)
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = s.now().UTC()
	}
	rec := Record{ID: id.String(), Kind: kind, Category: c, Content: content, Metadata: meta}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := s.blobs.Put(ctx, recordKey(c, kind, rec.ID), data); err != nil {
		return "", fmt.Errorf("save %s report: %w", c, err)
	}
	s.metrics.ReportSaved(string(c))
	s.logger.Info("report saved",
		zap.String("report_id", rec.ID),
		zap.String("kind", kind),
		zap.String("category", string(c)),
		zap.Int("bytes", len(data)))

	s.publish(ctx, c, &rec)
	return rec.ID, nil
}

func (s *Store) publish(ctx context.Context, c Category, rec *Record) {
	if s.bus == nil {
		return
	}
	subject := events.ReportPreviewSaved
	if c == CategoryArchive {
		subject = events.ReportArchived
	}
	ev := bus.NewEvent(subject, "report-store", rec)
	if err := s.bus.Publish(ctx, subject, ev); err != nil {
		s.logger.Warn("failed to publish report event", zap.String("subject", subject), zap.Error(err))
	}
}

func (s *Store) load(ctx context.Context, key string) (*Record, error) {
	data, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", key, err)
	}
	return &rec, nil
}

// findKey locates the blob key for id in either category.
func (s *Store) findKey(ctx context.Context, id string) (string, error) {
	objs, err := s.blobs.List(ctx, "")
	if err != nil {
		return "", err
	}
	for _, o := range objs {
		if _, _, oid, ok := parseKey(o.Key); ok && oid == id {
			return o.Key, nil
		}
	}
	return "", ErrNotFound
}

// LoadByID returns the record with id from either category.
func (s *Store) LoadByID(ctx context.Context, id string) (*Record, error) {
	key, err := s.findKey(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, key)
}

// LoadLatest returns the newest preview of kind. It returns ErrNotFound when there is
// none or when the newest one is at least maxAge old; stale previews are left in place.
// A maxAge <= 0 disables the freshness check.
func (s *Store) LoadLatest(ctx context.Context, kind string, maxAge time.Duration) (*Record, error) {
	recs, err := s.List(ctx, ListOptions{Kind: kind, Category: CategoryPreview, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	rec := recs[0]
	if maxAge > 0 && rec.Age(s.now()) >= maxAge {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	prefix := ""
	if opts.Category != "" {
		prefix = string(opts.Category) + "/"
		if opts.Kind != "" {
			prefix += opts.Kind + "/"
		}
	}
	objs, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	recs := make([]Record, 0, len(objs))
	for _, o := range objs {
		c, kind, _, ok := parseKey(o.Key)
		if !ok || (opts.Kind != "" && kind != opts.Kind) || (opts.Category != "" && c != opts.Category) {
			continue
		}
		rec, err := s.load(ctx, o.Key)
		if errors.Is(err, ErrNotFound) {
			continue // deleted concurrently
		}
		if err != nil {
			s.logger.Warn("skipping unreadable report", zap.String("key", o.Key), zap.Error(err))
			continue
		}
		recs = append(recs, *rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		ti, tj := recs[i].Metadata.GeneratedAt, recs[j].Metadata.GeneratedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return recs[i].ID > recs[j].ID
	})
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

// Delete removes the record with id from either category.
func (s *Store) Delete(ctx context.Context, id string) error {
	key, err := s.findKey(ctx, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	s.logger.Info("report deleted", zap.String("report_id", id))
	return nil
}

// ClearPreviews removes every preview and returns how many were removed.
func (s *Store) ClearPreviews(ctx context.Context) (int, error) {
	return s.deletePreviews(ctx, func(*Record) bool { return true })
}

// CleanupExpired removes previews at least maxAge old.
func (s *Store) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	now := s.now()
	return s.deletePreviews(ctx, func(r *Record) bool { return r.Age(now) >= maxAge })
}

func (s *Store) deletePreviews(ctx context.Context, match func(*Record) bool) (int, error) {
	recs, err := s.List(ctx, ListOptions{Category: CategoryPreview})
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := range recs {
		if !match(&recs[i]) {
			continue
		}
		key := recordKey(CategoryPreview, recs[i].Kind, recs[i].ID)
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return removed, fmt.Errorf("delete preview %s: %w", recs[i].ID, err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("previews removed", zap.Int("count", removed))
	}
	return removed, nil
}

// StorageStats counts records and bytes per category.
func (s *Store) StorageStats(ctx context.Context) (StorageStats, error) {
	var st StorageStats
	objs, err := s.blobs.List(ctx, "")
	if err != nil {
		return st, fmt.Errorf("storage stats: %w", err)
	}
	for _, o := range objs {
		c, _, _, ok := parseKey(o.Key)
		if !ok {
			continue
		}
		cs := &st.Preview
		if c == CategoryArchive {
			cs = &st.Archive
		}
		cs.Count++
		cs.Bytes += o.Size
	}
	return st, nil
}
