package export

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RenderState is the outcome of an export call.
type RenderState string

const (
	RenderCompleted RenderState = "completed"
	RenderFailed    RenderState = "failed"
)

// RenderRecord describes one export call.
type RenderRecord struct {
	ID        string
	Format    Format
	Width     int
	Height    int
	Scale     float64
	Bytes     int64
	Duration  time.Duration
	State     RenderState
	ErrorKind ErrorKind
	Error     string
	Path      string
	CreatedAt time.Time
}

// RenderFilter filters tracker lists.
type RenderFilter struct {
	Format Format
	State  RenderState
	Since  time.Time
	Until  time.Time
	Limit  int
}

// Tracker stores render history.
type Tracker interface {
	Record(ctx context.Context, record RenderRecord) (string, error)
	Status(ctx context.Context, id string) (RenderRecord, error)
	List(ctx context.Context, filter RenderFilter) ([]RenderRecord, error)
}

// NewRenderRecord builds a record for a finished export call.
func NewRenderRecord(req ExportRequest, result Result, err error, started time.Time, finished time.Time) RenderRecord {
	record := RenderRecord{
		ID:        uuid.NewString(),
		Format:    NormalizeFormat(req.Format),
		Width:     req.Width,
		Height:    req.Height,
		Scale:     req.Scale,
		Duration:  finished.Sub(started),
		State:     RenderCompleted,
		CreatedAt: started,
	}
	if err != nil {
		record.State = RenderFailed
		record.ErrorKind = KindFromError(err)
		record.Error = err.Error()
		return record
	}
	record.Bytes = result.Size()
	return record
}

// Matches reports whether the record passes the filter.
func (f RenderFilter) Matches(record RenderRecord) bool {
	if f.Format != "" && NormalizeFormat(f.Format) != record.Format {
		return false
	}
	if f.State != "" && f.State != record.State {
		return false
	}
	if !f.Since.IsZero() && record.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && record.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

// MemoryTracker stores render history in memory (test/dev only).
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[string]RenderRecord
}

// NewMemoryTracker creates an in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{records: make(map[string]RenderRecord)}
}

// Record stores a record.
func (t *MemoryTracker) Record(ctx context.Context, record RenderRecord) (string, error) {
	_ = ctx
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	t.mu.Lock()
	t.records[record.ID] = record
	t.mu.Unlock()
	return record.ID, nil
}

// Status returns a record by ID.
func (t *MemoryTracker) Status(ctx context.Context, id string) (RenderRecord, error) {
	_ = ctx
	t.mu.RLock()
	record, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return RenderRecord{}, NewError(KindNotFound, fmt.Sprintf("render %q not found", id), nil)
	}
	return record, nil
}

// List returns records matching the filter, newest first.
func (t *MemoryTracker) List(ctx context.Context, filter RenderFilter) ([]RenderRecord, error) {
	_ = ctx
	t.mu.RLock()
	records := make([]RenderRecord, 0, len(t.records))
	for _, record := range t.records {
		if filter.Matches(record) {
			records = append(records, record)
		}
	}
	t.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}
