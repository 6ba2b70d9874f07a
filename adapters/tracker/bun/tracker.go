package trackerbun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-static-export/export"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tracker stores render history in a Bun-backed database.
type Tracker struct {
	DB          *bun.DB
	Now         func() time.Time
	IDGenerator func() string
}

var _ export.Tracker = (*Tracker)(nil)

// NewTracker creates a Bun-backed tracker.
func NewTracker(db *bun.DB) *Tracker {
	return &Tracker{DB: db, Now: time.Now, IDGenerator: uuid.NewString}
}

// CreateSchema creates the render history table if it does not exist.
func (t *Tracker) CreateSchema(ctx context.Context) error {
	if t == nil || t.DB == nil {
		return export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}
	_, err := t.DB.NewCreateTable().Model((*recordModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Record inserts a render record.
func (t *Tracker) Record(ctx context.Context, record export.RenderRecord) (string, error) {
	if t == nil || t.DB == nil {
		return "", export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}
	if record.ID == "" {
		record.ID = t.nextID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}

	model := modelFromRecord(record)
	if _, err := t.DB.NewInsert().Model(&model).Exec(ctx); err != nil {
		return "", err
	}
	return record.ID, nil
}

// Status returns a record by ID.
func (t *Tracker) Status(ctx context.Context, id string) (export.RenderRecord, error) {
	if t == nil || t.DB == nil {
		return export.RenderRecord{}, export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}
	if id == "" {
		return export.RenderRecord{}, export.NewError(export.KindValidation, "render ID is required", nil)
	}

	model := new(recordModel)
	err := t.DB.NewSelect().Model(model).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.RenderRecord{}, export.NewError(export.KindNotFound, fmt.Sprintf("render %q not found", id), nil)
		}
		return export.RenderRecord{}, err
	}
	return model.toRecord(), nil
}

// List returns records matching a filter, newest first.
func (t *Tracker) List(ctx context.Context, filter export.RenderFilter) ([]export.RenderRecord, error) {
	if t == nil || t.DB == nil {
		return nil, export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}

	models := make([]recordModel, 0)
	query := t.DB.NewSelect().Model(&models)
	if filter.Format != "" {
		query = query.Where("format = ?", string(export.NormalizeFormat(filter.Format)))
	}
	if filter.State != "" {
		query = query.Where("state = ?", string(filter.State))
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}
	query = query.Order("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	records := make([]export.RenderRecord, 0, len(models))
	for _, model := range models {
		records = append(records, model.toRecord())
	}
	return records, nil
}

// Delete removes a record from the tracker.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	if t == nil || t.DB == nil {
		return export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}
	if id == "" {
		return export.NewError(export.KindValidation, "render ID is required", nil)
	}

	res, err := t.DB.NewDelete().Model((*recordModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return export.NewError(export.KindNotFound, fmt.Sprintf("render %q not found", id), nil)
	}
	return nil
}

type recordModel struct {
	bun.BaseModel `bun:"table:render_records,alias:render_records"`

	ID         string    `bun:",pk"`
	Format     string    `bun:",notnull"`
	Width      int       `bun:"width"`
	Height     int       `bun:"height"`
	Scale      float64   `bun:"scale"`
	Bytes      int64     `bun:"bytes"`
	DurationNS int64     `bun:"duration_ns"`
	State      string    `bun:",notnull"`
	ErrorKind  string    `bun:"error_kind"`
	Error      string    `bun:"error"`
	Path       string    `bun:"path"`
	CreatedAt  time.Time `bun:"created_at"`
}

func modelFromRecord(record export.RenderRecord) recordModel {
	return recordModel{
		ID:         record.ID,
		Format:     string(record.Format),
		Width:      record.Width,
		Height:     record.Height,
		Scale:      record.Scale,
		Bytes:      record.Bytes,
		DurationNS: int64(record.Duration),
		State:      string(record.State),
		ErrorKind:  string(record.ErrorKind),
		Error:      record.Error,
		Path:       record.Path,
		CreatedAt:  record.CreatedAt,
	}
}

func (m recordModel) toRecord() export.RenderRecord {
	return export.RenderRecord{
		ID:        m.ID,
		Format:    export.Format(m.Format),
		Width:     m.Width,
		Height:    m.Height,
		Scale:     m.Scale,
		Bytes:     m.Bytes,
		Duration:  time.Duration(m.DurationNS),
		State:     export.RenderState(m.State),
		ErrorKind: export.ErrorKind(m.ErrorKind),
		Error:     m.Error,
		Path:      m.Path,
		CreatedAt: m.CreatedAt,
	}
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tracker) nextID() string {
	if t.IDGenerator != nil {
		return t.IDGenerator()
	}
	return uuid.NewString()
}
