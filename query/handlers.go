package query

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-static-export/export"
)

// RenderStatusHandler returns a single render record.
type RenderStatusHandler struct {
	Tracker export.Tracker
}

func NewRenderStatusHandler(tracker export.Tracker) *RenderStatusHandler {
	return &RenderStatusHandler{Tracker: tracker}
}

func (h *RenderStatusHandler) Query(ctx context.Context, msg RenderStatus) (export.RenderRecord, error) {
	if h == nil || h.Tracker == nil {
		return export.RenderRecord{}, errors.New("render tracker is required", errors.CategoryInternal).
			WithTextCode("TRACKER_REQUIRED")
	}
	record, err := h.Tracker.Status(ctx, msg.RecordID)
	if err != nil {
		return export.RenderRecord{}, export.AsGoError(err)
	}
	return record, nil
}

// RenderHistoryHandler returns render history, newest first.
type RenderHistoryHandler struct {
	Tracker export.Tracker
}

func NewRenderHistoryHandler(tracker export.Tracker) *RenderHistoryHandler {
	return &RenderHistoryHandler{Tracker: tracker}
}

func (h *RenderHistoryHandler) Query(ctx context.Context, msg RenderHistory) ([]export.RenderRecord, error) {
	if h == nil || h.Tracker == nil {
		return nil, errors.New("render tracker is required", errors.CategoryInternal).
			WithTextCode("TRACKER_REQUIRED")
	}
	records, err := h.Tracker.List(ctx, msg.Filter)
	if err != nil {
		return nil, export.AsGoError(err)
	}
	return records, nil
}
