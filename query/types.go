package query

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-static-export/export"
)

// RenderStatus requests a single render record.
type RenderStatus struct {
	RecordID string
}

func (RenderStatus) Type() string { return "plot:status" }

func (msg RenderStatus) Validate() error {
	if strings.TrimSpace(msg.RecordID) == "" {
		return errors.New("record ID is required", errors.CategoryValidation).
			WithTextCode("RECORD_ID_REQUIRED")
	}
	return nil
}

// RenderHistory requests render history.
type RenderHistory struct {
	Filter export.RenderFilter
}

func (RenderHistory) Type() string { return "plot:history" }

func (msg RenderHistory) Validate() error {
	if msg.Filter.Limit < 0 {
		return errors.New("limit must not be negative", errors.CategoryValidation).
			WithTextCode("LIMIT_INVALID")
	}
	if msg.Filter.Format != "" && !export.IsSupportedFormat(msg.Filter.Format) {
		return errors.New("unsupported format filter", errors.CategoryValidation).
			WithTextCode("FORMAT_INVALID")
	}
	if !msg.Filter.Since.IsZero() && !msg.Filter.Until.IsZero() && msg.Filter.Until.Before(msg.Filter.Since) {
		return errors.New("until must not be before since", errors.CategoryValidation).
			WithTextCode("RANGE_INVALID")
	}
	return nil
}
