package command

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-static-export/export"
)

// RenderPlot renders a plot and returns the decoded result.
type RenderPlot struct {
	Request export.ExportRequest
	Result  *export.Result
}

func (RenderPlot) Type() string { return "plot:render" }

func (msg RenderPlot) Validate() error {
	if err := msg.Request.Validate(); err != nil {
		return export.AsGoError(err).WithTextCode("RENDER_REQUEST_INVALID")
	}
	return nil
}

// WritePlot renders a plot into a file.
type WritePlot struct {
	Request export.ExportRequest
	Path    string
	Result  *string
}

func (WritePlot) Type() string { return "plot:write" }

func (msg WritePlot) Validate() error {
	if strings.TrimSpace(msg.Path) == "" {
		return errors.New("output path is required", errors.CategoryValidation).
			WithTextCode("OUTPUT_PATH_REQUIRED")
	}
	if err := msg.Request.Validate(); err != nil {
		return export.AsGoError(err).WithTextCode("RENDER_REQUEST_INVALID")
	}
	return nil
}

// ResetSession drops the current browser session.
type ResetSession struct{}

func (ResetSession) Type() string { return "plot:reset-session" }

func (ResetSession) Validate() error { return nil }
