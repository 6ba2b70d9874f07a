package command

import (
	"context"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-static-export/export"
)

// Renderer renders plots.
type Renderer interface {
	Export(ctx context.Context, req export.ExportRequest) (export.Result, error)
}

// FileWriter renders plots into files.
type FileWriter interface {
	WriteToFile(ctx context.Context, req export.ExportRequest, path string) (string, error)
}

// SessionResetter drops browser sessions.
type SessionResetter interface {
	ResetSession(ctx context.Context) error
}

// RenderPlotHandler handles render commands.
type RenderPlotHandler struct {
	Renderer Renderer
}

func NewRenderPlotHandler(renderer Renderer) *RenderPlotHandler {
	return &RenderPlotHandler{Renderer: renderer}
}

func (h *RenderPlotHandler) Execute(ctx context.Context, msg RenderPlot) error {
	if h == nil || h.Renderer == nil {
		return errors.New("renderer is required", errors.CategoryInternal).
			WithTextCode("RENDERER_REQUIRED")
	}
	result, err := h.Renderer.Export(ctx, msg.Request)
	if err != nil {
		return export.AsGoError(err)
	}
	if msg.Result != nil {
		*msg.Result = result
	}
	if res := gcmd.ResultFromContext[export.Result](ctx); res != nil {
		res.Store(result)
	}
	return nil
}

// WritePlotHandler handles file render commands.
type WritePlotHandler struct {
	Writer FileWriter
}

func NewWritePlotHandler(writer FileWriter) *WritePlotHandler {
	return &WritePlotHandler{Writer: writer}
}

func (h *WritePlotHandler) Execute(ctx context.Context, msg WritePlot) error {
	if h == nil || h.Writer == nil {
		return errors.New("file writer is required", errors.CategoryInternal).
			WithTextCode("WRITER_REQUIRED")
	}
	path, err := h.Writer.WriteToFile(ctx, msg.Request, msg.Path)
	if err != nil {
		return export.AsGoError(err)
	}
	if msg.Result != nil {
		*msg.Result = path
	}
	if res := gcmd.ResultFromContext[string](ctx); res != nil {
		res.Store(path)
	}
	return nil
}

// ResetSessionHandler drops the exporter session so the next render reconnects.
type ResetSessionHandler struct {
	Resetter SessionResetter
}

func NewResetSessionHandler(resetter SessionResetter) *ResetSessionHandler {
	return &ResetSessionHandler{Resetter: resetter}
}

func (h *ResetSessionHandler) Execute(ctx context.Context, msg ResetSession) error {
	_ = msg
	if h == nil || h.Resetter == nil {
		return errors.New("session resetter is required", errors.CategoryInternal).
			WithTextCode("RESETTER_REQUIRED")
	}
	if err := h.Resetter.ResetSession(ctx); err != nil {
		return export.AsGoError(err)
	}
	return nil
}

// CLIHandler exposes session reset via CLI.
func (h *ResetSessionHandler) CLIHandler() any {
	return &resetCLI{handler: h}
}

// CLIOptions describes session reset CLI metadata.
func (h *ResetSessionHandler) CLIOptions() gcmd.CLIConfig {
	return gcmd.CLIConfig{
		Path:        []string{"plots-reset-session"},
		Description: "Close the browser session used for plot exports",
		Group:       "plots",
	}
}

type resetCLI struct {
	handler *ResetSessionHandler
}

func (c *resetCLI) Run() error {
	if c == nil || c.handler == nil {
		return errors.New("reset handler is required", errors.CategoryInternal).
			WithTextCode("RESETTER_REQUIRED")
	}
	return c.handler.Execute(context.Background(), ResetSession{})
}
