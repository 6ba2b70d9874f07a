package command

import (
	"context"
	stderrors "errors"
	"testing"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-static-export/export"
)

type stubExporter struct {
	export  func(ctx context.Context, req export.ExportRequest) (export.Result, error)
	write   func(ctx context.Context, req export.ExportRequest, path string) (string, error)
	resets  int
	written []string
}

func (s *stubExporter) Export(ctx context.Context, req export.ExportRequest) (export.Result, error) {
	if s.export != nil {
		return s.export(ctx, req)
	}
	return export.Result{Format: req.Format, Data: []byte("png")}, nil
}

func (s *stubExporter) WriteToFile(ctx context.Context, req export.ExportRequest, path string) (string, error) {
	if s.write != nil {
		return s.write(ctx, req, path)
	}
	target := export.OutputPath(path, req.Format)
	s.written = append(s.written, target)
	return target, nil
}

func (s *stubExporter) ResetSession(ctx context.Context) error {
	_ = ctx
	s.resets++
	return nil
}

func validRequest() export.ExportRequest {
	return export.ExportRequest{
		Format: export.FormatPNG,
		Width:  700,
		Height: 500,
		Scale:  1,
		Plot:   []byte(`{"data":[]}`),
	}
}

func TestRenderPlot_Validate(t *testing.T) {
	if err := (RenderPlot{Request: validRequest()}).Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	req := validRequest()
	req.Format = "gif"
	err := RenderPlot{Request: req}.Validate()
	var ge *errors.Error
	if !stderrors.As(err, &ge) {
		t.Fatalf("expected go-errors error, got %T", err)
	}
	if ge.Category != errors.CategoryValidation || ge.TextCode != "RENDER_REQUEST_INVALID" {
		t.Fatalf("unexpected error %+v", ge)
	}
}

func TestWritePlot_ValidateRequiresPath(t *testing.T) {
	err := WritePlot{Request: validRequest()}.Validate()
	var ge *errors.Error
	if !stderrors.As(err, &ge) || ge.TextCode != "OUTPUT_PATH_REQUIRED" {
		t.Fatalf("expected OUTPUT_PATH_REQUIRED, got %v", err)
	}
}

func TestRenderPlotHandler_StoresResults(t *testing.T) {
	handler := NewRenderPlotHandler(&stubExporter{})

	var got export.Result
	result := gcmd.NewResult[export.Result]()
	ctx := gcmd.ContextWithResult(context.Background(), result)

	if err := handler.Execute(ctx, RenderPlot{Request: validRequest(), Result: &got}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(got.Data) != "png" {
		t.Fatalf("expected result pointer to be filled, got %+v", got)
	}
	stored, ok := result.Load()
	if !ok {
		t.Fatalf("expected context result")
	}
	if stored.Format != export.FormatPNG {
		t.Fatalf("unexpected stored result %+v", stored)
	}
}

func TestRenderPlotHandler_MapsErrors(t *testing.T) {
	handler := NewRenderPlotHandler(&stubExporter{
		export: func(ctx context.Context, req export.ExportRequest) (export.Result, error) {
			return export.Result{}, export.NewError(export.KindDriverUnavailable, "driver not reachable", nil)
		},
	})

	err := handler.Execute(context.Background(), RenderPlot{Request: validRequest()})
	var ge *errors.Error
	if !stderrors.As(err, &ge) {
		t.Fatalf("expected go-errors error, got %T", err)
	}
	if ge.TextCode != "driver_unavailable" || ge.Category != errors.CategoryExternal {
		t.Fatalf("unexpected mapping %+v", ge)
	}
}

func TestRenderPlotHandler_RequiresRenderer(t *testing.T) {
	var handler *RenderPlotHandler
	if err := handler.Execute(context.Background(), RenderPlot{}); err == nil {
		t.Fatalf("expected error for nil handler")
	}
}

func TestWritePlotHandler_StoresPath(t *testing.T) {
	stub := &stubExporter{}
	handler := NewWritePlotHandler(stub)

	var got string
	result := gcmd.NewResult[string]()
	ctx := gcmd.ContextWithResult(context.Background(), result)

	req := validRequest()
	req.Format = export.FormatSVG
	if err := handler.Execute(ctx, WritePlot{Request: req, Path: "out/chart.png", Result: &got}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "out/chart.svg" {
		t.Fatalf("unexpected path %q", got)
	}
	if stored, ok := result.Load(); !ok || stored != got {
		t.Fatalf("expected context result %q, got %q", got, stored)
	}
}

func TestResetSessionHandler(t *testing.T) {
	stub := &stubExporter{}
	handler := NewResetSessionHandler(stub)

	if err := handler.Execute(context.Background(), ResetSession{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cli, ok := handler.CLIHandler().(*resetCLI)
	if !ok {
		t.Fatalf("unexpected cli handler %T", handler.CLIHandler())
	}
	if err := cli.Run(); err != nil {
		t.Fatalf("cli run: %v", err)
	}
	if stub.resets != 2 {
		t.Fatalf("expected 2 resets, got %d", stub.resets)
	}
	if opts := handler.CLIOptions(); len(opts.Path) != 1 || opts.Path[0] != "plots-reset-session" {
		t.Fatalf("unexpected cli options %+v", opts)
	}
}

func TestMessageTypes(t *testing.T) {
	if (RenderPlot{}).Type() != "plot:render" || (WritePlot{}).Type() != "plot:write" || (ResetSession{}).Type() != "plot:reset-session" {
		t.Fatalf("unexpected message types")
	}
}
