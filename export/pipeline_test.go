package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type scriptCall struct {
	script string
	args   []any
}

type fakeSession struct {
	navigated   []string
	calls       []scriptCall
	results     []any
	navigateErr error
	executeErr  error
}

func (s *fakeSession) ID() string { return "fake" }

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	_ = ctx
	s.navigated = append(s.navigated, url)
	return s.navigateErr
}

func (s *fakeSession) ExecuteAsync(ctx context.Context, script string, args []any) (json.RawMessage, error) {
	_ = ctx
	s.calls = append(s.calls, scriptCall{script: script, args: args})
	if s.executeErr != nil {
		return nil, s.executeErr
	}
	if len(s.results) == 0 {
		return json.RawMessage(`null`), nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return json.Marshal(next)
}

func (s *fakeSession) SetScriptTimeout(ctx context.Context, timeout time.Duration) error {
	_ = ctx
	_ = timeout
	return nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	_ = ctx
	return nil
}

func testRequest(t *testing.T, format Format) ExportRequest {
	t.Helper()
	req, err := NewRequest(format, map[string]any{"data": []any{map[string]any{"y": []int{1, 2, 3}}}}, 640, 480, 1)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func testDocument() *HostDocument {
	return &HostDocument{URL: "data:text/html;charset=utf-8,%3Chtml%3E"}
}

func TestPipeline_ExportPNG(t *testing.T) {
	session := &fakeSession{results: []any{"data:image/png;base64,AAAA"}}
	pipeline := &Pipeline{}

	result, err := pipeline.Export(context.Background(), session, testDocument(), testRequest(t, FormatPNG))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(result.Data) != 3 {
		t.Fatalf("expected 3 decoded bytes, got %d", len(result.Data))
	}
	if len(session.navigated) != 1 || session.navigated[0] != testDocument().URL {
		t.Fatalf("expected one navigation to host document, got %v", session.navigated)
	}
	if len(session.calls) != 1 {
		t.Fatalf("expected one script call, got %d", len(session.calls))
	}
	call := session.calls[0]
	if call.script != RenderScript {
		t.Fatalf("expected render script")
	}
	if len(call.args) != 5 || call.args[1] != "png" || call.args[2] != 640 || call.args[3] != 480 || call.args[4] != 1.0 {
		t.Fatalf("unexpected script args %v", call.args)
	}
}

func TestPipeline_PDFRendersSVGFirst(t *testing.T) {
	svg := "data:image/svg+xml,%3Csvg%3E%3C/svg%3E"
	session := &fakeSession{results: []any{svg, "data:application/pdf;filename=generated.pdf;base64,JVBERg=="}}
	pipeline := &Pipeline{SettleTimeout: 250 * time.Millisecond}

	result, err := pipeline.Export(context.Background(), session, testDocument(), testRequest(t, FormatPDF))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if string(result.Data) != "%PDF" {
		t.Fatalf("unexpected pdf bytes %q", result.Data)
	}
	if len(session.calls) != 2 {
		t.Fatalf("expected two script calls, got %d", len(session.calls))
	}
	if session.calls[0].args[1] != "svg" {
		t.Fatalf("expected svg stage first, got %v", session.calls[0].args[1])
	}
	second := session.calls[1]
	if second.script != PDFScript {
		t.Fatalf("expected pdf script in second stage")
	}
	if second.args[0] != svg || second.args[1] != 640 || second.args[2] != 480 || second.args[3] != int64(250) {
		t.Fatalf("unexpected pdf args %v", second.args)
	}
}

func TestPipeline_PDFStopsOnSVGError(t *testing.T) {
	session := &fakeSession{results: []any{"ERROR:svg failed"}}
	pipeline := &Pipeline{}

	_, err := pipeline.Export(context.Background(), session, testDocument(), testRequest(t, FormatPDF))
	if KindFromError(err) != KindRender {
		t.Fatalf("expected render error, got %v", err)
	}
	if len(session.calls) != 1 {
		t.Fatalf("expected pdf stage to be skipped, got %d calls", len(session.calls))
	}
}

func TestPipeline_ErrorSentinelEveryFormat(t *testing.T) {
	for _, format := range SupportedFormats() {
		session := &fakeSession{results: []any{"ERROR:boom"}}
		pipeline := &Pipeline{}
		_, err := pipeline.Export(context.Background(), session, testDocument(), testRequest(t, format))
		if KindFromError(err) != KindRender {
			t.Fatalf("%s: expected render error, got %v", format, err)
		}
		if !strings.Contains(err.Error(), "boom") {
			t.Fatalf("%s: expected message to contain boom, got %q", format, err.Error())
		}
	}
}

func TestPipeline_TransportFailureIsSessionError(t *testing.T) {
	session := &fakeSession{executeErr: errors.New("connection reset")}
	pipeline := &Pipeline{}

	_, err := pipeline.Export(context.Background(), session, testDocument(), testRequest(t, FormatPNG))
	if KindFromError(err) != KindSession {
		t.Fatalf("expected session error, got %v", err)
	}
}

func TestPipeline_NavigateFailureIsSessionError(t *testing.T) {
	session := &fakeSession{navigateErr: errors.New("no such window")}
	pipeline := &Pipeline{}

	_, err := pipeline.Export(context.Background(), session, testDocument(), testRequest(t, FormatSVG))
	if KindFromError(err) != KindSession {
		t.Fatalf("expected session error, got %v", err)
	}
	if len(session.calls) != 0 {
		t.Fatalf("expected no script execution after failed navigation")
	}
}

func TestPipeline_NonStringResultIsParseError(t *testing.T) {
	session := &fakeSession{results: []any{map[string]any{"unexpected": true}}}
	pipeline := &Pipeline{}

	_, err := pipeline.Export(context.Background(), session, testDocument(), testRequest(t, FormatPNG))
	if KindFromError(err) != KindParse {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestPipeline_InvalidRequestSkipsBrowser(t *testing.T) {
	session := &fakeSession{}
	pipeline := &Pipeline{}
	req := testRequest(t, FormatPNG)
	req.Width = 0

	_, err := pipeline.Export(context.Background(), session, testDocument(), req)
	if KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(session.navigated) != 0 {
		t.Fatalf("expected no navigation for invalid request")
	}
}

func TestAsyncInvocation_WrapsFunction(t *testing.T) {
	script := AsyncInvocation("async function (a) { return a; }")
	if !strings.Contains(script, "(async function (a) { return a; })") {
		t.Fatalf("expected function to be inlined, got %q", script)
	}
	if !strings.Contains(script, "arguments[arguments.length - 1]") {
		t.Fatalf("expected completion callback lookup")
	}
	if strings.Contains(RenderScript, "__EXPORT_FN__") || strings.Contains(PDFScript, "__EXPORT_FN__") {
		t.Fatalf("expected placeholders to be replaced")
	}
}
