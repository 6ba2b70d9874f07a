package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	exporthttp "github.com/goliatone/go-static-export/adapters/http"
	"github.com/goliatone/go-static-export/export"
	"github.com/sirupsen/logrus"
)

func testState(env map[string]string) (*globalState, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &globalState{
		stdout: stdout,
		stderr: io.Discard,
		lookupEnv: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
		logger: logger,
	}, stdout
}

type driverStub struct {
	mu       sync.Mutex
	sessions int
	deletes  int
}

func (s *driverStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/status":
		_, _ = w.Write([]byte(`{"value":{"ready":true}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/session":
		s.mu.Lock()
		s.sessions++
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"value":{"sessionId":"cli-1"}}`))
	case r.Method == http.MethodDelete:
		s.mu.Lock()
		s.deletes++
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"value":null}`))
	case strings.HasSuffix(r.URL.Path, "/execute/async"):
		var body struct {
			Args []json.RawMessage `json:"args"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		var format string
		if len(body.Args) > 1 {
			_ = json.Unmarshal(body.Args[1], &format)
		}
		payload := "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString([]byte(format))
		if format == string(export.FormatSVG) {
			payload = "data:image/svg+xml," + url.PathEscape(`<svg></svg>`)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"value": payload})
	default:
		_, _ = w.Write([]byte(`{"value":null}`))
	}
}

func writePlotFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "plot.json")
	if err := os.WriteFile(path, []byte(`{"data":[{"y":[1,3,2]}]}`), 0o644); err != nil {
		t.Fatalf("write plot: %v", err)
	}
	return path
}

func TestConfig_FlagsOverrideEnv(t *testing.T) {
	gs, _ := testState(map[string]string{
		"PLOTEXPORT_BROWSER":     "firefox",
		"PLOTEXPORT_DRIVER_PORT": "4444",
		"PLOTEXPORT_OFFLINE":     "true",
	})
	root := newRootCmd(gs)
	renderCmd, _, err := root.Find([]string{"render"})
	if err != nil {
		t.Fatalf("find render: %v", err)
	}
	if err := renderCmd.ParseFlags([]string{"--driver-port", "9515", "--no-spawn", "--bundle", "/tmp/plotly.js"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := gs.config(renderCmd)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Browser != "firefox" {
		t.Fatalf("expected browser from env, got %q", cfg.Browser)
	}
	if cfg.DriverPort != 9515 || cfg.AutoSpawn {
		t.Fatalf("expected flags to win, got port=%d spawn=%v", cfg.DriverPort, cfg.AutoSpawn)
	}
	if !cfg.Offline || len(cfg.OfflineBundles) != 1 {
		t.Fatalf("unexpected offline settings %+v", cfg)
	}
}

func TestConfig_InvalidBrowser(t *testing.T) {
	gs, _ := testState(nil)
	root := newRootCmd(gs)
	renderCmd, _, _ := root.Find([]string{"render"})
	if err := renderCmd.ParseFlags([]string{"--browser", "lynx"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := gs.config(renderCmd); !export.IsKind(err, export.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRender_WritesFileAndHistory(t *testing.T) {
	stub := &driverStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	dir := t.TempDir()
	plotPath := writePlotFile(t, dir)
	dbPath := filepath.Join(dir, "history.db")

	gs, stdout := testState(nil)
	root := newRootCmd(gs)
	root.SetArgs([]string{
		"render",
		"--in", plotPath,
		"--out", filepath.Join(dir, "chart.png"),
		"--format", "svg",
		"--driver-url", srv.URL,
		"--no-spawn",
		"--history-db", dbPath,
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}

	written := strings.TrimSpace(stdout.String())
	if written != filepath.Join(dir, "chart.svg") {
		t.Fatalf("unexpected output path %q", written)
	}
	content, err := os.ReadFile(written)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(content) != "<svg></svg>" {
		t.Fatalf("unexpected svg %q", content)
	}
	stub.mu.Lock()
	sessions, deletes := stub.sessions, stub.deletes
	stub.mu.Unlock()
	if sessions != 1 || deletes != 1 {
		t.Fatalf("expected one session opened and closed, got %d/%d", sessions, deletes)
	}

	gs, stdout = testState(nil)
	root = newRootCmd(gs)
	root.SetArgs([]string{"history", "--history-db", dbPath})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("history: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "svg") || !strings.Contains(lines[1], "completed") {
		t.Fatalf("unexpected history output:\n%s", stdout.String())
	}
}

func TestRender_ToStdout(t *testing.T) {
	srv := httptest.NewServer(&driverStub{})
	defer srv.Close()

	gs, stdout := testState(nil)
	root := newRootCmd(gs)
	root.SetIn(strings.NewReader(`{"data":[]}`))
	root.SetArgs([]string{"render", "--format", "webp", "--driver-url", srv.URL, "--no-spawn"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}
	if stdout.String() != "webp" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}

func TestRender_RejectsBadInputBeforeConnecting(t *testing.T) {
	gs, _ := testState(nil)
	root := newRootCmd(gs)
	root.SetIn(strings.NewReader(`not json`))
	root.SetArgs([]string{"render", "--no-spawn", "--driver-port", "1"})
	if err := root.ExecuteContext(context.Background()); !export.IsKind(err, export.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	root = newRootCmd(gs)
	root.SetIn(strings.NewReader(`{}`))
	root.SetArgs([]string{"render", "--format", "gif", "--no-spawn", "--driver-port", "1"})
	if err := root.ExecuteContext(context.Background()); !export.IsKind(err, export.KindValidation) {
		t.Fatalf("expected validation error for format, got %v", err)
	}
}

func TestBatch_RendersFiles(t *testing.T) {
	srv := httptest.NewServer(&driverStub{})
	defer srv.Close()

	dir := t.TempDir()
	batchPath := filepath.Join(dir, "batch.json")
	batch := `[
		{"format":"png","plot":{"data":[]},"out":"` + filepath.ToSlash(filepath.Join(dir, "a")) + `"},
		{"format":"jpeg","plot":{"data":[]},"out":"` + filepath.ToSlash(filepath.Join(dir, "b")) + `"}
	]`
	if err := os.WriteFile(batchPath, []byte(batch), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	gs, stdout := testState(nil)
	root := newRootCmd(gs)
	root.SetArgs([]string{"batch", "--from", batchPath, "--driver-url", srv.URL, "--no-spawn"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !strings.Contains(stdout.String(), "rendered 2 of 2") {
		t.Fatalf("unexpected output %q", stdout.String())
	}
	for _, name := range []string{"a.png", "b.jpeg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
}

func TestHistory_RequiresDatabase(t *testing.T) {
	gs, _ := testState(nil)
	root := newRootCmd(gs)
	root.SetArgs([]string{"history"})
	if err := root.ExecuteContext(context.Background()); !export.IsKind(err, export.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type stubRenderer struct{}

func (stubRenderer) Export(ctx context.Context, req export.ExportRequest) (export.Result, error) {
	_ = ctx
	return export.Result{Format: req.Format, Data: []byte("png-bytes")}, nil
}

func TestServer_Routes(t *testing.T) {
	handler := exporthttp.NewHandler(stubRenderer{}, exporthttp.Config{BasePath: "/render"})
	app := newServer(handler, "/render/", io.Discard)

	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(`{"format":"png","plot":{"data":[]}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("render request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "png-bytes" {
		t.Fatalf("unexpected render response %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/render/history", nil))
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501 without tracker, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
}
