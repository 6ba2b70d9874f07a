package export

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"
)

// Format is the static image output format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWEBP Format = "webp"
	FormatSVG  Format = "svg"
	FormatPDF  Format = "pdf"
)

// ExportRequest describes a single export call. Plot is passed through to the
// browser runtime untouched.
type ExportRequest struct {
	Format Format
	Width  int
	Height int
	Scale  float64
	Plot   json.RawMessage
}

// Result holds a decoded payload. SVG exports carry Text, every other format
// carries Data.
type Result struct {
	Format Format
	Data   []byte
	Text   string
}

// IsText reports whether the result holds text.
func (r Result) IsText() bool {
	return IsTextFormat(r.Format)
}

// Bytes returns the raw result bytes; text results are returned as UTF-8.
func (r Result) Bytes() []byte {
	if r.IsText() {
		return []byte(r.Text)
	}
	return r.Data
}

// String returns text for SVG results and standard base64 for binary results.
func (r Result) String() string {
	if r.IsText() {
		return r.Text
	}
	return base64.StdEncoding.EncodeToString(r.Data)
}

// Size returns the payload size in bytes.
func (r Result) Size() int64 {
	if r.IsText() {
		return int64(len(r.Text))
	}
	return int64(len(r.Data))
}

// ProcessState is the lifecycle state of a driver process handle.
type ProcessState string

const (
	ProcessNotStarted ProcessState = "not_started"
	ProcessRunning    ProcessState = "running"
	ProcessStopped    ProcessState = "stopped"
)

// DriverHandle describes a running (or once running) browser driver endpoint.
type DriverHandle interface {
	Port() int
	BaseURL() string
	Owned() bool
	State() ProcessState
}

// DriverManager resolves and releases driver endpoints.
type DriverManager interface {
	Acquire(ctx context.Context, port int, spawn bool) (DriverHandle, error)
	Release(ctx context.Context, handle DriverHandle) error
}

// Session is a remote browser context. ExecuteAsync follows the WebDriver
// execute-async contract: the script receives args followed by a completion
// callback and the value passed to the callback is returned as raw JSON.
type Session interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	ExecuteAsync(ctx context.Context, script string, args []any) (json.RawMessage, error)
	SetScriptTimeout(ctx context.Context, timeout time.Duration) error
	Close(ctx context.Context) error
}

// SessionConnector opens browser sessions.
type SessionConnector interface {
	Connect(ctx context.Context, baseURL string, caps Capabilities) (Session, error)
}

// Logger provides logging hooks. logrus loggers and entries satisfy it.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
