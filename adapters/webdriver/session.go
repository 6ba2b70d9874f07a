package exportwebdriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-static-export/export"
)

// Connector opens WebDriver sessions.
type Connector struct {
	HTTPClient *http.Client
	Logger     export.Logger
}

var _ export.SessionConnector = (*Connector)(nil)

// NewConnector returns a connector using the default HTTP client.
func NewConnector(logger export.Logger) *Connector {
	return &Connector{Logger: logger}
}

// Connect performs the new session handshake. It is never retried.
func (c *Connector) Connect(ctx context.Context, baseURL string, caps export.Capabilities) (export.Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := &Client{BaseURL: baseURL, HTTPClient: c.HTTPClient}

	doc, err := client.Do(ctx, http.MethodPost, "/session", caps.W3C())
	if err != nil {
		return nil, sessionError(fmt.Sprintf("new %s session at %s failed", caps.BrowserName, baseURL), err)
	}

	id := doc.Get("value.sessionId").String()
	if id == "" {
		id = doc.Get("sessionId").String()
	}
	if id == "" {
		return nil, export.NewError(export.KindSession, "new session response carries no session id", nil)
	}

	c.logger().Debugf("webdriver session %s opened at %s", id, baseURL)
	return &Session{id: id, client: client, logger: c.logger()}, nil
}

func (c *Connector) logger() export.Logger {
	if c.Logger == nil {
		return export.NopLogger{}
	}
	return c.Logger
}

// Session is a WebDriver session bound to one browser context.
type Session struct {
	id     string
	client *Client
	logger export.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ export.Session = (*Session)(nil)

// ID returns the remote session id.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads target into the session.
func (s *Session) Navigate(ctx context.Context, target string) error {
	if _, err := s.client.Do(ctx, http.MethodPost, s.path("/url"), map[string]any{"url": target}); err != nil {
		return sessionError("navigate failed", err)
	}
	return nil
}

// ExecuteAsync runs script with args followed by the completion callback.
func (s *Session) ExecuteAsync(ctx context.Context, script string, args []any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	doc, err := s.client.Do(ctx, http.MethodPost, s.path("/execute/async"), map[string]any{
		"script": script,
		"args":   args,
	})
	if err != nil {
		return nil, sessionError("execute async script failed", err)
	}

	value := doc.Get("value")
	if !value.Exists() {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(value.Raw), nil
}

// SetScriptTimeout sets the execute-async timeout of the session.
func (s *Session) SetScriptTimeout(ctx context.Context, timeout time.Duration) error {
	body := map[string]any{"script": timeout.Milliseconds()}
	if _, err := s.client.Do(ctx, http.MethodPost, s.path("/timeouts"), body); err != nil {
		return sessionError("set script timeout failed", err)
	}
	return nil
}

// Close deletes the remote session. Only the first call reaches the driver.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if _, err := s.client.Do(ctx, http.MethodDelete, s.path(""), nil); err != nil {
			s.closeErr = sessionError("delete session failed", err)
			return
		}
		s.logger.Debugf("webdriver session %s closed", s.id)
	})
	return s.closeErr
}

func (s *Session) path(suffix string) string {
	return "/session/" + url.PathEscape(s.id) + suffix
}

// IsInvalidSession reports whether err means the driver no longer knows the
// session.
func IsInvalidSession(err error) bool {
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		return false
	}
	return strings.EqualFold(protoErr.Code, "invalid session id")
}

func sessionError(msg string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return export.NewError(export.KindTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return export.NewError(export.KindCanceled, msg, err)
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) && protoErr.Code == "script timeout" {
		return export.NewError(export.KindTimeout, msg, err)
	}
	return export.NewError(export.KindSession, msg, err)
}
