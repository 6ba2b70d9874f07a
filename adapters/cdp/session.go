package exportcdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/goliatone/go-static-export/export"
)

// Connector opens sessions over the Chrome DevTools Protocol. A ws:// base URL
// attaches to a running browser; anything else launches a local browser.
type Connector struct {
	Logger export.Logger
}

var _ export.SessionConnector = (*Connector)(nil)

// Connect starts or attaches to a browser and opens one tab.
func (c *Connector) Connect(ctx context.Context, baseURL string, caps export.Capabilities) (export.Session, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, sessionError("start browser failed", ctx.Err())
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if strings.HasPrefix(baseURL, "ws://") || strings.HasPrefix(baseURL, "wss://") {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), baseURL)
	} else {
		options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if caps.Binary != "" {
			options = append(options, chromedp.ExecPath(caps.Binary))
		}
		options = append(options, allocatorOptionsFromArgs(caps.Args)...)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), options...)
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		logger:        c.logger(),
	}
	if err := chromedp.Run(browserCtx); err != nil {
		s.release()
		return nil, sessionError("start browser failed", err)
	}
	if target := chromedp.FromContext(browserCtx).Target; target != nil {
		s.id = string(target.TargetID)
	}
	s.logger.Debugf("cdp session %s opened", s.id)
	return s, nil
}

func (c *Connector) logger() export.Logger {
	if c.Logger == nil {
		return export.NopLogger{}
	}
	return c.Logger
}

// Session is one browser tab driven over CDP.
type Session struct {
	id            string
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	logger        export.Logger

	mu            sync.Mutex
	scriptTimeout time.Duration

	closeOnce sync.Once
}

var _ export.Session = (*Session)(nil)

// ID returns the target id of the tab.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads target into the tab.
func (s *Session) Navigate(ctx context.Context, target string) error {
	if err := s.run(ctx, 0, chromedp.Navigate(target)); err != nil {
		return sessionError("navigate failed", err)
	}
	return nil
}

// ExecuteAsync runs script with args followed by a completion callback, the
// same contract as WebDriver execute-async.
func (s *Session) ExecuteAsync(ctx context.Context, script string, args []any) (json.RawMessage, error) {
	expr, err := asyncExpression(script, args)
	if err != nil {
		return nil, export.NewError(export.KindValidation, "encode script arguments", err)
	}

	var raw []byte
	action := chromedp.Evaluate(expr, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	})
	if err := s.run(ctx, s.timeout(), action); err != nil {
		return nil, sessionError("execute async script failed", err)
	}
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(raw), nil
}

// SetScriptTimeout bounds later ExecuteAsync calls.
func (s *Session) SetScriptTimeout(ctx context.Context, timeout time.Duration) error {
	_ = ctx
	s.mu.Lock()
	s.scriptTimeout = timeout
	s.mu.Unlock()
	return nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	_ = ctx
	s.closeOnce.Do(func() {
		s.release()
		s.logger.Debugf("cdp session %s closed", s.id)
	})
	return nil
}

func (s *Session) release() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

func (s *Session) timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scriptTimeout
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	execCtx, cancelReq := context.WithCancel(s.browserCtx)
	defer cancelReq()
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancelReq()
			case <-execCtx.Done():
			}
		}()
	}
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		execCtx, cancelTimeout = context.WithTimeout(execCtx, timeout)
		defer cancelTimeout()
	}

	err := chromedp.Run(execCtx, actions...)
	if err != nil && ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func asyncExpression(script string, args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"new Promise(function(resolve){(function(){%s\n}).apply(null, %s.concat([resolve]));})",
		script, encoded,
	), nil
}

func allocatorOptionsFromArgs(args []string) []chromedp.ExecAllocatorOption {
	options := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			options = append(options, chromedp.Flag(name, value))
			continue
		}
		options = append(options, chromedp.Flag(arg, true))
	}
	return options
}

func sessionError(msg string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return export.NewError(export.KindTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return export.NewError(export.KindCanceled, msg, err)
	}
	return export.NewError(export.KindSession, msg, err)
}
