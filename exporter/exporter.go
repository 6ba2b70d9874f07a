package exporter

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	exportcdp "github.com/goliatone/go-static-export/adapters/cdp"
	exportdriver "github.com/goliatone/go-static-export/adapters/driver"
	exportwebdriver "github.com/goliatone/go-static-export/adapters/webdriver"
	"github.com/goliatone/go-static-export/export"
	"github.com/sirupsen/logrus"
)

const (
	teardownTimeout   = 10 * time.Second
	pdfRuntimeMissing = "pdf runtime is not loaded"
)

// Builder assembles an Exporter.
type Builder struct {
	cfg          export.Config
	logger       export.Logger
	tracker      export.Tracker
	manager      export.DriverManager
	connector    export.SessionConnector
	driverOutput io.Writer
}

// NewBuilder returns a builder seeded with export.Defaults.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{cfg: export.Defaults()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Config returns the configuration the builder will use.
func (b *Builder) Config() export.Config {
	return b.cfg
}

// Build resolves the driver, prepares the host document and starts the
// worker. The session is opened on first export.
func (b *Builder) Build(ctx context.Context) (*Exporter, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}
	caps, err := cfg.Capabilities()
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger().WithField("component", "plotexport")
	}

	connector := b.connector
	if connector == nil {
		if cfg.Backend == export.BackendCDP {
			connector = &exportcdp.Connector{Logger: logger}
		} else {
			connector = exportwebdriver.NewConnector(logger)
		}
	}

	manager := b.manager
	if manager == nil && cfg.Backend != export.BackendCDP {
		manager = &exportdriver.Manager{
			Profile:      profile,
			Binary:       cfg.DriverPath,
			DriverURL:    cfg.DriverURL,
			ProbeTimeout: cfg.ProbeTimeout,
			StartTimeout: cfg.StartTimeout,
			Logger:       logger,
			Output:       b.driverOutput,
		}
	}

	e := &Exporter{
		cfg:       cfg,
		caps:      caps,
		manager:   manager,
		connector: connector,
		tracker:   b.tracker,
		logger:    logger,
		baseURL:   cfg.DriverURL,
		pipeline: &export.Pipeline{
			SettleTimeout: cfg.PDFSettleTimeout,
			Decode:        export.DecodeOptions{StrictMIME: cfg.StrictMIME, Logger: logger},
			Logger:        logger,
		},
	}

	if manager != nil {
		handle, err := manager.Acquire(ctx, cfg.EndpointPort(), cfg.AutoSpawn)
		if err != nil {
			return nil, err
		}
		e.handle = handle
		e.baseURL = handle.BaseURL()
	}

	doc, err := export.NewHostDocument(export.HostOptions{
		Offline:     cfg.Offline,
		Bundles:     cfg.OfflineBundles,
		RuntimeURLs: cfg.RuntimeURLs,
		Dir:         cfg.WorkDir,
	})
	if err != nil {
		e.releaseDriver()
		return nil, err
	}
	e.doc = doc

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.jobs = make(chan job)
	e.done = make(chan struct{})
	go e.run()

	return e, nil
}

// Exporter renders plots through one driver endpoint and one lazily opened
// session. Calls are executed one at a time by a single worker.
type Exporter struct {
	cfg       export.Config
	caps      export.Capabilities
	pipeline  *export.Pipeline
	manager   export.DriverManager
	connector export.SessionConnector
	handle    export.DriverHandle
	doc       *export.HostDocument
	tracker   export.Tracker
	logger    export.Logger
	baseURL   string

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	done   chan struct{}

	// session is only touched by the worker goroutine.
	session export.Session

	closeOnce sync.Once
}

type job struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// Config returns the resolved configuration.
func (e *Exporter) Config() export.Config {
	return e.cfg
}

// Driver returns the driver handle, nil for the cdp backend.
func (e *Exporter) Driver() export.DriverHandle {
	return e.handle
}

// Export renders req and returns the decoded result.
func (e *Exporter) Export(ctx context.Context, req export.ExportRequest) (export.Result, error) {
	started := time.Now()
	result, err := e.render(ctx, req)
	e.record(req, result, err, started, "")
	return result, err
}

// ToBytes renders req and returns raw bytes; SVG text is returned as UTF-8.
func (e *Exporter) ToBytes(ctx context.Context, req export.ExportRequest) ([]byte, error) {
	result, err := e.Export(ctx, req)
	if err != nil {
		return nil, err
	}
	return result.Bytes(), nil
}

// ToString renders req and returns SVG text, or base64 for binary formats.
func (e *Exporter) ToString(ctx context.Context, req export.ExportRequest) (string, error) {
	result, err := e.Export(ctx, req)
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// WriteToFile renders req into path with the format's canonical extension and
// returns the written path.
func (e *Exporter) WriteToFile(ctx context.Context, req export.ExportRequest, path string) (string, error) {
	started := time.Now()
	result, err := e.render(ctx, req)
	target := ""
	if err == nil {
		target, err = export.WriteFile(path, result)
	}
	e.record(req, result, err, started, target)
	if err != nil {
		return "", err
	}
	e.logger.Infof("wrote %s (%d bytes)", target, result.Size())
	return target, nil
}

// ResetSession closes the current session; the next export reconnects.
func (e *Exporter) ResetSession(ctx context.Context) error {
	return e.submit(ctx, func(ctx context.Context) error {
		e.closeSession(ctx)
		return nil
	})
}

// Close tears the exporter down: the session is closed and the driver is
// stopped only when this exporter started it. Failures are logged. Safe to call
// more than once.
func (e *Exporter) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		<-e.done
		e.releaseDriver()
		if err := e.doc.Cleanup(); err != nil {
			e.logger.Warnf("remove host document %s: %v", e.doc.Path(), err)
		}
	})
	return nil
}

func (e *Exporter) render(ctx context.Context, req export.ExportRequest) (export.Result, error) {
	if err := req.Validate(); err != nil {
		return export.Result{}, err
	}

	var result export.Result
	err := e.submit(ctx, func(ctx context.Context) error {
		session, err := e.ensureSession(ctx)
		if err != nil {
			return err
		}
		result, err = e.pipeline.Export(ctx, session, e.doc, req)
		if exportwebdriver.IsInvalidSession(err) {
			e.logger.Warnf("session %s no longer known to the driver, dropping it", session.ID())
			e.session = nil
		}
		return err
	})
	if err != nil {
		if e.cfg.Offline && req.Format == export.FormatPDF && strings.Contains(err.Error(), pdfRuntimeMissing) {
			err = export.NewError(export.KindRender, "offline pdf export needs a jsPDF bundle in the offline bundles", err)
		}
		e.logger.Errorf("export %s %dx%d failed: %v", req.Format, req.Width, req.Height, err)
		return export.Result{}, err
	}
	e.logger.Debugf("export %s %dx%d done (%d bytes)", req.Format, req.Width, req.Height, result.Size())
	return result, nil
}

func (e *Exporter) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case e.jobs <- j:
	case <-ctx.Done():
		return export.NewError(export.KindFromError(ctx.Err()), "export not started", ctx.Err())
	case <-e.ctx.Done():
		return export.NewError(export.KindCanceled, "exporter is closed", nil)
	}
	return <-j.result
}

func (e *Exporter) run() {
	defer close(e.done)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		e.closeSession(ctx)
	}()

	for {
		select {
		case <-e.ctx.Done():
			return
		case j := <-e.jobs:
			j.result <- e.execute(j)
		}
	}
}

func (e *Exporter) execute(j job) error {
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()
	return j.fn(ctx)
}

func (e *Exporter) ensureSession(ctx context.Context) (export.Session, error) {
	if e.session != nil {
		return e.session, nil
	}

	session, err := e.connector.Connect(ctx, e.baseURL, e.caps)
	if err != nil {
		return nil, err
	}
	if e.cfg.ScriptTimeout > 0 {
		if err := session.SetScriptTimeout(ctx, e.cfg.ScriptTimeout); err != nil {
			if closeErr := session.Close(ctx); closeErr != nil {
				e.logger.Warnf("close session %s: %v", session.ID(), closeErr)
			}
			return nil, err
		}
	}
	e.logger.Infof("session %s connected to %s", session.ID(), e.endpoint())
	e.session = session
	return session, nil
}

func (e *Exporter) closeSession(ctx context.Context) {
	if e.session == nil {
		return
	}
	session := e.session
	e.session = nil
	if err := session.Close(ctx); err != nil {
		e.logger.Warnf("close session %s: %v", session.ID(), err)
		return
	}
	e.logger.Debugf("session %s closed", session.ID())
}

func (e *Exporter) releaseDriver() {
	if e.manager == nil || e.handle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := e.manager.Release(ctx, e.handle); err != nil {
		e.logger.Warnf("stop driver on port %d: %v", e.handle.Port(), err)
	}
}

func (e *Exporter) record(req export.ExportRequest, result export.Result, err error, started time.Time, path string) {
	if e.tracker == nil {
		return
	}
	record := export.NewRenderRecord(req, result, err, started, time.Now())
	record.Path = path
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if _, recErr := e.tracker.Record(ctx, record); recErr != nil {
		e.logger.Warnf("record render: %v", recErr)
	}
}

func (e *Exporter) endpoint() string {
	if e.baseURL == "" {
		return "local browser"
	}
	return e.baseURL
}
