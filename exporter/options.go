package exporter

import (
	"io"
	"time"

	"github.com/goliatone/go-static-export/export"
)

// Option configures a Builder.
type Option func(*Builder)

// WithConfig replaces the whole configuration.
func WithConfig(cfg export.Config) Option {
	return func(b *Builder) {
		b.cfg = cfg
	}
}

// WithBrowser selects the browser profile by name (chrome, firefox).
func WithBrowser(name string) Option {
	return func(b *Builder) {
		b.cfg.Browser = name
	}
}

// WithBackend selects the session backend (webdriver, cdp).
func WithBackend(backend string) Option {
	return func(b *Builder) {
		b.cfg.Backend = backend
	}
}

// WithDriverPort sets the driver port.
func WithDriverPort(port int) Option {
	return func(b *Builder) {
		b.cfg.DriverPort = port
	}
}

// WithDriverURL sets the driver endpoint. A URL without port is combined with
// the driver port.
func WithDriverURL(url string) Option {
	return func(b *Builder) {
		b.cfg.DriverURL = url
	}
}

// WithDriverPath overrides driver binary discovery.
func WithDriverPath(path string) Option {
	return func(b *Builder) {
		b.cfg.DriverPath = path
	}
}

// WithBrowserPath overrides the browser binary.
func WithBrowserPath(path string) Option {
	return func(b *Builder) {
		b.cfg.BrowserPath = path
	}
}

// WithAutoSpawn controls whether a missing driver is spawned.
func WithAutoSpawn(enabled bool) Option {
	return func(b *Builder) {
		b.cfg.AutoSpawn = enabled
	}
}

// WithOffline embeds the given runtime bundles into a local host document.
// PDF export needs a jsPDF bundle in addition to Plotly; without it PDF
// renders fail with a render error while the other formats work.
func WithOffline(bundles ...string) Option {
	return func(b *Builder) {
		b.cfg.Offline = true
		b.cfg.OfflineBundles = append([]string{}, bundles...)
	}
}

// WithRuntimeURLs sets the scripts loaded by online host documents.
func WithRuntimeURLs(urls ...string) Option {
	return func(b *Builder) {
		b.cfg.RuntimeURLs = append([]string{}, urls...)
	}
}

// WithPDFSettleTimeout sets how long the PDF stage waits for the SVG image.
func WithPDFSettleTimeout(timeout time.Duration) Option {
	return func(b *Builder) {
		b.cfg.PDFSettleTimeout = timeout
	}
}

// WithBrowserArgs replaces the profile's default browser arguments.
func WithBrowserArgs(args ...string) Option {
	return func(b *Builder) {
		b.cfg.BrowserArgs = append([]string{}, args...)
	}
}

// WithBrowserPrefs sets browser preferences.
func WithBrowserPrefs(prefs map[string]any) Option {
	return func(b *Builder) {
		b.cfg.BrowserPrefs = prefs
	}
}

// WithScriptTimeout sets the session script timeout.
func WithScriptTimeout(timeout time.Duration) Option {
	return func(b *Builder) {
		b.cfg.ScriptTimeout = timeout
	}
}

// WithStrictMIME fails exports whose payload MIME type does not match.
func WithStrictMIME(strict bool) Option {
	return func(b *Builder) {
		b.cfg.StrictMIME = strict
	}
}

// WithWorkDir sets where offline host documents are written.
func WithWorkDir(dir string) Option {
	return func(b *Builder) {
		b.cfg.WorkDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger export.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithTracker records every export call.
func WithTracker(tracker export.Tracker) Option {
	return func(b *Builder) {
		b.tracker = tracker
	}
}

// WithDriverManager replaces the driver process manager.
func WithDriverManager(manager export.DriverManager) Option {
	return func(b *Builder) {
		b.manager = manager
	}
}

// WithSessionConnector replaces the session connector.
func WithSessionConnector(connector export.SessionConnector) Option {
	return func(b *Builder) {
		b.connector = connector
	}
}

// WithDriverOutput forwards spawned driver output to w.
func WithDriverOutput(w io.Writer) Option {
	return func(b *Builder) {
		b.driverOutput = w
	}
}
