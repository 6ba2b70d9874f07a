package export

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/google/uuid"
)

var hostTpl = pongo2.Must(pongo2.FromString(hostTemplate))

// HostOptions configures the host document.
type HostOptions struct {
	Offline     bool
	Bundles     []string
	RuntimeURLs []string
	Dir         string
	Title       string
}

// HostDocument is the page loaded into a session before every export.
// Offline documents live on disk and must be removed with Cleanup.
type HostDocument struct {
	URL     string
	Offline bool

	path        string
	cleanupOnce sync.Once
	cleanupErr  error
}

// RenderHostHTML renders the host page. Offline documents embed bundles read
// from disk; online documents reference the runtime URLs.
func RenderHostHTML(opts HostOptions) (string, error) {
	title := opts.Title
	if title == "" {
		title = "static export"
	}

	ctx := pongo2.Context{
		"title":        title,
		"bundles":      []string{},
		"runtime_urls": []string{},
	}
	if opts.Offline {
		bundles := make([]string, 0, len(opts.Bundles))
		for _, path := range opts.Bundles {
			content, err := os.ReadFile(path)
			if err != nil {
				return "", NewError(KindIO, fmt.Sprintf("read runtime bundle %q", path), err)
			}
			bundles = append(bundles, escapeInlineScript(string(content)))
		}
		ctx["bundles"] = bundles
	} else {
		ctx["runtime_urls"] = opts.RuntimeURLs
	}

	out, err := hostTpl.Execute(ctx)
	if err != nil {
		return "", NewError(KindInternal, "render host document", err)
	}
	return out, nil
}

// NewHostDocument renders the host page and resolves the URL it is loaded
// from: a file:// URL for offline documents, a data URI otherwise.
// Embedded bundles routinely exceed data URI limits, hence the file.
func NewHostDocument(opts HostOptions) (*HostDocument, error) {
	html, err := RenderHostHTML(opts)
	if err != nil {
		return nil, err
	}

	if !opts.Offline {
		return &HostDocument{URL: "data:text/html;charset=utf-8," + url.PathEscape(html)}, nil
	}

	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewError(KindIO, "create host document directory", err)
	}
	path := filepath.Join(dir, "plotexport-"+uuid.NewString()+".html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return nil, NewError(KindIO, "write host document", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, NewError(KindIO, "resolve host document path", err)
	}
	return &HostDocument{URL: fileURL(abs), Offline: true, path: abs}, nil
}

// Path returns the on-disk location of an offline document.
func (d *HostDocument) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// Cleanup removes the offline document. Safe to call more than once.
func (d *HostDocument) Cleanup() error {
	if d == nil || d.path == "" {
		return nil
	}
	d.cleanupOnce.Do(func() {
		if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
			d.cleanupErr = err
		}
	})
	return d.cleanupErr
}

func fileURL(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	return (&url.URL{Scheme: "file", Path: slashed}).String()
}

func escapeInlineScript(src string) string {
	return strings.ReplaceAll(src, "</script", `<\/script`)
}
