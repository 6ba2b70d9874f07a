package exporthttp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-static-export/export"
)

// Renderer renders export requests. *exporter.Exporter satisfies it.
type Renderer interface {
	Export(ctx context.Context, req export.ExportRequest) (export.Result, error)
}

// Config configures the HTTP adapter.
type Config struct {
	BasePath      string
	MaxBodyBytes  int64
	DefaultWidth  int
	DefaultHeight int
	DefaultScale  float64
	// History enables GET {base}/history and GET {base}/history/{id}.
	History export.Tracker
	Logger  export.Logger
}

// Handler exposes the render endpoint.
type Handler struct {
	renderer Renderer
	cfg      Config
}

// NewHandler creates a new HTTP handler.
func NewHandler(renderer Renderer, cfg Config) *Handler {
	return &Handler{renderer: renderer, cfg: cfg}
}

// RegisterRoutes registers handlers on a compatible router.
func (h *Handler) RegisterRoutes(router any) {
	switch r := router.(type) {
	case interface{ Handle(string, http.Handler) }:
		r.Handle(h.basePath(), h)
		r.Handle(h.basePath()+"/", h)
	case interface {
		HandleFunc(string, func(http.ResponseWriter, *http.Request))
	}:
		r.HandleFunc(h.basePath(), h.ServeHTTP)
		r.HandleFunc(h.basePath()+"/", h.ServeHTTP)
	}
}

// ServeHTTP routes render endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if w == nil {
		return
	}
	if h == nil || h.renderer == nil {
		WriteError(w, export.NewError(export.KindInternal, "handler is nil", nil))
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, h.basePath()), "/")
	switch {
	case rest == "" && r.Method == http.MethodPost:
		h.render(w, r)
	case rest == "history" && r.Method == http.MethodGet:
		h.history(w, r)
	case strings.HasPrefix(rest, "history/") && r.Method == http.MethodGet:
		h.status(w, r, strings.TrimPrefix(rest, "history/"))
	case rest == "" || rest == "history" || strings.HasPrefix(rest, "history/"):
		w.Header().Set("Allow", allowedMethods(rest))
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			Error: errorBody{Message: fmt.Sprintf("method %s not allowed", r.Method), Code: "method_not_allowed"},
		})
	default:
		WriteError(w, export.NewError(export.KindNotFound, "route not found", nil))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRenderRequest(r, h.cfg)
	if err != nil {
		WriteError(w, err)
		return
	}

	started := time.Now()
	result, err := h.renderer.Export(r.Context(), req)
	if err != nil {
		h.logger().Warnf("render %s failed: %v", req.Format, err)
		WriteError(w, err)
		return
	}

	body := result.Bytes()
	w.Header().Set("Content-Type", export.ContentType(result.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="plot.%s"`, export.Extension(result.Format)))
	w.Header().Set("X-Render-Duration", time.Since(started).String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if h.cfg.History == nil {
		WriteError(w, export.NewError(export.KindNotImpl, "render history is not enabled", nil))
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	records, err := h.cfg.History.List(r.Context(), filter)
	if err != nil {
		WriteError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordResponse(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request, id string) {
	if h.cfg.History == nil {
		WriteError(w, export.NewError(export.KindNotImpl, "render history is not enabled", nil))
		return
	}
	record, err := h.cfg.History.Status(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(record))
}

func filterFromQuery(r *http.Request) (export.RenderFilter, error) {
	query := r.URL.Query()
	filter := export.RenderFilter{
		Format: export.Format(query.Get("format")),
		State:  export.RenderState(query.Get("state")),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return export.RenderFilter{}, export.NewError(export.KindValidation, fmt.Sprintf("invalid limit %q", raw), err)
		}
		filter.Limit = limit
	}
	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return export.RenderFilter{}, export.NewError(export.KindValidation, fmt.Sprintf("invalid since %q", raw), err)
		}
		filter.Since = since
	}
	return filter, nil
}

func allowedMethods(rest string) string {
	if rest == "" {
		return http.MethodPost
	}
	return http.MethodGet
}

func (h *Handler) basePath() string {
	path := strings.TrimRight(h.cfg.BasePath, "/")
	if path == "" {
		return "/render"
	}
	return path
}

func (h *Handler) logger() export.Logger {
	if h.cfg.Logger == nil {
		return export.NopLogger{}
	}
	return h.cfg.Logger
}

func (c Config) maxBodyBytes() int64 {
	if c.MaxBodyBytes <= 0 {
		return defaultMaxBodyBytes
	}
	return c.MaxBodyBytes
}

func (c Config) width() int {
	if c.DefaultWidth <= 0 {
		return defaultWidth
	}
	return c.DefaultWidth
}

func (c Config) height() int {
	if c.DefaultHeight <= 0 {
		return defaultHeight
	}
	return c.DefaultHeight
}

func (c Config) scale() float64 {
	if c.DefaultScale <= 0 {
		return defaultScale
	}
	return c.DefaultScale
}
