package exporthttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goliatone/go-static-export/export"
)

const (
	defaultWidth        = 700
	defaultHeight       = 500
	defaultScale        = 1.0
	defaultMaxBodyBytes = 32 << 20
)

// renderRequest is the JSON body of a render call. Missing dimensions fall
// back to the handler defaults.
type renderRequest struct {
	Format string          `json:"format"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Scale  float64         `json:"scale"`
	Plot   json.RawMessage `json:"plot"`
}

func decodeRenderRequest(r *http.Request, cfg Config) (export.ExportRequest, error) {
	if r.Body == nil {
		return export.ExportRequest{}, export.NewError(export.KindValidation, "request body is required", nil)
	}
	body := http.MaxBytesReader(nil, r.Body, cfg.maxBodyBytes())
	defer body.Close()

	var payload renderRequest
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return export.ExportRequest{}, export.NewError(export.KindValidation, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), err)
		}
		if errors.Is(err, io.EOF) {
			return export.ExportRequest{}, export.NewError(export.KindValidation, "request body is required", err)
		}
		return export.ExportRequest{}, export.NewError(export.KindValidation, "invalid render request", err)
	}

	if payload.Format == "" {
		payload.Format = r.URL.Query().Get("format")
	}
	if payload.Format == "" {
		payload.Format = string(export.FormatPNG)
	}
	if payload.Width == 0 {
		payload.Width = cfg.width()
	}
	if payload.Height == 0 {
		payload.Height = cfg.height()
	}
	if payload.Scale == 0 {
		payload.Scale = cfg.scale()
	}

	req := export.ExportRequest{
		Format: export.NormalizeFormat(export.Format(payload.Format)),
		Width:  payload.Width,
		Height: payload.Height,
		Scale:  payload.Scale,
		Plot:   payload.Plot,
	}
	if err := req.Validate(); err != nil {
		return export.ExportRequest{}, err
	}
	return req, nil
}
