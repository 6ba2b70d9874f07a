package exporthttp

import (
	"encoding/json"
	"net/http"
	"time"

	errorslib "github.com/goliatone/go-errors"
	"github.com/goliatone/go-static-export/export"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type recordResponse struct {
	ID         string    `json:"id"`
	Format     string    `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Scale      float64   `json:"scale"`
	Bytes      int64     `json:"bytes"`
	DurationMS int64     `json:"duration_ms"`
	State      string    `json:"state"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Path       string    `json:"path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toRecordResponse(record export.RenderRecord) recordResponse {
	return recordResponse{
		ID:         record.ID,
		Format:     string(record.Format),
		Width:      record.Width,
		Height:     record.Height,
		Scale:      record.Scale,
		Bytes:      record.Bytes,
		DurationMS: record.Duration.Milliseconds(),
		State:      string(record.State),
		ErrorKind:  string(record.ErrorKind),
		Error:      record.Error,
		Path:       record.Path,
		CreatedAt:  record.CreatedAt,
	}
}

// WriteError writes err as a JSON error body with a mapped status code.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	ge := export.AsGoError(err)
	writeJSON(w, StatusForError(ge), errorResponse{
		Error: errorBody{
			Message: ge.Message,
			Code:    ge.TextCode,
		},
	})
}

// StatusForError maps a go-errors error to an HTTP status code.
func StatusForError(err *errorslib.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	switch err.TextCode {
	case "not_implemented":
		return http.StatusNotImplemented
	case "driver_unavailable":
		return http.StatusServiceUnavailable
	case "render":
		return http.StatusUnprocessableEntity
	case "timeout":
		return http.StatusGatewayTimeout
	case "canceled":
		return http.StatusConflict
	}
	switch err.Category {
	case errorslib.CategoryValidation:
		return http.StatusBadRequest
	case errorslib.CategoryNotFound:
		return http.StatusNotFound
	case errorslib.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
