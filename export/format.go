package export

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

var formatContentTypes = map[Format]string{
	FormatPNG:  "image/png",
	FormatJPEG: "image/jpeg",
	FormatWEBP: "image/webp",
	FormatSVG:  "image/svg+xml",
	FormatPDF:  "application/pdf",
}

// SupportedFormats lists formats in a stable order.
func SupportedFormats() []Format {
	return []Format{FormatPNG, FormatJPEG, FormatWEBP, FormatSVG, FormatPDF}
}

// NormalizeFormat coerces format values into known aliases.
func NormalizeFormat(format Format) Format {
	normalized := strings.ToLower(strings.TrimSpace(string(format)))
	switch normalized {
	case "jpg":
		return FormatJPEG
	case "svg+xml":
		return FormatSVG
	default:
		return Format(normalized)
	}
}

// IsSupportedFormat reports whether the format can be exported.
func IsSupportedFormat(format Format) bool {
	_, ok := formatContentTypes[NormalizeFormat(format)]
	return ok
}

// IsTextFormat reports whether the format decodes to text.
func IsTextFormat(format Format) bool {
	return NormalizeFormat(format) == FormatSVG
}

// Extension returns the canonical file extension without the dot.
func Extension(format Format) string {
	return string(NormalizeFormat(format))
}

// ContentType returns the MIME type for the format.
func ContentType(format Format) string {
	if ct, ok := formatContentTypes[NormalizeFormat(format)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// NewRequest builds a request, serializing plot into its opaque form.
func NewRequest(format Format, plot any, width, height int, scale float64) (ExportRequest, error) {
	raw, err := PlotFrom(plot)
	if err != nil {
		return ExportRequest{}, err
	}
	return ExportRequest{
		Format: NormalizeFormat(format),
		Width:  width,
		Height: height,
		Scale:  scale,
		Plot:   raw,
	}, nil
}

// PlotFrom converts a plot value into raw JSON. Raw JSON and byte slices are
// passed through after a validity check.
func PlotFrom(plot any) (json.RawMessage, error) {
	switch v := plot.(type) {
	case nil:
		return nil, NewError(KindValidation, "plot is required", nil)
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, NewError(KindValidation, "plot is not valid JSON", nil)
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, NewError(KindValidation, "plot is not valid JSON", nil)
		}
		return json.RawMessage(v), nil
	case string:
		if !json.Valid([]byte(v)) {
			return nil, NewError(KindValidation, "plot is not valid JSON", nil)
		}
		return json.RawMessage(v), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, NewError(KindValidation, "plot is not serializable", err)
		}
		return raw, nil
	}
}

// Validate checks request fields before any browser work happens.
func (r ExportRequest) Validate() error {
	if !IsSupportedFormat(r.Format) {
		return NewError(KindValidation, fmt.Sprintf("unsupported format: %q", r.Format), nil)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return NewError(KindValidation, fmt.Sprintf("invalid dimensions %dx%d", r.Width, r.Height), nil)
	}
	if r.Scale <= 0 || math.IsNaN(r.Scale) || math.IsInf(r.Scale, 0) {
		return NewError(KindValidation, fmt.Sprintf("invalid scale %v", r.Scale), nil)
	}
	if len(r.Plot) == 0 {
		return NewError(KindValidation, "plot is required", nil)
	}
	return nil
}

// WithFormat returns a copy of the request targeting another format.
func (r ExportRequest) WithFormat(format Format) ExportRequest {
	r.Format = format
	return r
}
