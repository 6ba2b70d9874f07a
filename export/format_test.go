package export

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNormalizeFormat(t *testing.T) {
	cases := map[Format]Format{
		"PNG":     FormatPNG,
		" jpg ":   FormatJPEG,
		"jpeg":    FormatJPEG,
		"svg+xml": FormatSVG,
		"WebP":    FormatWEBP,
		"pdf":     FormatPDF,
		"tiff":    "tiff",
	}
	for in, want := range cases {
		if got := NormalizeFormat(in); got != want {
			t.Fatalf("NormalizeFormat(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestContentTypeAndExtension(t *testing.T) {
	cases := []struct {
		format Format
		ct     string
		ext    string
	}{
		{FormatPNG, "image/png", "png"},
		{"jpg", "image/jpeg", "jpeg"},
		{FormatWEBP, "image/webp", "webp"},
		{FormatSVG, "image/svg+xml", "svg"},
		{FormatPDF, "application/pdf", "pdf"},
	}
	for _, tc := range cases {
		if got := ContentType(tc.format); got != tc.ct {
			t.Fatalf("ContentType(%q): expected %q, got %q", tc.format, tc.ct, got)
		}
		if got := Extension(tc.format); got != tc.ext {
			t.Fatalf("Extension(%q): expected %q, got %q", tc.format, tc.ext, got)
		}
	}
	if got := ContentType("bmp"); got != "application/octet-stream" {
		t.Fatalf("expected fallback content type, got %q", got)
	}
}

func TestSupportedFormatsAreSupported(t *testing.T) {
	formats := SupportedFormats()
	if len(formats) != 5 {
		t.Fatalf("expected 5 formats, got %d", len(formats))
	}
	for _, format := range formats {
		if !IsSupportedFormat(format) {
			t.Fatalf("expected %q to be supported", format)
		}
	}
	if IsSupportedFormat("gif") {
		t.Fatalf("expected gif to be unsupported")
	}
	if !IsTextFormat("SVG") || IsTextFormat(FormatPNG) {
		t.Fatalf("unexpected text format classification")
	}
}

func TestPlotFrom(t *testing.T) {
	raw, err := PlotFrom(map[string]any{"data": []any{}})
	if err != nil {
		t.Fatalf("marshal plot: %v", err)
	}
	if string(raw) != `{"data":[]}` {
		t.Fatalf("unexpected plot json %s", raw)
	}

	raw, err = PlotFrom(`{"layout":{}}`)
	if err != nil || string(raw) != `{"layout":{}}` {
		t.Fatalf("expected string pass-through, got %s (%v)", raw, err)
	}

	if _, err := PlotFrom(json.RawMessage(`{`)); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error for invalid raw json, got %v", err)
	}
	if _, err := PlotFrom(nil); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error for nil plot, got %v", err)
	}
	if _, err := PlotFrom(make(chan int)); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error for unserializable plot, got %v", err)
	}
}

func TestExportRequestValidate(t *testing.T) {
	valid, err := NewRequest("jpg", map[string]any{"data": []any{}}, 700, 500, 1)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if valid.Format != FormatJPEG {
		t.Fatalf("expected normalized format, got %q", valid.Format)
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	cases := map[string]ExportRequest{
		"format": valid.WithFormat("gif"),
		"width":  {Format: FormatPNG, Width: 0, Height: 10, Scale: 1, Plot: valid.Plot},
		"height": {Format: FormatPNG, Width: 10, Height: -1, Scale: 1, Plot: valid.Plot},
		"scale":  {Format: FormatPNG, Width: 10, Height: 10, Scale: 0, Plot: valid.Plot},
		"nan":    {Format: FormatPNG, Width: 10, Height: 10, Scale: math.NaN(), Plot: valid.Plot},
		"plot":   {Format: FormatPNG, Width: 10, Height: 10, Scale: 1},
	}
	for name, req := range cases {
		if err := req.Validate(); !IsKind(err, KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestResultAccessors(t *testing.T) {
	bin := Result{Format: FormatPNG, Data: []byte{0, 0, 0}}
	if bin.IsText() || bin.String() != "AAAA" || bin.Size() != 3 {
		t.Fatalf("unexpected binary accessors: %q %d", bin.String(), bin.Size())
	}

	text := Result{Format: FormatSVG, Text: "<svg/>"}
	if !text.IsText() || text.String() != "<svg/>" || string(text.Bytes()) != "<svg/>" {
		t.Fatalf("unexpected text accessors")
	}
}
