package export

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrorSentinel prefixes payloads produced by a failing in-browser script.
const ErrorSentinel = "ERROR:"

var mimePattern = regexp.MustCompile(`([a-zA-Z0-9.+-]+)/([a-zA-Z0-9.+-]+)`)

// DecodeOptions tunes payload decoding.
type DecodeOptions struct {
	// StrictMIME turns a declared-vs-expected MIME mismatch into a parse error
	// instead of a warning.
	StrictMIME bool
	Logger     Logger
}

// RenderErrorFromPayload returns a render error when raw is an error sentinel.
func RenderErrorFromPayload(raw string) error {
	if !strings.HasPrefix(raw, ErrorSentinel) {
		return nil
	}
	msg := strings.TrimSpace(strings.TrimPrefix(raw, ErrorSentinel))
	if msg == "" {
		msg = "unknown in-browser error"
	}
	return NewError(KindRender, "in-browser export failed", fmt.Errorf("%s", msg))
}

// Decode parses a raw browser payload into bytes or text for the expected format.
func Decode(raw string, format Format, opts DecodeOptions) (Result, error) {
	format = NormalizeFormat(format)
	if err := RenderErrorFromPayload(raw); err != nil {
		return Result{}, err
	}
	if !IsSupportedFormat(format) {
		return Result{}, NewError(KindValidation, fmt.Sprintf("unsupported format: %q", format), nil)
	}

	logger := opts.Logger
	if logger == nil {
		logger = NopLogger{}
	}

	if IsTextFormat(format) {
		header, data, ok := strings.Cut(raw, ",")
		if !ok {
			return Result{}, NewError(KindParse, fmt.Sprintf("malformed %s payload: missing ',' separator", format), nil)
		}
		if err := checkMIME(header, format, opts.StrictMIME, logger); err != nil {
			return Result{}, err
		}
		text, err := url.PathUnescape(data)
		if err != nil {
			return Result{}, NewError(KindParse, fmt.Sprintf("malformed %s payload", format), err)
		}
		if !utf8.ValidString(text) {
			return Result{}, NewError(KindParse, fmt.Sprintf("malformed %s payload: not valid UTF-8", format), nil)
		}
		return Result{Format: format, Text: text}, nil
	}

	header, rest, ok := strings.Cut(raw, ";")
	if !ok {
		return Result{}, NewError(KindParse, fmt.Sprintf("malformed %s payload: missing ';' separator", format), nil)
	}
	_, data, ok := strings.Cut(rest, ",")
	if !ok {
		return Result{}, NewError(KindParse, fmt.Sprintf("malformed %s payload: missing ',' separator", format), nil)
	}
	if err := checkMIME(header, format, opts.StrictMIME, logger); err != nil {
		return Result{}, err
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return Result{}, NewError(KindParse, fmt.Sprintf("malformed %s payload: invalid base64", format), err)
	}
	return Result{Format: format, Data: decoded}, nil
}

// checkMIME compares the payload header against the expected format loosely:
// a subtype containing the format name (or a known alias) is a match.
func checkMIME(header string, format Format, strict bool, logger Logger) error {
	declared := mimePattern.FindString(header)
	if mimeMatches(declared, format) {
		return nil
	}
	if strict {
		return NewError(KindParse, fmt.Sprintf("payload MIME %q does not match %s", declared, format), nil)
	}
	logger.Warnf("payload MIME %q does not match expected format %s", declared, format)
	return nil
}

func mimeMatches(declared string, format Format) bool {
	if declared == "" {
		return false
	}
	_, subtype, _ := strings.Cut(strings.ToLower(declared), "/")
	if strings.Contains(subtype, string(format)) {
		return true
	}
	return format == FormatJPEG && strings.Contains(subtype, "jpg")
}
