package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Pipeline loads the host document into a session and runs the export
// scripts. Nothing here is retried.
type Pipeline struct {
	SettleTimeout time.Duration
	Decode        DecodeOptions
	Logger        Logger
}

// Navigate loads the host document into the session.
func (p *Pipeline) Navigate(ctx context.Context, session Session, doc *HostDocument) error {
	if session == nil {
		return NewError(KindSession, "session is not connected", nil)
	}
	if doc == nil || doc.URL == "" {
		return NewError(KindInternal, "host document is not prepared", nil)
	}
	if err := session.Navigate(ctx, doc.URL); err != nil {
		return asSessionError("navigate to host document", err)
	}
	return nil
}

// RunExport executes the export scripts and returns the raw payload. PDF
// renders an SVG first and converts it in a second script.
func (p *Pipeline) RunExport(ctx context.Context, session Session, req ExportRequest) (string, error) {
	if session == nil {
		return "", NewError(KindSession, "session is not connected", nil)
	}
	format := NormalizeFormat(req.Format)
	if format != FormatPDF {
		return p.runScript(ctx, session, RenderScript, renderArgs(req, format))
	}

	svg, err := p.runScript(ctx, session, RenderScript, renderArgs(req, FormatSVG))
	if err != nil {
		return "", err
	}
	settle := p.SettleTimeout
	if settle < 0 {
		settle = 0
	}
	p.logger().Debugf("converting svg to pdf (settle %s)", settle)
	return p.runScript(ctx, session, PDFScript, []any{svg, req.Width, req.Height, settle.Milliseconds()})
}

// Export navigates, runs the scripts and decodes the payload.
func (p *Pipeline) Export(ctx context.Context, session Session, doc *HostDocument, req ExportRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if err := p.Navigate(ctx, session, doc); err != nil {
		return Result{}, err
	}
	raw, err := p.RunExport(ctx, session, req)
	if err != nil {
		return Result{}, err
	}
	opts := p.Decode
	if opts.Logger == nil {
		opts.Logger = p.logger()
	}
	return Decode(raw, req.Format, opts)
}

func (p *Pipeline) runScript(ctx context.Context, session Session, script string, args []any) (string, error) {
	value, err := session.ExecuteAsync(ctx, script, args)
	if err != nil {
		return "", asSessionError("execute export script", err)
	}

	var raw string
	if err := json.Unmarshal(value, &raw); err != nil {
		return "", NewError(KindParse, fmt.Sprintf("export script returned a non-string value: %.64s", string(value)), err)
	}
	if err := RenderErrorFromPayload(raw); err != nil {
		return "", err
	}
	return raw, nil
}

func (p *Pipeline) logger() Logger {
	if p == nil || p.Logger == nil {
		return NopLogger{}
	}
	return p.Logger
}

func renderArgs(req ExportRequest, format Format) []any {
	return []any{req.Plot, string(format), req.Width, req.Height, req.Scale}
}

// asSessionError keeps errors that already carry a kind and tags the rest as
// session failures.
func asSessionError(msg string, err error) error {
	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		return err
	}
	switch KindFromError(err) {
	case KindTimeout, KindCanceled:
		return NewError(KindFromError(err), msg, err)
	}
	return NewError(KindSession, msg, err)
}
