package export

import (
	_ "embed"
	"strings"
)

var (
	//go:embed scripts/render.js
	renderFunction string

	//go:embed scripts/pdf.js
	pdfFunction string

	//go:embed scripts/invoke.js
	invokeTemplate string

	//go:embed scripts/host.html
	hostTemplate string
)

// RenderScript is the execute-async script producing image data URLs.
// Arguments: plot, format, width, height, scale.
var RenderScript = AsyncInvocation(renderFunction)

// PDFScript is the execute-async script turning an SVG data URL into a PDF
// data URL. Arguments: svg, width, height, settle timeout in milliseconds.
var PDFScript = AsyncInvocation(pdfFunction)

// AsyncInvocation wraps a JS function expression into a WebDriver
// execute-async body. Rejections are reported through the error sentinel.
func AsyncInvocation(fn string) string {
	return strings.Replace(invokeTemplate, "__EXPORT_FN__", strings.TrimSpace(fn), 1)
}
