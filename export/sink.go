package export

import (
	"os"
	"path/filepath"
	"strings"
)

// OutputPath sets or replaces the extension of path with the canonical
// extension of format.
func OutputPath(path string, format Format) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "." + Extension(format)
}

// WriteFile writes result next to path with the canonical extension. The file
// is written to a temp file first and renamed into place.
func WriteFile(path string, result Result) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", NewError(KindValidation, "output path is required", nil)
	}
	target := OutputPath(path, result.Format)

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", NewError(KindIO, "create output directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".plotexport-*")
	if err != nil {
		return "", NewError(KindIO, "create temp file", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(result.Bytes()); err != nil {
		return "", NewError(KindIO, "write output", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", NewError(KindIO, "sync output", err)
	}
	if err := tmp.Close(); err != nil {
		return "", NewError(KindIO, "close output", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", NewError(KindIO, "chmod output", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", NewError(KindIO, "move output into place", err)
	}
	return target, nil
}
