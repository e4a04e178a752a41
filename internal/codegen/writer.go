// Package codegen persists model-generated parser source to disk.
package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultDir is where generated parsers are written unless configured.
const DefaultDir = "custom_parsers"

var unsafeChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// Writer writes one parser file per target into a dedicated directory.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = DefaultDir
	}
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the file a target's parser is written to. The mapping is
// deterministic, so the test runner can find what the writer produced.
func (w *Writer) Path(target string) string {
	return filepath.Join(w.dir, SanitizeTarget(target)+"_parser.go")
}

// Write stores code for target, replacing any previous version. The code is
// not validated here; the test runner reports build errors.
func (w *Writer) Write(target, code string) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", w.dir, err)
	}

	path := w.Path(target)
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return "", fmt.Errorf("failed to write parser file: %w", err)
	}

	return fmt.Sprintf("Written to %s", path), nil
}

// SanitizeTarget maps a target identifier onto a safe file name stem.
func SanitizeTarget(target string) string {
	result := unsafeChars.ReplaceAllString(strings.ToLower(target), "-")
	result = strings.Trim(result, "-")
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "unnamed"
	}
	return result
}
