package reconcile

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// TextExtractor pulls plain text out of a confirmation document.
type TextExtractor interface {
	Text(path string) (string, error)
}

// PDFTextExtractor reads document text via the pdf library. Extraction
// quality is whatever the library gives us; the identity heuristics in the
// cota package are tolerant of the resulting whitespace noise.
type PDFTextExtractor struct{}

// Text extracts the concatenated plain text of all pages.
func (PDFTextExtractor) Text(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", path, err)
	}
	return buf.String(), nil
}
