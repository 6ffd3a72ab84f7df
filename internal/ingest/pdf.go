package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"chispart/internal/core"
)

// Extracted-text caps, per deployment mode.
const (
	MaxPDFCharsDesktop = 100_000
	MaxPDFCharsMobile  = 50_000
)

// TruncationMarker is appended when extracted text is cut at the cap.
const TruncationMarker = "\n\n[... texto truncado ...]"

// PDFExtractor converts PDF bytes to text. It is a variable so tests and
// alternative extraction libraries can swap it; the contract is every
// visible glyph of every page in document order.
var PDFExtractor = extractWithLedongthuc

// MaxPDFChars returns the truncation cap for the given mode.
func MaxPDFChars(mobile bool) int {
	if mobile {
		return MaxPDFCharsMobile
	}
	return MaxPDFCharsDesktop
}

// PDFText extracts the text of a PDF.
func PDFText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", core.NewFileError("pdf is empty", nil)
	}
	text, err := PDFExtractor(data)
	if err != nil {
		return "", core.NewFileError("could not read pdf: "+err.Error(), err)
	}
	return text, nil
}

// Truncate cuts text at cap characters and appends the visible marker.
// Text at exactly the cap is returned untouched. The cut never splits a
// rune, so truncated output stays valid UTF-8.
func Truncate(text string, cap int) string {
	if cap <= 0 || len(text) <= cap {
		return text
	}
	cut := cap
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + TruncationMarker
}

// FramePDFPrompt wraps extracted text and the user's question into the
// prompt the model receives.
func FramePDFPrompt(text, question string) string {
	var b strings.Builder
	b.WriteString("Extracted text from the PDF document follows.\n\n")
	b.WriteString(text)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

func extractWithLedongthuc(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		out.WriteString(text)
	}
	return out.String(), nil
}
