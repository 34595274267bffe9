// Package extract turns raw document bytes into the plain text the
// chunker consumes. Text and Markdown are decoded directly; PDF text
// extraction is an external collaborator supplied by the caller.
package extract

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/quarrylabs/quarry/internal/rag"
)

// Format tags the encoding of a document's raw bytes.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

// PDFTextFunc extracts plain text from PDF bytes. The core does not
// ship a PDF parser; callers inject one when they need PDF support.
type PDFTextFunc func(data []byte) (string, error)

// Extractor converts (bytes, format) pairs into sanitized text.
type Extractor struct {
	pdf PDFTextFunc
}

// New creates an Extractor. pdf may be nil, in which case PDF input is
// rejected with an explanatory error.
func New(pdf PDFTextFunc) *Extractor {
	return &Extractor{pdf: pdf}
}

// Extract decodes the raw bytes according to format and sanitizes the
// result. Markdown is treated as UTF-8 text: headings and emphasis
// markers carry meaning for retrieval and are kept as-is.
func (e *Extractor) Extract(data []byte, format Format) (string, error) {
	switch format {
	case FormatText, FormatMarkdown:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s content is not valid UTF-8", rag.ErrInvalidParameter, format)
		}
		return Sanitize(string(data)), nil
	case FormatPDF:
		if e.pdf == nil {
			return "", fmt.Errorf("%w: no PDF extractor configured", rag.ErrInvalidParameter)
		}
		text, err := e.pdf(data)
		if err != nil {
			return "", fmt.Errorf("extracting PDF text: %w", err)
		}
		return Sanitize(text), nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q (supported: text, markdown, pdf)",
			rag.ErrInvalidParameter, format)
	}
}

// DetectFormat maps a file name to its Format by extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".pdf":
		return FormatPDF, nil
	case ".txt", ".text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unsupported file type %q (supported: .md, .markdown, .pdf, .txt)",
			rag.ErrInvalidParameter, filepath.Ext(filename))
	}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize collapses whitespace runs to single spaces and trims the
// ends. Chunk offsets are relative to the sanitized text, so this must
// happen before chunking, never after.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
