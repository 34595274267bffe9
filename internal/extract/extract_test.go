package extract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/quarrylabs/quarry/internal/rag"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{"notes.txt", FormatText, false},
		{"notes.TEXT", FormatText, false},
		{"guide.md", FormatMarkdown, false},
		{"guide.MARKDOWN", FormatMarkdown, false},
		{"paper.pdf", FormatPDF, false},
		{"archive.zip", "", true},
		{"noextension", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectFormat(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, rag.ErrInvalidParameter) {
					t.Errorf("DetectFormat(%q) error = %v, want ErrInvalidParameter", tt.filename, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectFormat(%q) error = %v", tt.filename, err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	e := New(nil)

	got, err := e.Extract([]byte("  hello\n\n  world  "), FormatText)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "hello world" {
		t.Errorf("Extract() = %q, want %q", got, "hello world")
	}
}

func TestExtractMarkdownKeepsMarkers(t *testing.T) {
	e := New(nil)

	got, err := e.Extract([]byte("# Title\n\nSome **bold** text"), FormatMarkdown)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "# Title Some **bold** text" {
		t.Errorf("Extract() = %q", got)
	}
}

func TestExtractInvalidUTF8(t *testing.T) {
	e := New(nil)

	_, err := e.Extract([]byte{0xff, 0xfe, 0xfd}, FormatText)
	if !errors.Is(err, rag.ErrInvalidParameter) {
		t.Errorf("Extract() of invalid UTF-8 error = %v, want ErrInvalidParameter", err)
	}
}

func TestExtractPDF(t *testing.T) {
	t.Run("no extractor configured", func(t *testing.T) {
		e := New(nil)
		if _, err := e.Extract([]byte("%PDF-1.4"), FormatPDF); !errors.Is(err, rag.ErrInvalidParameter) {
			t.Errorf("Extract() error = %v, want ErrInvalidParameter", err)
		}
	})

	t.Run("injected extractor", func(t *testing.T) {
		e := New(func(data []byte) (string, error) {
			return "extracted   text", nil
		})
		got, err := e.Extract([]byte("%PDF-1.4"), FormatPDF)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if got != "extracted text" {
			t.Errorf("Extract() = %q, want sanitized extractor output", got)
		}
	})

	t.Run("extractor failure propagates", func(t *testing.T) {
		cause := fmt.Errorf("encrypted document")
		e := New(func(data []byte) (string, error) {
			return "", cause
		})
		if _, err := e.Extract([]byte("%PDF-1.4"), FormatPDF); !errors.Is(err, cause) {
			t.Errorf("Extract() error = %v, want wrapped cause", err)
		}
	})
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := New(nil)
	if _, err := e.Extract([]byte("x"), Format("docx")); !errors.Is(err, rag.ErrInvalidParameter) {
		t.Errorf("Extract() error = %v, want ErrInvalidParameter", err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"already clean", "hello world", "hello world"},
		{"collapses runs", "a  b\t\tc\n\nd", "a b c d"},
		{"trims ends", "  padded  ", "padded"},
		{"only whitespace", " \n\t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
