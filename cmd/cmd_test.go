package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/quarrylabs/quarry/internal/extract"
)

func TestDocumentIDForPath(t *testing.T) {
	first, err := documentIDForPath("testdata/notes.txt")
	if err != nil {
		t.Fatalf("documentIDForPath() error = %v", err)
	}
	again, err := documentIDForPath("testdata/notes.txt")
	if err != nil {
		t.Fatalf("documentIDForPath() error = %v", err)
	}

	// Stable IDs are what make re-ingestion replace instead of append.
	if first != again {
		t.Errorf("same path produced different IDs: %q vs %q", first, again)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("documentIDForPath() = %q, not a valid UUID: %v", first, err)
	}

	other, err := documentIDForPath("testdata/other.txt")
	if err != nil {
		t.Fatalf("documentIDForPath() error = %v", err)
	}
	if other == first {
		t.Error("different paths produced the same document ID")
	}
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("# Title\n\nbody  text"), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := loadDocument(extract.New(nil), path, "")
	if err != nil {
		t.Fatalf("loadDocument() error = %v", err)
	}

	if doc.Text != "# Title body text" {
		t.Errorf("document text = %q", doc.Text)
	}
	if doc.Source != "notes.md" {
		t.Errorf("document source = %q, want file base name", doc.Source)
	}
	if doc.ID == "" {
		t.Error("document ID is empty")
	}
	if doc.Metadata["format"] != "markdown" {
		t.Errorf("format metadata = %q", doc.Metadata["format"])
	}
}

func TestLoadDocumentExplicitID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("body"), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := loadDocument(extract.New(nil), path, "my-doc")
	if err != nil {
		t.Fatalf("loadDocument() error = %v", err)
	}
	if doc.ID != "my-doc" {
		t.Errorf("document ID = %q, want the override", doc.ID)
	}
}

func TestLoadDocumentUnsupportedExtension(t *testing.T) {
	if _, err := loadDocument(extract.New(nil), "archive.zip", ""); err == nil {
		t.Error("loadDocument() accepted an unsupported extension")
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("short", 10); got != "short" {
		t.Errorf("snippet() = %q, want unchanged text", got)
	}

	long := strings.Repeat("é", 50)
	got := snippet(long, 10)
	if got != strings.Repeat("é", 10)+"..." {
		t.Errorf("snippet() = %q, want 10 runes plus ellipsis", got)
	}
}
