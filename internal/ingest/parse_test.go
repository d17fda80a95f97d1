package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("# Title\n\nBody text."), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("ParseFile() = %d pages, want 1", len(doc.Pages))
	}
	if doc.Pages[0].Number != 1 {
		t.Errorf("page number = %d, want 1", doc.Pages[0].Number)
	}
}

func TestParseFileUnsupportedExtension(t *testing.T) {
	_, err := ParseFile("image.png")
	if !errors.Is(err, ErrParse) {
		t.Errorf("ParseFile(png) error = %v, want ErrParse", err)
	}
}

func TestParseEmptyTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, []byte("  \n "), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(doc.Pages) != 0 {
		t.Errorf("ParseFile(empty) = %d pages, want 0", len(doc.Pages))
	}
}

func TestExpandPathsWalksDirectories(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.md", "b.txt", "skip.png", ".hidden.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := expandPaths([]string{dir})
	if err != nil {
		t.Fatalf("expandPaths() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expandPaths() = %v, want 2 supported files", files)
	}
	if filepath.Base(files[0]) != "a.md" || filepath.Base(files[1]) != "b.txt" {
		t.Errorf("expandPaths() = %v, want sorted [a.md b.txt]", files)
	}
}

func TestExpandPathsRejectsUnsupportedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := expandPaths([]string{path}); !errors.Is(err, ErrParse) {
		t.Errorf("expandPaths(csv) error = %v, want ErrParse", err)
	}
}

func TestExpandPathsMissingPath(t *testing.T) {
	if _, err := expandPaths([]string{"/nonexistent/path"}); !errors.Is(err, ErrParse) {
		t.Errorf("expandPaths(missing) error = %v, want ErrParse", err)
	}
}
