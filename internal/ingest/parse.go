// Package ingest turns source documents into embedded chunks in the
// document index. It parses PDF and plain-text files, splits page text
// into retrieval-sized chunks, and embeds them with bounded concurrency.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Sentinel errors identifying which pipeline stage failed.
var (
	ErrParse = errors.New("parsing document")
	ErrEmbed = errors.New("embedding chunk")
	ErrStore = errors.New("storing chunks")
)

// Page is the extracted text of one page of a source document.
// Plain-text files yield a single page numbered 1.
type Page struct {
	Number int
	Text   string
}

// Document is a parsed source file.
type Document struct {
	Path  string
	Pages []Page
}

// textExtensions lists extensions handled by the plain-text parser.
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// Supported reports whether the file extension can be ingested.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".pdf" || textExtensions[ext]
}

// ParseFile extracts page text from a source file.
func ParseFile(path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return parsePDF(path)
	case textExtensions[ext]:
		return parseText(path)
	default:
		return Document{}, fmt.Errorf("%w: unsupported extension %q in %s", ErrParse, ext, path)
	}
}

func parsePDF(path string) (Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: opening %s: %v", ErrParse, path, err)
	}
	defer f.Close()

	doc := Document{Path: path}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return Document{}, fmt.Errorf("%w: extracting page %d of %s: %v", ErrParse, i, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: text})
	}
	return doc, nil
}

func parseText(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: reading %s: %v", ErrParse, path, err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return Document{Path: path}, nil
	}
	return Document{Path: path, Pages: []Page{{Number: 1, Text: text}}}, nil
}
