package ingest

import "strings"

// DefaultChunkSize is the target chunk size in characters. Chunks are
// packed from whole paragraphs up to this size; a single paragraph longer
// than the target is hard-split.
const DefaultChunkSize = 1200

// ChunkText is a chunk of page text positioned within its source document.
// ChunkIndex is document-global, counting across pages in order.
type ChunkText struct {
	PageNumber int
	ChunkIndex int
	Content    string
}

// SplitDocument splits a parsed document into chunks. Chunk boundaries
// never cross page boundaries so citations can carry a page number.
func SplitDocument(doc Document, maxChars int) []ChunkText {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}

	var chunks []ChunkText
	idx := 0
	for _, page := range doc.Pages {
		for _, content := range splitPage(page.Text, maxChars) {
			chunks = append(chunks, ChunkText{
				PageNumber: page.Number,
				ChunkIndex: idx,
				Content:    content,
			})
			idx++
		}
	}
	return chunks
}

// splitPage packs paragraphs into chunks of at most maxChars. Paragraphs
// are separated by blank lines; oversized paragraphs are hard-split.
func splitPage(text string, maxChars int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > maxChars {
			flush()
			for len(para) > maxChars {
				cut := maxChars
				if idx := strings.LastIndex(para[:maxChars], " "); idx > maxChars/2 {
					cut = idx
				}
				chunks = append(chunks, strings.TrimSpace(para[:cut]))
				para = strings.TrimSpace(para[cut:])
			}
			if para != "" {
				current.WriteString(para)
			}
			continue
		}

		if current.Len() > 0 && current.Len()+len(para)+2 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}
