package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/siftworks/sift/internal/index"
)

// embedConcurrency bounds parallel embedding calls per document.
const embedConcurrency = 4

// Result summarizes a completed ingest run.
type Result struct {
	ProcessedCount int      `json:"processed_count"`
	ChunkCount     int      `json:"chunk_count"`
	Documents      []string `json:"documents"`
}

// Pipeline parses, chunks, embeds, and stores source documents.
type Pipeline struct {
	store     *index.Store
	chunkSize int
	logger    *slog.Logger
}

// NewPipeline creates an ingest Pipeline writing to the given store.
func NewPipeline(store *index.Store, logger *slog.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, chunkSize: DefaultChunkSize, logger: logger}, nil
}

// IngestPaths processes every supported file reachable from paths.
// Directories are walked recursively; unsupported files are skipped.
// Processing stops at the first failing document.
func (p *Pipeline) IngestPaths(ctx context.Context, paths []string) (Result, error) {
	files, err := expandPaths(paths)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, file := range files {
		count, err := p.ingestFile(ctx, file)
		if err != nil {
			return result, err
		}
		result.ProcessedCount++
		result.ChunkCount += count
		result.Documents = append(result.Documents, file)
	}

	p.logger.Info("ingest complete",
		"documents", result.ProcessedCount, "chunks", result.ChunkCount)
	return result, nil
}

// ingestFile runs one document through parse, chunk, embed, and store.
// Embedding runs with bounded concurrency; the chunk batch is written in
// a single transaction so a document is indexed completely or not at all.
func (p *Pipeline) ingestFile(ctx context.Context, path string) (int, error) {
	doc, err := ParseFile(path)
	if err != nil {
		return 0, err
	}

	chunks := SplitDocument(doc, p.chunkSize)
	if len(chunks) == 0 {
		p.logger.Warn("document yielded no chunks", "path", path)
		return 0, nil
	}

	embedded := make([]index.EmbeddedChunk, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := p.store.Embed(gctx, chunk.Content)
			if err != nil {
				return fmt.Errorf("%w: %s chunk %d: %v", ErrEmbed, path, chunk.ChunkIndex, err)
			}
			embedded[i] = index.EmbeddedChunk{
				Chunk: index.Chunk{
					Collection: p.store.Collection(),
					SourceFile: filepath.Base(path),
					PageNumber: chunk.PageNumber,
					ChunkIndex: chunk.ChunkIndex,
					Content:    chunk.Content,
				},
				Embedding: vec,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := p.store.InsertChunks(ctx, embedded); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrStore, path, err)
	}

	p.logger.Debug("indexed document", "path", path, "chunks", len(embedded))
	return len(embedded), nil
}

// expandPaths resolves files and directories into a sorted list of
// supported files. A path that names an unsupported file directly is an
// error; unsupported files inside directories are skipped silently.
func expandPaths(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		if !info.IsDir() {
			if !Supported(path) {
				return nil, fmt.Errorf("%w: unsupported file %s", ErrParse, path)
			}
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			continue
		}

		walkErr := filepath.WalkDir(path, func(entry string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if Supported(entry) && !seen[entry] {
				seen[entry] = true
				files = append(files, entry)
			}
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("%w: walking %s: %v", ErrParse, path, walkErr)
		}
	}

	sort.Strings(files)
	return files, nil
}
