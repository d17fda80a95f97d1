// Package source retrieves evidence from the four research channels:
// the document index, conversation memory, web search, and arXiv.
//
// Adapters never fail the gather phase. Whatever goes wrong inside one
// adapter, the bundle always carries a record under every fixed key, so
// downstream stages can reason about a stable shape.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siftworks/sift/internal/evidence"
)

// Adapter retrieves evidence for a query from one channel.
type Adapter interface {
	// Key returns the fixed bundle key the adapter's records live under.
	Key() string

	// Retrieve gathers evidence for the query. Failures are reported
	// inside the record, not as an error.
	Retrieve(ctx context.Context, threadID, query string) evidence.Record
}

// Gatherer fans a query out to all adapters concurrently.
type Gatherer struct {
	adapters map[string]Adapter
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGatherer creates a Gatherer over the given adapters. Every adapter
// key must be one of the fixed bundle keys, and duplicates are rejected.
func NewGatherer(adapters []Adapter, timeout time.Duration, logger *slog.Logger) (*Gatherer, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	known := make(map[string]bool, len(evidence.Keys()))
	for _, key := range evidence.Keys() {
		known[key] = true
	}

	byKey := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		key := a.Key()
		if !known[key] {
			return nil, fmt.Errorf("unknown adapter key %q", key)
		}
		if _, dup := byKey[key]; dup {
			return nil, fmt.Errorf("duplicate adapter for key %q", key)
		}
		byKey[key] = a
	}

	return &Gatherer{adapters: byKey, timeout: timeout, logger: logger}, nil
}

type keyedRecord struct {
	key    string
	record evidence.Record
}

// Gather runs every adapter in parallel under a per-source timeout and
// returns a bundle holding exactly one record per fixed key. A panicking
// adapter yields an error record instead of taking the process down.
func (g *Gatherer) Gather(ctx context.Context, threadID, query string) evidence.Bundle {
	keys := evidence.Keys()
	results := make(chan keyedRecord, len(keys))

	for _, key := range keys {
		adapter, ok := g.adapters[key]
		if !ok {
			results <- keyedRecord{key: key, record: evidence.ErrorRecord(
				sourceForKey(key), "", fmt.Errorf("no adapter configured"))}
			continue
		}

		go func() {
			retrieveCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					g.logger.Error("source adapter panic recovered", "key", key, "panic", r)
					results <- keyedRecord{key: key, record: evidence.ErrorRecord(
						sourceForKey(key), "", fmt.Errorf("adapter panic: %v", r))}
				}
			}()

			start := time.Now()
			rec := adapter.Retrieve(retrieveCtx, threadID, query)
			g.logger.Debug("source retrieved",
				"key", key, "status", rec.Status, "elapsed", time.Since(start))
			results <- keyedRecord{key: key, record: rec}
		}()
	}

	bundle := make(evidence.Bundle, len(keys))
	for range keys {
		kr := <-results
		bundle[kr.key] = kr.record
	}
	return bundle
}

// sourceForKey maps a bundle key to the source label used in records
// produced on the adapter's behalf.
func sourceForKey(key string) evidence.Source {
	switch key {
	case evidence.KeyRAG:
		return evidence.SourceRAG
	case evidence.KeyMemory:
		return evidence.SourceMemory
	case evidence.KeyWeb:
		return evidence.SourceWeb
	case evidence.KeyTool:
		return evidence.SourceArxiv
	default:
		return evidence.SourceUnknown
	}
}
