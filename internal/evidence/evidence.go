// Package evidence defines the common contract every retrieval source must
// emit. Adapters normalize their heterogeneous backend outputs into Record
// values; the rest of the pipeline (gathering, relevance evaluation,
// synthesis) consumes only this contract and never a backend's raw shape.
package evidence

import (
	"encoding/json"
	"strings"
)

// Status classifies the outcome of a single source retrieval.
type Status string

const (
	// StatusOK means usable content was found.
	StatusOK Status = "OK"

	// StatusInsufficientContext means the backend call succeeded but found
	// nothing relevant. Distinct from StatusError: this drives relevance
	// scoring and citation rendering, not failure handling.
	StatusInsufficientContext Status = "INSUFFICIENT_CONTEXT"

	// StatusError means the backend call itself failed.
	StatusError Status = "ERROR"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusInsufficientContext, StatusError:
		return true
	}
	return false
}

// Source is the provenance tag of a Record.
type Source string

const (
	SourceMemory  Source = "MEMORY"
	SourceRAG     Source = "RAG"
	SourceWeb     Source = "WEB"
	SourceArxiv   Source = "ARXIV"
	SourceNone    Source = "NONE"
	SourceUnknown Source = "UNKNOWN"
)

// Valid reports whether s is one of the defined sources.
func (s Source) Valid() bool {
	switch s {
	case SourceMemory, SourceRAG, SourceWeb, SourceArxiv, SourceNone, SourceUnknown:
		return true
	}
	return false
}

// Fixed Bundle keys. Results are attributed by adapter identity, never by
// completion order.
const (
	KeyRAG    = "rag_result"
	KeyMemory = "memory_result"
	KeyWeb    = "web_result"
	KeyTool   = "tool_result"
)

// Keys returns the four fixed bundle keys in canonical order.
func Keys() []string {
	return []string{KeyRAG, KeyMemory, KeyWeb, KeyTool}
}

// Citation points a claim back to its origin: a URL, a page/chunk locator,
// or an opaque memory key. Label and Locator are always set; the remaining
// fields are populated only by the document-RAG path.
type Citation struct {
	Label      string   `json:"label"`
	Locator    string   `json:"locator"`
	PageNumber *int     `json:"page_number,omitempty"`
	ChunkIndex *int     `json:"chunk_index,omitempty"`
	SourceFile string   `json:"source_file,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Content    string   `json:"content,omitempty"`
}

// Record is the universal evidence contract. Every adapter returns a
// well-formed Record even on internal failure (Status=StatusError) — the
// orchestrator never receives a raw error from an adapter.
type Record struct {
	Status     Status     `json:"status"`
	SourceUsed Source     `json:"source_used"`
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`

	// Missing lists what the context lacked when Status is
	// StatusInsufficientContext. Optional.
	Missing []string `json:"missing,omitempty"`

	// Error carries the failure description when Status is StatusError.
	Error string `json:"error,omitempty"`

	// Meta carries source-specific extras (retrieval counts, search
	// parameters). Downstream consumers must never require it.
	Meta map[string]any `json:"meta,omitempty"`
}

// Bundle maps a fixed source-name key to its Record. Built fresh per
// request and never mutated after the gathering stage completes.
type Bundle map[string]Record

// ErrorRecord builds a Record for a failed backend call.
func ErrorRecord(src Source, answer string, err error) Record {
	rec := Record{
		Status:     StatusError,
		SourceUsed: src,
		Answer:     answer,
		Citations:  []Citation{},
		Confidence: 0,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// InsufficientRecord builds a Record for a backend that responded but found
// nothing relevant.
func InsufficientRecord(src Source, answer string) Record {
	return Record{
		Status:     StatusInsufficientContext,
		SourceUsed: src,
		Answer:     answer,
		Citations:  []Citation{},
		Confidence: 0,
	}
}

// Normalize translates a raw adapter payload into a Record. Structured
// payloads (JSON objects carrying a valid status) pass through unchanged;
// anything else is wrapped defensively as plain text so the contract is
// never broken. Normalizing an already-normalized payload yields an
// identical record.
func Normalize(raw string) Record {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var rec Record
		if err := json.Unmarshal([]byte(trimmed), &rec); err == nil && rec.Status.Valid() {
			if rec.Citations == nil {
				rec.Citations = []Citation{}
			}
			if !rec.SourceUsed.Valid() {
				rec.SourceUsed = SourceUnknown
			}
			return rec
		}
	}
	return Record{
		Status:     StatusOK,
		SourceUsed: SourceUnknown,
		Answer:     raw,
		Citations:  []Citation{},
		Confidence: 0.5,
	}
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
