package evidence

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{name: "ok", status: StatusOK, want: true},
		{name: "insufficient", status: StatusInsufficientContext, want: true},
		{name: "error", status: StatusError, want: true},
		{name: "empty", status: "", want: false},
		{name: "lowercase", status: "ok", want: false},
		{name: "unknown", status: "PARTIAL", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("Status(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestSourceValid(t *testing.T) {
	for _, src := range []Source{SourceMemory, SourceRAG, SourceWeb, SourceArxiv, SourceNone, SourceUnknown} {
		if !src.Valid() {
			t.Errorf("Source(%q).Valid() = false, want true", src)
		}
	}
	if Source("web").Valid() {
		t.Error(`Source("web").Valid() = true, want false`)
	}
}

func TestKeys(t *testing.T) {
	want := []string{"rag_result", "memory_result", "web_result", "tool_result"}
	if got := Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestNormalizeRawText(t *testing.T) {
	rec := Normalize("just some freeform agent output")

	if rec.Status != StatusOK {
		t.Errorf("Status = %q, want %q", rec.Status, StatusOK)
	}
	if rec.SourceUsed != SourceUnknown {
		t.Errorf("SourceUsed = %q, want %q", rec.SourceUsed, SourceUnknown)
	}
	if rec.Answer != "just some freeform agent output" {
		t.Errorf("Answer = %q, want original text", rec.Answer)
	}
	if rec.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", rec.Confidence)
	}
	if rec.Citations == nil || len(rec.Citations) != 0 {
		t.Errorf("Citations = %v, want empty non-nil slice", rec.Citations)
	}
}

func TestNormalizeStructured(t *testing.T) {
	raw := `{"status":"INSUFFICIENT_CONTEXT","source_used":"ARXIV","answer":"No papers found","citations":[],"confidence":0}`

	rec := Normalize(raw)

	if rec.Status != StatusInsufficientContext {
		t.Errorf("Status = %q, want %q", rec.Status, StatusInsufficientContext)
	}
	if rec.SourceUsed != SourceArxiv {
		t.Errorf("SourceUsed = %q, want %q", rec.SourceUsed, SourceArxiv)
	}
}

func TestNormalizeInvalidJSONFallsBackToText(t *testing.T) {
	raw := `{"status": "PARTIAL", "whatever": tru` // malformed and invalid status

	rec := Normalize(raw)

	if rec.Status != StatusOK || rec.SourceUsed != SourceUnknown {
		t.Errorf("got (%q,%q), want raw-text wrap (OK, UNKNOWN)", rec.Status, rec.SourceUsed)
	}
	if rec.Answer != raw {
		t.Errorf("Answer = %q, want raw payload preserved", rec.Answer)
	}
}

// Feeding a normalized record back through Normalize must yield an
// identical record.
func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"plain text result",
		`{"status":"OK","source_used":"WEB","answer":"hit","citations":[{"label":"a","locator":"https://a"}],"confidence":0.97}`,
		`{"status":"ERROR","source_used":"RAG","answer":"boom","citations":[],"confidence":0,"error":"backend down"}`,
	}

	for _, raw := range inputs {
		first := Normalize(raw)

		data, err := json.Marshal(first)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		second := Normalize(string(data))

		if !reflect.DeepEqual(first, second) {
			t.Errorf("Normalize not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
		}
	}
}

func TestErrorRecordNeverNilCitations(t *testing.T) {
	rec := ErrorRecord(SourceWeb, "web search unavailable", nil)
	if rec.Citations == nil {
		t.Error("Citations is nil, want empty slice")
	}
	if rec.Status != StatusError {
		t.Errorf("Status = %q, want %q", rec.Status, StatusError)
	}
	if rec.Error != "" {
		t.Errorf("Error = %q, want empty for nil err", rec.Error)
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.3, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{3.5, 1},
	}
	for _, tt := range tests {
		if got := ClampConfidence(tt.in); got != tt.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
