package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/siftworks/sift/internal/config"
	"github.com/siftworks/sift/internal/evidence"
)

const atomResponse = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query Results</title>
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <title>Retrieval-Augmented Generation:
  A Survey</title>
    <summary>  We survey retrieval-augmented generation systems
  and their evaluation.  </summary>
    <published>2024-01-01T00:00:00Z</published>
    <author><name>A. Researcher</name></author>
    <author><name>B. Scholar</name></author>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00002v2</id>
    <title>Chunking Strategies for Dense Retrieval</title>
    <summary>An empirical study of chunk sizes.</summary>
    <published>2024-02-01T00:00:00Z</published>
    <author><name>C. Author</name></author>
  </entry>
</feed>`

func newArxivAdapter(t *testing.T, handler http.HandlerFunc) *ArxivAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := NewArxivAdapter(config.ArxivConfig{
		BaseURL: server.URL, MaxResults: 5, SearchField: "all",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestArxivRetrieve(t *testing.T) {
	a := newArxivAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/query" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("search_query"); got != "all:retrieval AND all:augmented" {
			t.Errorf("search_query = %q, want prefixed AND-joined terms", got)
		}
		if got := r.URL.Query().Get("max_results"); got != "5" {
			t.Errorf("max_results = %q, want 5", got)
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomResponse))
	})

	rec := a.Retrieve(context.Background(), "thread-1", "retrieval augmented")

	if rec.Status != evidence.StatusOK {
		t.Fatalf("Status = %q, want OK (error: %s)", rec.Status, rec.Error)
	}
	if rec.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", rec.Confidence)
	}
	if len(rec.Citations) != 2 {
		t.Fatalf("Citations = %d, want 2", len(rec.Citations))
	}
	if rec.Citations[0].Locator != "http://arxiv.org/abs/2401.00001v1" {
		t.Errorf("citation locator = %q, want abstract URL", rec.Citations[0].Locator)
	}
	// Whitespace inside Atom fields is collapsed.
	if rec.Citations[0].Label != "Retrieval-Augmented Generation: A Survey" {
		t.Errorf("citation label = %q, want collapsed title", rec.Citations[0].Label)
	}
	if !strings.Contains(rec.Answer, "A. Researcher, B. Scholar") {
		t.Error("answer missing author list")
	}
}

func TestArxivRetrieveNoEntries(t *testing.T) {
	a := newArxivAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	})

	rec := a.Retrieve(context.Background(), "t", "q")
	if rec.Status != evidence.StatusInsufficientContext {
		t.Errorf("Status = %q, want INSUFFICIENT_CONTEXT", rec.Status)
	}
}

func TestArxivRetrieveServerError(t *testing.T) {
	a := newArxivAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	rec := a.Retrieve(context.Background(), "t", "q")
	if rec.Status != evidence.StatusError {
		t.Errorf("Status = %q, want ERROR", rec.Status)
	}
}

func TestArxivRetrieveEmptyQuery(t *testing.T) {
	a := newArxivAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("server should not be called for an empty query")
	})

	rec := a.Retrieve(context.Background(), "t", "   ")
	if rec.Status != evidence.StatusInsufficientContext {
		t.Errorf("Status = %q, want INSUFFICIENT_CONTEXT", rec.Status)
	}
}

func TestBuildArxivQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		field    string
		category string
		want     string
	}{
		{"single term", "transformers", "all", "", "all:transformers"},
		{"multiple terms", "sparse attention", "all", "", "all:sparse AND all:attention"},
		{"title field", "chunking", "ti", "", "ti:chunking"},
		{"with category", "embeddings", "abs", "cs.IR", "abs:embeddings AND cat:cs.IR"},
		{"empty query", "  ", "all", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildArxivQuery(tt.query, tt.field, tt.category); got != tt.want {
				t.Errorf("buildArxivQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArxivSearchURLWithDefaultBaseURL(t *testing.T) {
	a, err := NewArxivAdapter(config.ArxivConfig{
		BaseURL: config.DefaultArxivBaseURL, MaxResults: 5,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	u, err := url.Parse(a.searchURL("all:transformers"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "export.arxiv.org" {
		t.Errorf("host = %q, want export.arxiv.org", u.Host)
	}
	if u.Path != "/api/query" {
		t.Errorf("path = %q, want /api/query", u.Path)
	}
	if got := u.Query().Get("search_query"); got != "all:transformers" {
		t.Errorf("search_query = %q, want all:transformers", got)
	}
}

func TestNewArxivAdapterInvalidField(t *testing.T) {
	_, err := NewArxivAdapter(config.ArxivConfig{
		BaseURL: "https://export.arxiv.org", SearchField: "body",
	}, nil)
	if err == nil {
		t.Error("NewArxivAdapter(invalid field) expected error, got nil")
	}
}

func TestNewArxivAdapterLongFieldNames(t *testing.T) {
	// Config validation accepts the long names; the adapter maps them
	// to the Atom query prefixes.
	a, err := NewArxivAdapter(config.ArxivConfig{
		BaseURL: "https://export.arxiv.org", SearchField: "title",
	}, nil)
	if err != nil {
		t.Fatalf("NewArxivAdapter(title) error: %v", err)
	}
	if a.field != "ti" {
		t.Errorf("field = %q, want ti", a.field)
	}
}
