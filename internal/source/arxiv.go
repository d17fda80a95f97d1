package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/siftworks/sift/internal/config"
	"github.com/siftworks/sift/internal/evidence"
	"github.com/siftworks/sift/internal/security"
)

// arxivConfidence is the fixed confidence for arXiv abstracts. Papers
// are authoritative but the match is abstract-level only.
const arxivConfidence = 0.92

// searchFieldPrefixes maps accepted search field names, long or short,
// to the arXiv query prefix.
var searchFieldPrefixes = map[string]string{
	"all":      "all",
	"ti":       "ti",
	"title":    "ti",
	"au":       "au",
	"author":   "au",
	"abs":      "abs",
	"abstract": "abs",
	"cat":      "cat",
	"category": "cat",
}

// ArxivAdapter retrieves evidence from the arXiv Atom API.
type ArxivAdapter struct {
	baseURL    string
	maxResults int
	field      string
	category   string
	client     *http.Client
	validator  *security.HTTP
	logger     *slog.Logger
}

// atomFeed mirrors the subset of the arXiv Atom response the adapter reads.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

// NewArxivAdapter creates the arXiv adapter. The configured base host is
// trusted by the SSRF validator; redirect targets are not.
func NewArxivAdapter(cfg config.ArxivConfig, logger *slog.Logger) (*ArxivAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("arxiv base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing arxiv base URL: %w", err)
	}
	field := cfg.SearchField
	if field == "" {
		field = "all"
	}
	prefix, ok := searchFieldPrefixes[field]
	if !ok {
		return nil, fmt.Errorf("invalid arxiv search field %q", field)
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	validator := security.NewHTTP(base.Hostname())
	return &ArxivAdapter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxResults: maxResults,
		field:      prefix,
		category:   cfg.Category,
		client:     validator.CreateSafeHTTPClient(0),
		validator:  validator,
		logger:     logger,
	}, nil
}

// Key implements Adapter.
func (*ArxivAdapter) Key() string { return evidence.KeyTool }

// Retrieve implements Adapter.
func (a *ArxivAdapter) Retrieve(ctx context.Context, _, query string) evidence.Record {
	searchQuery := buildArxivQuery(query, a.field, a.category)
	if searchQuery == "" {
		return evidence.InsufficientRecord(evidence.SourceArxiv, "query contained no searchable terms")
	}

	requestURL := a.searchURL(searchQuery)

	if err := a.validator.ValidateURL(requestURL); err != nil {
		return evidence.ErrorRecord(evidence.SourceArxiv, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceArxiv, "", fmt.Errorf("building arxiv request: %w", err))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceArxiv, "", fmt.Errorf("arxiv search: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return evidence.ErrorRecord(evidence.SourceArxiv, "",
			fmt.Errorf("arxiv returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.validator.MaxResponseSize()))
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceArxiv, "", fmt.Errorf("reading arxiv response: %w", err))
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return evidence.ErrorRecord(evidence.SourceArxiv, "", fmt.Errorf("decoding arxiv feed: %w", err))
	}

	if len(feed.Entries) == 0 {
		return evidence.InsufficientRecord(evidence.SourceArxiv, "no arxiv papers matched the question")
	}

	return arxivRecord(feed.Entries)
}

// searchURL builds the full API request URL. The /api/query path lives
// here, so the configured base URL must be the bare host.
func (a *ArxivAdapter) searchURL(searchQuery string) string {
	return a.baseURL + "/api/query?" + url.Values{
		"search_query": {searchQuery},
		"start":        {"0"},
		"max_results":  {fmt.Sprintf("%d", a.maxResults)},
	}.Encode()
}

// buildArxivQuery prefixes every query term with the search field and
// AND-joins them, appending a category constraint when configured.
func buildArxivQuery(query, field, category string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}

	parts := make([]string, 0, len(terms)+1)
	for _, term := range terms {
		parts = append(parts, field+":"+term)
	}
	if category != "" {
		parts = append(parts, "cat:"+category)
	}
	return strings.Join(parts, " AND ")
}

// arxivRecord formats feed entries into an evidence record.
func arxivRecord(entries []atomEntry) evidence.Record {
	var sb strings.Builder
	citations := make([]evidence.Citation, 0, len(entries))

	for i, entry := range entries {
		title := collapseWhitespace(entry.Title)
		summary := snippet(collapseWhitespace(entry.Summary), otherSnippetChars)

		authors := make([]string, 0, len(entry.Authors))
		for _, au := range entry.Authors {
			authors = append(authors, au.Name)
		}

		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s (%s)\n%s", title, strings.Join(authors, ", "), summary)

		citations = append(citations, evidence.Citation{
			Label:   title,
			Locator: entry.ID,
			Content: summary,
		})
	}

	return evidence.Record{
		Status:     evidence.StatusOK,
		SourceUsed: evidence.SourceArxiv,
		Answer:     sb.String(),
		Citations:  citations,
		Confidence: arxivConfidence,
		Missing:    []string{},
	}
}

// collapseWhitespace normalizes the newline-ridden text arXiv returns.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
