package source

import (
	"context"
	"encoding/json"
	"errors"
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

// webConfidence is the fixed confidence for live web search results.
const webConfidence = 0.97

// Snippet budgets for web results. The top result gets room to carry
// the bulk of the evidence; the rest are corroboration.
const (
	firstSnippetChars = 1000
	otherSnippetChars = 500
)

// WebAdapter retrieves evidence from a SearXNG metasearch instance.
type WebAdapter struct {
	baseURL    string
	maxResults int
	client     *http.Client
	validator  *security.HTTP
	logger     *slog.Logger
}

// webResult is one entry of SearXNG's JSON response.
type webResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Engine  string `json:"engine"`
}

// NewWebAdapter creates the web search adapter. The configured base host
// is trusted by the SSRF validator; redirect targets are not. An empty
// base URL is allowed; the adapter then reports ERROR on every retrieval.
func NewWebAdapter(cfg config.WebConfig, logger *slog.Logger) (*WebAdapter, error) {
	trustedHost := ""
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing web search base URL: %w", err)
		}
		trustedHost = base.Hostname()
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}
	if logger == nil {
		logger = slog.Default()
	}

	validator := security.NewHTTP(trustedHost)
	return &WebAdapter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxResults: maxResults,
		client:     validator.CreateSafeHTTPClient(0),
		validator:  validator,
		logger:     logger,
	}, nil
}

// Key implements Adapter.
func (*WebAdapter) Key() string { return evidence.KeyWeb }

// Retrieve implements Adapter.
func (a *WebAdapter) Retrieve(ctx context.Context, _, query string) evidence.Record {
	if a.baseURL == "" {
		return evidence.ErrorRecord(evidence.SourceWeb, "", errors.New("web search is not configured"))
	}

	searchURL := a.baseURL + "/search?" + url.Values{
		"q":      {query},
		"format": {"json"},
	}.Encode()

	if err := a.validator.ValidateURL(searchURL); err != nil {
		return evidence.ErrorRecord(evidence.SourceWeb, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceWeb, "", fmt.Errorf("building search request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceWeb, "", fmt.Errorf("web search: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return evidence.ErrorRecord(evidence.SourceWeb, "",
			fmt.Errorf("web search returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.validator.MaxResponseSize()))
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceWeb, "", fmt.Errorf("reading search response: %w", err))
	}

	var parsed struct {
		Results []webResult `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return evidence.ErrorRecord(evidence.SourceWeb, "", fmt.Errorf("decoding search response: %w", err))
	}

	results := parsed.Results
	if len(results) == 0 {
		return evidence.InsufficientRecord(evidence.SourceWeb, "web search returned no results")
	}
	if len(results) > a.maxResults {
		results = results[:a.maxResults]
	}

	return webRecord(results)
}

// webRecord formats search results into an evidence record.
func webRecord(results []webResult) evidence.Record {
	var sb strings.Builder
	citations := make([]evidence.Citation, 0, len(results))

	for i, r := range results {
		budget := otherSnippetChars
		if i == 0 {
			budget = firstSnippetChars
		}
		text := snippet(r.Content, budget)

		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s\n%s", r.Title, text)

		citations = append(citations, evidence.Citation{
			Label:   r.Title,
			Locator: r.URL,
			Content: text,
		})
	}

	return evidence.Record{
		Status:     evidence.StatusOK,
		SourceUsed: evidence.SourceWeb,
		Answer:     sb.String(),
		Citations:  citations,
		Confidence: webConfidence,
		Missing:    []string{},
	}
}
