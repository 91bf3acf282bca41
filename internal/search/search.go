// Package search provides the web search tool used by the collect task of a crew.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/research-crew/internal/config"
)

const defaultBaseURL = "https://google.serper.dev"

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// New returns a Serper client, or Disabled when no API key is configured.
func New(cfg config.SearchConfig) Searcher {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Disabled{}
	}
	return NewSerper(cfg)
}

// Disabled returns no results and never fails.
type Disabled struct{}

func (Disabled) Search(context.Context, string) ([]Result, error) {
	return nil, nil
}

// Serper calls a Serper-compatible JSON search API.
type Serper struct {
	baseURL    string
	apiKey     string
	maxResults int
	http       *http.Client
}

func NewSerper(cfg config.SearchConfig) *Serper {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Serper{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		http:       &http.Client{Timeout: timeout},
	}
}

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type serperResponse struct {
	Organic []Result `json:"organic"`
}

func (s *Serper) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}

	payload, err := json.Marshal(serperRequest{Query: query, Num: s.maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search request failed: status %s", resp.Status)
	}

	var decoded serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if len(decoded.Organic) > s.maxResults {
		decoded.Organic = decoded.Organic[:s.maxResults]
	}
	return decoded.Organic, nil
}

// FormatResults renders hits as a numbered list for a prompt.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.Link)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
