package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultEndpoint is the Tavily API base URL.
const DefaultEndpoint = "https://api.tavily.com"

// DefaultRelevance is assigned to provider results.
const DefaultRelevance = 0.9

// ErrNoAPIKey is returned when no provider key is configured.
var ErrNoAPIKey = errors.New("search api key is not set")

// Searcher performs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string, maxResults int) ([]Result, error)

func (f SearcherFunc) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	return f(ctx, query, maxResults)
}

// TavilyClient searches through a Tavily-compatible HTTP API.
type TavilyClient struct {
	client *resty.Client
	apiKey string
}

// NewTavilyClient creates a client for endpoint (DefaultEndpoint when empty).
func NewTavilyClient(endpoint, apiKey string) *TavilyClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &TavilyClient{
		client: resty.New().
			SetBaseURL(endpoint).
			SetTimeout(30*time.Second).
			SetHeader("Content-Type", "application/json"),
		apiKey: apiKey,
	}
}

type searchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one query.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	var out searchResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(searchRequest{
			APIKey:      c.apiKey,
			Query:       query,
			SearchDepth: "basic",
			MaxResults:  maxResults,
		}).
		SetResult(&out).
		Post("/search")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /search: %s: %s", resp.Status(), resp.String())
	}

	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, Result{
			Title:          r.Title,
			Content:        r.Content,
			Source:         r.URL,
			RelevanceScore: DefaultRelevance,
		})
	}
	return results, nil
}
