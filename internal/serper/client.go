// Package serper is the adapter for the web-search provider. Search never
// returns an error: an unavailable or failing provider degrades to
// explanatory text so a search problem can never abort a chat turn.
package serper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"awake/backend/internal/config"
)

const maxResults = 5

const unconfiguredHelp = `Web search is not configured. To enable web search, set up one of these services:

1. **SerpAPI** (Recommended): Get a free API key from https://serpapi.com
2. **Google Custom Search**: Use Google's Custom Search API
3. **Bing Search**: Use Bing Search API

Once configured, web search will provide real-time information from the internet.`

const transportApology = "Web search encountered an error. Please try again or try a different query."

type Result struct {
	Title   string
	Snippet string
	Link    string
}

// Outcome is the explicit result variant of a search call. Provided is true
// only when real provider results back the text.
type Outcome struct {
	Text     string
	Provided bool
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type searchAPIResponse struct {
	OrganicResults []struct {
		Title       string `json:"title"`
		Snippet     string `json:"snippet"`
		Description string `json:"description"`
		Link        string `json:"link"`
	} `json:"organic_results"`
}

func NewClient(cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return Client{
		apiKey:     strings.TrimSpace(cfg.SerpAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.SerpBaseURL), "/"),
		httpClient: httpClient,
	}
}

func (c Client) Search(ctx context.Context, query string) Outcome {
	if c.apiKey == "" {
		return Outcome{Text: unconfiguredHelp}
	}

	results, err := c.fetch(ctx, query)
	if err != nil {
		log.Printf("web search failed: query_chars=%d err=%v", len(query), err)
		return Outcome{Text: transportApology}
	}
	if len(results) == 0 {
		return Outcome{Text: fmt.Sprintf("No search results found for %q", query)}
	}

	var block strings.Builder
	block.WriteString(fmt.Sprintf("🔍 **Web Search Results for %q:**\n\n", query))
	for i, result := range results {
		block.WriteString(fmt.Sprintf("%d. **%s**\n", i+1, result.Title))
		block.WriteString(fmt.Sprintf("   %s\n", result.Snippet))
		block.WriteString(fmt.Sprintf("   Link: %s\n\n", result.Link))
	}

	return Outcome{Text: block.String(), Provided: true}
}

func (c Client) fetch(ctx context.Context, query string) ([]Result, error) {
	endpoint, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("parse serp endpoint: %w", err)
	}

	params := endpoint.Query()
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("gl", "us")
	params.Set("num", fmt.Sprintf("%d", maxResults))
	endpoint.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build serp request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request serp: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("serp returned %d", resp.StatusCode)
	}

	var parsed searchAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode serp response: %w", err)
	}

	results := make([]Result, 0, maxResults)
	for _, item := range parsed.OrganicResults {
		snippet := strings.TrimSpace(item.Snippet)
		if snippet == "" {
			snippet = strings.TrimSpace(item.Description)
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(item.Title),
			Snippet: snippet,
			Link:    strings.TrimSpace(item.Link),
		})
		if len(results) >= maxResults {
			break
		}
	}

	return results, nil
}
