// Package openrouter is the adapter for the upstream completion provider.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"awake/backend/internal/config"
)

const maxErrorBodyBytes = 8 * 1024

// ErrMissingAPIKey signals an operator configuration problem, not a
// transient upstream failure. Callers surface it distinctly.
var ErrMissingAPIKey = errors.New("openrouter api key is not configured")

// ErrEmptyResponse is returned when the provider answers 2xx with no choices.
var ErrEmptyResponse = errors.New("no response from openrouter")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Model struct {
	ID                       string
	Name                     string
	ContextWindow            int
	PromptPriceMicrosUSD     int
	CompletionPriceMicrosUSD int
}

// APIError carries the provider's status code and raw error body for a
// non-2xx response. The client never retries; policy lives with the caller.
type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("openrouter returned %d: %s", e.StatusCode, e.Body)
}

type completionAPIRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionAPIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type listModelsAPIResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		ContextLength int    `json:"context_length"`
		Pricing       struct {
			Prompt     json.RawMessage `json:"prompt"`
			Completion json.RawMessage `json:"completion"`
		} `json:"pricing"`
		TopProvider struct {
			ContextLength int `json:"context_length"`
		} `json:"top_provider"`
	} `json:"data"`
}

type Client struct {
	apiKey     string
	baseURL    string
	referer    string
	title      string
	httpClient *http.Client
}

func NewClient(cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return Client{
		apiKey:     strings.TrimSpace(cfg.OpenRouterAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.OpenRouterBaseURL), "/"),
		referer:    strings.TrimSpace(cfg.FrontendURL),
		title:      strings.TrimSpace(cfg.AppTitle),
		httpClient: httpClient,
	}
}

// Complete sends the full ordered history to the provider and returns the
// first choice's content verbatim. The provider is stateless, so every call
// replays the entire conversation.
func (c Client) Complete(ctx context.Context, modelID string, messages []Message) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if strings.TrimSpace(modelID) == "" {
		return "", errors.New("model is required")
	}
	if len(messages) == 0 {
		return "", errors.New("messages are required")
	}

	payload, err := json.Marshal(completionAPIRequest{
		Model:    strings.TrimSpace(modelID),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal openrouter request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build openrouter request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request openrouter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var parsed completionAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode openrouter response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return parsed.Choices[0].Message.Content, nil
}

// ListModels fetches the provider's model catalog.
func (c Client) ListModels(ctx context.Context) ([]Model, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build openrouter models request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request openrouter models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var parsed listModelsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode openrouter models response: %w", err)
	}

	models := make([]Model, 0, len(parsed.Data))
	for _, model := range parsed.Data {
		id := strings.TrimSpace(model.ID)
		if id == "" {
			continue
		}

		name := strings.TrimSpace(model.Name)
		if name == "" {
			name = id
		}

		contextWindow := model.ContextLength
		if contextWindow <= 0 {
			contextWindow = model.TopProvider.ContextLength
		}

		models = append(models, Model{
			ID:                       id,
			Name:                     name,
			ContextWindow:            contextWindow,
			PromptPriceMicrosUSD:     parsePriceMicros(model.Pricing.Prompt),
			CompletionPriceMicrosUSD: parsePriceMicros(model.Pricing.Completion),
		})
	}

	return models, nil
}

func parsePriceMicros(raw json.RawMessage) int {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return 0
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		asFloat, err := strconv.ParseFloat(strings.TrimSpace(asString), 64)
		if err != nil {
			return 0
		}
		return roundMicros(asFloat)
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return roundMicros(asNumber)
	}

	return 0
}

func roundMicros(price float64) int {
	if price < 0 {
		return 0
	}
	return int(math.Round(price * 1_000_000))
}
