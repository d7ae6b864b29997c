// Package intel talks to a local OpenAI-compatible inference endpoint for the
// optional classification and translation steps. The pipeline never depends
// on it being present or healthy.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spsdaily/internal/config"
	"spsdaily/internal/domain"
	"spsdaily/internal/ports"
)

// Client posts chat completions to the configured endpoint.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

var _ ports.Classifier = (*Client)(nil)

// NewClient builds a client from configuration; returns nil when no endpoint
// is configured so callers can treat the collaborator as absent.
func NewClient(cfg config.IntelConfig) *Client {
	if cfg.Endpoint == "" {
		return nil
	}
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Classify asks for a yes/no verdict on whether the text fits the category's
// editorial line. Anything other than a leading "yes" counts as a no.
func (c *Client) Classify(ctx context.Context, category domain.Category, text string) (bool, error) {
	system := fmt.Sprintf(
		"You curate the %s section of a long-form digest. Answer strictly yes or no: is this a substantive %s article worth a reader's time (not a press release, listicle, or partisan commentary)?",
		category, category)

	answer, err := c.complete(ctx, system, text)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes"), nil
}

// Translate renders text into English from the given source language.
func (c *Client) Translate(ctx context.Context, text, sourceLang string) (string, error) {
	system := fmt.Sprintf("Translate the following %s text into natural English. Reply with the translation only.", sourceLang)

	answer, err := c.complete(ctx, system, text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("inference error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
