package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"helpdesk-triage/internal/common/logger"
)

// OllamaClient completes prompts against a local Ollama runtime.
type OllamaClient struct {
	baseURL   string
	maxTokens int
	client    *http.Client
	logger    logger.Logger
}

func NewOllamaClient(baseURL string, maxTokens int, log logger.Logger) *OllamaClient {
	return &OllamaClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: maxTokens,
		client: &http.Client{
			// No client timeout - the per-model deadline comes in via ctx.
		},
		logger: log.With(map[string]interface{}{
			"component": "ollama",
		}),
	}
}

// Complete sends prompt to model and returns the raw completion text.
func (c *OllamaClient) Complete(ctx context.Context, model, prompt string) (string, error) {
	requestBody := map[string]interface{}{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.1,
			"top_p":       0.9,
			"num_predict": c.maxTokens,
		},
	}

	body, _ := json.Marshal(requestBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", ErrModelTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrModelUnavailable, resp.StatusCode)
	}

	var apiResponse struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		if ctx.Err() != nil {
			return "", ErrModelTimeout
		}
		return "", fmt.Errorf("%w: decode error: %v", ErrModelUnavailable, err)
	}

	if strings.TrimSpace(apiResponse.Response) == "" {
		return "", ErrEmptyOutput
	}

	return apiResponse.Response, nil
}

// ListModels probes the runtime for installed models. Used for startup
// diagnostics only; classification never depends on it.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrModelUnavailable, resp.StatusCode)
	}

	var apiResponse struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrModelUnavailable, err)
	}

	names := make([]string, 0, len(apiResponse.Models))
	for _, m := range apiResponse.Models {
		names = append(names, m.Name)
	}

	c.logger.Info("inference runtime reachable", map[string]interface{}{
		"models": names,
	})

	return names, nil
}
