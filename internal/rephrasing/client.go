// Package rephrasing generates alternative wordings of a chat message by
// prompting a text-completion model once per strategy.
package rephrasing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"debatechat/backend/internal/apperrors"
)

// Completer is the external text-generation collaborator. It may be slow and
// may fail; callers retry.
type Completer interface {
	Complete(ctx context.Context, prompt string, logitBias map[string]float64) ([]string, error)
}

// OpenAIClient talks to an OpenAI-compatible /v1/completions endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	topP       float64
	httpClient *http.Client
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient creates a new completion client.
func NewOpenAIClient(baseURL, apiKey, model string, maxTokens int, topP float64, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		topP:      topP,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CompletionRequest is the legacy completion request body.
type CompletionRequest struct {
	Model     string             `json:"model"`
	Prompt    string             `json:"prompt"`
	MaxTokens int                `json:"max_tokens,omitempty"`
	TopP      float64            `json:"top_p,omitempty"`
	N         int                `json:"n"`
	LogitBias map[string]float64 `json:"logit_bias,omitempty"`
}

type CompletionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type CompletionResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Complete requests one completion for prompt and returns the text of every choice.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, logitBias map[string]float64) ([]string, error) {
	body, err := json.Marshal(&CompletionRequest{
		Model:     c.model,
		Prompt:    prompt,
		MaxTokens: c.maxTokens,
		TopP:      c.topP,
		N:         1,
		LogitBias: logitBias,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", apperrors.ErrExternalService, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, fmt.Errorf("%w: completion API error [%d]: %s (type: %s)", apperrors.ErrExternalService, resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
		}
		return nil, fmt.Errorf("%w: completion API error [%d]: %s", apperrors.ErrExternalService, resp.StatusCode, string(respBody))
	}

	var result CompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", apperrors.ErrExternalService, err)
	}

	texts := make([]string, 0, len(result.Choices))
	for _, choice := range result.Choices {
		texts = append(texts, choice.Text)
	}
	return texts, nil
}
