package rephrasing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"debatechat/backend/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req CompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-model", req.Model)
		assert.Equal(t, "say it nicer", req.Prompt)
		assert.Equal(t, 400, req.MaxTokens)
		assert.Equal(t, 1, req.N)
		assert.Equal(t, -3.0, req.LogitBias["5968"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CompletionResponse{
			ID:      "cmpl-1",
			Model:   "text-model",
			Choices: []CompletionChoice{{Index: 0, Text: ` I see your point."`, FinishReason: "stop"}},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL+"/", "test-key", "text-model", 400, 0.95, 5*time.Second)
	texts, err := client.Complete(context.Background(), "say it nicer", map[string]float64{"5968": -3})
	require.NoError(t, err)
	assert.Equal(t, []string{` I see your point."`}, texts)
}

func TestOpenAIClient_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(ErrorResponse{Error: &APIError{Message: "slow down", Type: "rate_limit"}})
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "", "m", 10, 1, 5*time.Second)
	_, err := client.Complete(context.Background(), "p", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.Contains(t, err.Error(), "slow down")
}

func TestMockCompleter_EchoesReply(t *testing.T) {
	m := NewMockCompleter(0, 0)
	texts, err := m.Complete(context.Background(), "Opponent: \"no way\"\nSupporter: \"taxes fund schools\"\n\nRewrite it.\n\nSupporter (polite): \"", nil)
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "taxes fund schools")
}

func TestMockCompleter_FailsAndHonoursContext(t *testing.T) {
	_, err := NewMockCompleter(0, 1).Complete(context.Background(), "x", nil)
	assert.ErrorIs(t, err, apperrors.ErrExternalService)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewMockCompleter(time.Hour, 0).Complete(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
