package rephrasing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"debatechat/backend/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string, logitBias map[string]float64) ([]string, error) {
	args := m.Called(ctx, prompt, logitBias)
	texts, _ := args.Get(0).([]string)
	return texts, args.Error(1)
}

// promptFor matches the prompt rendered by a one-line strategy template.
func promptFor(strategy string) interface{} {
	return mock.MatchedBy(func(p string) bool { return p == strategy })
}

func newTestRequester(t *testing.T, c Completer, strategies []string, attempts int) *Requester {
	t.Helper()
	templates, err := NewTemplates("")
	require.NoError(t, err)
	for _, s := range strategies {
		require.NoError(t, templates.add(s, s))
	}
	return NewRequester(c, templates, config.RephrasingConfig{
		Strategies:  strategies,
		MaxAttempts: attempts,
		RetryDelay:  time.Millisecond,
	}, zerolog.Nop())
}

func TestRequest_PartialFailure(t *testing.T) {
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, promptFor("restate"), mock.Anything).Return([]string{` restated "`}, nil)
	c.On("Complete", mock.Anything, promptFor("polite"), mock.Anything).Return(nil, errors.New("boom"))

	r := newTestRequester(t, c, []string{"restate", "polite"}, 3)
	results := r.Request(context.Background(), PromptData{})

	require.Len(t, results, 1)
	assert.Equal(t, Result{Strategy: "restate", Body: "restated"}, results[0])
	c.AssertNumberOfCalls(t, "Complete", 1+3)
}

func TestRequest_RetriesUntilSuccess(t *testing.T) {
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, promptFor("clarify"), mock.Anything).Return(nil, errors.New("flaky")).Twice()
	c.On("Complete", mock.Anything, promptFor("clarify"), mock.Anything).Return([]string{"", "why so?"}, nil).Once()

	r := newTestRequester(t, c, []string{"clarify"}, 5)
	results := r.Request(context.Background(), PromptData{})

	require.Len(t, results, 1)
	assert.Equal(t, "why so?", results[0].Body)
	c.AssertNumberOfCalls(t, "Complete", 3)
}

func TestRequest_PassesStrategyBias(t *testing.T) {
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(b map[string]float64) bool {
		return b["1026"] == -2 && b["31699"] == -3
	})).Return([]string{"ok"}, nil)

	r := newTestRequester(t, c, []string{"validate"}, 1)
	results := r.Request(context.Background(), PromptData{})
	assert.Len(t, results, 1)
	c.AssertExpectations(t)
}

type blockingCompleter struct {
	mu    sync.Mutex
	calls int
}

func (b *blockingCompleter) Complete(ctx context.Context, _ string, _ map[string]float64) ([]string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRequest_CancelStopsRetries(t *testing.T) {
	c := &blockingCompleter{}
	r := newTestRequester(t, c, []string{"restate", "validate"}, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan []Result)
	go func() { done <- r.Request(ctx, PromptData{}) }()

	select {
	case results := <-done:
		assert.Empty(t, results)
	case <-time.After(2 * time.Second):
		t.Fatal("Request did not return after cancellation")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 2, c.calls, "no retries after cancel")
}

func TestClean(t *testing.T) {
	assert.Equal(t, "hello there", Clean("  hello there\"\n"))
	assert.Equal(t, "", Clean(` " `))
	assert.Equal(t, "restated", Clean(` restated "`))
	assert.Equal(t, "quoted text", Clean(`" quoted text "`))
}
