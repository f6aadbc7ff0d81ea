package rephrasing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"debatechat/backend/internal/apperrors"
)

// MockCompleter stands in for the completion API during development and load
// tests. It waits Latency per call and fails with probability FailureRate.
type MockCompleter struct {
	Latency     time.Duration
	FailureRate float64

	mu   sync.Mutex
	rand *rand.Rand
}

// Ensure MockCompleter implements the Completer interface.
var _ Completer = (*MockCompleter)(nil)

// NewMockCompleter creates a new mock completer.
func NewMockCompleter(latency time.Duration, failureRate float64) *MockCompleter {
	return &MockCompleter{
		Latency:     latency,
		FailureRate: failureRate,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var mockOpeners = []string{
	"What I'm hearing is that",
	"It makes sense that",
	"Could you say more about why",
	"I respectfully see it differently:",
}

// Complete returns a canned rephrasing of the prompt's last line.
func (m *MockCompleter) Complete(ctx context.Context, prompt string, _ map[string]float64) ([]string, error) {
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	if m.FailureRate > 0 && m.roll() < m.FailureRate {
		return nil, fmt.Errorf("%w: mock failure", apperrors.ErrExternalService)
	}

	h := fnv.New32a()
	h.Write([]byte(prompt))
	opener := mockOpeners[h.Sum32()%uint32(len(mockOpeners))]
	return []string{opener + " " + lastLine(prompt) + `"`}, nil
}

func (m *MockCompleter) roll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rand == nil {
		m.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return m.rand.Float64()
}

// lastLine returns the text of the last quoted `Speaker: "text"` line.
func lastLine(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		idx := strings.Index(lines[i], `: "`)
		if idx < 0 {
			continue
		}
		if text := strings.Trim(strings.TrimSpace(lines[i][idx+2:]), `"`); text != "" {
			return text
		}
	}
	return ""
}
