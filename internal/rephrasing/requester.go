package rephrasing

import (
	"context"
	"strings"
	"sync"
	"time"

	"debatechat/backend/internal/config"
	"debatechat/backend/internal/metrics"

	"github.com/rs/zerolog"
)

// Result is one generated rephrasing.
type Result struct {
	Strategy string
	Body     string
}

// Requester fans a prompt out to every strategy concurrently.
type Requester struct {
	completer   Completer
	templates   *Templates
	strategies  []string
	maxAttempts int
	retryDelay  time.Duration
	log         zerolog.Logger
}

func NewRequester(completer Completer, templates *Templates, cfg config.RephrasingConfig, logger zerolog.Logger) *Requester {
	return &Requester{
		completer:   completer,
		templates:   templates,
		strategies:  cfg.Strategies,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		log:         logger.With().Str("component", "rephrasing").Logger(),
	}
}

// Request asks for one rephrasing per strategy. Strategies that exhaust
// their attempts are left out; the rest are returned in strategy order.
// Cancelling ctx stops all retries.
func (r *Requester) Request(ctx context.Context, data PromptData) []Result {
	start := time.Now()
	slots := make([]*Result, len(r.strategies))

	var wg sync.WaitGroup
	for i, strategy := range r.strategies {
		wg.Add(1)
		go func(i int, strategy string) {
			defer wg.Done()
			body, ok := r.generateOne(ctx, strategy, data)
			if ok {
				slots[i] = &Result{Strategy: strategy, Body: body}
			}
		}(i, strategy)
	}
	wg.Wait()

	results := make([]Result, 0, len(slots))
	for _, slot := range slots {
		if slot != nil {
			results = append(results, *slot)
		}
	}
	metrics.RephrasingLatency.Observe(time.Since(start).Seconds())
	return results
}

func (r *Requester) generateOne(ctx context.Context, strategy string, data PromptData) (string, bool) {
	prompt, err := r.templates.Render(strategy, data)
	if err != nil {
		r.log.Error().Err(err).Str("strategy", strategy).Msg("failed to build prompt")
		metrics.RephrasingRequests.WithLabelValues(strategy, "error").Inc()
		return "", false
	}
	bias := config.LogitBiasFor(strategy)

	attempts := r.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			metrics.RephrasingRequests.WithLabelValues(strategy, "cancelled").Inc()
			return "", false
		}

		texts, err := r.completer.Complete(ctx, prompt, bias)
		if err == nil {
			for _, text := range texts {
				if body := Clean(text); body != "" {
					metrics.RephrasingRequests.WithLabelValues(strategy, "ok").Inc()
					return body, true
				}
			}
		}
		r.log.Warn().Err(err).Str("strategy", strategy).Int("attempt", attempt).Msg("rephrasing attempt failed")

		if attempt < attempts && r.retryDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.retryDelay * time.Duration(attempt)):
			}
		}
	}

	r.log.Error().Str("strategy", strategy).Int("attempts", attempts).Msg("giving up on rephrasing strategy")
	metrics.RephrasingRequests.WithLabelValues(strategy, "failed").Inc()
	return "", false
}

// Clean strips the whitespace and closing quotes completions end with,
// including whitespace left inside the quotes.
func Clean(text string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"`))
}
