package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"newslens/internal/logging"
	"newslens/internal/model"
)

// NoLLMAvailableError is the fatal aggregate: every configured provider's
// chain was exhausted. The full attempt log is preserved for the caller.
type NoLLMAvailableError struct {
	Attempts []model.ProviderAttempt
}

func (e *NoLLMAvailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "no LLM provider available: no provider has a configured credential"
	}
	var parts []string
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", a.Provider, a.Model, a.Status))
	}
	return "no LLM provider available, attempts: " + strings.Join(parts, "; ")
}

// Synthesizer runs the provider fallback chain for one synthesis.
//
// The chain is inherently sequential: each call's outcome decides whether
// the next provider is attempted, so providers are never called
// concurrently for one run.
type Synthesizer struct {
	providers      []Provider
	maxTokens      int
	maxRetries     uint64
	backoffInitial time.Duration
}

// NewSynthesizer creates a Synthesizer over an already-ordered provider
// chain. maxRetries is the number of extra attempts per provider for
// transient failures; backoffInitial seeds the exponential backoff.
func NewSynthesizer(providers []Provider, maxTokens int, maxRetries int, backoffInitial time.Duration) *Synthesizer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoffInitial <= 0 {
		backoffInitial = 500 * time.Millisecond
	}
	return &Synthesizer{
		providers:      providers,
		maxTokens:      maxTokens,
		maxRetries:     uint64(maxRetries),
		backoffInitial: backoffInitial,
	}
}

// Synthesize builds the prompt once, then walks the provider chain until a
// provider returns a parseable synthesis. Unavailable providers are skipped
// without an attempt record; every call that reaches a provider is logged
// with tokens, cost and latency.
func (s *Synthesizer) Synthesize(ctx context.Context, topic string, articles []model.Article) (*model.Synthesis, error) {
	prompt := BuildPrompt(topic, articles, s.maxTokens)

	var attempts []model.ProviderAttempt

	for _, p := range s.providers {
		if !p.Available() {
			logging.Debug("skipping unavailable provider", "provider", p.Name())
			continue
		}

		completion, providerAttempts, err := s.callWithRetry(ctx, p, prompt)
		attempts = append(attempts, providerAttempts...)
		if err != nil {
			logging.Warn("provider exhausted, falling back", "provider", p.Name(), "error", err)
			continue
		}

		synthesis, parseErr := ParseSynthesis(completion.Text)
		if parseErr != nil {
			// The call was billed but the shape is unusable. Rewrite the
			// terminal attempt and fall back; retrying the same provider
			// would get the same structure back.
			last := len(attempts) - 1
			attempts[last].Status = model.StatusInvalidResponse
			attempts[last].Err = parseErr.Error()
			logging.Warn("unparseable synthesis, falling back",
				"provider", p.Name(), "error", parseErr)
			continue
		}

		synthesis.Topic = topic
		synthesis.Timestamp = time.Now()
		synthesis.ProviderUsed = p.Name()
		synthesis.Attempts = attempts
		return synthesis, nil
	}

	return nil, &NoLLMAvailableError{Attempts: attempts}
}

// callWithRetry performs one provider's bounded retry loop. Transient
// failures (rate_limited, timeout) back off exponentially; auth errors and
// invalid responses are permanent and end the loop immediately. On success
// the returned records end with a success attempt.
func (s *Synthesizer) callWithRetry(ctx context.Context, p Provider, prompt string) (Completion, []model.ProviderAttempt, error) {
	var records []model.ProviderAttempt
	var completion Completion

	operation := func() error {
		start := time.Now()
		c, err := p.Call(ctx, prompt, s.maxTokens)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			status := classify(err)
			records = append(records, model.ProviderAttempt{
				Provider:  p.Name(),
				Model:     p.Model(),
				Status:    status,
				LatencyMS: latency,
				Err:       err.Error(),
			})
			if !status.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}

		completion = c
		records = append(records, model.ProviderAttempt{
			Provider:  p.Name(),
			Model:     c.Model,
			Status:    model.StatusSuccess,
			TokensIn:  c.TokensIn,
			TokensOut: c.TokensOut,
			CostUSD:   p.Cost(c.TokensIn, c.TokensOut),
			LatencyMS: latency,
		})
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.backoffInitial
	policy.RandomizationFactor = 0
	policy.Multiplier = 2

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx))
	return completion, records, err
}
