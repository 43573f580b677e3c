package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newslens/internal/model"
)

const validResponse = `## Common Themes
- rising energy prices dominate coverage
- government response criticized

## Source Perspectives
- BBC: focuses on policy implications
- Reuters: emphasizes market data

## Sentiment
- BBC: neutral
- Reuters: negative

## Potential Biases
- BBC: none apparent
- Reuters: market-centric framing

## Summary
Coverage converges on prices but diverges on blame.

## Key Takeaways
- prices are up
- responses vary
- markets are jittery
`

// callResult scripts one Call outcome of a fake provider.
type callResult struct {
	completion Completion
	err        error
}

type fakeProvider struct {
	name      string
	available bool
	results   []callResult
	calls     int
	costPer   float64
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Model() string   { return f.name + "-model" }
func (f *fakeProvider) Available() bool { return f.available }

func (f *fakeProvider) Call(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	if f.calls >= len(f.results) {
		return Completion{}, &CallError{Provider: f.name, Status: model.StatusTimeout, Err: errors.New("script exhausted")}
	}
	r := f.results[f.calls]
	f.calls++
	if r.err != nil {
		return Completion{}, r.err
	}
	return r.completion, nil
}

func (f *fakeProvider) Cost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn+tokensOut) * f.costPer
}

func success(text string) callResult {
	return callResult{completion: Completion{Text: text, Model: "fake-model", TokensIn: 100, TokensOut: 50}}
}

func failure(provider string, status model.AttemptStatus) callResult {
	return callResult{err: &CallError{Provider: provider, Status: status, Err: errors.New("scripted failure")}}
}

func newTestSynthesizer(providers ...Provider) *Synthesizer {
	return NewSynthesizer(providers, 4096, 2, time.Millisecond)
}

func testArticles() []model.Article {
	return []model.Article{
		{SourceName: "BBC", Title: "Energy prices rise", URL: "http://example.com/1", Published: time.Now(), Excerpt: "Prices up."},
		{SourceName: "Reuters", Title: "Markets react", URL: "http://example.com/2", Published: time.Now(), Excerpt: "Markets down."},
	}
}

func TestSynthesizeFirstProviderSucceeds(t *testing.T) {
	p := &fakeProvider{name: "anthropic", available: true, costPer: 0.001,
		results: []callResult{success(validResponse)}}

	s, err := newTestSynthesizer(p).Synthesize(context.Background(), "energy", testArticles())
	require.NoError(t, err)

	assert.Equal(t, "energy", s.Topic)
	assert.Equal(t, "anthropic", s.ProviderUsed)
	assert.Len(t, s.CommonThemes, 2)
	assert.Equal(t, model.SentimentNegative, s.Sentiment["Reuters"])

	require.Len(t, s.Attempts, 1)
	assert.Equal(t, model.StatusSuccess, s.Attempts[0].Status)
	assert.InDelta(t, 0.15, s.Attempts[0].CostUSD, 1e-9)
}

func TestSynthesizeFallsBackOnAuthError(t *testing.T) {
	first := &fakeProvider{name: "anthropic", available: true,
		results: []callResult{failure("anthropic", model.StatusAuthError)}}
	second := &fakeProvider{name: "openai", available: true,
		results: []callResult{success(validResponse)}}

	s, err := newTestSynthesizer(first, second).Synthesize(context.Background(), "energy", testArticles())
	require.NoError(t, err)

	// Auth errors are permanent: exactly one call, no retries.
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, "openai", s.ProviderUsed)

	require.Len(t, s.Attempts, 2)
	assert.Equal(t, model.StatusAuthError, s.Attempts[0].Status)
	assert.Equal(t, model.StatusSuccess, s.Attempts[1].Status)
}

func TestSynthesizeRetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{name: "openai", available: true, results: []callResult{
		failure("openai", model.StatusRateLimited),
		failure("openai", model.StatusTimeout),
		success(validResponse),
	}}

	s, err := newTestSynthesizer(p).Synthesize(context.Background(), "energy", testArticles())
	require.NoError(t, err)

	assert.Equal(t, 3, p.calls)
	require.Len(t, s.Attempts, 3)
	assert.Equal(t, model.StatusRateLimited, s.Attempts[0].Status)
	assert.Equal(t, model.StatusTimeout, s.Attempts[1].Status)
	assert.Equal(t, model.StatusSuccess, s.Attempts[2].Status)
}

func TestSynthesizeRetryBudgetBounded(t *testing.T) {
	// Three transient failures against a budget of 1+2 calls: the provider
	// is exhausted and the chain moves on.
	first := &fakeProvider{name: "anthropic", available: true, results: []callResult{
		failure("anthropic", model.StatusRateLimited),
		failure("anthropic", model.StatusRateLimited),
		failure("anthropic", model.StatusRateLimited),
	}}
	second := &fakeProvider{name: "openai", available: true,
		results: []callResult{success(validResponse)}}
	third := &fakeProvider{name: "gemini", available: true,
		results: []callResult{success(validResponse)}}

	s, err := newTestSynthesizer(first, second, third).Synthesize(context.Background(), "energy", testArticles())
	require.NoError(t, err)

	assert.Equal(t, 3, first.calls)
	assert.Equal(t, "openai", s.ProviderUsed)
	require.Len(t, s.Attempts, 4)

	// The chain stops at the first success.
	assert.Equal(t, 0, third.calls)
}

func TestSynthesizeSkipsUnavailableWithoutRecord(t *testing.T) {
	missing := &fakeProvider{name: "anthropic", available: false}
	p := &fakeProvider{name: "openai", available: true,
		results: []callResult{success(validResponse)}}

	s, err := newTestSynthesizer(missing, p).Synthesize(context.Background(), "energy", testArticles())
	require.NoError(t, err)

	assert.Equal(t, 0, missing.calls)
	require.Len(t, s.Attempts, 1)
	assert.Equal(t, "openai", s.Attempts[0].Provider)
}

func TestSynthesizeUnparseableResponseFallsBack(t *testing.T) {
	first := &fakeProvider{name: "anthropic", available: true, costPer: 0.001,
		results: []callResult{success("I'm sorry, I can't structure that.")}}
	second := &fakeProvider{name: "openai", available: true,
		results: []callResult{success(validResponse)}}

	s, err := newTestSynthesizer(first, second).Synthesize(context.Background(), "energy", testArticles())
	require.NoError(t, err)

	assert.Equal(t, "openai", s.ProviderUsed)
	require.Len(t, s.Attempts, 2)

	// The billed call keeps its cost but its status reflects the bad shape.
	assert.Equal(t, model.StatusInvalidResponse, s.Attempts[0].Status)
	assert.InDelta(t, 0.15, s.Attempts[0].CostUSD, 1e-9)
	assert.Equal(t, model.StatusSuccess, s.Attempts[1].Status)
}

func TestSynthesizeAllProvidersExhausted(t *testing.T) {
	first := &fakeProvider{name: "anthropic", available: true,
		results: []callResult{failure("anthropic", model.StatusAuthError)}}
	second := &fakeProvider{name: "openai", available: true, results: []callResult{
		failure("openai", model.StatusRateLimited),
		failure("openai", model.StatusRateLimited),
		failure("openai", model.StatusRateLimited),
	}}

	_, err := newTestSynthesizer(first, second).Synthesize(context.Background(), "energy", testArticles())
	require.Error(t, err)

	var exhausted *NoLLMAvailableError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 4)
}

func TestSynthesizeNoProviderConfigured(t *testing.T) {
	none := &fakeProvider{name: "anthropic", available: false}

	_, err := newTestSynthesizer(none).Synthesize(context.Background(), "energy", testArticles())

	var exhausted *NoLLMAvailableError
	require.ErrorAs(t, err, &exhausted)
	assert.Empty(t, exhausted.Attempts)
}

func TestAttemptLogEndsWithSuccess(t *testing.T) {
	p := &fakeProvider{name: "gemini", available: true, results: []callResult{
		failure("gemini", model.StatusTimeout),
		success(validResponse),
	}}

	s, err := newTestSynthesizer(p).Synthesize(context.Background(), "energy", testArticles())
	require.NoError(t, err)

	require.NotEmpty(t, s.Attempts)
	assert.Equal(t, model.StatusSuccess, s.Attempts[len(s.Attempts)-1].Status)
}

func TestClassifyUnknownErrorIsTimeout(t *testing.T) {
	assert.Equal(t, model.StatusTimeout, classify(errors.New("connection reset")))
	assert.Equal(t, model.StatusAuthError,
		classify(&CallError{Provider: "openai", Status: model.StatusAuthError, Err: errors.New("401")}))
}
