package model

import "time"

// Source is a named RSS feed. Identity is the URL.
type Source struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

// Article is a normalized feed entry. Immutable once created;
// owned by the run that fetched it.
type Article struct {
	SourceName string    `json:"source_name"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Published  time.Time `json:"published"`
	Excerpt    string    `json:"excerpt"`
	Authors    []string  `json:"authors,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
}

// AttemptStatus classifies the outcome of a single provider call.
type AttemptStatus string

const (
	StatusSuccess         AttemptStatus = "success"
	StatusAuthError       AttemptStatus = "auth_error"
	StatusRateLimited     AttemptStatus = "rate_limited"
	StatusTimeout         AttemptStatus = "timeout"
	StatusInvalidResponse AttemptStatus = "invalid_response"
)

// Retryable reports whether the status is a transient failure class
// worth retrying on the same provider.
func (s AttemptStatus) Retryable() bool {
	return s == StatusRateLimited || s == StatusTimeout
}

// ProviderAttempt records one call that actually reached a provider.
// Appended to an ordered attempt log, never mutated afterwards.
// Skipped (unavailable) providers produce no attempt record.
type ProviderAttempt struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Status    AttemptStatus `json:"status"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	CostUSD   float64       `json:"cost_usd"`
	LatencyMS int64         `json:"latency_ms"`
	Err       string        `json:"error,omitempty"`
}

// Sentiment is a per-source tone classification.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentMixed    Sentiment = "mixed"
)

// ParseSentiment maps free text to a Sentiment, defaulting to mixed
// when the model answers with anything outside the enum.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentMixed:
		return Sentiment(s)
	}
	return SentimentMixed
}

// Synthesis is the terminal artifact of a successful run.
//
// Invariant: Attempts is non-empty and its last entry has StatusSuccess.
// A Synthesis is never constructed when no attempt succeeded.
type Synthesis struct {
	ID           string               `json:"id"`
	Topic        string               `json:"topic"`
	Timestamp    time.Time            `json:"timestamp"`
	CommonThemes []string             `json:"common_themes"`
	Perspectives map[string]string    `json:"per_source_perspectives"`
	Sentiment    map[string]Sentiment `json:"sentiment"`
	Biases       map[string]string    `json:"biases"`
	Summary      string               `json:"summary"`
	Takeaways    []string             `json:"takeaways"`
	ProviderUsed string               `json:"provider_used"`
	Attempts     []ProviderAttempt    `json:"attempt_log"`
}
