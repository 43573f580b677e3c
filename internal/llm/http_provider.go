package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"newslens/internal/logging"
	"newslens/internal/model"
)

// Compile-time interface satisfaction check
var _ Provider = (*HTTPProvider)(nil)

// Pricing is a model's USD price per one million tokens.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// ProviderConfig defines how to communicate with an LLM API.
type ProviderConfig struct {
	Name         string
	Endpoint     string
	APIKey       string
	Model        string
	AuthHeader   string            // "x-api-key" or "Authorization"
	AuthPrefix   string            // "" or "Bearer "
	ExtraHeaders map[string]string // e.g. anthropic-version

	// Request building
	BuildBody func(cfg *ProviderConfig, prompt string, maxTokens int) map[string]any

	// Response parsing, including token usage fields
	ParseResponse func(body []byte) (Completion, error)

	// Price table keyed by model name
	Pricing map[string]Pricing
}

// HTTPProvider is a generic HTTP-based LLM provider.
type HTTPProvider struct {
	config *ProviderConfig
	client *http.Client
}

// NewHTTPProvider creates a provider from config.
func NewHTTPProvider(cfg *ProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		config: cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *HTTPProvider) Name() string { return p.config.Name }

func (p *HTTPProvider) Model() string { return p.config.Model }

func (p *HTTPProvider) Available() bool { return p.config.APIKey != "" }

// Cost prices a call from the provider's table. Unknown models cost zero.
func (p *HTTPProvider) Cost(tokensIn, tokensOut int) float64 {
	pricing, ok := p.config.Pricing[p.config.Model]
	if !ok {
		return 0
	}
	return float64(tokensIn)*pricing.InputPerMTok/1e6 +
		float64(tokensOut)*pricing.OutputPerMTok/1e6
}

func (p *HTTPProvider) Call(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	if !p.Available() {
		return Completion{}, &CallError{
			Provider: p.config.Name,
			Status:   model.StatusAuthError,
			Err:      fmt.Errorf("%s provider not configured", p.config.Name),
		}
	}

	logging.Debug("provider request", "provider", p.config.Name, "model", p.config.Model)

	body := p.config.BuildBody(p.config, prompt, maxTokens)
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Completion{}, &CallError{
			Provider: p.config.Name,
			Status:   model.StatusInvalidResponse,
			Err:      fmt.Errorf("marshal request: %w", err),
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return Completion{}, &CallError{
			Provider: p.config.Name,
			Status:   model.StatusInvalidResponse,
			Err:      fmt.Errorf("create request: %w", err),
		}
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Completion{}, &CallError{
			Provider: p.config.Name,
			Status:   model.StatusTimeout,
			Err:      fmt.Errorf("request failed: %w", err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, &CallError{
			Provider: p.config.Name,
			Status:   model.StatusTimeout,
			Err:      fmt.Errorf("read response: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		logging.Error("API error", "provider", p.config.Name,
			"status", resp.StatusCode, "body", string(respBody))
		return Completion{}, &CallError{
			Provider:   p.config.Name,
			Status:     classifyHTTPStatus(resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Err:        fmt.Errorf("API error: %s", string(respBody)),
		}
	}

	completion, err := p.config.ParseResponse(respBody)
	if err != nil {
		return Completion{}, &CallError{
			Provider: p.config.Name,
			Status:   model.StatusInvalidResponse,
			Err:      fmt.Errorf("parse response: %w", err),
		}
	}
	if completion.Text == "" {
		return Completion{}, &CallError{
			Provider: p.config.Name,
			Status:   model.StatusInvalidResponse,
			Err:      errors.New("empty completion"),
		}
	}
	if completion.Model == "" {
		completion.Model = p.config.Model
	}

	// Some error-free responses omit usage; estimate so cost accounting
	// never silently drops a billed call.
	if completion.TokensIn == 0 {
		completion.TokensIn = estimateTokens(prompt)
	}
	if completion.TokensOut == 0 {
		completion.TokensOut = estimateTokens(completion.Text)
	}

	logging.Debug("provider response", "provider", p.config.Name, "model", completion.Model,
		"tokens_in", completion.TokensIn, "tokens_out", completion.TokensOut)

	return completion, nil
}

func (p *HTTPProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")

	if p.config.AuthHeader != "" && p.config.APIKey != "" {
		req.Header.Set(p.config.AuthHeader, p.config.AuthPrefix+p.config.APIKey)
	}

	for k, v := range p.config.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

// classifyHTTPStatus maps an HTTP status to the failure taxonomy.
// Permanent 4xx rejections other than auth and rate limits are treated like
// invalid responses: they correlate with the request/model pairing, not load,
// so they skip straight to the next provider.
func classifyHTTPStatus(code int) model.AttemptStatus {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.StatusAuthError
	case code == http.StatusTooManyRequests:
		return model.StatusRateLimited
	case code == http.StatusRequestTimeout || code >= 500:
		return model.StatusTimeout
	default:
		return model.StatusInvalidResponse
	}
}

// estimateTokens is the usual rough 4-chars-per-token heuristic.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}
