// Package llm is the synthesis core: an interchangeable provider layer and
// the fallback engine that drives it.
package llm

import (
	"context"
	"errors"
	"fmt"

	"newslens/internal/model"
)

// Provider is one interchangeable LLM backend.
type Provider interface {
	// Name returns the provider name (e.g. "anthropic", "openai")
	Name() string

	// Model returns the model the provider will call
	Model() string

	// Available reports whether the provider holds a usable credential.
	// Unavailable providers are skipped without counting as an attempt.
	Available() bool

	// Call sends a prompt and returns the completion with token usage.
	// Errors are *CallError values classified into the failure taxonomy.
	Call(ctx context.Context, prompt string, maxTokens int) (Completion, error)

	// Cost prices a call from the provider's price table.
	Cost(tokensIn, tokensOut int) float64
}

// Completion is a provider's answer plus its token accounting.
type Completion struct {
	Text      string
	Model     string
	TokensIn  int
	TokensOut int
}

// CallError is a provider call failure classified for the retry policy.
type CallError struct {
	Provider   string
	Status     model.AttemptStatus
	HTTPStatus int
	Err        error
}

func (e *CallError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Status, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Status, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// classify maps an error from Provider.Call to an attempt status.
// Anything unrecognized (cancelled contexts, network trouble) counts as a
// timeout-class transient failure.
func classify(err error) model.AttemptStatus {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Status
	}
	return model.StatusTimeout
}
