package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newslens/internal/model"
)

func sampleSynthesis() *model.Synthesis {
	return &model.Synthesis{
		ID:           "20260827_120000_energy",
		Topic:        "energy",
		Timestamp:    time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
		CommonThemes: []string{"prices rising", "policy pressure"},
		Perspectives: map[string]string{
			"Reuters": "market angle",
			"BBC":     "policy angle",
		},
		Sentiment: map[string]model.Sentiment{
			"BBC":     model.SentimentNeutral,
			"Reuters": model.SentimentNegative,
		},
		Biases: map[string]string{
			"BBC": "none apparent",
		},
		Summary:      "A balanced paragraph.",
		Takeaways:    []string{"one", "two", "three"},
		ProviderUsed: "anthropic",
		Attempts: []model.ProviderAttempt{
			{Provider: "openai", Model: "gpt-4o-mini", Status: model.StatusRateLimited, LatencyMS: 300},
			{Provider: "anthropic", Model: "claude-3-haiku-20240307", Status: model.StatusSuccess,
				TokensIn: 1200, TokensOut: 600, CostUSD: 0.0012, LatencyMS: 2100},
		},
	}
}

func TestRenderWritesReport(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	path, err := r.Render(sampleSynthesis(), 12)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260827_120000_energy.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)

	assert.Contains(t, body, "# News Analysis: energy")
	assert.Contains(t, body, "- prices rising")
	assert.Contains(t, body, "**BBC**: policy angle")
	assert.Contains(t, body, "| Reuters | negative |")
	assert.Contains(t, body, "A balanced paragraph.")
	assert.Contains(t, body, "**Provider:** anthropic")
	assert.Contains(t, body, "**Articles:** 12 from 2 source(s)")
}

func TestRenderIncludesAttemptTable(t *testing.T) {
	r := New(t.TempDir())

	path, err := r.Render(sampleSynthesis(), 12)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)

	assert.Contains(t, body, "| openai | gpt-4o-mini | rate_limited |")
	assert.Contains(t, body, "| anthropic | claude-3-haiku-20240307 | success | 1200/600 | 0.0012 | 2100ms |")
}

func TestRenderSourceRowsAreSorted(t *testing.T) {
	r := New(t.TempDir())

	path, err := r.Render(sampleSynthesis(), 12)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)

	bbc := strings.Index(body, "| BBC |")
	reuters := strings.Index(body, "| Reuters |")
	require.GreaterOrEqual(t, bbc, 0)
	require.GreaterOrEqual(t, reuters, 0)
	assert.Less(t, bbc, reuters)
}

func TestRenderFallsBackToTimestampID(t *testing.T) {
	r := New(t.TempDir())

	s := sampleSynthesis()
	s.ID = ""
	path, err := r.Render(s, 1)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "20260827_120000")
}
