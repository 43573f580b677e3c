package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newslens/internal/fetch"
	"newslens/internal/llm"
	"newslens/internal/model"
)

type fakeFetcher struct {
	articles []model.Article
	failures []fetch.SourceError
}

func (f *fakeFetcher) FetchAll(ctx context.Context, sources []model.Source) ([]model.Article, []fetch.SourceError) {
	return f.articles, f.failures
}

type fakeSynthesizer struct {
	synthesis *model.Synthesis
	err       error
	calls     int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, topic string, articles []model.Article) (*model.Synthesis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := *f.synthesis
	s.Topic = topic
	return &s, nil
}

type fakeArchiver struct {
	err   error
	calls int
	id    string
}

func (f *fakeArchiver) Save(synthesis *model.Synthesis, articles []model.Article, sources, failedSources []string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.id = synthesis.ID
	return synthesis.ID, nil
}

type fakeRenderer struct {
	err   error
	calls int
}

func (f *fakeRenderer) Render(synthesis *model.Synthesis, articleCount int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/report.md", nil
}

func goodSynthesis() *model.Synthesis {
	return &model.Synthesis{
		Timestamp:    time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
		CommonThemes: []string{"a theme"},
		Summary:      "A summary.",
		ProviderUsed: "openai",
		Attempts: []model.ProviderAttempt{
			{Provider: "openai", Status: model.StatusSuccess,
				TokensIn: 100, TokensOut: 50, CostUSD: 0.01},
		},
	}
}

func testSources() []model.Source {
	return []model.Source{
		{Name: "BBC", URL: "http://bbc.example/rss"},
		{Name: "Reuters", URL: "http://reuters.example/rss"},
	}
}

func testArticles() []model.Article {
	return []model.Article{
		{SourceName: "BBC", Title: "One", URL: "http://bbc.example/1"},
		{SourceName: "Reuters", Title: "Two", URL: "http://reuters.example/2"},
	}
}

func TestRunCompleted(t *testing.T) {
	archiver := &fakeArchiver{}
	renderer := &fakeRenderer{}
	p := New(&fakeFetcher{articles: testArticles()},
		&fakeSynthesizer{synthesis: goodSynthesis()},
		archiver, renderer, t.TempDir(), 0)

	result := p.Run(context.Background(), Request{Topic: "energy", Sources: testSources()})

	assert.Equal(t, Completed, result.Status)
	require.NotNil(t, result.Synthesis)
	assert.Equal(t, "energy", result.Synthesis.Topic)
	assert.NotEmpty(t, result.Synthesis.ID)
	assert.Equal(t, result.Synthesis.ID, result.StorageID)
	assert.Equal(t, "/tmp/report.md", result.OutputPath)
	assert.Equal(t, 1, archiver.calls)
	assert.Equal(t, 1, renderer.calls)

	require.NotNil(t, result.Metrics)
	assert.InDelta(t, 0.01, result.Metrics.TotalCostUSD, 1e-9)
	assert.Equal(t, 150, result.Metrics.TotalTokens)
	assert.Equal(t, "ok", result.Metrics.StageStatus["fetch"])
	assert.Equal(t, "ok", result.Metrics.StageStatus["synthesize"])
}

func TestRunAbortsWhenNoArticles(t *testing.T) {
	failures := []fetch.SourceError{
		{Source: testSources()[0], Err: errors.New("connection refused")},
		{Source: testSources()[1], Err: errors.New("bad xml")},
	}
	synth := &fakeSynthesizer{synthesis: goodSynthesis()}
	archiver := &fakeArchiver{}
	p := New(&fakeFetcher{failures: failures}, synth, archiver, &fakeRenderer{}, t.TempDir(), 0)

	result := p.Run(context.Background(), Request{Topic: "energy", Sources: testSources()})

	assert.Equal(t, Aborted, result.Status)
	var noArticles *NoArticlesError
	require.ErrorAs(t, result.Err, &noArticles)
	assert.Len(t, noArticles.Failures, 2)

	// Nothing past the fetch stage runs.
	assert.Equal(t, 0, synth.calls)
	assert.Equal(t, 0, archiver.calls)
	assert.Equal(t, "failed", result.Metrics.StageStatus["fetch"])
}

func TestRunPartialSourceFailureStillCompletes(t *testing.T) {
	failures := []fetch.SourceError{
		{Source: testSources()[1], Err: errors.New("timeout")},
	}
	p := New(&fakeFetcher{articles: testArticles()[:1], failures: failures},
		&fakeSynthesizer{synthesis: goodSynthesis()},
		&fakeArchiver{}, &fakeRenderer{}, t.TempDir(), 0)

	result := p.Run(context.Background(), Request{Topic: "energy", Sources: testSources()})

	assert.Equal(t, Completed, result.Status)
	assert.Len(t, result.SourceErrors, 1)
	assert.Equal(t, 1, result.Metrics.SourcesOK)
	assert.Equal(t, 1, result.Metrics.SourcesFailed)
}

func TestRunAbortsOnProviderExhaustion(t *testing.T) {
	exhausted := &llm.NoLLMAvailableError{Attempts: []model.ProviderAttempt{
		{Provider: "openai", Status: model.StatusRateLimited, CostUSD: 0},
		{Provider: "gemini", Status: model.StatusAuthError},
	}}
	archiver := &fakeArchiver{}
	p := New(&fakeFetcher{articles: testArticles()},
		&fakeSynthesizer{err: exhausted}, archiver, &fakeRenderer{}, t.TempDir(), 0)

	result := p.Run(context.Background(), Request{Topic: "energy", Sources: testSources()})

	assert.Equal(t, Aborted, result.Status)
	var noLLM *llm.NoLLMAvailableError
	assert.ErrorAs(t, result.Err, &noLLM)
	assert.Equal(t, 0, archiver.calls)
	assert.Equal(t, "failed", result.Metrics.StageStatus["synthesize"])
}

func TestRunStorageFailureIsPartial(t *testing.T) {
	renderer := &fakeRenderer{}
	p := New(&fakeFetcher{articles: testArticles()},
		&fakeSynthesizer{synthesis: goodSynthesis()},
		&fakeArchiver{err: errors.New("disk full")}, renderer, t.TempDir(), 0)

	result := p.Run(context.Background(), Request{Topic: "energy", Sources: testSources()})

	// The synthesis survives a storage failure; later stages still run.
	assert.Equal(t, PartialFailure, result.Status)
	require.NotNil(t, result.Synthesis)
	assert.Empty(t, result.StorageID)
	assert.Equal(t, 1, renderer.calls)
	assert.Equal(t, "/tmp/report.md", result.OutputPath)
	require.Len(t, result.Notes, 1)
	assert.Contains(t, result.Notes[0], "storage failed")
}

func TestRunOutputFailureIsPartial(t *testing.T) {
	p := New(&fakeFetcher{articles: testArticles()},
		&fakeSynthesizer{synthesis: goodSynthesis()},
		&fakeArchiver{}, &fakeRenderer{err: errors.New("read-only fs")}, t.TempDir(), 0)

	result := p.Run(context.Background(), Request{Topic: "energy", Sources: testSources()})

	assert.Equal(t, PartialFailure, result.Status)
	assert.NotEmpty(t, result.StorageID)
	require.Len(t, result.Notes, 1)
	assert.Contains(t, result.Notes[0], "output failed")
}

func TestRunSkipFlags(t *testing.T) {
	archiver := &fakeArchiver{}
	renderer := &fakeRenderer{}
	p := New(&fakeFetcher{articles: testArticles()},
		&fakeSynthesizer{synthesis: goodSynthesis()},
		archiver, renderer, t.TempDir(), 0)

	result := p.Run(context.Background(), Request{
		Topic:   "energy",
		Sources: testSources(),
		Options: Options{SkipStorage: true, SkipOutput: true},
	})

	assert.Equal(t, Completed, result.Status)
	assert.Equal(t, 0, archiver.calls)
	assert.Equal(t, 0, renderer.calls)
	assert.Equal(t, "skipped", result.Metrics.StageStatus["store"])
	assert.Equal(t, "skipped", result.Metrics.StageStatus["render"])
}

func TestRunAlwaysFlushesMetrics(t *testing.T) {
	dir := t.TempDir()
	p := New(&fakeFetcher{}, &fakeSynthesizer{synthesis: goodSynthesis()},
		&fakeArchiver{}, &fakeRenderer{}, dir, 0)

	result := p.Run(context.Background(), Request{Topic: "energy", Sources: testSources()})
	require.Equal(t, Aborted, result.Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "metrics_")
}
