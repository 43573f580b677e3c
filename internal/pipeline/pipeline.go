// Package pipeline composes the stages of one analysis run and decides,
// per stage, whether the run continues or aborts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"newslens/internal/fetch"
	"newslens/internal/llm"
	"newslens/internal/logging"
	"newslens/internal/metrics"
	"newslens/internal/model"
	"newslens/internal/store"
)

// Options tunes one run. Provider order, token budget and the per-source
// article cap are fixed when the stages are constructed; these flags gate
// the best-effort stages.
type Options struct {
	SkipStorage bool
	SkipOutput  bool
}

// Request is the read-only input of one run.
type Request struct {
	Topic   string
	Sources []model.Source
	Options Options
}

// Status is the run outcome.
type Status int

const (
	// Completed: synthesis produced, all post-processing succeeded.
	Completed Status = iota
	// PartialFailure: synthesis produced but storage or output degraded.
	PartialFailure
	// Aborted: no synthesis; Err carries the fatal cause.
	Aborted
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case PartialFailure:
		return "partial_failure"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// NoArticlesError is the fatal aggregate of the fetch stage: every source
// failed, leaving nothing to synthesize.
type NoArticlesError struct {
	Failures []fetch.SourceError
}

func (e *NoArticlesError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return "no articles fetched from any source: " + strings.Join(parts, "; ")
}

// Result is the outcome of one run. Metrics are always present; the
// synthesis only on Completed/PartialFailure.
type Result struct {
	Status       Status
	Synthesis    *model.Synthesis
	Articles     []model.Article
	StorageID    string
	OutputPath   string
	SourceErrors []fetch.SourceError
	Notes        []string
	Metrics      *metrics.RunMetrics
	Err          error
}

// Fetcher is the fetch stage seam.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []model.Source) ([]model.Article, []fetch.SourceError)
}

// Synthesizer is the LLM stage seam.
type Synthesizer interface {
	Synthesize(ctx context.Context, topic string, articles []model.Article) (*model.Synthesis, error)
}

// Archiver is the storage stage seam.
type Archiver interface {
	Save(synthesis *model.Synthesis, articles []model.Article, sources, failedSources []string) (string, error)
}

// Renderer is the output stage seam.
type Renderer interface {
	Render(synthesis *model.Synthesis, articleCount int) (string, error)
}

// Pipeline wires the stages together. Implementations are chosen at
// construction time; nil storage/renderer disable those stages.
type Pipeline struct {
	fetcher     Fetcher
	synthesizer Synthesizer
	archiver    Archiver
	renderer    Renderer
	metricsDir  string
	runTimeout  time.Duration
}

// New builds a Pipeline from its stages. metricsDir receives the per-run
// metrics record; runTimeout bounds the whole run (zero means no bound).
func New(fetcher Fetcher, synthesizer Synthesizer, archiver Archiver, renderer Renderer, metricsDir string, runTimeout time.Duration) *Pipeline {
	return &Pipeline{
		fetcher:     fetcher,
		synthesizer: synthesizer,
		archiver:    archiver,
		renderer:    renderer,
		metricsDir:  metricsDir,
		runTimeout:  runTimeout,
	}
}

// Run executes the fetch, synthesize, store and render stages for one
// request.
// Metrics are finalized and flushed on every path, success or abort.
func (p *Pipeline) Run(ctx context.Context, req Request) Result {
	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	rec := metrics.NewRecorder()
	logging.Info("pipeline started", "run_id", rec.RunID(),
		"topic", req.Topic, "sources", len(req.Sources))

	result := p.run(ctx, req, rec)

	final, err := rec.Flush(p.metricsDir)
	if err != nil {
		logging.Error("metrics flush failed", "error", err)
	}
	result.Metrics = final

	logging.Info("pipeline finished", "run_id", rec.RunID(),
		"status", result.Status.String(), "cost_usd", final.TotalCostUSD)
	return result
}

func (p *Pipeline) run(ctx context.Context, req Request, rec *metrics.Recorder) Result {
	// Stage 1: fetch. Individual source failures are recorded and
	// excluded; only an empty aggregate aborts.
	rec.StageStart("fetch")
	articles, sourceErrors := p.fetcher.FetchAll(ctx, req.Sources)
	rec.RecordFetch(len(req.Sources)-len(sourceErrors), len(sourceErrors), len(articles))

	if len(articles) == 0 {
		rec.StageEnd("fetch", "failed")
		err := &NoArticlesError{Failures: sourceErrors}
		logging.Error("fetch stage produced no articles", "error", err)
		return Result{Status: Aborted, SourceErrors: sourceErrors, Err: err}
	}
	rec.StageEnd("fetch", "ok")
	logging.Info("fetch stage complete", "articles", len(articles),
		"sources_ok", len(req.Sources)-len(sourceErrors), "sources_failed", len(sourceErrors))

	// Stage 2: synthesize. Runs exactly once against the aggregate;
	// provider exhaustion is fatal.
	rec.StageStart("synthesize")
	synthesis, err := p.synthesizer.Synthesize(ctx, req.Topic, articles)
	if err != nil {
		rec.StageEnd("synthesize", "failed")
		if exhausted, ok := errAsNoLLM(err); ok {
			rec.RecordAttempts(exhausted)
		}
		return Result{Status: Aborted, Articles: articles, SourceErrors: sourceErrors, Err: err}
	}
	synthesis.ID = store.MakeID(req.Topic, synthesis.Timestamp)
	rec.RecordAttempts(synthesis.Attempts)
	rec.StageEnd("synthesize", "ok")

	result := Result{
		Status:       Completed,
		Synthesis:    synthesis,
		Articles:     articles,
		SourceErrors: sourceErrors,
	}

	sources, failed := sourceNameLists(req.Sources, sourceErrors)

	// Stage 3: storage, best effort. A failure degrades the result but
	// never overturns the synthesis.
	if p.archiver != nil && !req.Options.SkipStorage {
		rec.StageStart("store")
		id, err := p.archiver.Save(synthesis, articles, sources, failed)
		if err != nil {
			rec.StageEnd("store", "failed")
			logging.Error("storage stage failed", "error", err)
			result.Status = PartialFailure
			result.Notes = append(result.Notes, fmt.Sprintf("storage failed: %v", err))
		} else {
			rec.StageEnd("store", "ok")
			result.StorageID = id
		}
	} else {
		rec.StageEnd("store", "skipped")
	}

	// Stage 4: output, best effort.
	if p.renderer != nil && !req.Options.SkipOutput {
		rec.StageStart("render")
		path, err := p.renderer.Render(synthesis, len(articles))
		if err != nil {
			rec.StageEnd("render", "failed")
			logging.Error("output stage failed", "error", err)
			result.Status = PartialFailure
			result.Notes = append(result.Notes, fmt.Sprintf("output failed: %v", err))
		} else {
			rec.StageEnd("render", "ok")
			result.OutputPath = path
		}
	} else {
		rec.StageEnd("render", "skipped")
	}

	return result
}

// errAsNoLLM extracts the attempt log from a provider exhaustion error so
// the billed cost of a failed run still reaches the metrics record.
func errAsNoLLM(err error) ([]model.ProviderAttempt, bool) {
	var exhausted *llm.NoLLMAvailableError
	if errors.As(err, &exhausted) {
		return exhausted.Attempts, true
	}
	return nil, false
}

func sourceNameLists(sources []model.Source, failures []fetch.SourceError) (all, failed []string) {
	for _, f := range failures {
		failed = append(failed, f.Source.Name)
	}
	for _, s := range sources {
		all = append(all, s.Name)
	}
	return all, failed
}
