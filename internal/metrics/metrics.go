// Package metrics records one run's stage outcomes, latencies and spend.
//
// A Recorder is created per run and passed explicitly through the pipeline;
// there is no ambient global state, so concurrent runs are safe. Finalize
// freezes the record and Flush writes it exactly once.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"newslens/internal/logging"
	"newslens/internal/model"
)

// RunMetrics is the immutable record produced at run end.
type RunMetrics struct {
	RunID          string            `json:"run_id"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	StageDurations map[string]int64  `json:"stage_durations_ms"`
	StageStatus    map[string]string `json:"per_stage_status"`
	TotalCostUSD   float64           `json:"total_cost_usd"`
	TotalTokens    int               `json:"total_tokens"`
	SourcesOK      int               `json:"sources_ok"`
	SourcesFailed  int               `json:"sources_failed"`
	ArticleCount   int               `json:"article_count"`
}

// Recorder accumulates metrics for a single run.
// Stages run one at a time (the fetch stage's internal concurrency joins
// before reporting), so a plain mutex is enough.
type Recorder struct {
	mu        sync.Mutex
	runID     string
	startedAt time.Time
	starts    map[string]time.Time
	durations map[string]int64
	status    map[string]string
	costUSD   float64
	tokens    int
	sourcesOK int
	sourcesKO int
	articles  int
	final     *RunMetrics
	flushed   bool
}

// NewRecorder starts metrics collection for one run.
func NewRecorder() *Recorder {
	return &Recorder{
		runID:     uuid.NewString(),
		startedAt: time.Now(),
		starts:    make(map[string]time.Time),
		durations: make(map[string]int64),
		status:    make(map[string]string),
	}
}

// RunID returns the run's identifier.
func (r *Recorder) RunID() string {
	return r.runID
}

// StageStart marks the beginning of a named stage.
func (r *Recorder) StageStart(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts[stage] = time.Now()
}

// StageEnd records a stage's duration and terminal status.
func (r *Recorder) StageEnd(stage, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if start, ok := r.starts[stage]; ok {
		r.durations[stage] = time.Since(start).Milliseconds()
	}
	r.status[stage] = status
}

// RecordAttempts folds a provider attempt log into the cost/token totals.
// Skipped providers never produce attempts, so they never contribute cost.
func (r *Recorder) RecordAttempts(attempts []model.ProviderAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range attempts {
		r.costUSD += a.CostUSD
		r.tokens += a.TokensIn + a.TokensOut
	}
}

// RecordFetch tallies the fetch stage's join results.
func (r *Recorder) RecordFetch(sourcesOK, sourcesFailed, articles int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sourcesOK = sourcesOK
	r.sourcesKO = sourcesFailed
	r.articles = articles
}

// Finalize freezes the recorder into a RunMetrics. Later calls return the
// same record; nothing mutates after finalization.
func (r *Recorder) Finalize() *RunMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.final != nil {
		return r.final
	}

	durations := make(map[string]int64, len(r.durations))
	for k, v := range r.durations {
		durations[k] = v
	}
	status := make(map[string]string, len(r.status))
	for k, v := range r.status {
		status[k] = v
	}

	r.final = &RunMetrics{
		RunID:          r.runID,
		StartedAt:      r.startedAt,
		FinishedAt:     time.Now(),
		StageDurations: durations,
		StageStatus:    status,
		TotalCostUSD:   r.costUSD,
		TotalTokens:    r.tokens,
		SourcesOK:      r.sourcesOK,
		SourcesFailed:  r.sourcesKO,
		ArticleCount:   r.articles,
	}
	return r.final
}

// Flush finalizes and writes the metrics record once. Repeat calls are
// no-ops; a flush failure is logged, never fatal to the run.
func (r *Recorder) Flush(dir string) (*RunMetrics, error) {
	final := r.Finalize()

	r.mu.Lock()
	alreadyFlushed := r.flushed
	r.flushed = true
	r.mu.Unlock()
	if alreadyFlushed {
		return final, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return final, fmt.Errorf("create metrics dir: %w", err)
	}

	data, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		return final, fmt.Errorf("marshal metrics: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("metrics_%s.json", final.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return final, fmt.Errorf("write metrics: %w", err)
	}

	logging.Info("metrics flushed", "path", path,
		"cost_usd", final.TotalCostUSD, "tokens", final.TotalTokens)
	return final, nil
}
