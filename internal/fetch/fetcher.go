// Package fetch is the pipeline's fetch stage: it retrieves RSS/Atom feeds,
// normalizes entries into articles, and isolates failures per source.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"newslens/internal/logging"
	"newslens/internal/model"
)

// SourceError records a single source's failure. Non-fatal for the run
// unless every source fails.
type SourceError struct {
	Source model.Source
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Source.Name, e.Source.URL, e.Err)
}

func (e SourceError) Unwrap() error { return e.Err }

// Fetcher retrieves articles from RSS sources.
type Fetcher struct {
	client      *http.Client
	limiter     *rate.Limiter
	maxArticles int
	perSource   time.Duration
}

// New creates a Fetcher. maxArticles caps the entries kept per feed and
// perSource bounds a single source's fetch; both come from configuration.
func New(maxArticles int, perSource time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: perSource},
		// Feeds are third-party servers; four requests a second is plenty.
		limiter:     rate.NewLimiter(rate.Limit(4), 4),
		maxArticles: maxArticles,
		perSource:   perSource,
	}
}

// Fetch retrieves and normalizes articles from one source.
// An empty feed is an error: a source that contributes nothing failed.
func (f *Fetcher) Fetch(ctx context.Context, src model.Source) ([]model.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, f.perSource)
	defer cancel()

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "newslens/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	if len(feed.Items) == 0 {
		return nil, errors.New("no entries found in feed")
	}

	now := time.Now()
	articles := make([]model.Article, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if len(articles) >= f.maxArticles {
			break
		}
		article, ok := convertEntry(entry, src, now)
		if !ok {
			logging.Debug("skipping unusable feed entry", "source", src.Name, "title", entry.Title)
			continue
		}
		articles = append(articles, article)
	}

	if len(articles) == 0 {
		return nil, errors.New("no valid articles could be extracted")
	}

	return articles, nil
}

// FetchAll fetches every source concurrently. Results land in per-source
// slots and are concatenated in input order afterwards, so completion order
// never affects the order articles reach the synthesizer.
func (f *Fetcher) FetchAll(ctx context.Context, sources []model.Source) ([]model.Article, []SourceError) {
	slots := make([][]model.Article, len(sources))
	errs := make([]error, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src model.Source) {
			defer wg.Done()
			start := time.Now()
			articles, err := f.Fetch(ctx, src)
			if err != nil {
				logging.Warn("source fetch failed", "source", src.Name, "error", err)
				errs[i] = err
				return
			}
			logging.Info("source fetched", "source", src.Name,
				"articles", len(articles), "elapsed", time.Since(start))
			slots[i] = articles
		}(i, src)
	}
	wg.Wait()

	var all []model.Article
	var failures []SourceError
	for i, src := range sources {
		if errs[i] != nil {
			failures = append(failures, SourceError{Source: src, Err: errs[i]})
			continue
		}
		all = append(all, slots[i]...)
	}
	return all, failures
}

// convertEntry normalizes one feed entry. Entries without both a title and
// a link are unusable and dropped.
func convertEntry(entry *gofeed.Item, src model.Source, fetchTime time.Time) (model.Article, bool) {
	if entry.Title == "" || entry.Link == "" {
		return model.Article{}, false
	}

	published := fetchTime
	if entry.PublishedParsed != nil {
		published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		published = *entry.UpdatedParsed
	}

	excerpt := entry.Description
	if excerpt == "" && entry.Content != "" {
		excerpt = truncate(entry.Content, 500)
	}

	var authors []string
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	return model.Article{
		SourceName: src.Name,
		Title:      entry.Title,
		URL:        entry.Link,
		Published:  published,
		Excerpt:    excerpt,
		Authors:    authors,
		Tags:       entry.Categories,
	}, true
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
// Rune-aware to avoid breaking UTF-8 characters.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
