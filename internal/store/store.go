// Package store persists runs as keyed JSON records: raw articles in raw/,
// synthesis records in syntheses/, plus an append-only index.json.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"newslens/internal/model"
)

// SynthesisRecord is the persisted shape of one analysis.
type SynthesisRecord struct {
	Identifier    string          `json:"identifier"`
	Timestamp     time.Time       `json:"timestamp"`
	Synthesis     model.Synthesis `json:"synthesis"`
	ArticleCount  int             `json:"article_count"`
	Sources       []string        `json:"sources"`
	FailedSources []string        `json:"failed_sources,omitempty"`
}

// RawRecord holds the articles a synthesis was produced from.
type RawRecord struct {
	Identifier string          `json:"identifier"`
	Timestamp  time.Time       `json:"timestamp"`
	Topic      string          `json:"topic"`
	Articles   []model.Article `json:"articles"`
}

// IndexEntry is one line of the history index.
type IndexEntry struct {
	Identifier   string    `json:"identifier"`
	Timestamp    time.Time `json:"timestamp"`
	Topic        string    `json:"topic"`
	Sources      []string  `json:"sources"`
	ArticleCount int       `json:"article_count"`
}

type index struct {
	Syntheses []IndexEntry `json:"syntheses"`
}

// Store is JSON-file persistence rooted at one directory.
type Store struct {
	root string
}

// New creates the store layout under root.
func New(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, "raw"), filepath.Join(root, "syntheses")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

var (
	slugStrip = regexp.MustCompile(`[^a-z0-9\s_-]`)
	slugSpace = regexp.MustCompile(`[-\s]+`)
)

// Slugify converts a topic into an identifier-safe slug, 50 chars max.
func Slugify(text string) string {
	slug := strings.ToLower(strings.TrimSpace(text))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugSpace.ReplaceAllString(slug, "_")
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return strings.Trim(slug, "_")
}

// MakeID builds the record identifier: timestamp plus topic slug.
func MakeID(topic string, ts time.Time) string {
	id := ts.Format("20060102_150405")
	if slug := Slugify(topic); slug != "" {
		id += "_" + slug
	}
	return id
}

// Save writes the synthesis record, the raw articles and the index entry.
// Returns the record identifier.
func (s *Store) Save(synthesis *model.Synthesis, articles []model.Article, sources, failedSources []string) (string, error) {
	id := synthesis.ID
	if id == "" {
		id = MakeID(synthesis.Topic, synthesis.Timestamp)
	}

	rec := SynthesisRecord{
		Identifier:    id,
		Timestamp:     synthesis.Timestamp,
		Synthesis:     *synthesis,
		ArticleCount:  len(articles),
		Sources:       sources,
		FailedSources: failedSources,
	}
	if err := writeJSON(filepath.Join(s.root, "syntheses", id+".json"), rec); err != nil {
		return "", fmt.Errorf("save synthesis: %w", err)
	}

	raw := RawRecord{
		Identifier: id,
		Timestamp:  synthesis.Timestamp,
		Topic:      synthesis.Topic,
		Articles:   articles,
	}
	if err := writeJSON(filepath.Join(s.root, "raw", id+".json"), raw); err != nil {
		return "", fmt.Errorf("save raw articles: %w", err)
	}

	if err := s.appendIndex(IndexEntry{
		Identifier:   id,
		Timestamp:    synthesis.Timestamp,
		Topic:        synthesis.Topic,
		Sources:      sources,
		ArticleCount: len(articles),
	}); err != nil {
		return "", fmt.Errorf("update index: %w", err)
	}

	return id, nil
}

// Load reads one synthesis record and its raw articles by identifier.
// Reads are byte-stable: loading the same id twice yields identical data.
func (s *Store) Load(id string) (*SynthesisRecord, []model.Article, error) {
	var rec SynthesisRecord
	if err := readJSON(filepath.Join(s.root, "syntheses", id+".json"), &rec); err != nil {
		return nil, nil, fmt.Errorf("load synthesis %s: %w", id, err)
	}

	var raw RawRecord
	if err := readJSON(filepath.Join(s.root, "raw", id+".json"), &raw); err != nil {
		// Raw articles are auxiliary; the synthesis record alone is usable.
		return &rec, nil, nil
	}
	return &rec, raw.Articles, nil
}

// List returns the index entries, oldest first.
func (s *Store) List() ([]IndexEntry, error) {
	var idx index
	path := filepath.Join(s.root, "index.json")
	if err := readJSON(path, &idx); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	return idx.Syntheses, nil
}

func (s *Store) appendIndex(entry IndexEntry) error {
	path := filepath.Join(s.root, "index.json")

	var idx index
	if err := readJSON(path, &idx); err != nil && !os.IsNotExist(err) {
		return err
	}
	idx.Syntheses = append(idx.Syntheses, entry)
	return writeJSON(path, idx)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
