// Package report renders a synthesis into a human-readable markdown file.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"newslens/internal/model"
)

const reportTemplate = `# News Analysis: {{.Topic}}

- **Generated:** {{.Timestamp.Format "2006-01-02 15:04:05 MST"}}
- **Provider:** {{.ProviderUsed}}
- **Articles:** {{.ArticleCount}} from {{len .SourceNames}} source(s)

## Common Themes
{{range .CommonThemes}}- {{.}}
{{end}}
## Source Perspectives
{{range .SourceNames}}{{if index $.Perspectives .}}- **{{.}}**: {{index $.Perspectives .}}
{{end}}{{end}}
## Sentiment
| Source | Sentiment |
|--------|-----------|
{{range .SourceNames}}{{if index $.Sentiment .}}| {{.}} | {{index $.Sentiment .}} |
{{end}}{{end}}
## Potential Biases
{{range .SourceNames}}{{if index $.Biases .}}- **{{.}}**: {{index $.Biases .}}
{{end}}{{end}}
## Summary

{{.Summary}}

## Key Takeaways
{{range .Takeaways}}- {{.}}
{{end}}
## Provider Attempts

| Provider | Model | Status | Tokens | Cost (USD) | Latency |
|----------|-------|--------|--------|------------|---------|
{{range .Attempts}}| {{.Provider}} | {{.Model}} | {{.Status}} | {{.TokensIn}}/{{.TokensOut}} | {{printf "%.4f" .CostUSD}} | {{.LatencyMS}}ms |
{{end}}`

var tmpl = template.Must(template.New("report").Parse(reportTemplate))

// Renderer writes markdown reports into one directory.
type Renderer struct {
	dir string
}

// New creates a Renderer rooted at dir.
func New(dir string) *Renderer {
	return &Renderer{dir: dir}
}

type reportData struct {
	*model.Synthesis
	ArticleCount int
	SourceNames  []string
}

// Render formats the synthesis and writes OUTPUT_DIR/<id>.md.
// Returns the written path.
func (r *Renderer) Render(synthesis *model.Synthesis, articleCount int) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	data := reportData{
		Synthesis:    synthesis,
		ArticleCount: articleCount,
		SourceNames:  sourceNames(synthesis),
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	id := synthesis.ID
	if id == "" {
		id = synthesis.Timestamp.Format("20060102_150405")
	}
	path := filepath.Join(r.dir, id+".md")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// sourceNames unions the per-source maps so every mentioned source gets a
// row, in stable order.
func sourceNames(s *model.Synthesis) []string {
	seen := make(map[string]bool)
	for name := range s.Perspectives {
		seen[name] = true
	}
	for name := range s.Sentiment {
		seen[name] = true
	}
	for name := range s.Biases {
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
