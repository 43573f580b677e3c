package llm

import (
	"fmt"
	"strings"

	"newslens/internal/model"
)

// ErrMissingSection marks a response that cannot be parsed into the
// required synthesis shape. Non-retryable: invalid structure correlates
// with the model, not transient load, so it triggers provider fallback.
type ErrMissingSection struct {
	Section string
}

func (e *ErrMissingSection) Error() string {
	return fmt.Sprintf("response missing required section: %s", e.Section)
}

// section keys, matched by keyword so minor heading drift still parses
var sectionKeys = []struct {
	key     string
	keyword string
}{
	{"themes", "theme"},
	{"perspectives", "perspective"},
	{"sentiment", "sentiment"},
	{"biases", "bias"},
	{"summary", "summary"},
	{"takeaways", "takeaway"},
}

// ParseSynthesis parses a provider completion into synthesis fields.
// ID, timestamp, provider and attempt log are filled in by the caller.
func ParseSynthesis(content string) (*model.Synthesis, error) {
	sections := splitSections(content)

	for _, sk := range sectionKeys {
		if _, ok := sections[sk.key]; !ok {
			return nil, &ErrMissingSection{Section: sk.key}
		}
	}

	return &model.Synthesis{
		CommonThemes: parseBullets(sections["themes"]),
		Perspectives: parseKeyed(sections["perspectives"]),
		Sentiment:    parseSentiments(sections["sentiment"]),
		Biases:       parseKeyed(sections["biases"]),
		Summary:      strings.TrimSpace(strings.Join(sections["summary"], "\n")),
		Takeaways:    parseBullets(sections["takeaways"]),
	}, nil
}

// splitSections groups lines under "## Heading" markers, keyed by the
// section keyword the heading contains.
func splitSections(content string) map[string][]string {
	sections := make(map[string][]string)
	current := ""

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading := strings.ToLower(strings.TrimSpace(strings.TrimLeft(trimmed, "# ")))
			current = ""
			for _, sk := range sectionKeys {
				if strings.Contains(heading, sk.keyword) {
					current = sk.key
					break
				}
			}
			if current != "" {
				// Heading seen: register the section even if its body is empty.
				if _, ok := sections[current]; !ok {
					sections[current] = nil
				}
			}
			continue
		}
		if current != "" && trimmed != "" {
			sections[current] = append(sections[current], trimmed)
		}
	}
	return sections
}

// parseBullets extracts list items, tolerating -, * and "1." markers.
func parseBullets(lines []string) []string {
	var items []string
	for _, line := range lines {
		item := trimBullet(line)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseKeyed extracts "- Name: text" lines into a map.
func parseKeyed(lines []string) map[string]string {
	out := make(map[string]string)
	for _, line := range lines {
		item := trimBullet(line)
		name, text, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(strings.Trim(name, "*"))
		text = strings.TrimSpace(text)
		if name != "" && text != "" {
			out[name] = text
		}
	}
	return out
}

func parseSentiments(lines []string) map[string]model.Sentiment {
	out := make(map[string]model.Sentiment)
	for name, text := range parseKeyed(lines) {
		// First word only; models love to elaborate.
		word := strings.ToLower(strings.Trim(strings.Fields(text)[0], ".,"))
		out[name] = model.ParseSentiment(word)
	}
	return out
}

func trimBullet(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "- ")
	s = strings.TrimPrefix(s, "* ")
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			continue
		}
		if s[i] == '.' && i > 0 {
			s = strings.TrimSpace(s[i+1:])
		}
		break
	}
	return strings.TrimSpace(strings.Trim(s, "*"))
}
