package llm

import (
	"fmt"
	"strings"

	"newslens/internal/model"
)

// Rough chars-per-token ratio used to convert the token budget into a
// character budget for the prompt.
const charsPerToken = 4

// promptOverhead is the instruction scaffolding's share of the budget.
const promptOverhead = 1600

// minExcerptChars keeps excerpts readable even with many articles.
const minExcerptChars = 280

const promptInstructions = `You are an expert news analyst. I have collected %d articles from various sources on the topic "%s". Compare them and respond using EXACTLY the following markdown structure, nothing before or after it:

## Common Themes
- one theme per bullet

## Source Perspectives
- SourceName: what this source uniquely emphasizes

## Sentiment
- SourceName: positive, neutral, negative or mixed

## Potential Biases
- SourceName: noticeable bias or editorial slant, or "none apparent"

## Summary
One balanced paragraph incorporating all perspectives.

## Key Takeaways
- 3 to 5 bullets with the most important insights

Here are the articles:

%s`

// BuildPrompt renders the deterministic synthesis prompt. Article order is
// preserved and excerpts are truncated so the whole prompt respects the
// maxTokens budget: article count and per-article length trade off.
func BuildPrompt(topic string, articles []model.Article, maxTokens int) string {
	budget := maxTokens*charsPerToken - promptOverhead
	perArticle := minExcerptChars
	if len(articles) > 0 && budget/len(articles) > perArticle {
		perArticle = budget / len(articles)
	}

	blocks := make([]string, 0, len(articles))
	for i, a := range articles {
		block := fmt.Sprintf("Article %d:\nSource: %s\nTitle: %s\nPublished: %s\nLink: %s\nSummary: %s",
			i+1, a.SourceName, a.Title, a.Published.Format("2006-01-02"), a.URL,
			truncateExcerpt(a.Excerpt, perArticle))
		blocks = append(blocks, block)
	}

	return fmt.Sprintf(promptInstructions, len(articles), topic, strings.Join(blocks, "\n---\n"))
}

func truncateExcerpt(s string, maxLen int) string {
	if s == "" {
		return "No summary available"
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
