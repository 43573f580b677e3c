package llm

import (
	"encoding/json"
	"strings"

	"newslens/internal/config"
	"newslens/internal/logging"
)

// Provider configurations. Defaults favor the cheap, fast model of each
// provider; DEFAULT_LLM_MODEL overrides the model of the preferred provider.

func AnthropicConfig(apiKey, model string) *ProviderConfig {
	if model == "" {
		model = "claude-3-haiku-20240307"
	}
	return &ProviderConfig{
		Name:       "anthropic",
		Endpoint:   "https://api.anthropic.com/v1/messages",
		APIKey:     apiKey,
		Model:      model,
		AuthHeader: "x-api-key",
		AuthPrefix: "",
		ExtraHeaders: map[string]string{
			"anthropic-version": "2023-06-01",
		},
		BuildBody:     buildAnthropicBody,
		ParseResponse: parseAnthropicResponse,
		Pricing: map[string]Pricing{
			"claude-3-haiku-20240307":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
			"claude-3-5-haiku-20241022":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
			"claude-3-5-sonnet-20241022": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		},
	}
}

func OpenAIConfig(apiKey, model string) *ProviderConfig {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ProviderConfig{
		Name:          "openai",
		Endpoint:      "https://api.openai.com/v1/chat/completions",
		APIKey:        apiKey,
		Model:         model,
		AuthHeader:    "Authorization",
		AuthPrefix:    "Bearer ",
		BuildBody:     buildOpenAIBody,
		ParseResponse: parseOpenAIResponse,
		Pricing: map[string]Pricing{
			"gpt-4o-mini": {InputPerMTok: 0.15, OutputPerMTok: 0.60},
			"gpt-4o":      {InputPerMTok: 2.50, OutputPerMTok: 10.00},
		},
	}
}

func GeminiConfig(apiKey, model string) *ProviderConfig {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &ProviderConfig{
		Name:          "gemini",
		Endpoint:      "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		APIKey:        apiKey,
		Model:         model,
		AuthHeader:    "x-goog-api-key",
		AuthPrefix:    "",
		BuildBody:     buildGeminiBody,
		ParseResponse: parseGeminiResponse,
		Pricing: map[string]Pricing{
			"gemini-1.5-flash": {InputPerMTok: 0.075, OutputPerMTok: 0.30},
			"gemini-1.5-pro":   {InputPerMTok: 1.25, OutputPerMTok: 5.00},
		},
	}
}

// Body builders

func buildAnthropicBody(cfg *ProviderConfig, prompt string, maxTokens int) map[string]any {
	return map[string]any{
		"model":      cfg.Model,
		"max_tokens": maxTokens,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
	}
}

func buildOpenAIBody(cfg *ProviderConfig, prompt string, maxTokens int) map[string]any {
	return map[string]any{
		"model":                 cfg.Model,
		"max_completion_tokens": maxTokens,
		"messages":              []map[string]string{{"role": "user", "content": prompt}},
	}
}

func buildGeminiBody(cfg *ProviderConfig, prompt string, maxTokens int) map[string]any {
	return map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": maxTokens,
		},
	}
}

// Response parsers

func parseAnthropicResponse(body []byte) (Completion, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model string `json:"model"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Completion{}, err
	}
	var texts []string
	for _, c := range resp.Content {
		if c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	return Completion{
		Text:      strings.Join(texts, "\n\n"),
		Model:     resp.Model,
		TokensIn:  resp.Usage.InputTokens,
		TokensOut: resp.Usage.OutputTokens,
	}, nil
}

func parseOpenAIResponse(body []byte) (Completion, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Completion{}, err
	}
	completion := Completion{
		Model:     resp.Model,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		completion.Text = resp.Choices[0].Message.Content
	}
	return completion, nil
}

func parseGeminiResponse(body []byte) (Completion, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		ModelVersion  string `json:"modelVersion"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Completion{}, err
	}
	completion := Completion{
		Model:     resp.ModelVersion,
		TokensIn:  resp.UsageMetadata.PromptTokenCount,
		TokensOut: resp.UsageMetadata.CandidatesTokenCount,
	}
	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		completion.Text = resp.Candidates[0].Content.Parts[0].Text
	}
	return completion, nil
}

// builtinOrder is the default fallback chain when no preference is set.
var builtinOrder = []string{"anthropic", "openai", "gemini"}

// CreateProviders builds every known provider in the built-in order.
// The DEFAULT_LLM_MODEL override applies to the default provider only.
func CreateProviders(cfg *config.Config) []Provider {
	providers := make([]Provider, 0, len(builtinOrder))
	for _, name := range builtinOrder {
		modelOverride := ""
		if name == cfg.DefaultProvider {
			modelOverride = cfg.DefaultModel
		}
		var pc *ProviderConfig
		switch name {
		case "anthropic":
			pc = AnthropicConfig(cfg.AnthropicAPIKey, modelOverride)
		case "openai":
			pc = OpenAIConfig(cfg.OpenAIAPIKey, modelOverride)
		case "gemini":
			pc = GeminiConfig(cfg.GeminiAPIKey, modelOverride)
		}
		p := NewHTTPProvider(pc)
		if !p.Available() {
			// Never log key material, only presence.
			logging.Debug("provider has no credential", "provider", name)
		}
		providers = append(providers, p)
	}
	return providers
}

// ResolveOrder reorders providers so that the preferred names come first,
// in the given order, followed by the rest in their existing order.
// Resolved once at run start; a run's chain is deterministic.
func ResolveOrder(providers []Provider, preferred []string) []Provider {
	if len(preferred) == 0 {
		return providers
	}

	ordered := make([]Provider, 0, len(providers))
	used := make(map[string]bool, len(providers))

	for _, name := range preferred {
		for _, p := range providers {
			if p.Name() == name && !used[name] {
				ordered = append(ordered, p)
				used[name] = true
			}
		}
	}
	for _, p := range providers {
		if !used[p.Name()] {
			ordered = append(ordered, p)
			used[p.Name()] = true
		}
	}
	return ordered
}
