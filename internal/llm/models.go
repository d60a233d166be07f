package llm

import "strings"

// ProviderModels contains the curated list of common models per provider type.
var ProviderModels = map[string][]string{
	"anthropic": {
		"claude-sonnet-4-5",
		"claude-sonnet-4-5-thinking",
		"claude-opus-4-5",
		"claude-opus-4-5-thinking",
		"claude-haiku-4-5",
	},
	"openai": {
		"gpt-5.1",
		"gpt-5",
		"gpt-5-mini",
		"gpt-5-nano",
		"o3-mini",
	},
	"ollama": {
		"qwen3",
		"llama3.3",
		"gemma3",
	},
}

// chooseModel returns the per-request model override if set, otherwise the
// provider's configured default.
func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

// OutputLimitForModel returns the maximum output tokens a model can produce
// in a single response. Used to tell a provider-imposed cap apart from a
// request-imposed one. Returns 0 when the limit is unknown.
func OutputLimitForModel(model string) int {
	switch {
	case strings.HasPrefix(model, "claude-opus-4"):
		return 32000
	case strings.HasPrefix(model, "claude-sonnet-4"):
		return 64000
	case strings.HasPrefix(model, "claude-haiku-4"):
		return 64000
	case strings.HasPrefix(model, "claude-3-5"):
		return 8192
	case strings.HasPrefix(model, "gpt-5"):
		return 128000
	case strings.HasPrefix(model, "gpt-4.1"):
		return 32768
	case strings.HasPrefix(model, "gpt-4o"):
		return 16384
	case strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return 100000
	}
	return 0
}

// InputLimitForModel returns the context window size for known models.
// Returns 0 when unknown.
func InputLimitForModel(model string) int {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return 200000
	case strings.HasPrefix(model, "gpt-5"):
		return 400000
	case strings.HasPrefix(model, "gpt-4.1"):
		return 1000000
	case strings.HasPrefix(model, "gpt-4o"):
		return 128000
	case strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return 200000
	}
	return 0
}

func collectTextParts(parts []Part) string {
	var b strings.Builder
	for _, part := range parts {
		if part.Type == PartText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func schemaRequired(schema map[string]interface{}) []string {
	raw, ok := schema["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
