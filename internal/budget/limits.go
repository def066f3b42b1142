package budget

import "strings"

// ModelBudget holds the per-model token budget.
type ModelBudget struct {
	MaxContextTokens int
	MaxOutputTokens  int
	ReserveTokens    int
}

// DefaultBudget is used for models absent from the table.
var DefaultBudget = ModelBudget{
	MaxContextTokens: 131072,
	MaxOutputTokens:  4096,
	ReserveTokens:    1024,
}

// modelBudgets maps model names to their budgets. Lookup is exact first,
// then substring, so versioned names like "gpt-4o-2024-08-06" resolve to
// their family entry.
var modelBudgets = map[string]ModelBudget{
	"gpt-4o":        {MaxContextTokens: 128000, MaxOutputTokens: 16384, ReserveTokens: 1024},
	"gpt-4o-mini":   {MaxContextTokens: 128000, MaxOutputTokens: 16384, ReserveTokens: 1024},
	"gpt-4-turbo":   {MaxContextTokens: 128000, MaxOutputTokens: 4096, ReserveTokens: 1024},
	"gpt-4":         {MaxContextTokens: 8192, MaxOutputTokens: 4096, ReserveTokens: 512},
	"gpt-3.5-turbo": {MaxContextTokens: 16385, MaxOutputTokens: 4096, ReserveTokens: 512},
	"deepseek-chat": {MaxContextTokens: 65536, MaxOutputTokens: 8192, ReserveTokens: 1024},
	"qwen-max":      {MaxContextTokens: 32768, MaxOutputTokens: 8192, ReserveTokens: 1024},
	"qwen-plus":     {MaxContextTokens: 131072, MaxOutputTokens: 8192, ReserveTokens: 1024},
	"qwen-turbo":    {MaxContextTokens: 1000000, MaxOutputTokens: 8192, ReserveTokens: 1024},
	"glm-4":         {MaxContextTokens: 128000, MaxOutputTokens: 16384, ReserveTokens: 1024},
	"llama-3.1":     {MaxContextTokens: 131072, MaxOutputTokens: 4096, ReserveTokens: 1024},
}

// Lookup resolves the budget for a model name: exact match, then substring
// fallback with the most specific (longest) entry winning, then the default.
func Lookup(model string) ModelBudget {
	if b, ok := modelBudgets[model]; ok {
		return b
	}
	lower := strings.ToLower(model)
	var bestName string
	for name := range modelBudgets {
		if !strings.Contains(lower, name) && !strings.Contains(name, lower) {
			continue
		}
		if len(name) > len(bestName) {
			bestName = name
		}
	}
	if bestName != "" {
		return modelBudgets[bestName]
	}
	return DefaultBudget
}

// ContextLimit returns the context window size for a model.
func ContextLimit(model string) int {
	return Lookup(model).MaxContextTokens
}
