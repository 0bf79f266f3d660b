// Package business turns token usage into cost estimates.
// Prices are USD per one million tokens, held in an immutable PriceTable.
package business

import (
	"maps"
	"slices"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

// TokensPerUnit is the token count prices are quoted against.
const TokensPerUnit = 1_000_000

// PriceEntry is the USD price per one million prompt and completion tokens.
type PriceEntry struct {
	PromptPerMillion     float64 `json:"prompt_per_million" yaml:"prompt"`
	CompletionPerMillion float64 `json:"completion_per_million" yaml:"completion"`
}

// Cost computes the estimated USD cost of usage.
// Cost = prompt/1e6 × prompt price + completion/1e6 × completion price.
func (e PriceEntry) Cost(usage transport.Usage) float64 {
	return float64(usage.PromptTokens)/TokensPerUnit*e.PromptPerMillion +
		float64(usage.CompletionTokens)/TokensPerUnit*e.CompletionPerMillion
}

// PriceTable maps model names to prices. It is read-only after
// construction and safe for concurrent use.
type PriceTable struct {
	entries map[string]PriceEntry
}

// NewPriceTable copies entries into a new table.
func NewPriceTable(entries map[string]PriceEntry) *PriceTable {
	return &PriceTable{entries: maps.Clone(entries)}
}

// DefaultPriceTable returns the built-in prices.
func DefaultPriceTable() *PriceTable {
	return PriceTableFromConfig(configuration.DefaultPrices())
}

// PriceTableFromConfig converts configured prices into a table.
func PriceTableFromConfig(prices map[string]configuration.PriceConfig) *PriceTable {
	entries := make(map[string]PriceEntry, len(prices))
	for model, p := range prices {
		entries[model] = PriceEntry{PromptPerMillion: p.Prompt, CompletionPerMillion: p.Completion}
	}
	return &PriceTable{entries: entries}
}

// Lookup returns the price for model. Matching is exact.
func (t *PriceTable) Lookup(model string) (PriceEntry, bool) {
	if t == nil {
		return PriceEntry{}, false
	}
	e, ok := t.entries[model]
	return e, ok
}

// Models returns the priced model names in sorted order.
func (t *PriceTable) Models() []string {
	if t == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(t.entries))
}

// Len reports the number of priced models.
func (t *PriceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
