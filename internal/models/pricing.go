package models

// ModelPricing describes the per-1k-token price of a model, used by the
// Cost Estimator (spec.md §4.C). Prices are in the currency's major unit
// (e.g. dollars, yen) per 1000 tokens.
type ModelPricing struct {
	Model             string  `json:"model"`
	Currency          string  `json:"currency"`
	InputPricePer1k   float64 `json:"input_price_per_1k"`
	OutputPricePer1k  float64 `json:"output_price_per_1k"`
	CacheReadPer1k    float64 `json:"cache_read_price_per_1k"`
	CacheWritePer1k   float64 `json:"cache_write_price_per_1k"`
}

// EstimateCoefficients is the per-model coefficient table the Credit
// Service uses to turn a requested prompt into an estimated cost before
// the actual completion is known (spec.md §4.D initiate_charge).
type EstimateCoefficients struct {
	Model            string  `json:"model"`
	InputMultiplier  float64 `json:"input_multiplier"`
	InputOffset      float64 `json:"input_offset"`
	OutputMultiplier float64 `json:"output_multiplier"`
	OutputOffset     float64 `json:"output_offset"`
	AvgOutputTokens  int     `json:"avg_output_tokens"`
}

// MaxEstimatedOutputTokens is the safety cap spec.md §4.D names explicitly.
const MaxEstimatedOutputTokens = 4000

// ProviderUsage is the token accounting extracted from a provider response
// or SSE stream (spec.md §4.E extract_usage_from_body).
type ProviderUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
}

// ZeroDecimalCurrencies is the set of ISO currencies whose smallest unit
// already equals the major unit (spec.md §4.C).
var ZeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// IsZeroDecimalCurrency reports whether currency rounds to whole units.
func IsZeroDecimalCurrency(currency string) bool {
	return ZeroDecimalCurrencies[currency]
}
