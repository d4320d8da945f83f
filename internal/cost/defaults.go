package cost

import "github.com/foundryhq/jobengine/internal/models"

// DefaultPricing seeds the Cost Estimator with the model families the
// Provider Adapters support out of the box. Operators
// override or extend this table via configuration; it is not meant to
// track vendor price changes precisely.
func DefaultPricing() []models.ModelPricing {
	return []models.ModelPricing{
		{
			Model: "gpt-4o", Currency: "USD",
			InputPricePer1k: 0.0025, OutputPricePer1k: 0.01,
			CacheReadPer1k: 0.00125, CacheWritePer1k: 0.0025,
		},
		{
			Model: "gpt-4o-mini", Currency: "USD",
			InputPricePer1k: 0.00015, OutputPricePer1k: 0.0006,
			CacheReadPer1k: 0.000075, CacheWritePer1k: 0.00015,
		},
		{
			Model: "claude-sonnet-4-5", Currency: "USD",
			InputPricePer1k: 0.003, OutputPricePer1k: 0.015,
			CacheReadPer1k: 0.0003, CacheWritePer1k: 0.00375,
		},
		{
			Model: "claude-haiku-4-5", Currency: "USD",
			InputPricePer1k: 0.0008, OutputPricePer1k: 0.004,
			CacheReadPer1k: 0.00008, CacheWritePer1k: 0.001,
		},
		{
			Model: "openrouter/auto", Currency: "USD",
			InputPricePer1k: 0.002, OutputPricePer1k: 0.008,
			CacheReadPer1k: 0.001, CacheWritePer1k: 0.002,
		},
	}
}

// DefaultCoefficients seeds the Credit Service's estimate table (spec
// §4.D) with conservative multipliers: a 1.0 input multiplier and an
// avg_output_tokens drawn from typical response lengths for the model
// family, kept well under MaxEstimatedOutputTokens.
func DefaultCoefficients() []models.EstimateCoefficients {
	return []models.EstimateCoefficients{
		{Model: "gpt-4o", InputMultiplier: 1.0, InputOffset: 0, OutputMultiplier: 1.0, OutputOffset: 0, AvgOutputTokens: 800},
		{Model: "gpt-4o-mini", InputMultiplier: 1.0, InputOffset: 0, OutputMultiplier: 1.0, OutputOffset: 0, AvgOutputTokens: 600},
		{Model: "claude-sonnet-4-5", InputMultiplier: 1.0, InputOffset: 0, OutputMultiplier: 1.0, OutputOffset: 0, AvgOutputTokens: 1000},
		{Model: "claude-haiku-4-5", InputMultiplier: 1.0, InputOffset: 0, OutputMultiplier: 1.0, OutputOffset: 0, AvgOutputTokens: 600},
		{Model: "openrouter/auto", InputMultiplier: 1.0, InputOffset: 0, OutputMultiplier: 1.0, OutputOffset: 0, AvgOutputTokens: 800},
	}
}
