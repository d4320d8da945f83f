package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundryhq/jobengine/internal/models"
)

func newTestEstimator() *Estimator {
	return NewEstimator([]models.ModelPricing{
		{Model: "test-usd", Currency: "USD", InputPricePer1k: 1.0, OutputPricePer1k: 2.0, CacheReadPer1k: 0.5, CacheWritePer1k: 0.25},
		{Model: "test-jpy", Currency: "JPY", InputPricePer1k: 100, OutputPricePer1k: 200, CacheReadPer1k: 50, CacheWritePer1k: 25},
	})
}

func TestEstimateCostRoundsTwoDecimalCurrency(t *testing.T) {
	e := newTestEstimator()

	cost, err := e.EstimateCost("test-usd", models.ProviderUsage{PromptTokens: 1000, CompletionTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, 3.0, cost)
}

func TestEstimateCostRoundsZeroDecimalCurrency(t *testing.T) {
	e := newTestEstimator()

	cost, err := e.EstimateCost("test-jpy", models.ProviderUsage{PromptTokens: 10, CompletionTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, float64(3), cost)
}

func TestEstimateCostIncludesCacheTokens(t *testing.T) {
	e := newTestEstimator()

	cost, err := e.EstimateCost("test-usd", models.ProviderUsage{
		PromptTokens: 0, CompletionTokens: 0,
		CacheReadTokens: 1000, CacheWriteTokens: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.75, cost)
}

func TestEstimateCostRejectsNegativeTokens(t *testing.T) {
	e := newTestEstimator()

	_, err := e.EstimateCost("test-usd", models.ProviderUsage{PromptTokens: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEstimateCostRejectsUnknownModel(t *testing.T) {
	e := newTestEstimator()

	_, err := e.EstimateCost("does-not-exist", models.ProviderUsage{PromptTokens: 10})
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestPricingReportsMissingModel(t *testing.T) {
	e := newTestEstimator()

	_, ok := e.Pricing("does-not-exist")
	assert.False(t, ok)
}

func TestSetPricingOverridesExisting(t *testing.T) {
	e := newTestEstimator()
	e.SetPricing(models.ModelPricing{Model: "test-usd", Currency: "USD", InputPricePer1k: 5})

	p, ok := e.Pricing("test-usd")
	require.True(t, ok)
	assert.Equal(t, 5.0, p.InputPricePer1k)
}
