// Package cost implements the Cost Estimator: a stateless
// function of model pricing and token counts, rounded per currency.
package cost

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// ErrInvalidInput is returned when token counts are negative or the
// model's currency is empty.
var ErrInvalidInput = errors.New("invalid cost estimate input")

// ErrUnknownModel is returned when no pricing row is registered for a model.
var ErrUnknownModel = errors.New("unknown model pricing")

// Estimator implements interfaces.CostEstimator against an in-memory
// pricing table, mirroring how model capability tables are typically
// maintained as static data rather than a database table: the table is
// small, changes with vendor price updates, and is read far more than
// written.
type Estimator struct {
	mu      sync.RWMutex
	pricing map[string]models.ModelPricing
}

// NewEstimator creates a Cost Estimator seeded with pricing.
func NewEstimator(pricing []models.ModelPricing) *Estimator {
	e := &Estimator{pricing: make(map[string]models.ModelPricing, len(pricing))}
	for _, p := range pricing {
		e.pricing[p.Model] = p
	}
	return e
}

// Pricing returns the pricing row registered for model, if any.
func (e *Estimator) Pricing(model string) (models.ModelPricing, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pricing[model]
	return p, ok
}

// SetPricing registers or replaces the pricing row for a model.
func (e *Estimator) SetPricing(p models.ModelPricing) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pricing[p.Model] = p
}

// EstimateCost computes cost = prompt/1000*p_in + completion/1000*p_out +
// cache_write/1000*p_cw + cache_read/1000*p_cr, rounded to 2 decimals for
// two-decimal currencies or to 0 decimals for zero-decimal currencies.
func (e *Estimator) EstimateCost(model string, usage models.ProviderUsage) (float64, error) {
	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 || usage.CacheReadTokens < 0 || usage.CacheWriteTokens < 0 {
		return 0, fmt.Errorf("%w: token counts must be non-negative", ErrInvalidInput)
	}

	pricing, ok := e.Pricing(model)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	if pricing.Currency == "" {
		return 0, fmt.Errorf("%w: model %s has no currency configured", ErrInvalidInput, model)
	}

	raw := float64(usage.PromptTokens)/1000*pricing.InputPricePer1k +
		float64(usage.CompletionTokens)/1000*pricing.OutputPricePer1k +
		float64(usage.CacheWriteTokens)/1000*pricing.CacheWritePer1k +
		float64(usage.CacheReadTokens)/1000*pricing.CacheReadPer1k

	return roundForCurrency(raw, pricing.Currency), nil
}

// roundForCurrency rounds amount to 0 decimals for zero-decimal
// currencies (e.g. JPY) and to 2 decimals otherwise.
func roundForCurrency(amount float64, currency string) float64 {
	if models.IsZeroDecimalCurrency(currency) {
		return math.Round(amount)
	}
	return math.Round(amount*100) / 100
}

var _ interfaces.CostEstimator = (*Estimator)(nil)
