package interfaces

import (
	"context"

	"github.com/foundryhq/jobengine/internal/models"
)

// CreditService owns the two-phase reserve/settle accounting around a
// provider call. InitiateCharge must run before any provider
// request is issued; FinalizeCharge or FailCharge must run exactly once
// per InitiateCharge.
type CreditService interface {
	// InitiateCharge estimates the cost of req using the model's
	// EstimateCoefficients and reserves it against the user's balance.
	// Returns ErrCreditInsufficient if the estimate exceeds the available
	// balance.
	InitiateCharge(ctx context.Context, userID string, req CostEstimateRequest) (*models.Reservation, error)

	// FinalizeCharge settles a reservation against the actual usage
	// reported by the provider, debiting free balance before paid balance,
	// and appends a CreditTransaction.
	FinalizeCharge(ctx context.Context, requestID string, usage models.ProviderUsage, actualCost float64) (*models.UsageRecord, error)

	// FailCharge releases a reservation without debiting the user, used
	// when a provider call fails or is cancelled before completion.
	FailCharge(ctx context.Context, requestID string) error

	GetBalance(ctx context.Context, userID string) (*models.CreditBalance, error)
}

// ErrCreditInsufficient is returned by CreditService.InitiateCharge when
// the estimated cost exceeds the user's available balance.
var ErrCreditInsufficient = errCreditInsufficient{}

type errCreditInsufficient struct{}

func (errCreditInsufficient) Error() string { return "insufficient credit balance" }

// CostEstimateRequest is the input to both the Cost Estimator and the
// Credit Service's InitiateCharge.
type CostEstimateRequest struct {
	Model           string
	PromptTokens    int
	EstimatedOutput int // capped at models.MaxEstimatedOutputTokens by the Credit Service
}

// CostEstimator computes a deterministic price for a token usage, applying
// zero-decimal currency rounding.
type CostEstimator interface {
	EstimateCost(model string, usage models.ProviderUsage) (float64, error)
	Pricing(model string) (models.ModelPricing, bool)
}
