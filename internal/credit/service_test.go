package credit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

type fakeCreditStore struct {
	balances     map[string]*models.CreditBalance
	transactions []*models.CreditTransaction
}

func newFakeCreditStore(balance *models.CreditBalance) *fakeCreditStore {
	return &fakeCreditStore{
		balances: map[string]*models.CreditBalance{balance.UserID: balance},
	}
}

func (f *fakeCreditStore) GetBalance(_ context.Context, userID string) (*models.CreditBalance, error) {
	b, ok := f.balances[userID]
	if !ok {
		return &models.CreditBalance{UserID: userID}, nil
	}
	clone := *b
	return &clone, nil
}

func (f *fakeCreditStore) UpsertBalance(_ context.Context, balance *models.CreditBalance) error {
	clone := *balance
	f.balances[balance.UserID] = &clone
	return nil
}

func (f *fakeCreditStore) AppendTransaction(_ context.Context, tx *models.CreditTransaction) error {
	f.transactions = append(f.transactions, tx)
	return nil
}

func (f *fakeCreditStore) ListTransactions(_ context.Context, userID string, limit int) ([]*models.CreditTransaction, error) {
	return f.transactions, nil
}

type fixedCostEstimator struct {
	cost      float64
	lastUsage models.ProviderUsage
}

func (e *fixedCostEstimator) EstimateCost(_ string, usage models.ProviderUsage) (float64, error) {
	e.lastUsage = usage
	return e.cost, nil
}

func (e *fixedCostEstimator) Pricing(_ string) (models.ModelPricing, bool) {
	return models.ModelPricing{}, false
}

func TestInitiateChargeReservesAgainstBalance(t *testing.T) {
	store := newFakeCreditStore(&models.CreditBalance{UserID: "user-1", PaidBalance: 10})
	svc := NewService(store, &fixedCostEstimator{cost: 2}, nil, arbor.NewLogger())

	reservation, err := svc.InitiateCharge(context.Background(), "user-1", interfaces.CostEstimateRequest{
		Model: "test-model", PromptTokens: 100,
	})

	require.NoError(t, err)
	assert.Equal(t, 2.0, reservation.EstimatedCost)
	assert.NotEmpty(t, reservation.RequestID)
}

func TestInitiateChargeFailsWhenInsufficientBalance(t *testing.T) {
	store := newFakeCreditStore(&models.CreditBalance{UserID: "user-1", PaidBalance: 1})
	svc := NewService(store, &fixedCostEstimator{cost: 5}, nil, arbor.NewLogger())

	_, err := svc.InitiateCharge(context.Background(), "user-1", interfaces.CostEstimateRequest{Model: "test-model"})

	assert.ErrorIs(t, err, interfaces.ErrCreditInsufficient)
}

func TestFinalizeChargeDebitsFreeBeforePaid(t *testing.T) {
	store := newFakeCreditStore(&models.CreditBalance{UserID: "user-1", PaidBalance: 10, FreeBalance: 3})
	svc := NewService(store, &fixedCostEstimator{cost: 5}, nil, arbor.NewLogger())

	reservation, err := svc.InitiateCharge(context.Background(), "user-1", interfaces.CostEstimateRequest{Model: "test-model"})
	require.NoError(t, err)

	record, err := svc.FinalizeCharge(context.Background(), reservation.RequestID, models.ProviderUsage{PromptTokens: 100, CompletionTokens: 50}, 5)
	require.NoError(t, err)

	assert.Equal(t, 3.0, record.FreeSpent)
	assert.Equal(t, 2.0, record.PaidSpent)

	balance, err := svc.GetBalance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, balance.FreeBalance)
	assert.Equal(t, 8.0, balance.PaidBalance)
	assert.Len(t, store.transactions, 1)
}

func TestFinalizeChargeUnknownRequestFails(t *testing.T) {
	store := newFakeCreditStore(&models.CreditBalance{UserID: "user-1", PaidBalance: 10})
	svc := NewService(store, &fixedCostEstimator{cost: 1}, nil, arbor.NewLogger())

	_, err := svc.FinalizeCharge(context.Background(), "unknown-request", models.ProviderUsage{}, 1)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestFailChargeReleasesReservationWithoutDebiting(t *testing.T) {
	store := newFakeCreditStore(&models.CreditBalance{UserID: "user-1", PaidBalance: 10})
	svc := NewService(store, &fixedCostEstimator{cost: 5}, nil, arbor.NewLogger())

	reservation, err := svc.InitiateCharge(context.Background(), "user-1", interfaces.CostEstimateRequest{Model: "test-model"})
	require.NoError(t, err)

	err = svc.FailCharge(context.Background(), reservation.RequestID)
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, balance.PaidBalance)

	err = svc.FailCharge(context.Background(), reservation.RequestID)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestInitiateChargeCapsEstimatedOutputTokens(t *testing.T) {
	store := newFakeCreditStore(&models.CreditBalance{UserID: "user-1", PaidBalance: 1000})
	est := &fixedCostEstimator{cost: 1}
	svc := NewService(store, est, []models.EstimateCoefficients{
		{Model: "test-model", InputMultiplier: 1, OutputMultiplier: 1, AvgOutputTokens: 999999},
	}, arbor.NewLogger())

	_, err := svc.InitiateCharge(context.Background(), "user-1", interfaces.CostEstimateRequest{Model: "test-model", PromptTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, models.MaxEstimatedOutputTokens, est.lastUsage.CompletionTokens)
}
