// Package credit implements the two-phase Credit Service:
// initiate_charge reserves an estimate against a user's balance,
// finalize_charge settles the reservation to actual usage, and
// fail_charge releases it without debiting anything.
package credit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/cost"
	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// ErrReservationNotFound is returned by FinalizeCharge/FailCharge when
// request_id has no matching in-flight reservation.
var ErrReservationNotFound = errors.New("reservation not found")

// Service implements interfaces.CreditService. Reservations live only in
// memory for the lifetime of the upstream call; the Job Repository's
// metadata and the CreditStore's durable balance/ledger are the only
// state that survives a crash, which is why the Scheduler's stale-reset
// loop exists to drive fail_charge for reservations abandoned mid-flight.
type Service struct {
	store        interfaces.CreditStore
	estimator    interfaces.CostEstimator
	coefficients map[string]models.EstimateCoefficients
	logger       arbor.ILogger

	mu             sync.Mutex
	reservations   map[string]*reservedCharge
	reservedByUser map[string]float64
}

type reservedCharge struct {
	reservation *models.Reservation
}

// NewService creates a Credit Service backed by store for durable state
// and estimator for both the pre-call estimate and the post-call
// settlement calculation.
func NewService(store interfaces.CreditStore, estimator interfaces.CostEstimator, coefficients []models.EstimateCoefficients, logger arbor.ILogger) *Service {
	coeffTable := make(map[string]models.EstimateCoefficients, len(coefficients))
	for _, c := range coefficients {
		coeffTable[c.Model] = c
	}

	return &Service{
		store:          store,
		estimator:      estimator,
		coefficients:   coeffTable,
		logger:         logger,
		reservations:   make(map[string]*reservedCharge),
		reservedByUser: make(map[string]float64),
	}
}

// InitiateCharge estimates req's cost using the model's
// EstimateCoefficients, capped at models.MaxEstimatedOutputTokens output
// tokens, and reserves it against the user's available balance.
func (s *Service) InitiateCharge(ctx context.Context, userID string, req interfaces.CostEstimateRequest) (*models.Reservation, error) {
	requestID := uuid.New().String()

	estimatedCompletion := req.EstimatedOutput
	if coeff, ok := s.coefficients[req.Model]; ok {
		estimatedCompletion = int(float64(coeff.AvgOutputTokens)*coeff.OutputMultiplier + coeff.OutputOffset)
		if req.EstimatedOutput > 0 {
			estimatedCompletion = req.EstimatedOutput
		}
	}
	if estimatedCompletion > models.MaxEstimatedOutputTokens || estimatedCompletion <= 0 {
		estimatedCompletion = models.MaxEstimatedOutputTokens
	}

	estimatedPrompt := req.PromptTokens
	if coeff, ok := s.coefficients[req.Model]; ok {
		estimatedPrompt = int(float64(req.PromptTokens)*coeff.InputMultiplier + coeff.InputOffset)
	}

	estimate, err := s.estimator.EstimateCost(req.Model, models.ProviderUsage{
		PromptTokens:     estimatedPrompt,
		CompletionTokens: estimatedCompletion,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate cost: %w", err)
	}

	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	now := models.NowMillis()
	s.mu.Lock()
	available := balance.Total(now) - s.reservedByUser[userID]
	if available < estimate {
		s.mu.Unlock()
		return nil, interfaces.ErrCreditInsufficient
	}

	reservation := &models.Reservation{
		RequestID:     requestID,
		UserID:        userID,
		Service:       "provider",
		EstimatedCost: estimate,
		Model:         req.Model,
		CreatedAtMs:   models.NowMillis(),
	}
	s.reservations[requestID] = &reservedCharge{reservation: reservation}
	s.reservedByUser[userID] += estimate
	s.mu.Unlock()

	s.logger.Debug().
		Str("request_id", requestID).
		Str("user_id", userID).
		Float64("estimated_cost", estimate).
		Msg("credit reservation created")

	return reservation, nil
}

// FinalizeCharge settles requestID's reservation against actualCost,
// debiting free balance before paid balance, and appends a
// CreditTransaction row.
func (s *Service) FinalizeCharge(ctx context.Context, requestID string, usage models.ProviderUsage, actualCost float64) (*models.UsageRecord, error) {
	charge, err := s.takeReservation(requestID)
	if err != nil {
		return nil, err
	}

	balance, err := s.store.GetBalance(ctx, charge.reservation.UserID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	now := models.NowMillis()
	availableFree := balance.FreeBalance
	if balance.FreeExpiresAt != nil && *balance.FreeExpiresAt <= now {
		availableFree = 0
	}

	freeSpent := actualCost
	if freeSpent > availableFree {
		freeSpent = availableFree
	}
	if freeSpent < 0 {
		freeSpent = 0
	}
	paidSpent := actualCost - freeSpent

	balance.FreeBalance -= freeSpent
	balance.PaidBalance -= paidSpent
	balance.UpdatedAt = now

	if err := s.store.UpsertBalance(ctx, balance); err != nil {
		return nil, fmt.Errorf("upsert balance: %w", err)
	}

	txn := &models.CreditTransaction{
		ID:        requestID,
		UserID:    charge.reservation.UserID,
		RequestID: requestID,
		Amount:    -actualCost,
		Reason:    "provider_usage:" + charge.reservation.Model,
		CreatedAt: now,
	}
	if err := s.store.AppendTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	record := &models.UsageRecord{
		RequestID:        requestID,
		UserID:           charge.reservation.UserID,
		Model:            charge.reservation.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CacheReadTokens:  usage.CacheReadTokens,
		CacheWriteTokens: usage.CacheWriteTokens,
		ActualCost:       actualCost,
		FreeSpent:        freeSpent,
		PaidSpent:        paidSpent,
	}

	logEvent := s.logger.Info().
		Str("request_id", requestID).
		Float64("actual_cost", actualCost).
		Float64("free_spent", freeSpent).
		Float64("paid_spent", paidSpent)
	if pricing, ok := s.estimator.Pricing(charge.reservation.Model); ok {
		if cents, err := cost.DecimalToStripeCents(actualCost, pricing.Currency); err == nil {
			logEvent = logEvent.Int64("actual_cost_cents", cents)
		}
	}
	logEvent.Msg("credit charge finalized")

	return record, nil
}

// FailCharge releases requestID's reservation without touching the
// user's balance.
func (s *Service) FailCharge(ctx context.Context, requestID string) error {
	_, err := s.takeReservation(requestID)
	if err != nil {
		return err
	}

	s.logger.Debug().Str("request_id", requestID).Msg("credit reservation released without charge")
	return nil
}

// GetBalance returns userID's current durable balance.
func (s *Service) GetBalance(ctx context.Context, userID string) (*models.CreditBalance, error) {
	return s.store.GetBalance(ctx, userID)
}

func (s *Service) takeReservation(requestID string) (*reservedCharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	charge, ok := s.reservations[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, requestID)
	}
	delete(s.reservations, requestID)

	remaining := s.reservedByUser[charge.reservation.UserID] - charge.reservation.EstimatedCost
	if remaining < 0 {
		remaining = 0
	}
	s.reservedByUser[charge.reservation.UserID] = remaining

	return charge, nil
}

var _ interfaces.CreditService = (*Service)(nil)
