package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// ErrBalanceNotFound is returned when a user has no credit_balances row.
var ErrBalanceNotFound = errors.New("credit balance not found")

// CreditStorage implements interfaces.CreditStore against credit_balances
// and the append-only credit_transactions ledger.
type CreditStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

func NewCreditStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.CreditStore {
	return &CreditStorage{db: db, logger: logger}
}

func (s *CreditStorage) GetBalance(ctx context.Context, userID string) (*models.CreditBalance, error) {
	var b models.CreditBalance
	var freeExpiresAt sql.NullInt64
	err := s.db.db.QueryRowContext(ctx, `
		SELECT user_id, paid_balance, free_balance, free_expires_at, updated_at
		FROM credit_balances WHERE user_id = ?
	`, userID).Scan(&b.UserID, &b.PaidBalance, &b.FreeBalance, &freeExpiresAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credit balance: %w", err)
	}
	if freeExpiresAt.Valid {
		v := freeExpiresAt.Int64
		b.FreeExpiresAt = &v
	}
	return &b, nil
}

func (s *CreditStorage) UpsertBalance(ctx context.Context, balance *models.CreditBalance) error {
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO credit_balances (user_id, paid_balance, free_balance, free_expires_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				paid_balance = excluded.paid_balance,
				free_balance = excluded.free_balance,
				free_expires_at = excluded.free_expires_at,
				updated_at = excluded.updated_at
		`, balance.UserID, balance.PaidBalance, balance.FreeBalance, nullableInt64(balance.FreeExpiresAt), balance.UpdatedAt)
		return err
	}, 5, 50*time.Millisecond, s.logger)
}

// AppendTransaction writes a ledger row. request_id carries a unique index
//; a duplicate
// insert surfaces as a constraint violation rather than silently
// double-booking the same charge.
func (s *CreditStorage) AppendTransaction(ctx context.Context, tx *models.CreditTransaction) error {
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO credit_transactions (id, user_id, request_id, amount, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, tx.ID, tx.UserID, tx.RequestID, tx.Amount, tx.Reason, tx.CreatedAt)
		return err
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *CreditStorage) ListTransactions(ctx context.Context, userID string, limit int) ([]*models.CreditTransaction, error) {
	query := `SELECT id, user_id, request_id, amount, reason, created_at FROM credit_transactions WHERE user_id = ? ORDER BY created_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.RequestID, &t.Amount, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit transaction: %w", err)
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}
