package models

// DefaultUserID is the account every job charges against. Non-goals
// exclude multi-tenant scheduling across independent users on one host,
// so the engine runs single-user-per-host and never resolves a caller
// identity from the request path.
const DefaultUserID = "default"

// CreditBalance is the per-user accounting state owned exclusively by the
// Credit Service (spec.md §3 "Credit balance", §4.D).
type CreditBalance struct {
	UserID          string  `json:"user_id" db:"user_id"`
	PaidBalance     float64 `json:"paid_balance" db:"paid_balance"`
	FreeBalance     float64 `json:"free_balance" db:"free_balance"`
	FreeExpiresAt   *int64  `json:"free_expires_at,omitempty" db:"free_expires_at"`
	UpdatedAt       int64   `json:"updated_at" db:"updated_at"`
}

// Total returns the usable balance, ignoring expired free credit.
func (b *CreditBalance) Total(nowMillis int64) float64 {
	free := b.FreeBalance
	if b.FreeExpiresAt != nil && *b.FreeExpiresAt <= nowMillis {
		free = 0
	}
	return b.PaidBalance + free
}

// Reservation is the in-memory request record kept by the Credit Service
// for the duration of an upstream call (spec.md §3 "Request record").
type Reservation struct {
	RequestID      string                 `json:"request_id"`
	UserID         string                 `json:"user_id"`
	Service        string                 `json:"service"`
	EstimatedCost  float64                `json:"estimated_cost"`
	Model          string                 `json:"model"`
	Stream         bool                   `json:"stream"`
	Metadata       map[string]interface{} `json:"metadata"`
	CreatedAtMs    int64                  `json:"created_at_ms"`
}

// UsageRecord is the settled accounting result returned by FinalizeCharge.
type UsageRecord struct {
	RequestID        string  `json:"request_id"`
	UserID           string  `json:"user_id"`
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CacheReadTokens  int     `json:"cache_read_tokens"`
	CacheWriteTokens int     `json:"cache_write_tokens"`
	ActualCost       float64 `json:"actual_cost"`
	FreeSpent        float64 `json:"free_spent"`
	PaidSpent        float64 `json:"paid_spent"`
}

// CreditTransaction is an append-only ledger row written on finalize.
type CreditTransaction struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	RequestID string  `json:"request_id"`
	Amount    float64 `json:"amount"` // negative for debit
	Reason    string  `json:"reason"`
	CreatedAt int64   `json:"created_at"`
}
