package billing

import (
	"context"
	"errors"
	"math"
	"time"
)

// ─────────────────────────────────────────────
// Credit Ledger
//
// Tracks user credit balances as an immutable transaction ledger.
// Generations are billed on success only: free-tier jobs within the daily
// quota cost nothing, everything else deducts credits.
// ─────────────────────────────────────────────

var (
	ErrQuotaExceeded       = errors.New("daily free quota exceeded")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// TransactionKind categorises ledger entries.
type TransactionKind string

const (
	TxGrant  TransactionKind = "GRANT"  // top-up, admin grant
	TxSpend  TransactionKind = "SPEND"  // generation charge
	TxAdjust TransactionKind = "ADJUST" // manual correction
)

// CreditTransaction is an immutable ledger entry. Positive amounts credit
// the account, negative amounts debit it.
type CreditTransaction struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    string          `gorm:"index;not null" json:"user_id"`
	Amount    float64         `json:"amount"`
	Kind      TransactionKind `gorm:"size:20" json:"kind"`
	Reference string          `gorm:"size:128" json:"reference,omitempty"` // e.g. "image:42"
	Remark    string          `gorm:"size:255" json:"remark,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Charge is an authorized billing decision for one generation. It is
// computed before submission and committed only after success.
type Charge struct {
	UserID   *string
	IP       string
	Amount   float64
	FreeTier bool
}

// Service is the billing interface the orchestrator depends on.
type Service interface {
	// Balance returns the user's current credit balance (ledger sum).
	Balance(ctx context.Context, userID string) (float64, error)

	// Grant credits the account (admin top-up).
	Grant(ctx context.Context, userID string, amount float64, remark string) error

	// FreeRemaining returns today's remaining free generations, counted
	// per user when authenticated, per request IP otherwise.
	FreeRemaining(ctx context.Context, userID *string, ip string) (int, error)

	// Authorize decides how a generation of the given cost will be paid:
	// free tier if quota remains, credits otherwise. Fails with
	// ErrQuotaExceeded (anonymous) or ErrInsufficientCredits before any
	// engine work happens. Nothing is written.
	Authorize(ctx context.Context, userID *string, ip string, cost float64) (*Charge, error)

	// Commit records the spend for a successful generation. Free-tier
	// charges are a no-op.
	Commit(ctx context.Context, charge *Charge, imageID uint) error

	// Transactions lists the user's most recent ledger entries.
	Transactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)
}

// ComputeCost prices one generation. Zero-valued parameters mean "absent".
// Base cost per kind plus surcharges for resolution above 512x512, steps
// above 30 and denoise above 0.6, rounded to 2 decimals.
func ComputeCost(kind string, width, height, steps int, denoise float64) float64 {
	cost := 1.0

	if width > 0 && height > 0 {
		resScale := float64(width*height) / (512 * 512)
		if resScale > 1 {
			cost += 0.5 * (resScale - 1)
		}
	}
	if steps > 30 {
		cost += float64(steps-30) / 30 * 0.5
	}
	if denoise > 0.6 {
		cost += (denoise - 0.6) * 0.5
	}

	return math.Round(cost*100) / 100
}
