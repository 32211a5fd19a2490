package models

import "time"

type TransactionType string

const (
	TransactionTypeGameEntry       TransactionType = "game_entry"
	TransactionTypeGameEntryRefund TransactionType = "game_entry_refund"
	TransactionTypeGameWin         TransactionType = "game_win"
	TransactionTypeReferralBonus   TransactionType = "referral_bonus"
)

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
)

// Transaction is one immutable row in the append-only wallet ledger.
// GameID doubles as the idempotency key for win payouts: the ledger holds
// at most one game_win row per game, enforced by a partial unique index.
type Transaction struct {
	ID        string            `json:"id"`
	UserID    int64             `json:"user_id"`
	Type      TransactionType   `json:"type"`
	Amount    float64           `json:"amount"`
	Status    TransactionStatus `json:"status"`
	GameID    string            `json:"game_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
