package models

import "time"

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Blocked  bool   `json:"blocked"`

	// ReferredBy is the user that referred this one, if any. The referrer
	// earns a bonus cut of the entry fee whenever this user wins a game.
	ReferredBy *int64 `json:"referred_by,omitempty"`

	GamesPlayed      int     `json:"games_played"`
	GamesWon         int     `json:"games_won"`
	GamesLost        int     `json:"games_lost"`
	ReferralEarnings float64 `json:"referral_earnings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Wallet holds a user's balance split into the three cash buckets. Entry
// fees drain deposit first, then winning, then bonus; win payouts land in
// winning cash only.
type Wallet struct {
	UserID      int64   `json:"user_id"`
	DepositCash float64 `json:"deposit_cash"`
	WinningCash float64 `json:"winning_cash"`
	BonusCash   float64 `json:"bonus_cash"`
}

func (w *Wallet) Total() float64 {
	return w.DepositCash + w.WinningCash + w.BonusCash
}

type BalanceResponse struct {
	DepositCash float64 `json:"deposit_cash"`
	WinningCash float64 `json:"winning_cash"`
	BonusCash   float64 `json:"bonus_cash"`
	Total       float64 `json:"total"`
}
