package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arpitvarshney44/ludo-backend/internal/models"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateWinPayout is returned when a game_win row already exists
	// for the game. The partial unique index on transactions makes this
	// fail closed no matter how callers interleave.
	ErrDuplicateWinPayout = errors.New("win payout already recorded for game")

	ErrNoWinPayout = errors.New("no win payout recorded for game")
)

const pgUniqueViolation = "23505"

// WalletRepository handles the bucketed balances and the append-only
// transaction ledger. It is the only writer of wallet state.
type WalletRepository struct {
	pool *pgxpool.Pool
}

func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.UserID, &w.DepositCash, &w.WinningCash, &w.BonusCash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	return &w, nil
}

// GetWallet retrieves a user's three cash buckets.
func (r *WalletRepository) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	const query = `SELECT user_id, deposit_cash, winning_cash, bonus_cash FROM wallets WHERE user_id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, userID))
}

// Credit atomically adds amount to a named bucket and appends a ledger row.
func (r *WalletRepository) Credit(ctx context.Context, userID int64, bucket string, amount float64, txType models.TransactionType, gameID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := creditBucket(ctx, tx, userID, bucket, amount); err != nil {
		return err
	}
	if err := appendTransaction(ctx, tx, userID, txType, amount, gameID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DebitEntryFee takes the entry fee out of the user's buckets, draining
// deposit cash first, then winning, then bonus, and appends a game_entry
// row. The whole debit is one transaction: either the fee is fully taken
// or the wallet is untouched.
func (r *WalletRepository) DebitEntryFee(ctx context.Context, userID int64, amount float64, roomCode string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `SELECT user_id, deposit_cash, winning_cash, bonus_cash FROM wallets WHERE user_id = $1 FOR UPDATE`
	wallet, err := scanWallet(tx.QueryRow(ctx, query, userID))
	if err != nil {
		return err
	}

	if wallet.Total() < amount {
		return ErrInsufficientBalance
	}

	remaining := amount
	remaining = drain(&wallet.DepositCash, remaining)
	remaining = drain(&wallet.WinningCash, remaining)
	drain(&wallet.BonusCash, remaining)

	_, err = tx.Exec(ctx,
		`UPDATE wallets SET deposit_cash = $2, winning_cash = $3, bonus_cash = $4, updated_at = NOW() WHERE user_id = $1`,
		userID, wallet.DepositCash, wallet.WinningCash, wallet.BonusCash)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}

	if err := appendTransaction(ctx, tx, userID, models.TransactionTypeGameEntry, -amount, roomCode); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RefundEntryFee compensates a debit whose admission did not go through.
// The refund lands in deposit cash.
func (r *WalletRepository) RefundEntryFee(ctx context.Context, userID int64, amount float64, roomCode string) error {
	return r.Credit(ctx, userID, "deposit_cash", amount, models.TransactionTypeGameEntryRefund, roomCode)
}

// SettleParams carries everything the win settlement mutates.
type SettleParams struct {
	RoomCode string
	WinnerID int64
	LoserIDs []int64
	Prize    float64

	// ReferrerID is non-nil when the winner was referred; the referrer is
	// credited ReferralBonus as bonus cash and referral earnings.
	ReferrerID    *int64
	ReferralBonus float64
}

// SettleWin performs the whole settlement as one transaction: winner
// payout, game_win ledger row, win/loss counters, and the referral bonus.
// The game_win insert goes first so a duplicate settlement aborts before
// any wallet state moves; a unique violation maps to ErrDuplicateWinPayout.
func (r *WalletRepository) SettleWin(ctx context.Context, p SettleParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := appendTransaction(ctx, tx, p.WinnerID, models.TransactionTypeGameWin, p.Prize, p.RoomCode); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateWinPayout
		}
		return err
	}

	if err := creditBucket(ctx, tx, p.WinnerID, "winning_cash", p.Prize); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET games_played = games_played + 1, games_won = games_won + 1, updated_at = NOW() WHERE id = $1`,
		p.WinnerID)
	if err != nil {
		return fmt.Errorf("failed to update winner stats: %w", err)
	}

	for _, loserID := range p.LoserIDs {
		_, err = tx.Exec(ctx,
			`UPDATE users SET games_played = games_played + 1, games_lost = games_lost + 1, updated_at = NOW() WHERE id = $1`,
			loserID)
		if err != nil {
			return fmt.Errorf("failed to update loser stats: %w", err)
		}
	}

	if p.ReferrerID != nil && p.ReferralBonus > 0 {
		if err := creditBucket(ctx, tx, *p.ReferrerID, "bonus_cash", p.ReferralBonus); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE users SET referral_earnings = referral_earnings + $2, updated_at = NOW() WHERE id = $1`,
			*p.ReferrerID, p.ReferralBonus)
		if err != nil {
			return fmt.Errorf("failed to update referral earnings: %w", err)
		}
		if err := appendTransaction(ctx, tx, *p.ReferrerID, models.TransactionTypeReferralBonus, p.ReferralBonus, p.RoomCode); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}

// Transactions returns a user's ledger entries, newest first.
func (r *WalletRepository) Transactions(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	const query = `
		SELECT id, user_id, type, amount, status, COALESCE(game_id, ''), created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.GameID, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// WinPayout returns the recipient and amount of the game's win payout, or
// ErrNoWinPayout when none has been recorded. The partial unique index
// guarantees at most one row.
func (r *WalletRepository) WinPayout(ctx context.Context, roomCode string) (int64, float64, error) {
	const query = `SELECT user_id, amount FROM transactions WHERE game_id = $1 AND type = $2`

	var winnerID int64
	var prize float64
	err := r.pool.QueryRow(ctx, query, roomCode, models.TransactionTypeGameWin).Scan(&winnerID, &prize)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrNoWinPayout
		}
		return 0, 0, fmt.Errorf("failed to look up win payout: %w", err)
	}
	return winnerID, prize, nil
}

func drain(bucket *float64, amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	if *bucket >= amount {
		*bucket -= amount
		return 0
	}
	amount -= *bucket
	*bucket = 0
	return amount
}

func creditBucket(ctx context.Context, tx pgx.Tx, userID int64, bucket string, amount float64) error {
	var query string
	switch bucket {
	case "deposit_cash":
		query = `UPDATE wallets SET deposit_cash = deposit_cash + $2, updated_at = NOW() WHERE user_id = $1`
	case "winning_cash":
		query = `UPDATE wallets SET winning_cash = winning_cash + $2, updated_at = NOW() WHERE user_id = $1`
	case "bonus_cash":
		query = `UPDATE wallets SET bonus_cash = bonus_cash + $2, updated_at = NOW() WHERE user_id = $1`
	default:
		return fmt.Errorf("unknown wallet bucket: %s", bucket)
	}

	tag, err := tx.Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", bucket, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func appendTransaction(ctx context.Context, tx pgx.Tx, userID int64, txType models.TransactionType, amount float64, gameID string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, status, game_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NOW())`,
		models.GenerateTransactionID(), userID, txType, amount, models.TransactionStatusCompleted, gameID)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}
