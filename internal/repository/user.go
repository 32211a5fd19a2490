// Package repository provides the Postgres data access layer: user records
// and the bucketed wallet ledger.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arpitvarshney44/ludo-backend/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository handles user persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, blocked, referred_by, games_played, games_won, games_lost, referral_earnings, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Blocked,
		&user.ReferredBy,
		&user.GamesPlayed,
		&user.GamesWon,
		&user.GamesLost,
		&user.ReferralEarnings,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// GetByID retrieves a user. Returns ErrUserNotFound if absent.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, userID))
}

// Create inserts a user together with an empty wallet row. Used by the
// onboarding surface, which is otherwise external to this service.
func (r *UserRepository) Create(ctx context.Context, username string, referredBy *int64) (*models.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO users (username, referred_by, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(tx.QueryRow(ctx, query, username, referredBy))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO wallets (user_id) VALUES ($1)`, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return user, nil
}
