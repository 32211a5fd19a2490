package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arpitvarshney44/ludo-backend/internal/models"
	"github.com/arpitvarshney44/ludo-backend/internal/repository"
)

// SettlementLedger is the wallet surface the settlement mutates. The
// implementation performs the whole settlement as one storage transaction
// and fails closed on a duplicate win payout.
type SettlementLedger interface {
	SettleWin(ctx context.Context, p repository.SettleParams) error
	WinPayout(ctx context.Context, roomCode string) (winnerID int64, prize float64, err error)
}

// UserReader resolves user records (blocked flag, referral chain).
type UserReader interface {
	GetByID(ctx context.Context, userID int64) (*models.User, error)
}

// Settlement pays out a completed game exactly once. It is shared by the
// automatic win-detection path and the admin override path; callers hold
// the room lock, and the ledger's unique payout index backstops them.
type Settlement struct {
	ledger       SettlementLedger
	users        UserReader
	referralRate float64
	log          zerolog.Logger
}

func NewSettlement(ledger SettlementLedger, users UserReader, referralRate float64, log zerolog.Logger) *Settlement {
	return &Settlement{
		ledger:       ledger,
		users:        users,
		referralRate: referralRate,
		log:          log,
	}
}

// Settle credits the winner's winning cash with the prize pool, appends the
// game_win ledger row, bumps win/loss counters, and pays the winner's
// referrer a cut of the entry fee as bonus cash. All of it commits or none
// of it does.
func (s *Settlement) Settle(ctx context.Context, game *models.Game, winnerID int64) (*models.SettlementResult, error) {
	if game.Status != models.GameStatusInProgress {
		return nil, ErrGameNotInProgress
	}
	if game.PlayerIndex(winnerID) < 0 {
		return nil, ErrWinnerNotSeated
	}

	var loserIDs []int64
	for _, p := range game.Players {
		if p.UserID != winnerID {
			loserIDs = append(loserIDs, p.UserID)
		}
	}

	winner, err := s.users.GetByID(ctx, winnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load winner: %w", err)
	}

	params := repository.SettleParams{
		RoomCode: game.RoomCode,
		WinnerID: winnerID,
		LoserIDs: loserIDs,
		Prize:    game.PrizePool,
	}

	result := &models.SettlementResult{
		RoomCode: game.RoomCode,
		WinnerID: winnerID,
		Prize:    game.PrizePool,
	}

	// Referral bonus is a cut of the entry fee, not the prize pool.
	if winner.ReferredBy != nil {
		params.ReferrerID = winner.ReferredBy
		params.ReferralBonus = game.EntryFee * s.referralRate
		result.ReferrerID = *winner.ReferredBy
		result.ReferralBonus = params.ReferralBonus
	}

	if err := s.ledger.SettleWin(ctx, params); err != nil {
		if errors.Is(err, repository.ErrDuplicateWinPayout) {
			// A payout is already on the ledger, typically because a prior
			// settlement committed but the game document write after it did
			// not. When the recorded winner matches, report the existing
			// payout so the caller can finish marking the game completed;
			// a mismatched winner is refused outright.
			priorWinner, prize, lookupErr := s.ledger.WinPayout(ctx, game.RoomCode)
			if lookupErr == nil && priorWinner == winnerID {
				s.log.Warn().
					Str("room", game.RoomCode).
					Int64("winner", winnerID).
					Msg("payout already recorded, reconciling game state")
				return &models.SettlementResult{
					RoomCode: game.RoomCode,
					WinnerID: winnerID,
					Prize:    prize,
				}, nil
			}
			s.log.Warn().
				Str("room", game.RoomCode).
				Int64("winner", winnerID).
				Msg("duplicate settlement attempt blocked by ledger")
			return nil, ErrAlreadySettled
		}
		return nil, fmt.Errorf("settlement failed: %w", err)
	}

	s.log.Info().
		Str("room", game.RoomCode).
		Int64("winner", winnerID).
		Float64("prize", game.PrizePool).
		Float64("referral_bonus", params.ReferralBonus).
		Msg("game settled")

	return result, nil
}
