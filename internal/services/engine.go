package services

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/arpitvarshney44/ludo-backend/internal/models"
	"github.com/arpitvarshney44/ludo-backend/internal/pkg/lock"
)

// GameStore is the authoritative per-room document store.
type GameStore interface {
	CreateGame(ctx context.Context, game *models.Game) error
	GetGame(ctx context.Context, roomCode string) (*models.Game, error)
	SaveGame(ctx context.Context, game *models.Game) error
	AddUserGame(ctx context.Context, userID int64, roomCode string) error
}

// EntryLedger is the wallet surface for seat admission.
type EntryLedger interface {
	DebitEntryFee(ctx context.Context, userID int64, amount float64, roomCode string) error
	RefundEntryFee(ctx context.Context, userID int64, amount float64, roomCode string) error
}

// Broadcaster fans events out to every connection attached to a room.
// Implemented by the websocket hub.
type Broadcaster interface {
	Broadcast(roomCode string, event *models.Event)
	BroadcastExcept(roomCode string, excludeUserID int64, event *models.Event)
}

// EngineConfig carries the money knobs snapshotted onto new games.
type EngineConfig struct {
	CommissionRate float64
	MinEntryFee    float64
	MaxEntryFee    float64
}

// Engine is the move validator and state machine. It applies one event at
// a time to a room's game document: every public method runs its whole
// read-validate-write cycle under the room's lock, so no two events for
// the same room interleave past their validation read.
type Engine struct {
	store       GameStore
	ledger      EntryLedger
	users       UserReader
	settlement  *Settlement
	locks       *lock.RoomLock
	roller      DiceRoller
	broadcaster Broadcaster
	cfg         EngineConfig
	log         zerolog.Logger
}

func NewEngine(store GameStore, ledger EntryLedger, users UserReader, settlement *Settlement, roller DiceRoller, cfg EngineConfig, log zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		ledger:     ledger,
		users:      users,
		settlement: settlement,
		locks:      lock.NewRoomLock(),
		roller:     roller,
		cfg:        cfg,
		log:        log,
	}
}

// SetBroadcaster wires the websocket hub in after construction; the hub
// and the engine reference each other only through this seam.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

func (e *Engine) emit(roomCode string, event *models.Event) {
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(roomCode, event)
	}
}

// CreateGame debits the creator's entry fee and opens a waiting room with
// the creator in seat 0. The commission rate is snapshotted now; the prize
// pool never changes afterwards.
func (e *Engine) CreateGame(ctx context.Context, userID int64, entryFee float64) (*models.Game, error) {
	if entryFee < e.cfg.MinEntryFee || entryFee > e.cfg.MaxEntryFee {
		return nil, ErrInvalidEntryFee
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Blocked {
		return nil, ErrUserBlocked
	}

	game := models.NewGame(models.NewRoomCode(), entryFee, e.cfg.CommissionRate)

	// Fee first, seat second. A failed seat write is compensated below so
	// a debited, unseated user cannot persist.
	if err := e.ledger.DebitEntryFee(ctx, userID, entryFee, game.RoomCode); err != nil {
		return nil, err
	}

	game.SeatPlayer(userID, user.Username)

	if err := e.store.CreateGame(ctx, game); err != nil {
		if refundErr := e.ledger.RefundEntryFee(ctx, userID, entryFee, game.RoomCode); refundErr != nil {
			e.log.Error().Err(refundErr).
				Str("room", game.RoomCode).
				Int64("user", userID).
				Msg("entry fee refund failed after seat failure")
		}
		return nil, err
	}

	e.store.AddUserGame(ctx, userID, game.RoomCode)

	e.log.Info().
		Str("room", game.RoomCode).
		Int64("user", userID).
		Float64("entry_fee", entryFee).
		Float64("prize_pool", game.PrizePool).
		Msg("game created")

	return game, nil
}

// JoinGame debits the joiner's fee and fills the remaining seat. When the
// room is full the game auto-advances to in_progress with a random
// starting turn.
func (e *Engine) JoinGame(ctx context.Context, roomCode string, userID int64) (*models.Game, error) {
	roomCode = models.NormalizeRoomCode(roomCode)

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Blocked {
		return nil, ErrUserBlocked
	}

	var game *models.Game
	err = e.locks.WithLock(roomCode, func() error {
		g, err := e.store.GetGame(ctx, roomCode)
		if err != nil {
			return err
		}
		if g.Status != models.GameStatusWaiting {
			return ErrGameNotJoinable
		}
		if g.PlayerIndex(userID) >= 0 {
			return ErrAlreadySeated
		}
		if g.IsFull() {
			return ErrGameFull
		}

		if err := e.ledger.DebitEntryFee(ctx, userID, g.EntryFee, roomCode); err != nil {
			return err
		}

		player := g.SeatPlayer(userID, user.Username)

		if g.IsFull() {
			g.Status = models.GameStatusInProgress
			g.CurrentTurn = randomSeat(len(g.Players))
			g.StartedAt = time.Now().Unix()
		}

		if err := e.store.SaveGame(ctx, g); err != nil {
			if refundErr := e.ledger.RefundEntryFee(ctx, userID, g.EntryFee, roomCode); refundErr != nil {
				e.log.Error().Err(refundErr).
					Str("room", roomCode).
					Int64("user", userID).
					Msg("entry fee refund failed after seat failure")
			}
			return err
		}

		e.store.AddUserGame(ctx, userID, roomCode)

		e.emit(roomCode, &models.Event{
			Type:     models.EventPlayerJoined,
			RoomCode: roomCode,
			Data:     &models.PlayerJoinedPayload{Player: player, Game: g},
		})
		if g.Status == models.GameStatusInProgress {
			e.emit(roomCode, &models.Event{
				Type:     models.EventGameStarted,
				RoomCode: roomCode,
				Data:     g,
			})
		}

		game = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().Str("room", roomCode).Int64("user", userID).Msg("player joined")
	return game, nil
}

// GameSnapshot returns the current room document.
func (e *Engine) GameSnapshot(ctx context.Context, roomCode string) (*models.Game, error) {
	return e.store.GetGame(ctx, roomCode)
}

// AttachInfo validates that userID is seated in the room and returns the
// player's color with a state snapshot. The hub calls this on attach.
func (e *Engine) AttachInfo(ctx context.Context, roomCode string, userID int64) (*models.Game, string, error) {
	game, err := e.store.GetGame(ctx, roomCode)
	if err != nil {
		return nil, "", err
	}
	seat := game.PlayerIndex(userID)
	if seat < 0 {
		return nil, "", ErrNotAPlayer
	}
	return game, game.Players[seat].Color, nil
}

// RollDice rolls for the current-turn player. If the value leaves no legal
// move, the turn advances immediately with the dice cleared: a turn-skip,
// not an error.
func (e *Engine) RollDice(ctx context.Context, roomCode string, userID int64) error {
	roomCode = models.NormalizeRoomCode(roomCode)

	return e.locks.WithLock(roomCode, func() error {
		game, err := e.store.GetGame(ctx, roomCode)
		if err != nil {
			return err
		}

		seat, err := requireTurn(game, userID)
		if err != nil {
			return err
		}
		if game.DiceValue != 0 {
			return ErrMovePending
		}

		dice := e.roller.Roll(roomCode, int64(len(game.Moves)))
		game.RecordRoll(userID, dice)

		skipped := !game.HasLegalMove(seat, dice)
		if skipped {
			game.AdvanceTurn()
		} else {
			game.DiceValue = dice
		}

		if err := e.store.SaveGame(ctx, game); err != nil {
			return err
		}

		e.emit(roomCode, &models.Event{
			Type:     models.EventDiceRolled,
			RoomCode: roomCode,
			Data:     &models.DiceRolledPayload{UserID: userID, Dice: dice, Game: game},
		})
		if skipped {
			e.emit(roomCode, &models.Event{
				Type:     models.EventTurnPassed,
				RoomCode: roomCode,
				Data:     &models.TurnPassedPayload{UserID: userID, Dice: dice, Game: game},
			})
		}
		return nil
	})
}

// MoveToken applies a move for the current-turn player. The destination is
// recomputed server-side from the stored token position and the pending
// dice value; a mismatched from/to is rejected. A six grants another roll;
// anything else passes the turn. Finishing the last token completes the
// game and settles it before the acknowledging broadcast.
func (e *Engine) MoveToken(ctx context.Context, roomCode string, userID int64, tokenID, from, to int) error {
	roomCode = models.NormalizeRoomCode(roomCode)

	return e.locks.WithLock(roomCode, func() error {
		game, err := e.store.GetGame(ctx, roomCode)
		if err != nil {
			return err
		}

		seat, err := requireTurn(game, userID)
		if err != nil {
			return err
		}
		dice := game.DiceValue
		if dice == 0 {
			return ErrNoDicePending
		}

		player := &game.Players[seat]
		if tokenID < 0 || tokenID >= len(player.Tokens) {
			return ErrIllegalMove
		}
		token := &player.Tokens[tokenID]
		if token.IsFinished || token.Position != from {
			return ErrIllegalMove
		}

		dest, err := legalDestination(from, dice)
		if err != nil {
			return err
		}
		if to != dest {
			return ErrIllegalMove
		}

		token.Position = dest
		if dest >= models.FinishPosition {
			token.IsFinished = true
			player.Score++
		}
		game.RecordMove(userID, dice, tokenID, from, dest)
		move := &game.Moves[len(game.Moves)-1]

		won := game.AllTokensFinished(seat)

		var settlement *models.SettlementResult
		if won {
			settlement, err = e.finishGame(ctx, game, userID)
			if err != nil {
				return err
			}
		} else if dice == 6 {
			// Extra turn: the pointer stays, the dice is consumed.
			game.DiceValue = 0
		} else {
			game.AdvanceTurn()
		}

		if err := e.store.SaveGame(ctx, game); err != nil {
			if won {
				// Payout already committed; the document write must be
				// retried from the audit trail rather than rolled back.
				e.log.Error().Err(err).
					Str("room", roomCode).
					Msg("game document save failed after settlement")
			}
			return err
		}

		e.emit(roomCode, &models.Event{
			Type:     models.EventTokenMoved,
			RoomCode: roomCode,
			Data:     &models.TokenMovedPayload{UserID: userID, Move: move, Game: game},
		})
		if won {
			e.emit(roomCode, &models.Event{
				Type:     models.EventGameEnded,
				RoomCode: roomCode,
				Data:     &models.GameEndedPayload{Winner: userID, Game: game, Settlement: settlement},
			})
		}
		return nil
	})
}

// LeaveGame stamps the player's departure. It does not change status, does
// not forfeit, and does not settle; disconnection and departure carry no
// automatic loss in this design.
func (e *Engine) LeaveGame(ctx context.Context, roomCode string, userID int64) error {
	roomCode = models.NormalizeRoomCode(roomCode)

	return e.locks.WithLock(roomCode, func() error {
		game, err := e.store.GetGame(ctx, roomCode)
		if err != nil {
			return err
		}
		seat := game.PlayerIndex(userID)
		if seat < 0 {
			return ErrNotAPlayer
		}

		game.Players[seat].LeftAt = time.Now().Unix()
		if err := e.store.SaveGame(ctx, game); err != nil {
			return err
		}

		e.emit(roomCode, &models.Event{
			Type:     models.EventPlayerLeft,
			RoomCode: roomCode,
			Data:     &models.PlayerEventPayload{UserID: userID, Game: game},
		})
		return nil
	})
}

// ChatMessage fans a message out to the room. Senders who are not seated
// are rejected; chat never mutates game state but still runs under the room
// lock so it observes a settled snapshot like every other room event.
func (e *Engine) ChatMessage(ctx context.Context, roomCode string, userID int64, text string) error {
	roomCode = models.NormalizeRoomCode(roomCode)

	return e.locks.WithLock(roomCode, func() error {
		game, err := e.store.GetGame(ctx, roomCode)
		if err != nil {
			return err
		}
		seat := game.PlayerIndex(userID)
		if seat < 0 {
			return ErrNotAPlayer
		}

		e.emit(roomCode, &models.Event{
			Type:     models.EventChatMessage,
			RoomCode: roomCode,
			Data: &models.ChatPayload{
				UserID:   userID,
				Username: game.Players[seat].Username,
				Text:     text,
			},
		})
		return nil
	})
}

// CancelGame tears down a room that never started and refunds every seated
// player's entry fee. Only a seated player may cancel, and only while the
// game is still waiting; this is the exit path for funded rooms nobody
// joins, which otherwise persist indefinitely.
func (e *Engine) CancelGame(ctx context.Context, roomCode string, userID int64) (*models.Game, error) {
	roomCode = models.NormalizeRoomCode(roomCode)

	var game *models.Game
	err := e.locks.WithLock(roomCode, func() error {
		g, err := e.store.GetGame(ctx, roomCode)
		if err != nil {
			return err
		}
		if g.PlayerIndex(userID) < 0 {
			return ErrNotAPlayer
		}
		if g.Status != models.GameStatusWaiting {
			return ErrGameNotCancellable
		}

		g.Status = models.GameStatusCancelled
		g.CompletedAt = time.Now().Unix()

		// The room is closed before any money moves so a refund can never
		// race a join.
		if err := e.store.SaveGame(ctx, g); err != nil {
			return err
		}

		for _, p := range g.Players {
			if err := e.ledger.RefundEntryFee(ctx, p.UserID, g.EntryFee, roomCode); err != nil {
				e.log.Error().Err(err).
					Str("room", roomCode).
					Int64("user", p.UserID).
					Msg("entry fee refund failed on cancel")
			}
		}

		e.emit(roomCode, &models.Event{
			Type:     models.EventGameCancelled,
			RoomCode: roomCode,
			Data:     g,
		})

		game = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().Str("room", roomCode).Int64("user", userID).Msg("game cancelled")
	return game, nil
}

// DeclareWinner is the admin override: it settles a game whose automatic
// win detection did not or should not fire. It shares the settlement with
// the automatic path and is rejected on an already-completed game.
func (e *Engine) DeclareWinner(ctx context.Context, roomCode string, winnerID int64) (*models.Game, *models.SettlementResult, error) {
	roomCode = models.NormalizeRoomCode(roomCode)

	var (
		game   *models.Game
		result *models.SettlementResult
	)
	err := e.locks.WithLock(roomCode, func() error {
		g, err := e.store.GetGame(ctx, roomCode)
		if err != nil {
			return err
		}
		switch g.Status {
		case models.GameStatusInProgress:
		case models.GameStatusCompleted:
			return ErrGameCompleted
		default:
			return ErrGameNotInProgress
		}

		result, err = e.finishGame(ctx, g, winnerID)
		if err != nil {
			return err
		}

		if err := e.store.SaveGame(ctx, g); err != nil {
			e.log.Error().Err(err).
				Str("room", roomCode).
				Msg("game document save failed after settlement")
			return err
		}

		e.emit(roomCode, &models.Event{
			Type:     models.EventGameEnded,
			RoomCode: roomCode,
			Data:     &models.GameEndedPayload{Winner: winnerID, Game: g, Settlement: result},
		})

		game = g
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.log.Info().Str("room", roomCode).Int64("winner", winnerID).Msg("winner declared by admin")
	return game, result, nil
}

// finishGame settles and transitions in_progress -> completed. Callers
// hold the room lock and persist the document afterwards.
func (e *Engine) finishGame(ctx context.Context, game *models.Game, winnerID int64) (*models.SettlementResult, error) {
	result, err := e.settlement.Settle(ctx, game, winnerID)
	if err != nil {
		return nil, err
	}

	game.Status = models.GameStatusCompleted
	game.Winner = winnerID
	game.DiceValue = 0
	game.CompletedAt = time.Now().Unix()

	return result, nil
}

// requireTurn validates the common roll/move preconditions and returns the
// caller's seat.
func requireTurn(game *models.Game, userID int64) (int, error) {
	if game.Status != models.GameStatusInProgress {
		return -1, ErrGameNotInProgress
	}
	seat := game.PlayerIndex(userID)
	if seat < 0 {
		return -1, ErrNotAPlayer
	}
	if seat != game.CurrentTurn {
		return -1, ErrNotYourTurn
	}
	return seat, nil
}

// legalDestination is the sole authority for where a token may go: base
// exit needs a six and lands on the first track square; on-track tokens
// advance by the dice, capped at home.
func legalDestination(from, dice int) (int, error) {
	if from == models.BasePosition {
		if dice != 6 {
			return 0, ErrIllegalMove
		}
		return 1, nil
	}
	dest := from + dice
	if dest > models.FinishPosition {
		dest = models.FinishPosition
	}
	return dest, nil
}

func randomSeat(players int) int {
	var b [1]byte
	rand.Read(b[:])
	return int(b[0]) % players
}
