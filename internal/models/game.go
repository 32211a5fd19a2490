package models

import "time"

type GameStatus string

const (
	GameStatusWaiting    GameStatus = "waiting"
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusCompleted  GameStatus = "completed"
	GameStatusCancelled  GameStatus = "cancelled"
)

const (
	MaxPlayers      = 2
	TokensPerPlayer = 4

	// Track positions. 0 is the base, 57 is home. A token that reaches
	// position 57 is finished and never moves again.
	BasePosition   = 0
	FinishPosition = 57
)

// PlayerColors are assigned by seat order at join time.
var PlayerColors = [MaxPlayers]string{"red", "blue"}

type Token struct {
	ID         int  `json:"id" redis:"id"`
	Position   int  `json:"position" redis:"position"`
	IsFinished bool `json:"is_finished" redis:"is_finished"`
}

type Player struct {
	UserID   int64   `json:"user_id" redis:"user_id"`
	Username string  `json:"username" redis:"username"`
	Color    string  `json:"color" redis:"color"`
	Tokens   []Token `json:"tokens" redis:"tokens"`
	Score    int     `json:"score" redis:"score"`
	LeftAt   int64   `json:"left_at,omitempty" redis:"left_at"`
}

type MoveAction string

const (
	MoveActionRoll MoveAction = "roll"
	MoveActionMove MoveAction = "move"
)

// Move is one entry in the append-only audit log of accepted actions.
type Move struct {
	UserID    int64      `json:"user_id"`
	Action    MoveAction `json:"action"`
	Dice      int        `json:"dice"`
	TokenID   int        `json:"token_id,omitempty"`
	From      int        `json:"from,omitempty"`
	To        int        `json:"to,omitempty"`
	CreatedAt int64      `json:"created_at"`
}

// Game is the authoritative per-room document. All mutation flows through
// the engine; everything else reads snapshots.
type Game struct {
	RoomCode       string     `json:"room_code" redis:"room_code"`
	EntryFee       float64    `json:"entry_fee" redis:"entry_fee"`
	CommissionRate float64    `json:"commission_rate" redis:"commission_rate"`
	PrizePool      float64    `json:"prize_pool" redis:"prize_pool"`
	MaxPlayers     int        `json:"max_players" redis:"max_players"`
	Status         GameStatus `json:"status" redis:"status"`
	Players        []Player   `json:"players" redis:"players"`
	CurrentTurn    int        `json:"current_turn" redis:"current_turn"`
	DiceValue      int        `json:"dice_value" redis:"dice_value"`
	Winner         int64      `json:"winner,omitempty" redis:"winner"`
	Moves          []Move     `json:"moves" redis:"moves"`

	CreatedAt   int64 `json:"created_at" redis:"created_at"`
	StartedAt   int64 `json:"started_at,omitempty" redis:"started_at"`
	CompletedAt int64 `json:"completed_at,omitempty" redis:"completed_at"`
}

// NewGame creates a waiting game with the prize pool snapshotted from the
// commission rate in force right now. Later rate changes never touch it.
func NewGame(roomCode string, entryFee, commissionRate float64) *Game {
	return &Game{
		RoomCode:       roomCode,
		EntryFee:       entryFee,
		CommissionRate: commissionRate,
		PrizePool:      PrizePool(entryFee, MaxPlayers, commissionRate),
		MaxPlayers:     MaxPlayers,
		Status:         GameStatusWaiting,
		Players:        []Player{},
		CurrentTurn:    0,
		Moves:          []Move{},
		CreatedAt:      time.Now().Unix(),
	}
}

// SeatPlayer appends a player to the next free seat and returns it.
// Callers check capacity first; the seat's color follows seat order.
func (g *Game) SeatPlayer(userID int64, username string) *Player {
	seat := len(g.Players)
	tokens := make([]Token, TokensPerPlayer)
	for i := range tokens {
		tokens[i] = Token{ID: i, Position: BasePosition}
	}
	g.Players = append(g.Players, Player{
		UserID:   userID,
		Username: username,
		Color:    PlayerColors[seat],
		Tokens:   tokens,
	})
	return &g.Players[seat]
}

// PlayerIndex returns the seat of userID, or -1 if not seated.
func (g *Game) PlayerIndex(userID int64) int {
	for i := range g.Players {
		if g.Players[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (g *Game) IsFull() bool {
	return len(g.Players) >= g.MaxPlayers
}

func (g *Game) CurrentPlayer() *Player {
	if g.Status != GameStatusInProgress || g.CurrentTurn < 0 || g.CurrentTurn >= len(g.Players) {
		return nil
	}
	return &g.Players[g.CurrentTurn]
}

// HasLegalMove reports whether the seat can act on a rolled value. A six is
// always playable while a token still sits at base; any other value needs at
// least one unfinished token already out on the track.
func (g *Game) HasLegalMove(seat, dice int) bool {
	if seat < 0 || seat >= len(g.Players) {
		return false
	}
	for _, t := range g.Players[seat].Tokens {
		if t.IsFinished {
			continue
		}
		if t.Position == BasePosition {
			if dice == 6 {
				return true
			}
			continue
		}
		return true
	}
	return false
}

// AllTokensFinished reports whether the seat has won.
func (g *Game) AllTokensFinished(seat int) bool {
	if seat < 0 || seat >= len(g.Players) {
		return false
	}
	for _, t := range g.Players[seat].Tokens {
		if !t.IsFinished {
			return false
		}
	}
	return true
}

// AdvanceTurn moves the turn pointer to the next seat and clears the dice.
func (g *Game) AdvanceTurn() {
	g.CurrentTurn = (g.CurrentTurn + 1) % len(g.Players)
	g.DiceValue = 0
}

// RecordRoll appends a roll to the move log.
func (g *Game) RecordRoll(userID int64, dice int) {
	g.Moves = append(g.Moves, Move{
		UserID:    userID,
		Action:    MoveActionRoll,
		Dice:      dice,
		CreatedAt: time.Now().Unix(),
	})
}

// RecordMove appends an accepted token move with its resulting position.
func (g *Game) RecordMove(userID int64, dice, tokenID, from, to int) {
	g.Moves = append(g.Moves, Move{
		UserID:    userID,
		Action:    MoveActionMove,
		Dice:      dice,
		TokenID:   tokenID,
		From:      from,
		To:        to,
		CreatedAt: time.Now().Unix(),
	})
}
