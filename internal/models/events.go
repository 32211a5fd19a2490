package models

// Inbound websocket event types.
const (
	EventJoinGame    = "join_game"
	EventRollDice    = "roll_dice"
	EventMoveToken   = "move_token"
	EventLeaveGame   = "leave_game"
	EventChatMessage = "chat_message"
)

// Outbound websocket event types.
const (
	EventGameJoined         = "game_joined"
	EventPlayerJoined       = "player_joined"
	EventGameStarted        = "game_started"
	EventGameCancelled      = "game_cancelled"
	EventDiceRolled         = "dice_rolled"
	EventTurnPassed         = "turn_passed"
	EventTokenMoved         = "token_moved"
	EventGameEnded          = "game_ended"
	EventPlayerLeft         = "player_left"
	EventPlayerDisconnected = "player_disconnected"
	EventError              = "error"
)

// ClientMessage is the envelope for every inbound websocket frame.
type ClientMessage struct {
	Type     string `json:"type"`
	RoomCode string `json:"room_code,omitempty"`
	TokenID  int    `json:"token_id"`
	From     int    `json:"from"`
	To       int    `json:"to"`
	Text     string `json:"text,omitempty"`
}

// Event is the envelope for every outbound websocket frame. Data carries
// enough of the Game document for clients to render without re-deriving
// server logic.
type Event struct {
	Type     string `json:"type"`
	RoomCode string `json:"room_code,omitempty"`
	Data     any    `json:"data,omitempty"`
}

type GameJoinedPayload struct {
	Color string `json:"color"`
	Game  *Game  `json:"game"`
}

type PlayerJoinedPayload struct {
	Player *Player `json:"player"`
	Game   *Game   `json:"game"`
}

type DiceRolledPayload struct {
	UserID int64 `json:"user_id"`
	Dice   int   `json:"dice"`
	Game   *Game `json:"game"`
}

// TurnPassedPayload announces a turn-skip: the roller had no legal move,
// so the turn advanced without a token move.
type TurnPassedPayload struct {
	UserID int64 `json:"user_id"`
	Dice   int   `json:"dice"`
	Game   *Game `json:"game"`
}

type TokenMovedPayload struct {
	UserID int64 `json:"user_id"`
	Move   *Move `json:"move"`
	Game   *Game `json:"game"`
}

type GameEndedPayload struct {
	Winner     int64             `json:"winner"`
	Game       *Game             `json:"game"`
	Settlement *SettlementResult `json:"settlement"`
}

type PlayerEventPayload struct {
	UserID int64 `json:"user_id"`
	Game   *Game `json:"game,omitempty"`
}

type ChatPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// SettlementResult is what the terminal broadcast and the admin endpoint
// report about the money movement.
type SettlementResult struct {
	RoomCode      string  `json:"room_code"`
	WinnerID      int64   `json:"winner_id"`
	Prize         float64 `json:"prize"`
	ReferrerID    int64   `json:"referrer_id,omitempty"`
	ReferralBonus float64 `json:"referral_bonus,omitempty"`
}
