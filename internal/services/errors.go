package services

import "errors"

// Validation errors: the event was illegal for the caller or the room's
// current state. Reported to the originator only, no state change, never
// appended to the move log.
var (
	ErrNotAPlayer        = errors.New("user is not a seated player of this room")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrGameNotInProgress = errors.New("game is not in progress")
	ErrGameNotJoinable   = errors.New("game is not accepting players")
	ErrGameFull          = errors.New("game is full")
	ErrAlreadySeated     = errors.New("user is already seated in this room")
	ErrNoDicePending     = errors.New("roll the dice before moving")
	ErrMovePending       = errors.New("a move is already pending for this roll")
	ErrIllegalMove       = errors.New("illegal move")
	ErrUserBlocked       = errors.New("user account is blocked")
	ErrInvalidEntryFee   = errors.New("entry fee out of allowed range")
)

// Not-found and conflict errors.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrGameCompleted      = errors.New("game already completed")
	ErrGameNotCancellable = errors.New("only waiting games can be cancelled")
	ErrWinnerNotSeated    = errors.New("declared winner is not a seated player")
	ErrAlreadySettled     = errors.New("game already settled")
)
