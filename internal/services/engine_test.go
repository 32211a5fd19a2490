package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpitvarshney44/ludo-backend/internal/models"
	"github.com/arpitvarshney44/ludo-backend/internal/repository"
	"github.com/arpitvarshney44/ludo-backend/internal/services"
)

const (
	userA int64 = 1
	userB int64 = 2
	userC int64 = 3

	entryFee   = 100.0
	commission = 0.05
)

type testEnv struct {
	engine *services.Engine
	store  *fakeStore
	ledger *fakeLedger
	users  *fakeUsers
	roller *scriptedRoller
	bcast  *fakeBroadcaster
}

func newTestEnv(users ...*models.User) *testEnv {
	if len(users) == 0 {
		users = []*models.User{
			{ID: userA, Username: "alice"},
			{ID: userB, Username: "bob"},
			{ID: userC, Username: "carol"},
		}
	}

	env := &testEnv{
		store:  newFakeStore(),
		ledger: newFakeLedger(),
		users:  newFakeUsers(users...),
		roller: &scriptedRoller{},
		bcast:  &fakeBroadcaster{},
	}
	for _, u := range users {
		env.ledger.fund(u.ID, 1000)
	}

	settlement := services.NewSettlement(env.ledger, env.users, 0.02, zerolog.Nop())
	env.engine = services.NewEngine(
		env.store,
		env.ledger,
		env.users,
		settlement,
		env.roller,
		services.EngineConfig{
			CommissionRate: commission,
			MinEntryFee:    10,
			MaxEntryFee:    10000,
		},
		zerolog.Nop(),
	)
	env.engine.SetBroadcaster(env.bcast)
	return env
}

// startGame creates a two-player game and pins the starting turn to seat 0
// (userA) so move sequences are deterministic.
func (env *testEnv) startGame(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	game, err := env.engine.CreateGame(ctx, userA, entryFee)
	require.NoError(t, err)

	_, err = env.engine.JoinGame(ctx, game.RoomCode, userB)
	require.NoError(t, err)

	require.NoError(t, env.store.mutate(game.RoomCode, func(g *models.Game) {
		g.CurrentTurn = 0
	}))
	return game.RoomCode
}

func TestCreateGame(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	game, err := env.engine.CreateGame(ctx, userA, entryFee)
	require.NoError(t, err)

	assert.Len(t, game.RoomCode, 6)
	assert.Equal(t, models.GameStatusWaiting, game.Status)
	assert.Equal(t, entryFee, game.EntryFee)
	assert.Equal(t, commission, game.CommissionRate)
	assert.Equal(t, 190.0, game.PrizePool)
	require.Len(t, game.Players, 1)
	assert.Equal(t, "red", game.Players[0].Color)
	require.Len(t, game.Players[0].Tokens, models.TokensPerPlayer)
	for _, tok := range game.Players[0].Tokens {
		assert.Equal(t, models.BasePosition, tok.Position)
		assert.False(t, tok.IsFinished)
	}

	require.Len(t, env.ledger.debits, 1)
	assert.Equal(t, ledgerOp{UserID: userA, Amount: entryFee, RoomCode: game.RoomCode}, env.ledger.debits[0])
}

func TestCreateGameInsufficientBalance(t *testing.T) {
	env := newTestEnv()
	env.ledger.fund(userA, 5)

	_, err := env.engine.CreateGame(context.Background(), userA, entryFee)
	assert.Error(t, err)
	assert.Empty(t, env.ledger.debits)
}

func TestCreateGameBlockedUser(t *testing.T) {
	env := newTestEnv(&models.User{ID: userA, Username: "alice", Blocked: true})
	env.ledger.fund(userA, 1000)

	_, err := env.engine.CreateGame(context.Background(), userA, entryFee)
	assert.ErrorIs(t, err, services.ErrUserBlocked)
}

func TestCreateGameEntryFeeBounds(t *testing.T) {
	env := newTestEnv()

	_, err := env.engine.CreateGame(context.Background(), userA, 5)
	assert.ErrorIs(t, err, services.ErrInvalidEntryFee)

	_, err = env.engine.CreateGame(context.Background(), userA, 20000)
	assert.ErrorIs(t, err, services.ErrInvalidEntryFee)
}

func TestJoinGameStartsWhenFull(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	game, err := env.engine.CreateGame(ctx, userA, entryFee)
	require.NoError(t, err)

	joined, err := env.engine.JoinGame(ctx, game.RoomCode, userB)
	require.NoError(t, err)

	assert.Equal(t, models.GameStatusInProgress, joined.Status)
	require.Len(t, joined.Players, 2)
	assert.Equal(t, "blue", joined.Players[1].Color)
	assert.GreaterOrEqual(t, joined.CurrentTurn, 0)
	assert.Less(t, joined.CurrentTurn, len(joined.Players))
	assert.NotZero(t, joined.StartedAt)

	// Both fees taken, prize pool untouched by the join.
	assert.Len(t, env.ledger.debits, 2)
	assert.Equal(t, 190.0, joined.PrizePool)

	types := env.bcast.typesSeen()
	assert.Contains(t, types, models.EventPlayerJoined)
	assert.Contains(t, types, models.EventGameStarted)
}

func TestJoinGameRoomCodeCaseInsensitive(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	game, err := env.engine.CreateGame(ctx, userA, entryFee)
	require.NoError(t, err)

	lower := make([]byte, len(game.RoomCode))
	for i := range game.RoomCode {
		lower[i] = game.RoomCode[i] | 0x20
	}

	joined, err := env.engine.JoinGame(ctx, string(lower), userB)
	require.NoError(t, err)
	assert.Equal(t, game.RoomCode, joined.RoomCode)
}

func TestJoinGameErrors(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.engine.JoinGame(ctx, "NOSUCH", userB)
	assert.ErrorIs(t, err, services.ErrRoomNotFound)

	game, err := env.engine.CreateGame(ctx, userA, entryFee)
	require.NoError(t, err)

	_, err = env.engine.JoinGame(ctx, game.RoomCode, userA)
	assert.ErrorIs(t, err, services.ErrAlreadySeated)

	_, err = env.engine.JoinGame(ctx, game.RoomCode, userB)
	require.NoError(t, err)

	// Seats are full and the game started; a third player is turned away.
	_, err = env.engine.JoinGame(ctx, game.RoomCode, userC)
	assert.ErrorIs(t, err, services.ErrGameNotJoinable)
}

func TestJoinGameInsufficientBalanceLeavesSeatEmpty(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	game, err := env.engine.CreateGame(ctx, userA, entryFee)
	require.NoError(t, err)

	env.ledger.fund(userB, 50)
	_, err = env.engine.JoinGame(ctx, game.RoomCode, userB)
	assert.Error(t, err)

	stored, err := env.store.GetGame(ctx, game.RoomCode)
	require.NoError(t, err)
	assert.Len(t, stored.Players, 1)
	assert.Equal(t, models.GameStatusWaiting, stored.Status)
}

func TestRollDiceValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	err := env.engine.RollDice(ctx, room, userB)
	assert.ErrorIs(t, err, services.ErrNotYourTurn)

	err = env.engine.RollDice(ctx, room, userC)
	assert.ErrorIs(t, err, services.ErrNotAPlayer)

	err = env.engine.RollDice(ctx, "NOSUCH", userA)
	assert.ErrorIs(t, err, services.ErrRoomNotFound)
}

func TestRollDiceTurnSkipWhenNoLegalMove(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	// All of A's tokens sit at base; a non-six leaves no legal move, so
	// the turn passes to B with the dice cleared.
	env.roller.push(3)
	require.NoError(t, env.engine.RollDice(ctx, room, userA))

	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 1, game.CurrentTurn)
	assert.Equal(t, 0, game.DiceValue)

	// The roll is still an accepted action in the audit log.
	require.Len(t, game.Moves, 1)
	assert.Equal(t, models.MoveActionRoll, game.Moves[0].Action)
	assert.Equal(t, 3, game.Moves[0].Dice)

	types := env.bcast.typesSeen()
	assert.Contains(t, types, models.EventDiceRolled)
	assert.Contains(t, types, models.EventTurnPassed)
}

func TestRollDiceSixPermitsBaseExit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	env.roller.push(6)
	require.NoError(t, env.engine.RollDice(ctx, room, userA))

	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 0, game.CurrentTurn)
	assert.Equal(t, 6, game.DiceValue)

	// Rolling again with a move pending is rejected.
	err = env.engine.RollDice(ctx, room, userA)
	assert.ErrorIs(t, err, services.ErrMovePending)
}

func TestMoveTokenBaseExitAndExtraTurn(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	env.roller.push(6)
	require.NoError(t, env.engine.RollDice(ctx, room, userA))
	require.NoError(t, env.engine.MoveToken(ctx, room, userA, 0, 0, 1))

	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 1, game.Players[0].Tokens[0].Position)

	// A six grants another roll: the pointer stays, the dice is consumed.
	assert.Equal(t, 0, game.CurrentTurn)
	assert.Equal(t, 0, game.DiceValue)

	env.roller.push(4)
	require.NoError(t, env.engine.RollDice(ctx, room, userA))
	require.NoError(t, env.engine.MoveToken(ctx, room, userA, 0, 1, 5))

	game, err = env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 5, game.Players[0].Tokens[0].Position)
	assert.Equal(t, 1, game.CurrentTurn)
	assert.Equal(t, 0, game.DiceValue)
}

func TestMoveTokenRejectsForgedDestination(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	env.roller.push(6)
	require.NoError(t, env.engine.RollDice(ctx, room, userA))

	// Claimed destination does not match the recomputed one.
	err := env.engine.MoveToken(ctx, room, userA, 0, 0, 6)
	assert.ErrorIs(t, err, services.ErrIllegalMove)

	// Claimed origin does not match the stored token position.
	err = env.engine.MoveToken(ctx, room, userA, 0, 3, 9)
	assert.ErrorIs(t, err, services.ErrIllegalMove)

	// Rejected events never reach the move log.
	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	require.Len(t, game.Moves, 1)
	assert.Equal(t, models.MoveActionRoll, game.Moves[0].Action)
}

func TestMoveTokenRequiresPendingDice(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	err := env.engine.MoveToken(ctx, room, userA, 0, 0, 1)
	assert.ErrorIs(t, err, services.ErrNoDicePending)
}

func TestFinishedTokenNeverMovesAgain(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	require.NoError(t, env.store.mutate(room, func(g *models.Game) {
		g.Players[0].Tokens[0] = models.Token{ID: 0, Position: models.FinishPosition, IsFinished: true}
		g.Players[0].Tokens[1].Position = 10
		g.DiceValue = 3
	}))

	err := env.engine.MoveToken(ctx, room, userA, 0, models.FinishPosition, models.FinishPosition+3)
	assert.ErrorIs(t, err, services.ErrIllegalMove)

	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, models.FinishPosition, game.Players[0].Tokens[0].Position)
}

// stageNearWin leaves userA one move away from winning: three tokens home
// and the last one two squares out.
func stageNearWin(t *testing.T, env *testEnv, room string, diceValue int) {
	t.Helper()
	require.NoError(t, env.store.mutate(room, func(g *models.Game) {
		for i := 0; i < 3; i++ {
			g.Players[0].Tokens[i] = models.Token{ID: i, Position: models.FinishPosition, IsFinished: true}
		}
		g.Players[0].Score = 3
		g.Players[0].Tokens[3].Position = 55
		g.CurrentTurn = 0
		g.DiceValue = diceValue
	}))
}

func TestWinningMoveSettlesOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)
	stageNearWin(t, env, room, 0)

	env.roller.push(2)
	require.NoError(t, env.engine.RollDice(ctx, room, userA))
	require.NoError(t, env.engine.MoveToken(ctx, room, userA, 3, 55, 57))

	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCompleted, game.Status)
	assert.Equal(t, userA, game.Winner)
	assert.NotZero(t, game.CompletedAt)
	assert.True(t, game.Players[0].Tokens[3].IsFinished)
	assert.Equal(t, 4, game.Players[0].Score)

	require.Equal(t, 1, env.ledger.settleCount())
	settled, ok := env.ledger.settlementFor(room)
	require.True(t, ok)
	assert.Equal(t, userA, settled.WinnerID)
	assert.Equal(t, 190.0, settled.Prize)
	assert.Equal(t, []int64{userB}, settled.LoserIDs)

	ended := env.bcast.lastOfType(models.EventGameEnded)
	require.NotNil(t, ended)
	payload := ended.Data.(*models.GameEndedPayload)
	assert.Equal(t, userA, payload.Winner)
	require.NotNil(t, payload.Settlement)
	assert.Equal(t, 190.0, payload.Settlement.Prize)

	// Terminal states are final: nothing moves afterwards.
	err = env.engine.RollDice(ctx, room, userA)
	assert.ErrorIs(t, err, services.ErrGameNotInProgress)
}

func TestDeclareWinner(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	game, settlement, err := env.engine.DeclareWinner(ctx, room, userB)
	require.NoError(t, err)

	assert.Equal(t, models.GameStatusCompleted, game.Status)
	assert.Equal(t, userB, game.Winner)
	require.NotNil(t, settlement)
	assert.Equal(t, 190.0, settlement.Prize)
	assert.Equal(t, 1, env.ledger.settleCount())

	// Declaring again conflicts and moves no money.
	_, _, err = env.engine.DeclareWinner(ctx, room, userA)
	assert.ErrorIs(t, err, services.ErrGameCompleted)
	assert.Equal(t, 1, env.ledger.settleCount())
}

func TestDeclareWinnerValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, _, err := env.engine.DeclareWinner(ctx, "NOSUCH", userA)
	assert.ErrorIs(t, err, services.ErrRoomNotFound)

	game, err := env.engine.CreateGame(ctx, userA, entryFee)
	require.NoError(t, err)

	// Not in progress yet.
	_, _, err = env.engine.DeclareWinner(ctx, game.RoomCode, userA)
	assert.ErrorIs(t, err, services.ErrGameNotInProgress)

	_, err = env.engine.JoinGame(ctx, game.RoomCode, userB)
	require.NoError(t, err)

	_, _, err = env.engine.DeclareWinner(ctx, game.RoomCode, userC)
	assert.ErrorIs(t, err, services.ErrWinnerNotSeated)
	assert.Equal(t, 0, env.ledger.settleCount())
}

func TestConcurrentSettlementPaysOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)
	stageNearWin(t, env, room, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = env.engine.MoveToken(ctx, room, userA, 3, 55, 57)
	}()
	go func() {
		defer wg.Done()
		_, _, errs[1] = env.engine.DeclareWinner(ctx, room, userA)
	}()
	wg.Wait()

	// Whichever path lost the race is rejected; exactly one payout lands.
	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, env.ledger.settleCount())

	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCompleted, game.Status)
	assert.Equal(t, userA, game.Winner)
}

func TestCancelGameRefundsEntryFee(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	game, err := env.engine.CreateGame(ctx, userA, entryFee)
	require.NoError(t, err)

	cancelled, err := env.engine.CancelGame(ctx, game.RoomCode, userA)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCancelled, cancelled.Status)
	assert.NotZero(t, cancelled.CompletedAt)

	require.Len(t, env.ledger.refunds, 1)
	assert.Equal(t, ledgerOp{UserID: userA, Amount: entryFee, RoomCode: game.RoomCode}, env.ledger.refunds[0])

	ev := env.bcast.lastOfType(models.EventGameCancelled)
	require.NotNil(t, ev)

	// The room stays closed and cannot be cancelled twice.
	_, err = env.engine.JoinGame(ctx, game.RoomCode, userB)
	assert.ErrorIs(t, err, services.ErrGameNotJoinable)
	_, err = env.engine.CancelGame(ctx, game.RoomCode, userA)
	assert.ErrorIs(t, err, services.ErrGameNotCancellable)
	require.Len(t, env.ledger.refunds, 1)
}

func TestCancelGameValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	game, err := env.engine.CreateGame(ctx, userA, entryFee)
	require.NoError(t, err)

	_, err = env.engine.CancelGame(ctx, game.RoomCode, userB)
	assert.ErrorIs(t, err, services.ErrNotAPlayer)

	// Once in progress the stakes are locked in; no cancellation.
	room := env.startGame(t)
	_, err = env.engine.CancelGame(ctx, room, userA)
	assert.ErrorIs(t, err, services.ErrGameNotCancellable)
	assert.Empty(t, env.ledger.refunds)
	assert.Equal(t, 0, env.ledger.settleCount())
}

func TestDeclareWinnerReconcilesUnsavedSettlement(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	// Payout committed but the game document was never marked completed,
	// as after a document-save failure right behind the settlement.
	require.NoError(t, env.ledger.SettleWin(ctx, repository.SettleParams{
		RoomCode: room,
		WinnerID: userA,
		Prize:    190,
	}))

	game, settlement, err := env.engine.DeclareWinner(ctx, room, userA)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCompleted, game.Status)
	assert.Equal(t, userA, game.Winner)
	require.NotNil(t, settlement)
	assert.Equal(t, 190.0, settlement.Prize)

	// No second payout happened.
	assert.Equal(t, 1, env.ledger.settleCount())
}

func TestDeclareWinnerRefusesMismatchedRecordedWinner(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	require.NoError(t, env.ledger.SettleWin(ctx, repository.SettleParams{
		RoomCode: room,
		WinnerID: userB,
		Prize:    190,
	}))

	_, _, err := env.engine.DeclareWinner(ctx, room, userA)
	assert.ErrorIs(t, err, services.ErrAlreadySettled)

	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusInProgress, game.Status)
}

func TestLeaveGameDoesNotForfeit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	require.NoError(t, env.engine.LeaveGame(ctx, room, userB))

	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusInProgress, game.Status)
	assert.Zero(t, game.Winner)
	assert.NotZero(t, game.Players[1].LeftAt)
	assert.Equal(t, 0, env.ledger.settleCount())

	ev := env.bcast.lastOfType(models.EventPlayerLeft)
	require.NotNil(t, ev)
}

func TestChatMessageRequiresSeat(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	require.NoError(t, env.engine.ChatMessage(ctx, room, userA, "good luck"))
	ev := env.bcast.lastOfType(models.EventChatMessage)
	require.NotNil(t, ev)
	payload := ev.Data.(*models.ChatPayload)
	assert.Equal(t, "alice", payload.Username)

	err := env.engine.ChatMessage(ctx, room, userC, "let me in")
	assert.ErrorIs(t, err, services.ErrNotAPlayer)
}

func TestAttachInfo(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	game, color, err := env.engine.AttachInfo(ctx, room, userB)
	require.NoError(t, err)
	assert.Equal(t, "blue", color)
	assert.Equal(t, room, game.RoomCode)

	_, _, err = env.engine.AttachInfo(ctx, room, userC)
	assert.ErrorIs(t, err, services.ErrNotAPlayer)
}

// Full lifecycle: create, join, base exit on a six, a turn-skip
// for the opponent, then a run to completion.
func TestTwoPlayerGameEndToEnd(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	room := env.startGame(t)

	// A rolls a six and brings a token out of base.
	env.roller.push(6)
	require.NoError(t, env.engine.RollDice(ctx, room, userA))
	require.NoError(t, env.engine.MoveToken(ctx, room, userA, 0, 0, 1))

	// Extra turn for the six: A rolls a two and advances.
	env.roller.push(2)
	require.NoError(t, env.engine.RollDice(ctx, room, userA))
	require.NoError(t, env.engine.MoveToken(ctx, room, userA, 0, 1, 3))

	// B has every token at base and rolls a three: automatic turn-skip.
	env.roller.push(3)
	require.NoError(t, env.engine.RollDice(ctx, room, userB))

	game, err := env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 0, game.CurrentTurn)
	assert.Equal(t, 0, game.DiceValue)

	// Fast-forward A to the brink and finish.
	stageNearWin(t, env, room, 0)
	env.roller.push(2)
	require.NoError(t, env.engine.RollDice(ctx, room, userA))
	require.NoError(t, env.engine.MoveToken(ctx, room, userA, 3, 55, 57))

	game, err = env.store.GetGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCompleted, game.Status)
	assert.Equal(t, userA, game.Winner)
	assert.Equal(t, 190.0, game.PrizePool)
	assert.Equal(t, 1, env.ledger.settleCount())
}
