package services_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/arpitvarshney44/ludo-backend/internal/models"
	"github.com/arpitvarshney44/ludo-backend/internal/repository"
	"github.com/arpitvarshney44/ludo-backend/internal/services"
)

// fakeStore keeps game documents in memory. Every read and write passes
// through JSON, mirroring the redis store, so state-machine tests also
// exercise serialization round-trips.
type fakeStore struct {
	mu    sync.Mutex
	games map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{games: make(map[string][]byte)}
}

func clone(game *models.Game) ([]byte, error) {
	return json.Marshal(game)
}

func (s *fakeStore) CreateGame(_ context.Context, game *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := clone(game)
	if err != nil {
		return err
	}
	s.games[game.RoomCode] = data
	return nil
}

func (s *fakeStore) GetGame(_ context.Context, roomCode string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.games[models.NormalizeRoomCode(roomCode)]
	if !ok {
		return nil, services.ErrRoomNotFound
	}
	var game models.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *fakeStore) SaveGame(_ context.Context, game *models.Game) error {
	return s.CreateGame(context.Background(), game)
}

func (s *fakeStore) AddUserGame(_ context.Context, _ int64, _ string) error {
	return nil
}

// mutate applies fn to the stored document, bypassing the engine. Used to
// stage mid-game positions.
func (s *fakeStore) mutate(roomCode string, fn func(*models.Game)) error {
	game, err := s.GetGame(context.Background(), roomCode)
	if err != nil {
		return err
	}
	fn(game)
	return s.SaveGame(context.Background(), game)
}

// fakeLedger implements both the entry and settlement wallet surfaces. It
// enforces the at-most-one-payout-per-game rule the same way the partial
// unique index does.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[int64]float64
	debits   []ledgerOp
	refunds  []ledgerOp
	settled  map[string]repository.SettleParams
}

type ledgerOp struct {
	UserID   int64
	Amount   float64
	RoomCode string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[int64]float64),
		settled:  make(map[string]repository.SettleParams),
	}
}

func (l *fakeLedger) fund(userID int64, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = amount
}

func (l *fakeLedger) DebitEntryFee(_ context.Context, userID int64, amount float64, roomCode string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return repository.ErrInsufficientBalance
	}
	l.balances[userID] -= amount
	l.debits = append(l.debits, ledgerOp{UserID: userID, Amount: amount, RoomCode: roomCode})
	return nil
}

func (l *fakeLedger) RefundEntryFee(_ context.Context, userID int64, amount float64, roomCode string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	l.refunds = append(l.refunds, ledgerOp{UserID: userID, Amount: amount, RoomCode: roomCode})
	return nil
}

func (l *fakeLedger) SettleWin(_ context.Context, p repository.SettleParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.settled[p.RoomCode]; ok {
		return repository.ErrDuplicateWinPayout
	}
	l.settled[p.RoomCode] = p
	l.balances[p.WinnerID] += p.Prize
	return nil
}

func (l *fakeLedger) WinPayout(_ context.Context, roomCode string) (int64, float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.settled[roomCode]
	if !ok {
		return 0, 0, repository.ErrNoWinPayout
	}
	return p.WinnerID, p.Prize, nil
}

func (l *fakeLedger) settleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.settled)
}

func (l *fakeLedger) settlementFor(roomCode string) (repository.SettleParams, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.settled[roomCode]
	return p, ok
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[int64]*models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, userID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

// scriptedRoller returns a fixed sequence of dice values, then falls back
// to threes.
type scriptedRoller struct {
	mu     sync.Mutex
	values []int
}

func (r *scriptedRoller) push(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, values...)
}

func (r *scriptedRoller) Roll(_ string, _ int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return 3
	}
	v := r.values[0]
	r.values = r.values[1:]
	return v
}

// fakeBroadcaster records every fan-out.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []*models.Event
}

func (b *fakeBroadcaster) Broadcast(_ string, event *models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBroadcaster) BroadcastExcept(roomCode string, _ int64, event *models.Event) {
	b.Broadcast(roomCode, event)
}

func (b *fakeBroadcaster) typesSeen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		types = append(types, ev.Type)
	}
	return types
}

func (b *fakeBroadcaster) lastOfType(eventType string) *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Type == eventType {
			return b.events[i]
		}
	}
	return nil
}
