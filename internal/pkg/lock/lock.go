// Package lock provides per-room locking so that no two events for the
// same room are in flight past their initial validation read at the same
// time. Every room event handler, including both settlement entry points,
// runs its whole read-validate-write cycle under the room's lock.
package lock

import "sync"

type roomMutex struct {
	mu sync.Mutex
}

// RoomLock hands out one mutex per room code.
type RoomLock struct {
	locks sync.Map // map[string]*roomMutex
	pool  sync.Pool
}

func NewRoomLock() *RoomLock {
	return &RoomLock{
		pool: sync.Pool{
			New: func() any {
				return &roomMutex{}
			},
		},
	}
}

func (rl *RoomLock) getLock(roomCode string) *roomMutex {
	if v, ok := rl.locks.Load(roomCode); ok {
		return v.(*roomMutex)
	}

	newLock := rl.pool.Get().(*roomMutex)
	actual, loaded := rl.locks.LoadOrStore(roomCode, newLock)
	if loaded {
		rl.pool.Put(newLock)
	}
	return actual.(*roomMutex)
}

// Lock acquires the lock for a room.
func (rl *RoomLock) Lock(roomCode string) {
	rl.getLock(roomCode).mu.Lock()
}

// Unlock releases the lock for a room.
func (rl *RoomLock) Unlock(roomCode string) {
	if v, ok := rl.locks.Load(roomCode); ok {
		v.(*roomMutex).mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (rl *RoomLock) TryLock(roomCode string) bool {
	return rl.getLock(roomCode).mu.TryLock()
}

// WithLock executes fn while holding the room's lock.
func (rl *RoomLock) WithLock(roomCode string, fn func() error) error {
	rl.Lock(roomCode)
	defer rl.Unlock(roomCode)
	return fn()
}
