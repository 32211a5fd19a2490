package models

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room codes are short so players can type them; ambiguous characters
// (0/O, 1/I) are excluded.
const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
)

// NewRoomCode generates a random, already-normalized room code.
func NewRoomCode() string {
	buf := make([]byte, roomCodeLength)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf)
}

// NormalizeRoomCode case-normalizes a client-supplied code. Every lookup
// goes through this so "ab12cd" and "AB12CD" address the same room.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateSessionID() string {
	return uuid.New().String()
}

// PrizePool computes the winner's payout at game creation time. It is
// snapshotted on the Game and never recomputed.
func PrizePool(entryFee float64, maxPlayers int, commissionRate float64) float64 {
	return entryFee * float64(maxPlayers) * (1 - commissionRate)
}
