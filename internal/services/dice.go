package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DiceRoller produces the roll for a room's nth accepted action. Tests
// inject a scripted roller; production uses the HMAC roller below.
type DiceRoller interface {
	Roll(roomCode string, nonce int64) int
}

// HMACDiceRoller derives rolls from HMAC-SHA256 over a per-process secret
// seed and the (room, nonce) pair, so a roll is uniform, independent of
// prior rolls, and not influenceable by clients.
type HMACDiceRoller struct {
	seed []byte
}

func NewHMACDiceRoller() *HMACDiceRoller {
	seed := make([]byte, 32)
	rand.Read(seed)
	return &HMACDiceRoller{seed: seed}
}

// NewHMACDiceRollerFromSeed builds a roller with a fixed seed. Useful for
// replaying a game's rolls.
func NewHMACDiceRollerFromSeed(seed string) *HMACDiceRoller {
	return &HMACDiceRoller{seed: []byte(seed)}
}

func (r *HMACDiceRoller) Roll(roomCode string, nonce int64) int {
	h := hmac.New(sha256.New, r.seed)
	fmt.Fprintf(h, "%s:%d", roomCode, nonce)
	sum := h.Sum(nil)

	// Rejection-sample so every face is equally likely: 252 is the largest
	// multiple of 6 below 256.
	for _, b := range sum {
		if b < 252 {
			return int(b%6) + 1
		}
	}

	// All 32 bytes rejected (probability ~(4/256)^32); fall back to the
	// hex-extended digest.
	ext := hex.EncodeToString(sum)
	return int(ext[0]%6) + 1
}
