package services

const (
	KeyGameRoom  = "game:room:%s"
	KeyUserGames = "user:%d:games"
	KeyRateLimit = "ratelimit:%d:%s"

	// Per-user game history keeps the most recent entries.
	MaxUserGames = 100

	DefaultRateLimitRolls = 60 // rolls per minute
	DefaultRateLimitChat  = 30 // chat messages per minute
)
