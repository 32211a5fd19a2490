package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arpitvarshney44/ludo-backend/internal/config"
	"github.com/arpitvarshney44/ludo-backend/internal/models"
)

// RedisService is the Game State Store: the authoritative per-room Game
// document lives as JSON under game:room:<CODE>.
type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

// CreateGame stores a new game document. SETNX guards room-code collisions
// so two creations can never share a code.
func (s *RedisService) CreateGame(ctx context.Context, game *models.Game) error {
	key := fmt.Sprintf(KeyGameRoom, game.RoomCode)

	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %w", err)
	}

	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	if !ok {
		return fmt.Errorf("room code already in use: %s", game.RoomCode)
	}
	return nil
}

// GetGame loads the room document. Returns ErrRoomNotFound for unknown codes.
func (s *RedisService) GetGame(ctx context.Context, roomCode string) (*models.Game, error) {
	key := fmt.Sprintf(KeyGameRoom, models.NormalizeRoomCode(roomCode))

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	var game models.Game
	if err := json.Unmarshal([]byte(data), &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}
	return &game, nil
}

// SaveGame writes the room document back. Documents never expire: finished
// games are the audit record for dispute resolution, and a waiting room
// holds debited entry fees until it starts or is cancelled.
func (s *RedisService) SaveGame(ctx context.Context, game *models.Game) error {
	key := fmt.Sprintf(KeyGameRoom, game.RoomCode)

	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %w", err)
	}

	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}
	return nil
}

// AddUserGame indexes a room into a user's game history.
func (s *RedisService) AddUserGame(ctx context.Context, userID int64, roomCode string) error {
	key := fmt.Sprintf(KeyUserGames, userID)

	if err := s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: roomCode,
	}).Err(); err != nil {
		return fmt.Errorf("failed to index user game: %w", err)
	}

	s.client.ZRemRangeByRank(ctx, key, 0, int64(-MaxUserGames-1))
	return nil
}

// GetUserGames returns a user's most recent rooms, newest first.
func (s *RedisService) GetUserGames(ctx context.Context, userID int64, limit int64) ([]*models.Game, error) {
	if limit <= 0 || limit > MaxUserGames {
		limit = 50
	}

	key := fmt.Sprintf(KeyUserGames, userID)
	roomCodes, err := s.client.ZRevRange(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user games: %w", err)
	}

	var games []*models.Game
	for _, code := range roomCodes {
		game, err := s.GetGame(ctx, code)
		if err != nil {
			continue
		}
		games = append(games, game)
	}
	return games, nil
}

// CheckRateLimit allows at most limit actions per window per user.
func (s *RedisService) CheckRateLimit(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if count == 1 {
		s.client.Expire(ctx, key, window)
	}
	return count <= int64(limit), nil
}
