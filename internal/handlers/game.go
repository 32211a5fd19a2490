package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arpitvarshney44/ludo-backend/internal/models"
	"github.com/arpitvarshney44/ludo-backend/internal/repository"
	"github.com/arpitvarshney44/ludo-backend/internal/services"
)

type GameHandler struct {
	engine  *services.Engine
	redis   *services.RedisService
	wallets *repository.WalletRepository
}

func NewGameHandler(engine *services.Engine, redis *services.RedisService, wallets *repository.WalletRepository) *GameHandler {
	return &GameHandler{
		engine:  engine,
		redis:   redis,
		wallets: wallets,
	}
}

type createGameRequest struct {
	EntryFee float64 `json:"entry_fee" binding:"required,gt=0"`
}

// CreateGame opens a room: the creator pays the entry fee and takes the
// first seat.
func (h *GameHandler) CreateGame(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	game, err := h.engine.CreateGame(c.Request.Context(), userID, req.EntryFee)
	if err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "game": game})
}

// JoinGame fills the remaining seat; the game auto-starts once full.
func (h *GameHandler) JoinGame(c *gin.Context) {
	userID := c.GetInt64("user_id")
	roomCode := c.Param("code")

	game, err := h.engine.JoinGame(c.Request.Context(), roomCode, userID)
	if err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "game": game})
}

// CancelGame closes a room that never started and refunds the entry fees.
func (h *GameHandler) CancelGame(c *gin.Context) {
	userID := c.GetInt64("user_id")

	game, err := h.engine.CancelGame(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "game": game})
}

// GetGame returns the room snapshot.
func (h *GameHandler) GetGame(c *gin.Context) {
	game, err := h.engine.GameSnapshot(c.Request.Context(), c.Param("code"))
	if err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "game": game})
}

// GameHistory returns the caller's most recent games.
func (h *GameHandler) GameHistory(c *gin.Context) {
	userID := c.GetInt64("user_id")

	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	games, err := h.redis.GetUserGames(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch game history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "games": games, "count": len(games)})
}

// GetBalance returns the caller's three cash buckets.
func (h *GameHandler) GetBalance(c *gin.Context) {
	userID := c.GetInt64("user_id")

	wallet, err := h.wallets.GetWallet(c.Request.Context(), userID)
	if err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": models.BalanceResponse{
			DepositCash: wallet.DepositCash,
			WinningCash: wallet.WinningCash,
			BonusCash:   wallet.BonusCash,
			Total:       wallet.Total(),
		},
	})
}

// GetTransactions returns the caller's ledger entries, newest first.
func (h *GameHandler) GetTransactions(c *gin.Context) {
	userID := c.GetInt64("user_id")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		limit = 50
	}

	transactions, err := h.wallets.Transactions(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transactions": transactions, "count": len(transactions)})
}

// errorResponse maps the service error taxonomy to HTTP statuses:
// validation 400/403, not-found 404, conflict 409.
func errorResponse(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrWalletNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrGameCompleted),
		errors.Is(err, services.ErrGameNotCancellable),
		errors.Is(err, services.ErrAlreadySettled),
		errors.Is(err, services.ErrGameFull),
		errors.Is(err, services.ErrGameNotJoinable),
		errors.Is(err, services.ErrGameNotInProgress),
		errors.Is(err, services.ErrAlreadySeated),
		errors.Is(err, services.ErrWinnerNotSeated):
		status = http.StatusConflict
	case errors.Is(err, services.ErrUserBlocked):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrInsufficientBalance),
		errors.Is(err, services.ErrInvalidEntryFee),
		errors.Is(err, services.ErrNotAPlayer),
		errors.Is(err, services.ErrNotYourTurn),
		errors.Is(err, services.ErrNoDicePending),
		errors.Is(err, services.ErrMovePending),
		errors.Is(err, services.ErrIllegalMove):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
