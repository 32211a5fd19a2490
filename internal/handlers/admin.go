package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/arpitvarshney44/ludo-backend/internal/services"
)

// AdminHandler exposes the out-of-band settlement trigger for disputed or
// undetected endings.
type AdminHandler struct {
	engine *services.Engine
	log    zerolog.Logger
}

func NewAdminHandler(engine *services.Engine, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{engine: engine, log: log}
}

type declareWinnerRequest struct {
	WinnerID int64 `json:"winner_id" binding:"required"`
}

// DeclareWinner forces settlement for a room. Rejected with a conflict if
// the game is already completed; shares the settlement engine with the
// automatic path, so a double payout is impossible either way.
func (h *AdminHandler) DeclareWinner(c *gin.Context) {
	roomCode := c.Param("code")

	var req declareWinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	game, settlement, err := h.engine.DeclareWinner(c.Request.Context(), roomCode, req.WinnerID)
	if err != nil {
		errorResponse(c, err)
		return
	}

	h.log.Info().
		Str("room", game.RoomCode).
		Int64("winner", req.WinnerID).
		Int64("admin", c.GetInt64("admin_id")).
		Msg("admin declared winner")

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"game":       game,
		"settlement": settlement,
	})
}
