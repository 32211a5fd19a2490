package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arpitvarshney44/ludo-backend/internal/models"
	"github.com/arpitvarshney44/ludo-backend/internal/services"
)

var errRateLimited = errors.New("too many requests, slow down")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one attached connection. Writes go through the send channel so
// a single writer goroutine owns the socket.
type Client struct {
	UserID   int64
	RoomCode string
	conn     *websocket.Conn
	send     chan *models.Event
}

func (c *Client) writePump() {
	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

func (c *Client) sendEvent(event *models.Event) {
	select {
	case c.send <- event:
	default:
		// Slow consumer; drop rather than block the room.
	}
}

type attachment struct {
	roomCode string
	client   *Client
}

type roomEvent struct {
	roomCode      string
	excludeUserID int64
	event         *models.Event
}

// Hub is the Room Registry's connection side: it maps each room code to
// the set of attached connections and fans events out to them. membership
// is the hub's own view of which room each client is in; it cannot rely on
// Client.RoomCode, which the read loop rewrites on every join_game.
type Hub struct {
	rooms      map[string]map[*Client]bool
	membership map[*Client]string
	register   chan *attachment
	unregister chan *Client
	events     chan *roomEvent
	log        zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		membership: make(map[*Client]string),
		register:   make(chan *attachment),
		unregister: make(chan *Client),
		events:     make(chan *roomEvent, 256),
		log:        log,
	}
}

// Run owns the room maps; all registry mutation happens on this goroutine.
func (h *Hub) Run() {
	for {
		select {
		case att := <-h.register:
			// A connection is in at most one room: joining another room
			// first removes the stale membership, so no broadcast can ever
			// reach this client through the old room after it detaches.
			if prev, ok := h.membership[att.client]; ok && prev != att.roomCode {
				h.removeFromRoom(prev, att.client)
			}
			clients, ok := h.rooms[att.roomCode]
			if !ok {
				clients = make(map[*Client]bool)
				h.rooms[att.roomCode] = clients
			}
			clients[att.client] = true
			h.membership[att.client] = att.roomCode
			h.log.Debug().Str("room", att.roomCode).Int64("user", att.client.UserID).Msg("connection attached")

		case client := <-h.unregister:
			if room, ok := h.membership[client]; ok {
				h.removeFromRoom(room, client)
				delete(h.membership, client)
			}
			close(client.send)

		case ev := <-h.events:
			for client := range h.rooms[ev.roomCode] {
				if ev.excludeUserID != 0 && client.UserID == ev.excludeUserID {
					continue
				}
				client.sendEvent(ev.event)
			}
		}
	}
}

func (h *Hub) removeFromRoom(roomCode string, client *Client) {
	clients, ok := h.rooms[roomCode]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.rooms, roomCode)
	}
}

// Attach records a connection against a room. Callers validate seating
// first via the engine.
func (h *Hub) Attach(roomCode string, client *Client) {
	client.RoomCode = roomCode
	h.register <- &attachment{roomCode: roomCode, client: client}
}

// Detach removes the connection mapping.
func (h *Hub) Detach(client *Client) {
	h.unregister <- client
}

// Broadcast delivers an event to every connection attached to the room.
func (h *Hub) Broadcast(roomCode string, event *models.Event) {
	h.events <- &roomEvent{roomCode: roomCode, event: event}
}

// BroadcastExcept delivers an event to the room minus one user.
func (h *Hub) BroadcastExcept(roomCode string, excludeUserID int64, event *models.Event) {
	h.events <- &roomEvent{roomCode: roomCode, excludeUserID: excludeUserID, event: event}
}

type WebSocketHandler struct {
	engine *services.Engine
	redis  *services.RedisService
	hub    *Hub
	log    zerolog.Logger
}

func NewWebSocketHandler(engine *services.Engine, redis *services.RedisService, hub *Hub, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
		redis:  redis,
		hub:    hub,
		log:    log,
	}
}

// HandleWebSocket upgrades the connection and runs its read loop. One
// connection handles one room at a time, selected by join_game.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetInt64("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan *models.Event, 32),
	}
	go client.writePump()

	defer func() {
		h.detach(c, client)
		conn.Close()
	}()

	for {
		var msg models.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Int64("user", userID).Msg("websocket closed")
			}
			return
		}
		h.handleMessage(c, client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(c *gin.Context, client *Client, msg *models.ClientMessage) {
	ctx := c.Request.Context()
	roomCode := models.NormalizeRoomCode(msg.RoomCode)
	if roomCode == "" {
		roomCode = client.RoomCode
	}

	switch msg.Type {
	case models.EventJoinGame:
		game, color, err := h.engine.AttachInfo(ctx, roomCode, client.UserID)
		if err != nil {
			h.sendError(client, err)
			return
		}
		h.hub.Attach(roomCode, client)
		client.sendEvent(&models.Event{
			Type:     models.EventGameJoined,
			RoomCode: roomCode,
			Data:     &models.GameJoinedPayload{Color: color, Game: game},
		})

	case models.EventRollDice:
		if !h.allow(ctx, client.UserID, "roll", services.DefaultRateLimitRolls) {
			h.sendError(client, errRateLimited)
			return
		}
		if err := h.engine.RollDice(ctx, roomCode, client.UserID); err != nil {
			h.sendError(client, err)
		}

	case models.EventMoveToken:
		if err := h.engine.MoveToken(ctx, roomCode, client.UserID, msg.TokenID, msg.From, msg.To); err != nil {
			h.sendError(client, err)
		}

	case models.EventLeaveGame:
		if err := h.engine.LeaveGame(ctx, roomCode, client.UserID); err != nil {
			h.sendError(client, err)
		}

	case models.EventChatMessage:
		if !h.allow(ctx, client.UserID, "chat", services.DefaultRateLimitChat) {
			return
		}
		// Non-seated senders are dropped silently.
		h.engine.ChatMessage(ctx, roomCode, client.UserID, msg.Text)
	}
}

// detach removes the connection and, when the game is still running, tells
// the remaining players. Disconnection never ends a game.
func (h *WebSocketHandler) detach(c *gin.Context, client *Client) {
	if client.RoomCode == "" {
		h.hub.Detach(client)
		return
	}

	roomCode := client.RoomCode
	h.hub.Detach(client)

	game, err := h.engine.GameSnapshot(c.Request.Context(), roomCode)
	if err == nil && game.Status == models.GameStatusInProgress {
		h.hub.BroadcastExcept(roomCode, client.UserID, &models.Event{
			Type:     models.EventPlayerDisconnected,
			RoomCode: roomCode,
			Data:     &models.PlayerEventPayload{UserID: client.UserID},
		})
	}
}

func (h *WebSocketHandler) allow(ctx context.Context, userID int64, action string, limit int) bool {
	allowed, err := h.redis.CheckRateLimit(ctx, userID, action, limit, time.Minute)
	if err != nil {
		return true
	}
	return allowed
}

// Errors are terminal for the event that caused them and go to the
// originating connection only.
func (h *WebSocketHandler) sendError(client *Client, err error) {
	client.sendEvent(&models.Event{
		Type: models.EventError,
		Data: &models.ErrorPayload{Message: err.Error()},
	})
}
