package handlers

import (
	"github.com/campx/campx-backend/internal/identity"
	"github.com/campx/campx-backend/internal/realtime"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const wsUserKey = "ws_user_id"

type WSHandler struct {
	hub *realtime.Hub
}

func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Upgrade must run after WSProtected. It rejects plain HTTP requests and
// hands the caller's id to the websocket connection.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	userID, err := identity.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	c.Locals(wsUserKey, userID)
	return c.Next()
}

func (h *WSHandler) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals(wsUserKey).(uuid.UUID)
		if !ok || userID == uuid.Nil {
			_ = conn.Close()
			return
		}

		client := realtime.NewClient(h.hub, conn, userID)
		if !h.hub.Join(client) {
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}
