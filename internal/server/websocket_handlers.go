package server

import (
	"encoding/json"

	"devconnector/internal/middleware"
	"devconnector/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// WebsocketHandler upgrades GET /api/ws and streams the caller's post
// events (likes on their posts, new and deleted posts) until the client
// disconnects.
func (s *Server) WebsocketHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(string)
		if !ok || userID == "" || s.hub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("websocket registration refused",
				zap.String("user_id", userID), zap.Error(err))
			msg, _ := json.Marshal(models.ErrorResponse{Error: err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if s.hub == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error: "Realtime events are unavailable",
			})
		}
		return upgrade(c)
	}
}
