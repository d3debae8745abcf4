package websocket

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/devzayn/otpbazaar_backend/middleware"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades the connection and serves job events. Clients
// authenticate by sending "AUTH:<jwt>" as their first message; events only
// flow after the token checks out.
func HandleWebSocket(c echo.Context, hub *Hub) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{Conn: conn}
	hub.register <- client

	conn.WriteJSON(Notification{
		Type:         "connected",
		Message:      "WebSocket connection established. Authenticate to receive job events.",
		RequiresAuth: true,
	})

	go func() {
		defer func() {
			hub.unregister <- client
		}()

		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				break
			}

			if messageType != websocket.TextMessage {
				continue
			}

			messageStr := string(message)
			if !strings.HasPrefix(messageStr, "AUTH:") {
				continue
			}

			tokenString := strings.TrimPrefix(messageStr, "AUTH:")
			claims := &middleware.JwtCustomClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(middleware.GetJWTSecret()), nil
			})
			if err != nil || !token.Valid || claims.TelegramID == 0 {
				conn.WriteJSON(Notification{
					Type:         "auth_response",
					Message:      "Authentication failed",
					RequiresAuth: true,
				})
				continue
			}

			hub.AuthenticateClient(client, claims.TelegramID)
			conn.WriteJSON(Notification{
				Type:    "auth_response",
				Message: "Authenticated",
			})
		}
	}()

	return nil
}
