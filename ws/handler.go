package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vnkhanh/forum-notify-backend/utils"
)

const registerTimeout = 5 * time.Second

// Gateway nhận kết nối websocket của user, xác thực và chuyển tin từ kênh phát xuống.
type Gateway struct {
	hub      *Hub
	secret   string
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, jwtSecret string, allowedOrigins []string, log zerolog.Logger) *Gateway {
	return &Gateway{
		hub:    hub,
		secret: jwtSecret,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// HandleUserWebSocket: GET /api/notifications/ws/:user_id?token=<jwt>
//
// Socket được upgrade trước khi xác thực để có thể trả close code 1008 cho client.
func (g *Gateway) HandleUserWebSocket(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	userID, err := g.authenticate(c.Param("user_id"), c.Query("token"))
	if err != nil {
		g.log.Info().Err(err).Str("user_id", c.Param("user_id")).Msg("websocket rejected")
		closeWith(conn, websocket.ClosePolicyViolation, "authentication failed")
		return
	}

	client := NewClient(userID, conn)
	ctx, cancel := context.WithTimeout(c.Request.Context(), registerTimeout)
	err = g.hub.Register(ctx, client)
	cancel()
	if err != nil {
		g.log.Error().Err(err).Str("user_id", userID.String()).Msg("websocket register failed")
		closeWith(conn, websocket.CloseInternalServerErr, "notifications unavailable")
		return
	}

	log := g.log.With().Str("user_id", userID.String()).Str("remote", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("websocket connected")

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		g.guard(log, client, func() error { return client.writePump() })
	}()

	g.guard(log, client, func() error { return client.readPump() })

	g.hub.Unregister(client)
	client.closeSend()
	<-writeDone
	log.Info().Msg("websocket disconnected")
}

// authenticate trả về user id đã xác thực, hoặc lỗi khi token thiếu, sai, hết hạn, hay khác user.
func (g *Gateway) authenticate(rawUserID, token string) (uuid.UUID, error) {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad user id %q: %w", rawUserID, err)
	}
	if _, err := utils.AuthorizeSubject(g.secret, token, userID); err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

// guard chạy một pump; panic sẽ đóng socket với mã 1011 thay vì để kết nối treo nửa vời.
func (g *Gateway) guard(log zerolog.Logger, client *Client, pump func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("websocket pump panicked")
			closeWith(client.Conn, websocket.CloseInternalServerErr, "internal error")
		}
	}()

	err := pump()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) &&
		websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		log.Debug().Err(err).Msg("websocket closed unexpectedly")
	}
}
