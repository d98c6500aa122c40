package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parlor-server/internal/core"
	"parlor-server/internal/proto"
)

// WSHandler upgrades room connections and bridges them to the
// registry.
type WSHandler struct {
	registry     *core.Registry
	writeTimeout time.Duration
	log          *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *core.Registry, writeTimeout time.Duration, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{registry: registry, writeTimeout: writeTimeout, log: logger}
}

// wsConn adapts a websocket connection to core.Conn. Sends come from
// many goroutines, so they are serialized and bounded by the write
// timeout; one stuck peer must not pin a broadcast forever.
type wsConn struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

var _ core.Conn = (*wsConn)(nil)

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, msg)
}

func (c *wsConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}

// Handle serves GET /ws/:room/:username.
func (h *WSHandler) Handle(c *gin.Context) {
	roomID := c.Param("room")
	username := c.Param("username")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	wc := &wsConn{id: uuid.NewString(), conn: conn, writeTimeout: h.writeTimeout}
	h.registry.Connect(roomID, username, wc)

	err = h.readLoop(c.Request.Context(), conn, wc)

	h.registry.Disconnect(wc)
	h.registry.Broadcast(roomID, proto.UserLeft{
		Type:     proto.OutboundTypeUserLeft,
		Username: username,
		Message:  fmt.Sprintf("%s left the room", username),
	}, "")

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("room", roomID).Str("user", username).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop feeds raw frames to the registry until the peer goes away.
// Frames are handed over unparsed so a malformed one draws an error
// reply instead of tearing the connection down.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, wc *wsConn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		h.registry.Dispatch(wc, data)
	}
}
