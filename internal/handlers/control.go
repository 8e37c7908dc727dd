package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mla-quiz/medref/internal/models"
	"github.com/mla-quiz/medref/internal/services"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ControlHandler serves the page to gateway control surface
type ControlHandler struct {
	worker  *services.Worker
	hub     *services.Hub
	syncTag string
	logger  *zap.Logger
}

// NewControlHandler creates a new control handler
func NewControlHandler(worker *services.Worker, hub *services.Hub, syncTag string, logger *zap.Logger) *ControlHandler {
	return &ControlHandler{worker: worker, hub: hub, syncTag: syncTag, logger: logger}
}

// Message handles a control message posted by a page
func (h *ControlHandler) Message(c *gin.Context) {
	var msg models.ControlMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.worker.HandleControl(c.Request.Context(), msg)
	if err != nil {
		c.JSON(controlStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reply)
}

// Sync handles a background sync signal
func (h *ControlHandler) Sync(c *gin.Context) {
	tag := c.DefaultQuery("tag", h.syncTag)

	results, err := h.worker.Sync(c.Request.Context(), tag)
	if err != nil {
		c.JSON(controlStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Status handles offline status requests
func (h *ControlHandler) Status(c *gin.Context) {
	status, err := h.worker.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Submissions lists the pending submission queue
func (h *ControlHandler) Submissions(c *gin.Context) {
	subs, err := h.worker.Queue().List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func controlStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrUnknownMessage), errors.Is(err, services.ErrUnknownSyncTag):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrOffline):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// controlReply answers a control message received over the websocket
type controlReply struct {
	Type  models.MessageType `json:"type"`
	Reply any                `json:"reply,omitempty"`
	Error string             `json:"error,omitempty"`
}

// clientConn serializes writes to one websocket
type clientConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (cc *clientConn) write(messageType int, payload []byte) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cc.conn.WriteMessage(messageType, payload)
}

// Clients upgrades to a websocket that streams gateway messages to the page.
// Inbound text frames are control messages and are answered on the same socket.
func (h *ControlHandler) Clients(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}
	cc := &clientConn{conn: conn}
	sub := h.hub.Subscribe()
	h.logger.Debug("page connected", zap.Int("clients", h.hub.Clients()))

	done := make(chan struct{})
	go h.writePump(cc, sub, done)

	h.readPump(c, cc)
	close(done)
	h.hub.Unsubscribe(sub)
	conn.Close()
	h.logger.Debug("page disconnected")
}

func (h *ControlHandler) writePump(cc *clientConn, sub *services.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.C:
			if !ok {
				cc.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				cc.conn.Close()
				return
			}
			if err := cc.write(websocket.TextMessage, msg.Bytes()); err != nil {
				h.logger.Debug("failed to push message", zap.Error(err))
				cc.conn.Close()
				return
			}
		case <-ticker.C:
			if err := cc.write(websocket.PingMessage, nil); err != nil {
				cc.conn.Close()
				return
			}
		}
	}
}

func (h *ControlHandler) readPump(c *gin.Context, cc *clientConn) {
	cc.conn.SetReadDeadline(time.Now().Add(pongWait))
	cc.conn.SetPongHandler(func(string) error {
		return cc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cc.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg models.ControlMessage
		reply := controlReply{}
		if err := json.Unmarshal(data, &msg); err != nil {
			reply.Error = "invalid control message"
		} else {
			reply.Type = msg.Type
			result, err := h.worker.HandleControl(c.Request.Context(), msg)
			if err != nil {
				reply.Error = err.Error()
			} else {
				reply.Reply = result
			}
		}

		payload, _ := json.Marshal(reply)
		if err := cc.write(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
