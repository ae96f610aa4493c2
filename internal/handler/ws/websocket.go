package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	chatservice "github.com/zhouzirui/mbti-relay/backend/internal/service/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

// Handler 为每个会话提供WebSocket连接，同一连接上的消息按顺序处理。
type Handler struct {
	sessions *chatservice.Service
	relay    *relay.Relay
	limiter  Limiter
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器。checkOrigin 为空时接受所有来源。
func New(sessions *chatservice.Service, r *relay.Relay, checkOrigin func(*http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		sessions: sessions,
		relay:    r,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetLimiter 设置用户消息的限流器。
func (h *Handler) SetLimiter(limiter Limiter) {
	h.limiter = limiter
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Limiter 判断客户端是否可以继续发送消息。
type Limiter interface {
	Allow(key string) bool
}

type connection struct {
	conn      *websocket.Conn
	sessionID string
	remote    string
}

func (c *connection) send(msgType string, data interface{}) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "ws").Msg("upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	c := &connection{conn: conn, sessionID: session.ID, remote: remote}
	log.Info().Str("component", "ws").Str("session", session.ID).Msg("connection opened")

	if err := c.send("transcript", h.relay.Render(session)); err != nil {
		return
	}

	// 连接断开后 r.Context() 不一定被取消，读循环退出时主动取消。
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("component", "ws").Str("session", session.ID).Msg("read failed")
			}
			break
		}

		if err := h.dispatch(ctx, c, msg); err != nil {
			log.Debug().Err(err).Str("component", "ws").Str("session", session.ID).Msg("write failed")
			break
		}
	}

	log.Info().Str("component", "ws").Str("session", session.ID).Msg("connection closed")
}

func (h *Handler) dispatch(ctx context.Context, c *connection, msg inboundMessage) error {
	switch msg.Type {
	case "ping":
		return c.send("pong", nil)
	case "history":
		session, err := h.sessions.GetSession(ctx, c.sessionID)
		if err != nil {
			return c.send("error", err.Error())
		}
		return c.send("transcript", h.relay.Render(session))
	case "message":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			return c.send("error", "invalid message payload")
		}
		return h.handleText(ctx, c, text.Text)
	default:
		return c.send("error", "unknown message type: "+msg.Type)
	}
}

func (h *Handler) handleText(ctx context.Context, c *connection, text string) error {
	if strings.TrimSpace(text) == "" {
		return c.send("error", relay.ErrEmptyMessage.Error())
	}
	if h.limiter != nil && !h.limiter.Allow(c.remote) {
		return c.send("error", "too many messages, slow down")
	}

	session, release, err := h.sessions.Acquire(ctx, c.sessionID)
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionBusy) || errors.Is(err, chatservice.ErrSessionNotFound) {
			return c.send("error", err.Error())
		}
		return err
	}
	defer release()

	if err := c.send("busy", true); err != nil {
		return err
	}

	if err := h.relay.Submit(session, text); err != nil {
		return c.send("error", err.Error())
	}
	turns := session.Turns()
	if err := c.send("turn", turns[len(turns)-1]); err != nil {
		return err
	}

	if h.relay.MaybeClassify(ctx, session) {
		if err := c.send("verdict", h.relay.Render(session).Verdict); err != nil {
			return err
		}
	}

	var writeErr error
	reply := h.relay.CompleteTurnStream(ctx, session, func(delta string) {
		if writeErr == nil {
			writeErr = c.send("delta", delta)
		}
	})
	if writeErr != nil {
		return writeErr
	}
	if err := c.send("turn", reply); err != nil {
		return err
	}
	return c.send("busy", false)
}
