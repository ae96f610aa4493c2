package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
	chatService "github.com/zhouzirui/mbti-relay/backend/internal/service/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
	"github.com/zhouzirui/mbti-relay/backend/pkg/utils"
)

// Handler runs one exchange per request and reports progress via Server-Sent Events.
type Handler struct {
	sessions *chatService.Service
	relay    *relay.Relay
}

// New creates a new stream handler
func New(sessions *chatService.Service, r *relay.Relay) *Handler {
	return &Handler{
		sessions: sessions,
		relay:    r,
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string             `json:"event"`
	SessionID string             `json:"sessionId,omitempty"`
	Content   string             `json:"content,omitempty"`
	Turn      *chat.Turn         `json:"turn,omitempty"`
	Verdict   *relay.VerdictView `json:"verdict,omitempty"`
	Finished  bool               `json:"finished,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// RegisterRoutes mounts the stream route, wrapped by send when set.
func (h *Handler) RegisterRoutes(r chi.Router, send func(http.Handler) http.Handler) {
	var handler http.Handler = http.HandlerFunc(h.handleStream)
	if send != nil {
		handler = send(handler)
	}
	r.Method(http.MethodGet, "/stream/{sessionID}", handler)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if strings.TrimSpace(userMessage) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	session, release, err := h.sessions.Acquire(r.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, chatService.ErrSessionNotFound):
			status = http.StatusNotFound
		case errors.Is(err, chatService.ErrSessionBusy):
			status = http.StatusConflict
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	defer release()

	if err := h.relay.Submit(session, userMessage); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The exchange runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	turns := session.Turns()
	userTurn := turns[len(turns)-1]
	send := func(resp StreamResponse) {
		resp.SessionID = sessionID
		utils.SendSSEEvent(w, flusher, resp.Event, resp)
	}

	send(StreamResponse{Event: "start"})
	send(StreamResponse{Event: "user", Turn: &userTurn})

	if h.relay.MaybeClassify(ctx, session) {
		send(StreamResponse{Event: "verdict", Verdict: h.relay.Render(session).Verdict})
	}

	assistantTurn := h.relay.CompleteTurnStream(ctx, session, func(delta string) {
		send(StreamResponse{Event: "delta", Content: delta})
	})
	send(StreamResponse{Event: "message", Turn: &assistantTurn})
	send(StreamResponse{Event: "end", Finished: true})

	log.Debug().Str("component", "stream").Str("session", sessionID).Int("turns", session.Len()).Msg("completed exchange")
}
