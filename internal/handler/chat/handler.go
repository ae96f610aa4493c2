package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mbti-relay/backend/internal/service/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
	"github.com/zhouzirui/mbti-relay/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	sessions *chat.Service
	relay    *relay.Relay
}

// New 创建聊天处理器
func New(sessions *chat.Service, r *relay.Relay) *Handler {
	return &Handler{
		sessions: sessions,
		relay:    r,
	}
}

// RegisterRoutes 注册聊天相关的路由。send 包裹会触发模型调用的路由，例如限流。
func (h *Handler) RegisterRoutes(r chi.Router, send func(http.Handler) http.Handler) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)

	messages := http.Handler(http.HandlerFunc(h.handleSendMessage))
	if send != nil {
		messages = send(messages)
	}
	r.Method(http.MethodPost, "/sessions/{sessionID}/messages", messages)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, h.relay.Render(session))
}

// handleGetSession 返回会话的完整记录
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondSessionError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.relay.Render(session))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage 提交用户消息并等待模型回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, release, err := h.sessions.Acquire(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	defer release()

	if _, err := h.relay.Exchange(context.WithoutCancel(r.Context()), session, payload.Content); err != nil {
		if errors.Is(err, relay.ErrEmptyMessage) {
			utils.RespondError(w, http.StatusBadRequest, "content is required")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.relay.Render(session))
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrSessionBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
