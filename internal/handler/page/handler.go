// Package page serves the server-rendered chat page.
package page

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
	chatService "github.com/zhouzirui/mbti-relay/backend/internal/service/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
)

// CookieName holds the id of the session bound to a browser.
const CookieName = "relay_session"

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Handler renders the transcript and accepts form submissions.
type Handler struct {
	sessions *chatService.Service
	relay    *relay.Relay
}

type pageData struct {
	View   relay.View
	Notice string
}

// New creates a page handler.
func New(sessions *chatService.Service, r *relay.Relay) *Handler {
	return &Handler{sessions: sessions, relay: r}
}

// RegisterRoutes mounts the page. send, when set, wraps the submit route.
func (h *Handler) RegisterRoutes(r chi.Router, send func(http.Handler) http.Handler) {
	r.Get("/", h.handleIndex)
	if send != nil {
		r.With(send).Post("/", h.handleSubmit)
	} else {
		r.Post("/", h.handleSubmit)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionFor(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.render(w, http.StatusOK, pageData{View: h.relay.Render(session)})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	current, err := h.sessionFor(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	message := r.PostFormValue("message")
	if strings.TrimSpace(message) == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	session, release, err := h.sessions.Acquire(r.Context(), current.ID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionBusy) {
			h.render(w, http.StatusConflict, pageData{
				View:   h.relay.Render(current),
				Notice: "Still waiting for the previous reply.",
			})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer release()

	if _, err := h.relay.Exchange(context.WithoutCancel(r.Context()), session, message); err != nil && !errors.Is(err, relay.ErrEmptyMessage) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// sessionFor returns the cookie-bound session, starting a new one when the
// cookie is missing or points at a session that no longer exists.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) (*chat.Session, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		if session, err := h.sessions.GetSession(r.Context(), cookie.Value); err == nil {
			return session, nil
		}
	}

	session, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return session, nil
}

func (h *Handler) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Str("component", "page").Msg("render failed")
	}
}
