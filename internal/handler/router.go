package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/mbti-relay/backend/internal/handler/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/handler/page"
	"github.com/zhouzirui/mbti-relay/backend/internal/handler/personality"
	"github.com/zhouzirui/mbti-relay/backend/internal/handler/stream"
	"github.com/zhouzirui/mbti-relay/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/mbti-relay/backend/internal/middleware"
	personalityModel "github.com/zhouzirui/mbti-relay/backend/internal/model/personality"
	chatService "github.com/zhouzirui/mbti-relay/backend/internal/service/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
	"github.com/zhouzirui/mbti-relay/backend/pkg/utils"
)

// Deps bundles what the router needs.
type Deps struct {
	Sessions       *chatService.Service
	Relay          *relay.Relay
	Personalities  personalityModel.Store
	AllowedOrigins []string
	// Limiter throttles every route that triggers a model call. Nil disables limiting.
	Limiter *middlewarePkg.RateLimiter
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	var send func(http.Handler) http.Handler
	if deps.Limiter != nil {
		send = deps.Limiter.Handler
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.Sessions.Count(),
		})
	})

	page.New(deps.Sessions, deps.Relay).RegisterRoutes(r, send)

	wsHandler := ws.New(deps.Sessions, deps.Relay, originChecker(deps.AllowedOrigins))
	if deps.Limiter != nil {
		wsHandler.SetLimiter(deps.Limiter)
	}

	r.Route("/api", func(api chi.Router) {
		personality.New(deps.Personalities).RegisterRoutes(api)
		chat.New(deps.Sessions, deps.Relay).RegisterRoutes(api, send)
		stream.New(deps.Sessions, deps.Relay).RegisterRoutes(api, send)
		wsHandler.RegisterRoutes(api)
	})

	return r
}

// originChecker mirrors the CORS allow-list for WebSocket upgrades.
// Requests without an Origin header are accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
