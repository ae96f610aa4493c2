package personality

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/personality"
	"github.com/zhouzirui/mbti-relay/backend/pkg/utils"
)

// Handler 人格类型目录的HTTP处理器
type Handler struct {
	types personality.Store
}

// New 创建人格类型处理器
func New(types personality.Store) *Handler {
	return &Handler{types: types}
}

// RegisterRoutes 注册人格类型相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/types", h.handleListTypes)
	r.Get("/types/{code}", h.handleGetType)
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.types.List())
}

func (h *Handler) handleGetType(w http.ResponseWriter, r *http.Request) {
	item, ok := h.types.FindByCode(chi.URLParam(r, "code"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "personality type not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, item)
}
