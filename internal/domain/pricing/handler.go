package pricing

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sokoni/sokoni-api/internal/pkg/response"
)

// Handler serves the public credit package catalog
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /credits/pricing
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.repo.ListActive(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, tiers)
}

// Routes returns the pricing router (public, no auth)
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	return r
}
