package listing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sokoni/sokoni-api/internal/domain/credit"
	"github.com/sokoni/sokoni-api/internal/middleware"
	"github.com/sokoni/sokoni-api/internal/pkg/response"
	"github.com/sokoni/sokoni-api/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=150"`
	Description string `json:"description" validate:"required,min=10,max=5000"`
	Category    string `json:"category" validate:"required,min=2,max=50"`
	Price       int64  `json:"price" validate:"gte=0"`
	Currency    string `json:"currency" validate:"required,len=3,uppercase"`
	Placement   string `json:"placement" validate:"placement"`
}

type createResponse struct {
	Listing          *Listing `json:"listing"`
	CreditsSpent     int      `json:"credits_spent"`
	RemainingBalance int      `json:"remaining_balance"`
}

// Create handles POST /listings
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	l, result, err := h.service.Create(r.Context(), userID, CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Currency:    req.Currency,
		Placement:   Placement(req.Placement),
	})
	if err != nil {
		if errors.Is(err, ErrUnknownPlacement) {
			response.BadRequest(w, "Unknown placement")
			return
		}
		credit.WriteError(w, err)
		return
	}

	response.Created(w, createResponse{
		Listing:          l,
		CreditsSpent:     l.CreditsCost,
		RemainingBalance: result.RemainingBalance,
	})
}

// Get handles GET /listings/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid listing id")
		return
	}

	l, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrListingNotFound) {
			response.NotFound(w, "Listing not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, l)
}

// ListMine handles GET /listings
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	listings, total, err := h.service.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.WithMeta(w, listings, response.Meta{
		Limit:   limit,
		Offset:  offset,
		HasNext: offset+len(listings) < total,
	})
}

// Delete handles DELETE /listings/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid listing id")
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		if errors.Is(err, ErrListingNotFound) {
			response.NotFound(w, "Listing not found")
			return
		}
		credit.WriteError(w, err)
		return
	}

	response.OK(w, map[string]string{"status": "deleted"})
}

// Routes returns the authenticated listing router; Get stays public.
func (h *Handler) Routes(auth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.Get)
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Post("/", h.Create)
		r.Get("/", h.ListMine)
		r.Delete("/{id}", h.Delete)
	})
	return r
}
