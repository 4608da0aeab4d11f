package purchase

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sokoni/sokoni-api/internal/domain/credit"
	"github.com/sokoni/sokoni-api/internal/middleware"
	"github.com/sokoni/sokoni-api/internal/pkg/mobilemoney"
	"github.com/sokoni/sokoni-api/internal/pkg/response"
	"github.com/sokoni/sokoni-api/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initiateRequest struct {
	PricingTierID string `json:"pricing_tier_id" validate:"required,uuid"`
	PaymentMethod string `json:"payment_method" validate:"required,payment_method"`
	PhoneNumber   string `json:"phone_number" validate:"required,e164"`
}

type initiateResponse struct {
	Purchase     *CreditPurchase           `json:"purchase"`
	Instructions *mobilemoney.Instructions `json:"instructions"`
}

// Initiate handles POST /credits/purchases
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	tierID, err := uuid.Parse(req.PricingTierID)
	if err != nil {
		response.BadRequest(w, "Invalid pricing tier id")
		return
	}

	p, instructions, err := h.service.InitiatePurchase(r.Context(), userID, tierID, PaymentMethod(req.PaymentMethod), req.PhoneNumber)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Created(w, initiateResponse{Purchase: p, Instructions: instructions})
}

// Get handles GET /credits/purchases/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid purchase id")
		return
	}

	p, err := h.service.GetPurchase(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, p)
}

// List handles GET /credits/purchases
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	purchases, total, err := h.service.ListPurchases(r.Context(), userID, Pagination{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, err)
		return
	}

	response.WithMeta(w, purchases, response.Meta{
		Limit:   limit,
		Offset:  offset,
		HasNext: offset+len(purchases) < total,
	})
}

// Cancel handles DELETE /credits/purchases/{id}
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid purchase id")
		return
	}

	p, err := h.service.CancelPurchase(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, p)
}

// Routes returns the authenticated purchase router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Initiate)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Cancel)
	return r
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPurchaseNotFound):
		response.NotFound(w, "Purchase not found")
	case errors.Is(err, ErrTierUnavailable):
		response.BadRequest(w, "Pricing tier unavailable")
	case errors.Is(err, ErrNotPending):
		response.Conflict(w, "Purchase is no longer pending")
	case errors.Is(err, ErrPurchaseResolved):
		response.Conflict(w, "Purchase already resolved")
	default:
		credit.WriteError(w, err)
	}
}
