package credit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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

// GetBalance handles GET /credits/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	state, err := h.service.GetState(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.OK(w, state)
}

// ListTransactions handles GET /credits/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	txType := TransactionType(r.URL.Query().Get("type"))

	txns, total, err := h.service.ListTransactions(r.Context(), userID, txType, Pagination{Limit: limit, Offset: offset})
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(w, "Unknown transaction type")
			return
		}
		WriteError(w, err)
		return
	}

	response.WithMeta(w, txns, response.Meta{
		Limit:   limit,
		Offset:  offset,
		HasNext: offset+len(txns) < total,
	})
}

type adjustRequest struct {
	Amount int    `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// Adjust handles POST /admin/credits/users/{userID}/adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "Invalid user id")
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	entry, err := h.service.Adjust(r.Context(), adminID, userID, req.Amount, req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.OK(w, entry)
}

// Routes returns the authenticated credit router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/balance", h.GetBalance)
	r.Get("/transactions", h.ListTransactions)
	return r
}

// AdminRoutes returns the admin credit router
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/users/{userID}/adjust", h.Adjust)
	return r
}

// WriteError maps credit domain errors onto HTTP responses. Shared with the
// domains that compose credit operations (purchases, listings).
func WriteError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		response.PaymentRequired(w, "Not enough credits", map[string]string{
			"required":  strconv.Itoa(insufficient.Required),
			"available": strconv.Itoa(insufficient.Available),
		})
	case errors.Is(err, ErrInsufficientCredits):
		response.PaymentRequired(w, "Not enough credits", nil)
	case errors.Is(err, ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, ErrInvalidAmount):
		response.BadRequest(w, "Invalid amount")
	case errors.Is(err, ErrLockTimeout), errors.Is(err, ErrConcurrentModification):
		response.ServiceUnavailable(w, "Balance is busy, try again")
	default:
		response.InternalError(w)
	}
}
