package credit_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sokoni/sokoni-api/internal/domain/credit"
	"github.com/sokoni/sokoni-api/internal/middleware"
	"github.com/sokoni/sokoni-api/internal/pkg/jwt"
)

type creditAPIResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Balance      int `json:"balance"`
		BalanceAfter int `json:"balance_after"`
		TotalEarned  int `json:"total_credits_earned"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Limit   int  `json:"limit"`
		Offset  int  `json:"offset"`
		HasNext bool `json:"has_next"`
	} `json:"meta"`
}

func TestCreditEndpointsIntegration(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)

	userID := createTestUserWithCredits(t, db, 25)
	adminID := createAdminUser(t, db)

	service := credit.NewService(db, credit.NewRepository(db))
	h := credit.NewHandler(service)

	jwtSvc := jwt.NewService("credit-integration-secret", time.Hour)
	userToken, err := jwtSvc.GenerateAccessToken(userID, "user")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	adminToken, err := jwtSvc.GenerateAccessToken(adminID, "admin")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}

	authMiddleware := middleware.Auth(jwtSvc)

	r := chi.NewRouter()
	r.Route("/api/v1/credits", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Mount("/", h.Routes())
	})
	r.Route("/api/admin/credits", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin())
		r.Mount("/", h.AdminRoutes())
	})

	t.Run("GET /balance", func(t *testing.T) {
		resp := performRequest(t, r, userToken, http.MethodGet, "/api/v1/credits/balance", nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
		body := decodeResponse(t, resp)
		if !body.Success || body.Data.Balance != 25 {
			t.Fatalf("expected balance 25, got success=%v balance=%d", body.Success, body.Data.Balance)
		}
	})

	t.Run("POST admin adjust", func(t *testing.T) {
		resp := performRequest(t, r, adminToken, http.MethodPost,
			fmt.Sprintf("/api/admin/credits/users/%s/adjust", userID), map[string]interface{}{
				"amount": 5,
				"reason": "support compensation",
			})
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
		body := decodeResponse(t, resp)
		if body.Data.BalanceAfter != 30 {
			t.Fatalf("expected balance_after 30, got %d", body.Data.BalanceAfter)
		}
	})

	t.Run("POST admin adjust forbidden for user role", func(t *testing.T) {
		resp := performRequest(t, r, userToken, http.MethodPost,
			fmt.Sprintf("/api/admin/credits/users/%s/adjust", userID), map[string]interface{}{
				"amount": 1000,
				"reason": "nice try",
			})
		if resp.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.Code)
		}
	})

	t.Run("GET /transactions with meta", func(t *testing.T) {
		resp := performRequest(t, r, userToken, http.MethodGet, "/api/v1/credits/transactions?limit=10", nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
		body := decodeResponse(t, resp)
		if body.Meta == nil || body.Meta.Limit != 10 || body.Meta.HasNext {
			t.Fatalf("unexpected meta: %+v", body.Meta)
		}
	})

	t.Run("GET /transactions unknown type", func(t *testing.T) {
		resp := performRequest(t, r, userToken, http.MethodGet, "/api/v1/credits/transactions?type=bogus", nil)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.Code)
		}
	})

	t.Run("JWT required", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/credits/balance", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without jwt, got %d", rec.Code)
		}
	})
}

func performRequest(t *testing.T, handler http.Handler, token, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload failed: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) creditAPIResponse {
	t.Helper()
	var out creditAPIResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response failed: %v; body=%s", err, rec.Body.String())
	}
	return out
}

func createAdminUser(t *testing.T, db *sqlx.DB) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(`
		INSERT INTO users (id, phone, email, password_hash, role, credit_balance, created_at, updated_at)
		VALUES ($1,$2,$3,$4,'admin',0,$5,$5)
	`, id, fmt.Sprintf("+2556%08d", time.Now().UnixNano()%100000000),
		fmt.Sprintf("admin_%s@test.com", id.String()[:8]), "hash", time.Now())
	requireNoError(t, err)
	return id
}
