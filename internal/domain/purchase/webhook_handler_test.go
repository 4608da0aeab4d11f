package purchase_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/sokoni/sokoni-api/internal/domain/purchase"
	"github.com/sokoni/sokoni-api/internal/pkg/mobilemoney"
)

func TestProviderCallbackWebhook(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)

	userID := createTestUser(t, db)
	tierID := createTestTier(t, db, 40, 0, 120000)
	service, credits := newTestService(db)

	p, _, err := service.InitiatePurchase(
		context.Background(), userID, tierID, purchase.MethodMpesaPaybill, "+255712345678")
	requireNoError(t, err)

	money := mobilemoney.NewAdapter(mobilemoney.Config{
		PaybillNumber: "884400",
		WebhookKey:    "test-webhook-key",
		SMSRelayKey:   "test-relay-key",
		RefPrefix:     "SOK",
	})
	r := chi.NewRouter()
	r.Mount("/webhooks", purchase.NewWebhookHandler(service, money).WebhookRoutes())

	payload, _ := json.Marshal(map[string]interface{}{
		"reference": p.TransactionReference,
		"status":    "success",
		"receipt":   "SGR4XKP2QT",
		"amount":    120000,
	})

	t.Run("rejects bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/mpesa", bytes.NewReader(payload))
		req.Header.Set("X-Webhook-Signature", "deadbeef")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("confirms with valid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/mpesa", bytes.NewReader(payload))
		req.Header.Set("X-Webhook-Signature", signBody(payload, "test-webhook-key"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		balance, err := credits.GetBalance(context.Background(), userID)
		requireNoError(t, err)
		if balance != 40 {
			t.Fatalf("expected balance 40, got %d", balance)
		}
	})

	t.Run("unknown reference returns 404", func(t *testing.T) {
		ghost, _ := json.Marshal(map[string]interface{}{
			"reference": "SOK-UNKNOWN1",
			"status":    "success",
		})
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/mpesa", bytes.NewReader(ghost))
		req.Header.Set("X-Webhook-Signature", signBody(ghost, "test-webhook-key"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestSMSRelayWebhook(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)

	userID := createTestUser(t, db)
	tierID := createTestTier(t, db, 25, 0, 75000)
	service, credits := newTestService(db)

	p, _, err := service.InitiatePurchase(
		context.Background(), userID, tierID, purchase.MethodMpesaPaybill, "+255712345678")
	requireNoError(t, err)

	money := mobilemoney.NewAdapter(mobilemoney.Config{
		PaybillNumber: "884400",
		WebhookKey:    "test-webhook-key",
		SMSRelayKey:   "test-relay-key",
		RefPrefix:     "SOK",
	})
	r := chi.NewRouter()
	r.Mount("/webhooks", purchase.NewWebhookHandler(service, money).WebhookRoutes())

	text := fmt.Sprintf("SGR4XKP2QT Confirmed. Ksh750.00 sent to SOKONI LTD for account %s on 30/8/26",
		p.TransactionReference)
	payload, _ := json.Marshal(map[string]string{
		"sender": "MPESA",
		"text":   text,
	})

	t.Run("rejects missing relay key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/sms-relay", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("credits purchase from relayed sms", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/sms-relay", bytes.NewReader(payload))
		req.Header.Set("X-Relay-Key", "test-relay-key")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		balance, err := credits.GetBalance(context.Background(), userID)
		requireNoError(t, err)
		if balance != 25 {
			t.Fatalf("expected balance 25, got %d", balance)
		}
	})

	t.Run("garbage sms returns 400", func(t *testing.T) {
		junk, _ := json.Marshal(map[string]string{
			"sender": "MPESA",
			"text":   "You have a new voicemail",
		})
		req := httptest.NewRequest(http.MethodPost, "/webhooks/sms-relay", bytes.NewReader(junk))
		req.Header.Set("X-Relay-Key", "test-relay-key")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func signBody(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
