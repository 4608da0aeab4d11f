package credit_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sokoni/sokoni-api/internal/domain/credit"
)

func TestInsufficientCreditsErrorMatchesSentinel(t *testing.T) {
	var err error = &credit.InsufficientCreditsError{Required: 15, Available: 3}

	if !errors.Is(err, credit.ErrInsufficientCredits) {
		t.Fatal("typed error must match the sentinel")
	}

	var typed *credit.InsufficientCreditsError
	if !errors.As(err, &typed) {
		t.Fatal("errors.As must recover the typed error")
	}
	if typed.Required != 15 || typed.Available != 3 {
		t.Fatalf("unexpected fields: %+v", typed)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"typed insufficient", &credit.InsufficientCreditsError{Required: 10, Available: 2}, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS"},
		{"user not found", credit.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"invalid amount", credit.ErrInvalidAmount, http.StatusBadRequest, "BAD_REQUEST"},
		{"lock timeout", credit.ErrLockTimeout, http.StatusServiceUnavailable, "TRY_AGAIN"},
		{"concurrent modification", credit.ErrConcurrentModification, http.StatusServiceUnavailable, "TRY_AGAIN"},
		{"invariant violation", credit.ErrInvariantViolation, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			credit.WriteError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}

			var body struct {
				Success bool `json:"success"`
				Error   struct {
					Code    string            `json:"code"`
					Details map[string]string `json:"details"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if body.Success {
				t.Fatal("expected success=false")
			}
			if body.Error.Code != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, body.Error.Code)
			}
		})
	}
}

func TestWriteErrorIncludesShortfallDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	credit.WriteError(rec, &credit.InsufficientCreditsError{Required: 30, Available: 12})

	var body struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Error.Details["required"] != "30" || body.Error.Details["available"] != "12" {
		t.Fatalf("unexpected details: %v", body.Error.Details)
	}
}
