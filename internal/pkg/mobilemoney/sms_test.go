package mobilemoney

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func signFixture(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestParseSMS(t *testing.T) {
	text := "TGH4X92KLM Confirmed. Ksh1,500.00 sent to SOKONI MARKET for account SOK-7F3K9Q on 12/8/26 at 4:02 PM. New M-PESA balance is Ksh3,410.00."

	conf, err := ParseSMS(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if conf.Reference != "SOK-7F3K9Q" {
		t.Errorf("expected reference SOK-7F3K9Q, got %s", conf.Reference)
	}
	if conf.Receipt != "TGH4X92KLM" {
		t.Errorf("expected receipt TGH4X92KLM, got %s", conf.Receipt)
	}
	if conf.Amount != 150000 {
		t.Errorf("expected amount 150000, got %d", conf.Amount)
	}
}

func TestParseSMSWholeAmount(t *testing.T) {
	text := "QWE8R2T9XZ Confirmed. Ksh500 sent to SOKONI MARKET for account sok-aa11bb on 1/9/26 at 9:15 AM."

	conf, err := ParseSMS(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if conf.Amount != 50000 {
		t.Errorf("expected amount 50000, got %d", conf.Amount)
	}
	// account references are matched case-insensitively but normalized
	if conf.Reference != "SOK-AA11BB" {
		t.Errorf("expected normalized reference SOK-AA11BB, got %s", conf.Reference)
	}
}

func TestParseSMSRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"Hello, your OTP is 123456",
		"Confirmed. Ksh100.00 for account SOK-X",          // no receipt code
		"ABCD1234EF Confirmed. sent to SOKONI MARKET",     // no amount, no account
		"ABCD1234EF Confirmed. Ksh100.00 sent to SOKONI",  // no account reference
		"ABCD1234EF Confirmed. Ksh1.5 for account SOK-1A", // malformed fraction
	}

	for _, text := range cases {
		if _, err := ParseSMS(text); !errors.Is(err, ErrUnparsableSMS) {
			t.Errorf("expected ErrUnparsableSMS for %q, got %v", text, err)
		}
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	a := NewAdapter(Config{WebhookKey: "channel-secret"})

	body := []byte(`{"reference":"SOK-7F3K9Q","status":"success"}`)
	// hmac-sha256("channel-secret", body)
	sig := signFixture(body, "channel-secret")

	if !a.VerifyWebhookSignature(body, sig) {
		t.Error("expected valid signature to verify")
	}
	if a.VerifyWebhookSignature(body, "deadbeef") {
		t.Error("expected bogus signature to fail")
	}
	if a.VerifyWebhookSignature(body, "") {
		t.Error("expected empty signature to fail")
	}

	unkeyed := NewAdapter(Config{})
	if unkeyed.VerifyWebhookSignature(body, sig) {
		t.Error("expected verification to fail without a configured key")
	}
}

func TestVerifyRelayKey(t *testing.T) {
	a := NewAdapter(Config{SMSRelayKey: "relay-secret"})

	if !a.VerifyRelayKey("relay-secret") {
		t.Error("expected matching relay key to verify")
	}
	if a.VerifyRelayKey("wrong") {
		t.Error("expected wrong relay key to fail")
	}
	if a.VerifyRelayKey("") {
		t.Error("expected empty relay key to fail")
	}
}
