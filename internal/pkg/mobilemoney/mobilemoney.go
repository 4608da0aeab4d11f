package mobilemoney

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Config holds mobile money channel configuration
type Config struct {
	PaybillNumber string
	WebhookKey    string
	SMSRelayKey   string
	RefPrefix     string
}

// Adapter produces payment instructions for the out-of-band mobile money
// channel and authenticates its callbacks. Settlement itself happens on the
// provider side; this adapter never moves money.
type Adapter struct {
	config Config
}

// Instructions tell a user how to complete a paybill payment. The account
// reference is the purchase's transaction reference and is how the async
// confirmation finds its way back to the right purchase.
type Instructions struct {
	Paybill          string `json:"paybill"`
	AccountReference string `json:"account_reference"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Note             string `json:"note"`
}

// NewAdapter creates a mobile money adapter
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{config: cfg}
}

// Instructions builds human-readable payment instructions for a purchase
func (a *Adapter) Instructions(reference string, amount int64, currency string) Instructions {
	return Instructions{
		Paybill:          a.config.PaybillNumber,
		AccountReference: reference,
		Amount:           amount,
		Currency:         currency,
		Note: fmt.Sprintf("Pay %s %s to paybill %s, account %s",
			currency, formatAmount(amount), a.config.PaybillNumber, reference),
	}
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature the payment
// provider sends with every callback
func (a *Adapter) VerifyWebhookSignature(body []byte, signature string) bool {
	if a.config.WebhookKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.config.WebhookKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// VerifyRelayKey checks the shared secret presented by the SMS relay device
func (a *Adapter) VerifyRelayKey(key string) bool {
	if a.config.SMSRelayKey == "" || key == "" {
		return false
	}
	return hmac.Equal([]byte(a.config.SMSRelayKey), []byte(key))
}

// RefPrefix returns the configured account reference prefix
func (a *Adapter) RefPrefix() string {
	if a.config.RefPrefix == "" {
		return "SOK"
	}
	return a.config.RefPrefix
}

// formatAmount renders minor units as a decimal string ("150000" -> "1500.00")
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
