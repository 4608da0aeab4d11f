package purchase

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/sokoni/sokoni-api/internal/domain/credit"
)

// Status is the purchase lifecycle state. COMPLETED, FAILED and CANCELLED
// are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// PaymentMethod identifies the mobile money channel used for a purchase.
type PaymentMethod string

const (
	MethodMpesaPaybill PaymentMethod = "mpesa_paybill"
	MethodMpesaSTK     PaymentMethod = "mpesa_stk"
	MethodAirtelMoney  PaymentMethod = "airtel_money"
)

// CreditPurchase tracks one attempt to buy credits. The money moves out of
// band on the provider side; this row waits for the async confirmation
// keyed by TransactionReference.
type CreditPurchase struct {
	ID                   uuid.UUID             `db:"id" json:"id"`
	UserID               uuid.UUID             `db:"user_id" json:"user_id"`
	PricingTierID        uuid.UUID             `db:"pricing_tier_id" json:"pricing_tier_id"`
	CreditsAmount        int                   `db:"credits_amount" json:"credits_amount"`
	AmountPaid           int64                 `db:"amount_paid" json:"amount_paid"`
	Currency             string                `db:"currency" json:"currency"`
	PaymentMethod        PaymentMethod         `db:"payment_method" json:"payment_method"`
	PhoneNumber          string                `db:"phone_number" json:"phone_number"`
	TransactionReference string                `db:"transaction_reference" json:"transaction_reference"`
	Status               Status                `db:"status" json:"status"`
	CompletedAt          sql.NullTime          `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt             sql.NullTime          `db:"failed_at" json:"failed_at,omitempty"`
	FailureReason        sql.NullString        `db:"failure_reason" json:"failure_reason,omitempty"`
	ProviderMetadata     credit.JSONRawMessage `db:"provider_metadata" json:"provider_metadata,omitempty"`
	CreatedAt            time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time             `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the purchase can no longer change state.
func (p *CreditPurchase) Terminal() bool {
	return p.Status != StatusPending
}

// Outcome is a normalized payment confirmation, whether it arrived via the
// provider webhook or the SMS relay.
type Outcome struct {
	Success          bool
	AmountPaid       int64
	Receipt          string
	FailureReason    string
	ProviderMetadata []byte
}

// Pagination controls purchase history pagination.
type Pagination struct {
	Limit  int
	Offset int
}
