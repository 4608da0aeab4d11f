package credit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TransactionType defines supported credit transaction types.
type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeDeduction  TransactionType = "deduction"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// ReferenceType identifies what a ledger entry points at.
type ReferenceType string

const (
	ReferenceTypePurchase ReferenceType = "purchase"
	ReferenceTypeListing  ReferenceType = "listing"
	ReferenceTypeAdmin    ReferenceType = "admin"
)

// JSONRawMessage handles NULL json fields from DB
type JSONRawMessage []byte

func (j *JSONRawMessage) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("unsupported type: %T", src)
	}
	return nil
}

func (j JSONRawMessage) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// CreditTransaction is one immutable ledger row. Rows are only ever
// inserted; balance_before/balance_after snapshot the user's balance
// around the mutation so the log can be audited without replaying it.
type CreditTransaction struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	UserID        uuid.UUID       `db:"user_id" json:"user_id"`
	Type          TransactionType `db:"type" json:"type"`
	Amount        int             `db:"amount" json:"amount"`
	BalanceBefore int             `db:"balance_before" json:"balance_before"`
	BalanceAfter  int             `db:"balance_after" json:"balance_after"`
	ReferenceType ReferenceType   `db:"reference_type" json:"reference_type"`
	ReferenceID   uuid.NullUUID   `db:"reference_id" json:"reference_id,omitempty"`
	Description   string          `db:"description" json:"description"`
	Metadata      JSONRawMessage  `db:"metadata" json:"metadata,omitempty"`
	CreatedBy     uuid.NullUUID   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// CreditState is the denormalized per-user view kept on the users table.
type CreditState struct {
	UserID         uuid.UUID    `db:"id" json:"user_id"`
	Balance        int          `db:"credit_balance" json:"balance"`
	TotalEarned    int          `db:"total_credits_earned" json:"total_credits_earned"`
	LastPurchaseAt sql.NullTime `db:"last_credit_purchase_at" json:"last_purchase_at,omitempty"`
}

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}

// ResourceFactory creates the paid resource inside the deduction's unit of
// work. It must write through tx only; returning an error rolls the whole
// deduction back.
type ResourceFactory func(ctx context.Context, tx *sqlx.Tx, creditTransactionID uuid.UUID) (uuid.UUID, error)

// PaidResourceResult is what a successful paid-resource creation yields.
type PaidResourceResult struct {
	ResourceID       uuid.UUID `json:"resource_id"`
	TransactionID    uuid.UUID `json:"transaction_id"`
	RemainingBalance int       `json:"remaining_balance"`
}
