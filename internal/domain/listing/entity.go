package listing

import (
	"time"

	"github.com/google/uuid"
)

// Placement is the paid visibility level of a listing.
type Placement string

const (
	PlacementStandard Placement = "standard"
	PlacementFeatured Placement = "featured"
	PlacementPremium  Placement = "premium"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Listing is a paid classified ad. Creation debits credits in the same
// transaction that inserts the row; CreditTransactionID points back at that
// ledger entry.
type Listing struct {
	ID                  uuid.UUID     `db:"id" json:"id"`
	UserID              uuid.UUID     `db:"user_id" json:"user_id"`
	Title               string        `db:"title" json:"title"`
	Description         string        `db:"description" json:"description"`
	Category            string        `db:"category" json:"category"`
	Price               int64         `db:"price" json:"price"`
	Currency            string        `db:"currency" json:"currency"`
	Placement           Placement     `db:"placement" json:"placement"`
	CreditsCost         int           `db:"credits_cost" json:"credits_cost"`
	CreditTransactionID uuid.NullUUID `db:"credit_transaction_id" json:"credit_transaction_id"`
	Status              Status        `db:"status" json:"status"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}
