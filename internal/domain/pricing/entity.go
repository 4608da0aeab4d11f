package pricing

import (
	"time"

	"github.com/google/uuid"
)

// Tier is a purchasable credit package. The catalog is read-only from the
// ledger's point of view; tiers are managed out of band.
type Tier struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	CreditAmount int       `db:"credit_amount" json:"credit_amount"`
	BonusCredits int       `db:"bonus_credits" json:"bonus_credits"`
	Price        int64     `db:"price" json:"price"`
	Currency     string    `db:"currency" json:"currency"`
	Active       bool      `db:"active" json:"active"`
	SortOrder    int       `db:"sort_order" json:"sort_order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TotalCredits is the amount actually granted on a completed purchase
func (t *Tier) TotalCredits() int {
	return t.CreditAmount + t.BonusCredits
}
