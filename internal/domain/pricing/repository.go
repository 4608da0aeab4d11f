package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Tier, error)
	ListActive(ctx context.Context) ([]Tier, error)
}

// TierRepository reads the credit package catalog
type TierRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *TierRepository {
	return &TierRepository{db: db}
}

func (r *TierRepository) GetByID(ctx context.Context, id uuid.UUID) (*Tier, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var tier Tier
	err := r.db.GetContext(ctx2, &tier, `
		SELECT id, name, credit_amount, bonus_credits, price, currency, active, sort_order, created_at
		FROM pricing_tiers
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTierNotFound
		}
		return nil, fmt.Errorf("%w: get pricing tier", ErrInternal)
	}

	return &tier, nil
}

func (r *TierRepository) ListActive(ctx context.Context) ([]Tier, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tiers := make([]Tier, 0)
	err := r.db.SelectContext(ctx2, &tiers, `
		SELECT id, name, credit_amount, bonus_credits, price, currency, active, sort_order, created_at
		FROM pricing_tiers
		WHERE active = true
		ORDER BY sort_order ASC, price ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list pricing tiers", ErrInternal)
	}

	return tiers, nil
}
