package purchase

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

const purchaseColumns = `
	id, user_id, pricing_tier_id, credits_amount, amount_paid, currency,
	payment_method, phone_number, transaction_reference, status,
	completed_at, failed_at, failure_reason, provider_metadata,
	created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, p *CreditPurchase) error
	GetByID(ctx context.Context, id uuid.UUID) (*CreditPurchase, error)
	GetByReference(ctx context.Context, reference string) (*CreditPurchase, error)
	ListByUser(ctx context.Context, userID uuid.UUID, pg Pagination) ([]CreditPurchase, int, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)

	GetByReferenceForUpdateTx(ctx context.Context, tx *sqlx.Tx, reference string) (*CreditPurchase, error)
	MarkCompletedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, amountPaid int64, metadata []byte) error
}

type PurchaseRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) Create(ctx context.Context, p *CreditPurchase) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = StatusPending
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO credit_purchases
			(id, user_id, pricing_tier_id, credits_amount, amount_paid, currency,
			 payment_method, phone_number, transaction_reference, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ID, p.UserID, p.PricingTierID, p.CreditsAmount, p.AmountPaid, p.Currency,
		p.PaymentMethod, p.PhoneNumber, p.TransactionReference, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: create purchase", ErrInternal)
	}

	return nil
}

func (r *PurchaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*CreditPurchase, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p CreditPurchase
	err := r.db.GetContext(ctx2, &p, `SELECT`+purchaseColumns+` FROM credit_purchases WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("%w: get purchase", ErrInternal)
	}

	return &p, nil
}

func (r *PurchaseRepository) GetByReference(ctx context.Context, reference string) (*CreditPurchase, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p CreditPurchase
	err := r.db.GetContext(ctx2, &p, `SELECT`+purchaseColumns+` FROM credit_purchases WHERE transaction_reference = $1`, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("%w: get purchase by reference", ErrInternal)
	}

	return &p, nil
}

func (r *PurchaseRepository) ListByUser(ctx context.Context, userID uuid.UUID, pg Pagination) ([]CreditPurchase, int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if pg.Limit <= 0 || pg.Limit > 100 {
		pg.Limit = 20
	}
	if pg.Offset < 0 {
		pg.Offset = 0
	}

	var total int
	if err := r.db.GetContext(ctx2, &total, `SELECT COUNT(*) FROM credit_purchases WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("%w: count purchases", ErrInternal)
	}

	purchases := make([]CreditPurchase, 0)
	err := r.db.SelectContext(ctx2, &purchases, `
		SELECT`+purchaseColumns+`
		FROM credit_purchases
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pg.Limit, pg.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list purchases", ErrInternal)
	}

	return purchases, total, nil
}

// MarkFailed moves a pending purchase to failed. Returns false when the row
// was not pending anymore.
func (r *PurchaseRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE credit_purchases
		SET status = 'failed', failed_at = NOW(), failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	if err != nil {
		return false, fmt.Errorf("%w: mark purchase failed", ErrInternal)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: mark purchase failed", ErrInternal)
	}

	return rows > 0, nil
}

// MarkCancelled moves a pending purchase to cancelled. Returns false when
// the row was not pending anymore.
func (r *PurchaseRepository) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE credit_purchases
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("%w: cancel purchase", ErrInternal)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: cancel purchase", ErrInternal)
	}

	return rows > 0, nil
}

// GetByReferenceForUpdateTx locks the purchase row inside the confirmation
// transaction. The caller already holds the user's balance lock; locking
// order is always user row first, then purchase row.
func (r *PurchaseRepository) GetByReferenceForUpdateTx(ctx context.Context, tx *sqlx.Tx, reference string) (*CreditPurchase, error) {
	var p CreditPurchase
	err := tx.GetContext(ctx, &p, `SELECT`+purchaseColumns+` FROM credit_purchases WHERE transaction_reference = $1 FOR UPDATE`, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("%w: lock purchase", ErrInternal)
	}

	return &p, nil
}

func (r *PurchaseRepository) MarkCompletedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, amountPaid int64, metadata []byte) error {
	var meta any
	if len(metadata) > 0 {
		meta = metadata
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE credit_purchases
		SET status = 'completed', amount_paid = $2, provider_metadata = $3,
		    completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, amountPaid, meta)
	if err != nil {
		return fmt.Errorf("%w: mark purchase completed", ErrInternal)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark purchase completed", ErrInternal)
	}
	if rows == 0 {
		return ErrNotPending
	}

	return nil
}
