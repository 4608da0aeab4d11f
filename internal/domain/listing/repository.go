package listing

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

const listingColumns = `
	id, user_id, title, description, category, price, currency, placement,
	credits_cost, credit_transaction_id, status, created_at, updated_at`

type Repository interface {
	InsertTx(ctx context.Context, tx *sqlx.Tx, l *Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Listing, int, error)
	MarkDeleted(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

type ListingRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// InsertTx writes the listing inside the deduction transaction so the debit
// and the listing land or roll back together.
func (r *ListingRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, l *Listing) error {
	now := time.Now().UTC()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.Status = StatusActive
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := tx.ExecContext(ctx, `
		INSERT INTO listings
			(id, user_id, title, description, category, price, currency, placement,
			 credits_cost, credit_transaction_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, l.ID, l.UserID, l.Title, l.Description, l.Category, l.Price, l.Currency, l.Placement,
		l.CreditsCost, l.CreditTransactionID, l.Status, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert listing", ErrInternal)
	}

	return nil
}

func (r *ListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var l Listing
	err := r.db.GetContext(ctx2, &l, `SELECT`+listingColumns+` FROM listings WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("%w: get listing", ErrInternal)
	}

	return &l, nil
}

func (r *ListingRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Listing, int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.db.GetContext(ctx2, &total, `SELECT COUNT(*) FROM listings WHERE user_id = $1 AND status = 'active'`, userID); err != nil {
		return nil, 0, fmt.Errorf("%w: count listings", ErrInternal)
	}

	listings := make([]Listing, 0)
	err := r.db.SelectContext(ctx2, &listings, `
		SELECT`+listingColumns+`
		FROM listings
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list listings", ErrInternal)
	}

	return listings, total, nil
}

// MarkDeleted soft-deletes the user's own active listing. Returns false
// when no row changed.
func (r *ListingRepository) MarkDeleted(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE listings
		SET status = 'deleted', updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'active'
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("%w: delete listing", ErrInternal)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: delete listing", ErrInternal)
	}

	return rows > 0, nil
}
