package credit

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

// Repository is the ledger store. Mutations only happen through the *Tx
// methods so they always run inside a unit of work that holds the user lock.
type Repository interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
	GetState(ctx context.Context, userID uuid.UUID) (*CreditState, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, txType TransactionType, p Pagination) ([]CreditTransaction, int, error)
	GetTransactionByID(ctx context.Context, id uuid.UUID) (*CreditTransaction, error)
	SumAmounts(ctx context.Context, userID uuid.UUID) (int, error)
	HasRefundFor(ctx context.Context, referenceID uuid.UUID) (bool, error)

	GetBalanceForUpdateTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int, error)
	HasRefundForTx(ctx context.Context, tx *sqlx.Tx, referenceID uuid.UUID) (bool, error)
	AppendTx(ctx context.Context, tx *sqlx.Tx, entry *CreditTransaction) error
	SetTransactionReferenceTx(ctx context.Context, tx *sqlx.Tx, txnID uuid.UUID, refType ReferenceType, refID uuid.UUID) error
}

type LedgerRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int
	err := r.db.GetContext(ctx2, &balance, `SELECT credit_balance FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("%w: get balance", ErrInternal)
	}

	return balance, nil
}

func (r *LedgerRepository) GetState(ctx context.Context, userID uuid.UUID) (*CreditState, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var state CreditState
	err := r.db.GetContext(ctx2, &state, `
		SELECT id, credit_balance, total_credits_earned, last_credit_purchase_at
		FROM users
		WHERE id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: get credit state", ErrInternal)
	}

	return &state, nil
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, txType TransactionType, p Pagination) ([]CreditTransaction, int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	where := `WHERE user_id = $1`
	args := []any{userID}
	if txType != "" {
		where += ` AND type = $2`
		args = append(args, txType)
	}

	var total int
	err := r.db.GetContext(ctx2, &total, `SELECT COUNT(*) FROM credit_transactions `+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: count transactions", ErrInternal)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, type, amount, balance_before, balance_after,
		       reference_type, reference_id, description, metadata, created_by, created_at
		FROM credit_transactions
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, p.Limit, p.Offset)

	txns := make([]CreditTransaction, 0)
	if err := r.db.SelectContext(ctx2, &txns, query, args...); err != nil {
		return nil, 0, fmt.Errorf("%w: list transactions", ErrInternal)
	}

	return txns, total, nil
}

func (r *LedgerRepository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*CreditTransaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var txn CreditTransaction
	err := r.db.GetContext(ctx2, &txn, `
		SELECT id, user_id, type, amount, balance_before, balance_after,
		       reference_type, reference_id, description, metadata, created_by, created_at
		FROM credit_transactions
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("%w: get transaction", ErrInternal)
	}

	return &txn, nil
}

// SumAmounts replays the ledger for one user. Used by reconciliation to
// compare the stored balance against the log.
func (r *LedgerRepository) SumAmounts(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var sum int
	err := r.db.GetContext(ctx2, &sum, `
		SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: sum transactions", ErrInternal)
	}

	return sum, nil
}

// HasRefundFor reports whether a refund entry already references the given
// resource. Keeps refunds idempotent.
func (r *LedgerRepository) HasRefundFor(ctx context.Context, referenceID uuid.UUID) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := r.db.GetContext(ctx2, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM credit_transactions
			WHERE type = 'refund' AND reference_id = $1
		)
	`, referenceID)
	if err != nil {
		return false, fmt.Errorf("%w: check refund", ErrInternal)
	}

	return exists, nil
}

func (r *LedgerRepository) HasRefundForTx(ctx context.Context, tx *sqlx.Tx, referenceID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM credit_transactions
			WHERE type = 'refund' AND reference_id = $1
		)
	`, referenceID)
	if err != nil {
		return false, fmt.Errorf("%w: check refund", ErrInternal)
	}

	return exists, nil
}

// GetBalanceForUpdateTx re-reads the balance under the row lock held by tx.
func (r *LedgerRepository) GetBalanceForUpdateTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int, error) {
	var balance int
	err := tx.GetContext(ctx, &balance, `SELECT credit_balance FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("%w: get locked balance", ErrInternal)
	}

	return balance, nil
}

// AppendTx inserts one ledger row and applies its delta to the user's
// balance in the same statement pair. The UPDATE is conditional on the
// balance still matching entry.BalanceBefore; a zero-row update means the
// snapshot went stale, which cannot happen while the caller holds the row
// lock, so it is surfaced as an invariant violation rather than retried.
func (r *LedgerRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, entry *CreditTransaction) error {
	if entry.BalanceAfter != entry.BalanceBefore+entry.Amount {
		return fmt.Errorf("%w: balance snapshot mismatch", ErrInvariantViolation)
	}
	if entry.BalanceAfter < 0 {
		return fmt.Errorf("%w: negative balance", ErrInvariantViolation)
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions
			(id, user_id, type, amount, balance_before, balance_after,
			 reference_type, reference_id, description, metadata, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, entry.ID, entry.UserID, entry.Type, entry.Amount, entry.BalanceBefore, entry.BalanceAfter,
		entry.ReferenceType, entry.ReferenceID, entry.Description, nullableJSON(entry.Metadata), entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert transaction", ErrInternal)
	}

	set := `credit_balance = credit_balance + $2`
	if entry.Type == TransactionTypePurchase {
		set += `, total_credits_earned = total_credits_earned + $2, last_credit_purchase_at = NOW()`
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE users SET %s, updated_at = NOW()
		WHERE id = $1 AND credit_balance = $3
	`, set), entry.UserID, entry.Amount, entry.BalanceBefore)
	if err != nil {
		return fmt.Errorf("%w: apply balance delta", ErrInternal)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: apply balance delta", ErrInternal)
	}
	if rows == 0 {
		return fmt.Errorf("%w: stale balance read for user %s", ErrInvariantViolation, entry.UserID)
	}

	return nil
}

// SetTransactionReferenceTx backfills the reference on a ledger row once the
// referenced resource exists. The only permitted mutation of a ledger row.
func (r *LedgerRepository) SetTransactionReferenceTx(ctx context.Context, tx *sqlx.Tx, txnID uuid.UUID, refType ReferenceType, refID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE credit_transactions
		SET reference_type = $2, reference_id = $3
		WHERE id = $1 AND reference_id IS NULL
	`, txnID, refType, refID)
	if err != nil {
		return fmt.Errorf("%w: set transaction reference", ErrInternal)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: set transaction reference", ErrInternal)
	}
	if rows == 0 {
		return fmt.Errorf("%w: transaction %s already referenced", ErrInvariantViolation, txnID)
	}

	return nil
}

func nullableJSON(j JSONRawMessage) any {
	if len(j) == 0 {
		return nil
	}
	return []byte(j)
}
