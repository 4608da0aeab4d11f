package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const (
	maxAttempts  = 3
	retryBackoff = 50 * time.Millisecond
)

// Service owns every balance mutation. All writes go through withRetry +
// WithUserLock so concurrent spends on one user serialize instead of
// double-spending.
type Service struct {
	db   *sqlx.DB
	repo Repository
}

func NewService(db *sqlx.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.GetBalance(ctx, userID)
}

func (s *Service) GetState(ctx context.Context, userID uuid.UUID) (*CreditState, error) {
	return s.repo.GetState(ctx, userID)
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, txType TransactionType, p Pagination) ([]CreditTransaction, int, error) {
	switch txType {
	case "", TransactionTypePurchase, TransactionTypeDeduction, TransactionTypeRefund, TransactionTypeAdjustment:
	default:
		return nil, 0, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidAmount, txType)
	}
	return s.repo.ListTransactions(ctx, userID, txType, p)
}

// withRetry retries fn on transient lock failures with a fresh balance read
// each attempt. Business failures (insufficient credits, invariant
// violations) are returned immediately.
func (s *Service) withRetry(ctx context.Context, userID uuid.UUID, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff << attempt):
			case <-ctx.Done():
				return ctx.Err()
			}
			log.Warn().
				Str("user_id", userID.String()).
				Int("attempt", attempt+1).
				Msg("retrying balance operation after lock contention")
		}

		err = WithUserLock(ctx, s.db, userID, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return err
}

// InTx runs fn while holding the user's balance lock, with retry on
// contention. Other domains use this to compose their own writes with a
// ledger append in one unit of work.
func (s *Service) InTx(ctx context.Context, userID uuid.UUID, fn func(tx *sqlx.Tx) error) error {
	return s.withRetry(ctx, userID, fn)
}

// CreditPurchaseTx appends a purchase entry under the lock held by tx.
// Called by the purchase domain when an out-of-band payment is confirmed.
func (s *Service) CreditPurchaseTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, credits int, purchaseID uuid.UUID, description string) (*CreditTransaction, error) {
	if credits <= 0 {
		return nil, fmt.Errorf("%w: credits must be positive", ErrInvalidAmount)
	}

	balance, err := s.repo.GetBalanceForUpdateTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	entry := &CreditTransaction{
		UserID:        userID,
		Type:          TransactionTypePurchase,
		Amount:        credits,
		BalanceBefore: balance,
		BalanceAfter:  balance + credits,
		ReferenceType: ReferenceTypePurchase,
		ReferenceID:   uuid.NullUUID{UUID: purchaseID, Valid: true},
		Description:   description,
	}
	if err := s.repo.AppendTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// CreatePaidResource deducts requiredCredits and creates the paid resource
// atomically. The factory runs inside the same transaction as the ledger
// append; if it fails, no credits are spent. On success the deduction entry
// is backfilled with the created resource's id.
func (s *Service) CreatePaidResource(ctx context.Context, userID uuid.UUID, requiredCredits int, description string, refType ReferenceType, factory ResourceFactory) (*PaidResourceResult, error) {
	if requiredCredits <= 0 {
		return nil, fmt.Errorf("%w: required credits must be positive", ErrInvalidAmount)
	}

	// Cheap precheck outside the lock so obviously-broke users get a fast
	// answer without contending on the row.
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < requiredCredits {
		return nil, &InsufficientCreditsError{Required: requiredCredits, Available: balance}
	}

	var result PaidResourceResult
	err = s.withRetry(ctx, userID, func(tx *sqlx.Tx) error {
		// Re-read under the lock; the precheck balance may be stale.
		locked, err := s.repo.GetBalanceForUpdateTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if locked < requiredCredits {
			return &InsufficientCreditsError{Required: requiredCredits, Available: locked}
		}

		entry := &CreditTransaction{
			UserID:        userID,
			Type:          TransactionTypeDeduction,
			Amount:        -requiredCredits,
			BalanceBefore: locked,
			BalanceAfter:  locked - requiredCredits,
			ReferenceType: refType,
			Description:   description,
		}
		if err := s.repo.AppendTx(ctx, tx, entry); err != nil {
			return err
		}

		resourceID, err := factory(ctx, tx, entry.ID)
		if err != nil {
			return err
		}

		if err := s.repo.SetTransactionReferenceTx(ctx, tx, entry.ID, refType, resourceID); err != nil {
			return err
		}

		result = PaidResourceResult{
			ResourceID:       resourceID,
			TransactionID:    entry.ID,
			RemainingBalance: entry.BalanceAfter,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("resource_id", result.ResourceID.String()).
		Int("credits", requiredCredits).
		Int("remaining", result.RemainingBalance).
		Msg("paid resource created")

	return &result, nil
}

// Refund returns previously deducted credits, keyed by the deleted
// resource's id so repeated calls refund at most once.
func (s *Service) Refund(ctx context.Context, userID uuid.UUID, amount int, refType ReferenceType, referenceID uuid.UUID, description string) (*CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrInvalidAmount)
	}

	done, err := s.repo.HasRefundFor(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	var entry *CreditTransaction
	err = s.withRetry(ctx, userID, func(tx *sqlx.Tx) error {
		// Re-check under the lock; a racing delete may have refunded first.
		again, err := s.repo.HasRefundForTx(ctx, tx, referenceID)
		if err != nil {
			return err
		}
		if again {
			entry = nil
			return nil
		}

		balance, err := s.repo.GetBalanceForUpdateTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		entry = &CreditTransaction{
			UserID:        userID,
			Type:          TransactionTypeRefund,
			Amount:        amount,
			BalanceBefore: balance,
			BalanceAfter:  balance + amount,
			ReferenceType: refType,
			ReferenceID:   uuid.NullUUID{UUID: referenceID, Valid: true},
			Description:   description,
		}
		return s.repo.AppendTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	if entry != nil {
		log.Info().
			Str("user_id", userID.String()).
			Str("reference_id", referenceID.String()).
			Int("credits", amount).
			Msg("credits refunded")
	}

	return entry, nil
}

// Adjust applies a signed manual correction by an administrator. Negative
// adjustments cannot take the balance below zero.
func (s *Service) Adjust(ctx context.Context, adminID, userID uuid.UUID, amount int, reason string) (*CreditTransaction, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: adjustment amount must be non-zero", ErrInvalidAmount)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: adjustment reason required", ErrInvalidAmount)
	}

	var entry *CreditTransaction
	err := s.withRetry(ctx, userID, func(tx *sqlx.Tx) error {
		balance, err := s.repo.GetBalanceForUpdateTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance+amount < 0 {
			return &InsufficientCreditsError{Required: -amount, Available: balance}
		}

		entry = &CreditTransaction{
			UserID:        userID,
			Type:          TransactionTypeAdjustment,
			Amount:        amount,
			BalanceBefore: balance,
			BalanceAfter:  balance + amount,
			ReferenceType: ReferenceTypeAdmin,
			Description:   reason,
			CreatedBy:     uuid.NullUUID{UUID: adminID, Valid: true},
		}
		return s.repo.AppendTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("admin_id", adminID.String()).
		Str("user_id", userID.String()).
		Int("amount", amount).
		Msg("balance adjusted")

	return entry, nil
}
