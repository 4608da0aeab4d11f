package purchase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/sokoni/sokoni-api/internal/domain/credit"
	"github.com/sokoni/sokoni-api/internal/domain/pricing"
	"github.com/sokoni/sokoni-api/internal/pkg/mobilemoney"
)

// refAlphabet avoids characters that are easy to mistype on a phone keypad
// when entering the paybill account reference.
const refAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const refCodeLen = 8

type Service struct {
	db      *sqlx.DB
	repo    Repository
	tiers   pricing.Repository
	credits *credit.Service
	money   *mobilemoney.Adapter
}

func NewService(db *sqlx.DB, repo Repository, tiers pricing.Repository, credits *credit.Service, money *mobilemoney.Adapter) *Service {
	return &Service{db: db, repo: repo, tiers: tiers, credits: credits, money: money}
}

// InitiatePurchase creates a PENDING purchase for the chosen tier and
// returns the paybill instructions. The generated transaction reference
// doubles as the paybill account reference, which is how the async
// confirmation finds this purchase.
func (s *Service) InitiatePurchase(ctx context.Context, userID, tierID uuid.UUID, method PaymentMethod, phone string) (*CreditPurchase, *mobilemoney.Instructions, error) {
	tier, err := s.tiers.GetByID(ctx, tierID)
	if err != nil {
		if errors.Is(err, pricing.ErrTierNotFound) {
			return nil, nil, ErrTierUnavailable
		}
		return nil, nil, err
	}
	if !tier.Active {
		return nil, nil, ErrTierUnavailable
	}

	reference, err := s.newReference()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: generate reference", ErrInternal)
	}

	p := &CreditPurchase{
		UserID:               userID,
		PricingTierID:        tier.ID,
		CreditsAmount:        tier.TotalCredits(),
		AmountPaid:           tier.Price,
		Currency:             tier.Currency,
		PaymentMethod:        method,
		PhoneNumber:          phone,
		TransactionReference: reference,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, nil, err
	}

	instructions := s.money.Instructions(reference, tier.Price, tier.Currency)

	log.Info().
		Str("user_id", userID.String()).
		Str("purchase_id", p.ID.String()).
		Str("reference", reference).
		Int("credits", p.CreditsAmount).
		Msg("credit purchase initiated")

	return p, &instructions, nil
}

// ConfirmPurchase is the single entry point for payment confirmations,
// whether they came from the provider webhook or the SMS relay. It is
// idempotent: confirming a COMPLETED purchase returns the existing row
// without crediting again.
func (s *Service) ConfirmPurchase(ctx context.Context, reference string, outcome Outcome) (*CreditPurchase, error) {
	p, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrPurchaseNotFound) {
			log.Warn().Str("reference", reference).Msg("confirmation for unknown reference")
		}
		return nil, err
	}

	if p.Status == StatusCompleted {
		return p, nil
	}

	if !outcome.Success {
		reason := outcome.FailureReason
		if reason == "" {
			reason = "payment failed"
		}
		changed, err := s.repo.MarkFailed(ctx, p.ID, reason)
		if err != nil {
			return nil, err
		}
		if changed {
			log.Info().
				Str("purchase_id", p.ID.String()).
				Str("reference", reference).
				Str("reason", reason).
				Msg("credit purchase failed")
		}
		return s.repo.GetByID(ctx, p.ID)
	}

	credited := false
	err = s.credits.InTx(ctx, p.UserID, func(tx *sqlx.Tx) error {
		credited = false

		// Re-read under lock; a concurrent confirmation may have won.
		locked, err := s.repo.GetByReferenceForUpdateTx(ctx, tx, reference)
		if err != nil {
			return err
		}
		if locked.Status == StatusCompleted {
			return nil
		}
		if locked.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrPurchaseResolved, reference, locked.Status)
		}

		_, err = s.credits.CreditPurchaseTx(ctx, tx, locked.UserID, locked.CreditsAmount, locked.ID,
			fmt.Sprintf("Credit purchase %s", locked.TransactionReference))
		if err != nil {
			return err
		}

		amountPaid := outcome.AmountPaid
		if amountPaid == 0 {
			amountPaid = locked.AmountPaid
		}
		if err := s.repo.MarkCompletedTx(ctx, tx, locked.ID, amountPaid, outcome.ProviderMetadata); err != nil {
			return err
		}

		credited = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPurchaseResolved) {
			log.Error().
				Str("reference", reference).
				Str("status", string(p.Status)).
				Msg("success confirmation for resolved purchase, needs manual triage")
		}
		return nil, err
	}

	if credited {
		log.Info().
			Str("purchase_id", p.ID.String()).
			Str("reference", reference).
			Int("credits", p.CreditsAmount).
			Msg("credit purchase completed")
	}

	return s.repo.GetByID(ctx, p.ID)
}

// GetPurchase returns one of the user's purchases for polling.
func (s *Service) GetPurchase(ctx context.Context, userID, id uuid.UUID) (*CreditPurchase, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrPurchaseNotFound
	}
	return p, nil
}

func (s *Service) ListPurchases(ctx context.Context, userID uuid.UUID, pg Pagination) ([]CreditPurchase, int, error) {
	return s.repo.ListByUser(ctx, userID, pg)
}

// CancelPurchase lets a user abandon their own pending purchase. A payment
// confirmation that arrives later is rejected as resolved.
func (s *Service) CancelPurchase(ctx context.Context, userID, id uuid.UUID) (*CreditPurchase, error) {
	p, err := s.GetPurchase(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.Terminal() {
		return nil, ErrNotPending
	}

	changed, err := s.repo.MarkCancelled(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, ErrNotPending
	}

	log.Info().
		Str("purchase_id", p.ID.String()).
		Str("user_id", userID.String()).
		Msg("credit purchase cancelled")

	return s.repo.GetByID(ctx, p.ID)
}

func (s *Service) newReference() (string, error) {
	buf := make([]byte, refCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = refAlphabet[int(b)%len(refAlphabet)]
	}
	return fmt.Sprintf("%s-%s", s.money.RefPrefix(), string(buf)), nil
}
