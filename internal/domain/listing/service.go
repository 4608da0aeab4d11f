package listing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/sokoni/sokoni-api/internal/domain/credit"
)

// placementCosts is the credit price list for listing placements.
var placementCosts = map[Placement]int{
	PlacementStandard: 5,
	PlacementFeatured: 15,
	PlacementPremium:  30,
}

// CreateInput carries the user-supplied listing fields.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Price       int64
	Currency    string
	Placement   Placement
}

type Service struct {
	repo    Repository
	credits *credit.Service
}

func NewService(repo Repository, credits *credit.Service) *Service {
	return &Service{repo: repo, credits: credits}
}

// CostOf returns the credit cost for a placement.
func CostOf(p Placement) (int, error) {
	cost, ok := placementCosts[p]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlacement, p)
	}
	return cost, nil
}

// Create deducts the placement cost and inserts the listing atomically. The
// insert runs inside the ledger transaction via the factory closure, so a
// failed insert costs nothing.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*Listing, *credit.PaidResourceResult, error) {
	if input.Placement == "" {
		input.Placement = PlacementStandard
	}
	cost, err := CostOf(input.Placement)
	if err != nil {
		return nil, nil, err
	}

	var created *Listing
	result, err := s.credits.CreatePaidResource(
		ctx, userID, cost,
		fmt.Sprintf("%s listing: %s", input.Placement, input.Title),
		credit.ReferenceTypeListing,
		func(ctx context.Context, tx *sqlx.Tx, txnID uuid.UUID) (uuid.UUID, error) {
			l := &Listing{
				UserID:              userID,
				Title:               input.Title,
				Description:         input.Description,
				Category:            input.Category,
				Price:               input.Price,
				Currency:            input.Currency,
				Placement:           input.Placement,
				CreditsCost:         cost,
				CreditTransactionID: uuid.NullUUID{UUID: txnID, Valid: true},
			}
			if err := s.repo.InsertTx(ctx, tx, l); err != nil {
				return uuid.Nil, err
			}
			created = l
			return l.ID, nil
		},
	)
	if err != nil {
		return nil, nil, err
	}

	return created, result, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Listing, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Listing, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Delete soft-deletes the user's listing and refunds its placement cost.
// The refund is keyed by the listing id, so repeated deletes refund once.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if l.UserID != userID {
		return ErrListingNotFound
	}

	changed, err := s.repo.MarkDeleted(ctx, id, userID)
	if err != nil {
		return err
	}
	if !changed {
		return ErrListingNotFound
	}

	_, err = s.credits.Refund(ctx, userID, l.CreditsCost, credit.ReferenceTypeListing, l.ID,
		fmt.Sprintf("refund for deleted listing: %s", l.Title))
	if err != nil {
		// The listing is already gone; surface the refund failure for ops.
		log.Error().Err(err).
			Str("listing_id", id.String()).
			Str("user_id", userID.String()).
			Msg("refund after listing delete failed")
		return err
	}

	return nil
}
