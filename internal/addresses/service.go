package addresses

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type repository interface {
	FindByUser(ctx context.Context, userID uuid.UUID) ([]models.Address, error)
	CountOwned(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

// Service exposes the address-book reads checkout depends on.
type Service interface {
	ListAddresses(ctx context.Context, userID uuid.UUID) ([]types.Address, error)
	EnsureOwned(ctx context.Context, userID uuid.UUID, ids ...uuid.UUID) error
}

type service struct {
	repo repository
}

// NewService builds the address-book service.
func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListAddresses(ctx context.Context, userID uuid.UUID) ([]types.Address, error) {
	rows, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	out := make([]types.Address, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.Address{
			ID:    row.ID.String(),
			Type:  row.Type,
			Label: row.Label,
		})
	}
	return out, nil
}

// EnsureOwned fails with a validation error unless every id is in the user's
// address book. Duplicate ids are allowed.
func (s *service) EnsureOwned(ctx context.Context, userID uuid.UUID, ids ...uuid.UUID) error {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := map[uuid.UUID]struct{}{}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}
	count, err := s.repo.CountOwned(ctx, userID, unique)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check addresses")
	}
	if int(count) != len(unique) {
		return pkgerrors.New(pkgerrors.CodeValidation, "address not found in address book")
	}
	return nil
}
