package purchasables

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/boxoffice-backend/internal/reservations"
	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
)

// Context is the purchasable a request is scoped to. It is immutable for the
// life of a request.
type Context struct {
	Type           enums.PurchasableType
	ID             string
	Identifier     string
	OrganizationID uuid.UUID
	Currency       string
	DisplayName    string
}

// Resolver turns public identifiers into purchase contexts and reservations
// scoped to them.
type Resolver interface {
	Resolve(ctx context.Context, kind enums.PurchasableType, identifier string) (*Context, error)
	ResolveReservation(ctx context.Context, purchasable *Context, reservationID string) (*models.Reservation, error)
}

type reservationFinder interface {
	FindByID(ctx context.Context, contextType enums.PurchasableType, contextID, reservationID string) (*models.Reservation, error)
}

type resolver struct {
	repo         Repository
	reservations reservationFinder
}

// NewResolver builds the purchase context resolver.
func NewResolver(repo Repository, reservationRepo reservationFinder) (Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("purchasables repository required")
	}
	if reservationRepo == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	return &resolver{repo: repo, reservations: reservationRepo}, nil
}

var _ reservationFinder = reservations.Repository(nil)

// ParseType converts a path segment into a purchasable type.
func ParseType(raw string) (enums.PurchasableType, error) {
	kind, err := enums.ParsePurchasableType(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown purchasable type").
			WithDetails(map[string]any{"purchasable_type": raw})
	}
	return kind, nil
}

func (r *resolver) Resolve(ctx context.Context, kind enums.PurchasableType, identifier string) (*Context, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchasable identifier required")
	}
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown purchasable type")
	}
	if kind == enums.PurchasableSubscription {
		if _, err := uuid.Parse(identifier); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription id")
		}
	}

	found, err := r.repo.FindByTypeAndIdentifier(ctx, kind, identifier)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup purchasable")
	}
	if found == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchasable not found")
	}
	return found, nil
}

// ResolveReservation fails closed: a reservation belonging to another context
// is reported exactly like a missing one.
func (r *resolver) ResolveReservation(ctx context.Context, purchasable *Context, reservationID string) (*models.Reservation, error) {
	if purchasable == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchasable not found")
	}
	reservationID = strings.TrimSpace(reservationID)
	if reservationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}

	reservation, err := r.reservations.FindByID(ctx, purchasable.Type, purchasable.ID, reservationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup reservation")
	}
	if reservation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return reservation, nil
}
