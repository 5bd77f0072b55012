package repository

import (
	"context"
	"errors"

	"bidhub-api/internal/model"
)

var (
	// ErrNotFound indicates the referenced document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates a compare-and-swap write lost the race:
	// the stored lot version no longer matches the version that was read.
	ErrVersionConflict = errors.New("lot version conflict")
)

// LotFilter narrows List queries.
type LotFilter struct {
	Status  model.LotStatus
	OwnerID string
	Page    int
	Limit   int
}

// LotRepository defines lot data access methods.
//
// UpdateIfVersion is the only general write primitive: it replaces the stored
// document if and only if the stored version equals lot.Version, then bumps
// the version. Callers re-read and retry on ErrVersionConflict, which is what
// keeps concurrent bids on the same lot from clobbering each other.
type LotRepository interface {
	// Insert stores a new lot at version 1.
	Insert(ctx context.Context, lot *model.Lot) error

	// FindByID retrieves a lot by id. Returns ErrNotFound if absent.
	FindByID(ctx context.Context, id string) (*model.Lot, error)

	// List returns a page of lots matching the filter plus the total count.
	List(ctx context.Context, filter LotFilter) ([]model.Lot, int64, error)

	// FindReconcilable returns all active lots with a live proxy bid.
	FindReconcilable(ctx context.Context) ([]model.Lot, error)

	// UpdateIfVersion conditionally replaces the lot (see interface doc).
	// On success lot.Version is incremented in place.
	UpdateIfVersion(ctx context.Context, lot *model.Lot) error

	// GetStats returns lot counts by status and store health info.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}

// OrderRepository defines purchase record access. The lot store backends
// implement this alongside LotRepository so orders live next to the lots
// they finalize.
type OrderRepository interface {
	// InsertOrder stores a new order.
	InsertOrder(ctx context.Context, order *model.Order) error

	// ExistsForLot reports whether any order references the lot.
	ExistsForLot(ctx context.Context, lotID string) (bool, error)
}

// UserRepository defines user account lookups against the accounts database.
type UserRepository interface {
	// GetDisplayName returns the display name for a user id.
	GetDisplayName(ctx context.Context, userID string) (string, error)

	// Authenticate validates user credentials for token issuance.
	Authenticate(ctx context.Context, userID, secret string) (*model.User, error)
}
