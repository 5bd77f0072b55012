package repository

import (
	"context"
	"sync"

	"bidhub-api/internal/model"
)

// MemoryLotRepository implements LotRepository and OrderRepository with an
// in-process map. Used for tests and single-instance development runs.
type MemoryLotRepository struct {
	mu     sync.RWMutex
	lots   map[string]model.Lot
	orders []model.Order
}

// NewMemoryLotRepository creates an empty in-memory lot store.
func NewMemoryLotRepository() *MemoryLotRepository {
	return &MemoryLotRepository{
		lots: make(map[string]model.Lot),
	}
}

// Insert stores a new lot at version 1.
func (r *MemoryLotRepository) Insert(ctx context.Context, lot *model.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lot.Version = 1
	r.lots[lot.ID] = cloneLot(lot)
	return nil
}

// FindByID retrieves a lot by id.
func (r *MemoryLotRepository) FindByID(ctx context.Context, id string) (*model.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.lots[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneLot(&stored)
	return &out, nil
}

// List returns a page of lots matching the filter plus the total count.
func (r *MemoryLotRepository) List(ctx context.Context, filter LotFilter) ([]model.Lot, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []model.Lot
	for _, lot := range r.lots {
		if filter.Status != "" && lot.Status != filter.Status {
			continue
		}
		if filter.OwnerID != "" && lot.OwnerID != filter.OwnerID {
			continue
		}
		matched = append(matched, cloneLot(&lot))
	}

	total := int64(len(matched))

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return matched, total, nil
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// FindReconcilable returns all active lots with a live proxy bid.
func (r *MemoryLotRepository) FindReconcilable(ctx context.Context) ([]model.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Lot
	for _, lot := range r.lots {
		if lot.Status == model.LotStatusActive && lot.HasActiveAutoBid {
			out = append(out, cloneLot(&lot))
		}
	}
	return out, nil
}

// UpdateIfVersion conditionally replaces the lot.
func (r *MemoryLotRepository) UpdateIfVersion(ctx context.Context, lot *model.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.lots[lot.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != lot.Version {
		return ErrVersionConflict
	}

	lot.Version++
	r.lots[lot.ID] = cloneLot(lot)
	return nil
}

// GetStats returns lot counts by status.
func (r *MemoryLotRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[model.LotStatus]int{}
	for _, lot := range r.lots {
		counts[lot.Status]++
	}

	return map[string]interface{}{
		"status":       "ok",
		"total_lots":   len(r.lots),
		"initial":      counts[model.LotStatusInitial],
		"active":       counts[model.LotStatusActive],
		"ended":        counts[model.LotStatusEnded],
		"total_orders": len(r.orders),
	}, nil
}

// Close is a no-op for the in-memory store.
func (r *MemoryLotRepository) Close() error {
	return nil
}

// InsertOrder stores a new order. Implements OrderRepository.
func (r *MemoryLotRepository) InsertOrder(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders = append(r.orders, *order)
	return nil
}

// ExistsForLot reports whether any order references the lot.
func (r *MemoryLotRepository) ExistsForLot(ctx context.Context, lotID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.orders {
		if o.LotID == lotID {
			return true, nil
		}
	}
	return false, nil
}

// cloneLot deep-copies a lot so callers never share the stored ownership
// slice with the map.
func cloneLot(lot *model.Lot) model.Lot {
	out := *lot
	out.TopOwnerships = make([]model.Ownership, len(lot.TopOwnerships))
	copy(out.TopOwnerships, lot.TopOwnerships)
	return out
}
