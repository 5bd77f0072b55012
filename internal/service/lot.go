package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"bidhub-api/internal/cache"
	"bidhub-api/internal/config"
	"bidhub-api/internal/model"
	"bidhub-api/internal/repository"
	"bidhub-api/pkg/uid"

	"github.com/shopspring/decimal"
)

func lotCacheKey(lotID string) string {
	return "lot:" + lotID
}

// LotService handles listing CRUD and the read path. Reads run the close
// check first, so expired lots are finalized the moment anyone looks at
// them.
type LotService struct {
	lots   repository.LotRepository
	closer *CloseService // optional
	cache  cache.Cache   // optional
	cfg    config.AuctionConfig
	ttl    time.Duration

	now func() time.Time
}

// NewLotService creates a new lot service.
func NewLotService(lots repository.LotRepository, cfg config.AuctionConfig, cacheTTL time.Duration) *LotService {
	return &LotService{
		lots: lots,
		cfg:  cfg,
		ttl:  cacheTTL,
		now:  time.Now,
	}
}

// SetCloser wires the close handler into the read path.
func (s *LotService) SetCloser(c *CloseService) {
	s.closer = c
}

// SetCache wires the lot read cache.
func (s *LotService) SetCache(c cache.Cache) {
	s.cache = c
}

// CreateLotInput carries the listing fields a seller submits.
type CreateLotInput struct {
	Title        string
	Description  string
	Price        decimal.Decimal
	PriceBuyNow  decimal.Decimal
	StartDate    time.Time
	FinishedTime time.Time
}

// CreateLot stores a new listing in initial status with no bids.
func (s *LotService) CreateLot(ctx context.Context, ownerID string, in CreateLotInput) (*model.Lot, error) {
	now := s.now()

	startDate := in.StartDate
	if startDate.IsZero() {
		startDate = now
	}

	lot := &model.Lot{
		ID:            uid.New(),
		OwnerID:       ownerID,
		Title:         in.Title,
		Description:   in.Description,
		Price:         in.Price,
		PriceBuyNow:   in.PriceBuyNow,
		StartDate:     startDate,
		FinishedTime:  in.FinishedTime,
		Status:        model.LotStatusInitial,
		TopOwnerships: []model.Ownership{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.lots.Insert(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

// GetLot retrieves one lot, finalizing it first if its deadline passed.
func (s *LotService) GetLot(ctx context.Context, lotID string) (*model.Lot, error) {
	s.closeCheck(ctx, lotID)

	if s.cache == nil {
		return s.findLot(ctx, lotID)
	}

	data, err := s.cache.GetOrSet(ctx, lotCacheKey(lotID), s.ttl, func() ([]byte, error) {
		lot, err := s.findLot(ctx, lotID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(lot)
	})
	if err != nil {
		return nil, err
	}

	var lot model.Lot
	if err := json.Unmarshal(data, &lot); err != nil {
		return nil, err
	}
	return &lot, nil
}

// ListLots returns a page of lots. Expired active lots in the page are
// finalized and re-read before being returned.
func (s *LotService) ListLots(ctx context.Context, filter repository.LotFilter) ([]model.Lot, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = s.cfg.DefaultPageLimit
	}
	if filter.Limit > s.cfg.MaxPageLimit {
		filter.Limit = s.cfg.MaxPageLimit
	}

	lots, total, err := s.lots.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	for i := range lots {
		if lots[i].Status == model.LotStatusEnded || !lots[i].IsExpired(now) {
			continue
		}
		s.closeCheck(ctx, lots[i].ID)
		fresh, err := s.lots.FindByID(ctx, lots[i].ID)
		if err != nil {
			log.Printf("[LotService] Re-read after close failed for lot %s: %v", lots[i].ID, err)
			continue
		}
		lots[i] = *fresh
	}
	return lots, total, nil
}

// EndLot manually triggers the close handler for one lot.
func (s *LotService) EndLot(ctx context.Context, lotID string) error {
	if s.closer == nil {
		return nil
	}
	return s.closer.CloseIfExpired(ctx, lotID)
}

func (s *LotService) findLot(ctx context.Context, lotID string) (*model.Lot, error) {
	lot, err := s.lots.FindByID(ctx, lotID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLotNotFound
	}
	return lot, err
}

// closeCheck runs the opportunistic close. Failures only get logged; the
// read itself must not break because finalization did.
func (s *LotService) closeCheck(ctx context.Context, lotID string) {
	if s.closer == nil {
		return
	}
	if err := s.closer.CloseIfExpired(ctx, lotID); err != nil && !errors.Is(err, ErrLotNotFound) {
		log.Printf("[LotService] Close check failed for lot %s: %v", lotID, err)
	}
}
