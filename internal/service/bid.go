package service

import (
	"context"
	"errors"
	"log"
	"time"

	"bidhub-api/internal/cache"
	"bidhub-api/internal/config"
	"bidhub-api/internal/events"
	"bidhub-api/internal/model"
	"bidhub-api/internal/repository"
	"bidhub-api/pkg/uid"

	"github.com/shopspring/decimal"
)

// casMaxRetries bounds how often a write is retried after losing the
// version race before giving up with ErrConflict.
const casMaxRetries = 3

// starter restarts the reconcile loop after bidding activity.
type starter interface {
	Start()
}

// BidService accepts manual bids, buy-now purchases, and proxy-bid
// registrations against a lot.
//
// Every mutation follows read -> modify -> compare-and-swap: the lot is
// re-read and the whole decision re-applied when the version check fails,
// so two concurrent bids on the same lot can never clobber each other.
type BidService struct {
	lots      repository.LotRepository
	orders    repository.OrderRepository
	users     repository.UserRepository // optional
	notifier  Notifier
	publisher events.Publisher
	cfg       config.AuctionConfig

	scheduler starter     // optional
	cache     cache.Cache // optional, invalidated on writes

	now func() time.Time
}

// NewBidService creates a new bid service. users may be nil; display names
// then fall back to the raw user id.
func NewBidService(
	lots repository.LotRepository,
	orders repository.OrderRepository,
	users repository.UserRepository,
	notifier Notifier,
	publisher events.Publisher,
	cfg config.AuctionConfig,
) *BidService {
	return &BidService{
		lots:      lots,
		orders:    orders,
		users:     users,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetScheduler wires the reconcile scheduler so accepted bids restart it.
func (s *BidService) SetScheduler(sch starter) {
	s.scheduler = sch
}

// SetCache wires the lot read cache so writes invalidate it.
func (s *BidService) SetCache(c cache.Cache) {
	s.cache = c
}

// PlaceBid validates and records a manual bid.
//
// If the bid arrives within the anti-snipe window the deadline is extended
// to now + SnipeExtension before the bid is recorded; the deadline is never
// shortened. A bidder's first bid is appended with is_auto set, which flags
// the lot for reconcile bookkeeping.
func (s *BidService) PlaceBid(ctx context.Context, lotID, bidderID string, amount decimal.Decimal) (*model.Ownership, error) {
	var own *model.Ownership

	err := s.withRetry(ctx, lotID, func(lot *model.Lot) error {
		if err := s.guard(lot, bidderID); err != nil {
			return err
		}

		now := s.now()
		s.applyAntiSnipe(lot, now)
		if lot.Status == model.LotStatusInitial {
			lot.Status = model.LotStatusActive
		}

		if existing := lot.Ownership(bidderID); existing != nil {
			if amount.LessThan(existing.Amount) {
				return ErrBidTooLow
			}
			existing.Amount = amount
			own = existing
		} else {
			lot.TopOwnerships = append(lot.TopOwnerships, model.Ownership{
				UserID:   bidderID,
				UserName: s.displayName(ctx, bidderID),
				Amount:   amount,
				IsAuto:   true,
			})
			lot.HasActiveAutoBid = true
			own = &lot.TopOwnerships[len(lot.TopOwnerships)-1]
		}
		lot.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterBid(ctx, lotID, *own)
	result := *own
	return &result, nil
}

// BuyNow records an instant purchase: the buyer takes the lot at the
// buy-now price and the lot ends immediately.
func (s *BidService) BuyNow(ctx context.Context, lotID, bidderID string) (*model.Ownership, error) {
	var (
		own   *model.Ownership
		price decimal.Decimal
	)

	err := s.withRetry(ctx, lotID, func(lot *model.Lot) error {
		if err := s.guard(lot, bidderID); err != nil {
			return err
		}
		if !lot.HasBuyNow() {
			return ErrNoBuyNow
		}

		now := s.now()
		price = lot.PriceBuyNow
		if existing := lot.Ownership(bidderID); existing != nil {
			existing.Amount = price
			own = existing
		} else {
			lot.TopOwnerships = append(lot.TopOwnerships, model.Ownership{
				UserID:   bidderID,
				UserName: s.displayName(ctx, bidderID),
				Amount:   price,
			})
			own = &lot.TopOwnerships[len(lot.TopOwnerships)-1]
		}
		lot.Status = model.LotStatusEnded
		lot.FinishedTime = now
		lot.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &model.Order{
		ID:        uid.New(),
		LotID:     lotID,
		BuyerID:   bidderID,
		Amount:    price,
		CreatedAt: now,
	}
	if err := s.orders.InsertOrder(ctx, order); err != nil {
		log.Printf("[BidService] Failed to record order for lot %s: %v", lotID, err)
	}

	s.notifier.Notify(ctx, bidderID, "Purchase confirmed",
		"Your buy-now purchase of lot "+lotID+" is confirmed.")
	s.invalidate(ctx, lotID)
	if err := s.publisher.PublishLotClosed(ctx, events.LotClosedEvent{
		EventID:   uid.New(),
		LotID:     lotID,
		WinnerID:  bidderID,
		Amount:    price.String(),
		BuyNow:    true,
		Timestamp: now,
	}); err != nil {
		log.Printf("[BidService] Failed to publish close event for lot %s: %v", lotID, err)
	}

	result := *own
	return &result, nil
}

// AutoBid registers or updates a proxy bid: the bidder authorizes the
// system to bid on their behalf up to limitBid. The standing amount is left
// for the reconcile sweep to work out.
func (s *BidService) AutoBid(ctx context.Context, lotID, bidderID string, limitBid decimal.Decimal) (*model.Ownership, error) {
	var own *model.Ownership

	err := s.withRetry(ctx, lotID, func(lot *model.Lot) error {
		if err := s.guard(lot, bidderID); err != nil {
			return err
		}

		now := s.now()
		if lot.Status == model.LotStatusInitial {
			lot.Status = model.LotStatusActive
		}

		if existing := lot.Ownership(bidderID); existing != nil {
			existing.IsAuto = true
			existing.LimitBid = limitBid
			own = existing
		} else {
			lot.TopOwnerships = append(lot.TopOwnerships, model.Ownership{
				UserID:   bidderID,
				UserName: s.displayName(ctx, bidderID),
				IsAuto:   true,
				LimitBid: limitBid,
			})
			own = &lot.TopOwnerships[len(lot.TopOwnerships)-1]
		}
		lot.HasActiveAutoBid = true
		lot.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterBid(ctx, lotID, *own)
	result := *own
	return &result, nil
}

// withRetry runs the read-modify-write cycle, re-reading the lot and
// re-applying mutate whenever the conditional write loses the race.
func (s *BidService) withRetry(ctx context.Context, lotID string, mutate func(*model.Lot) error) error {
	for attempt := 0; attempt < casMaxRetries; attempt++ {
		lot, err := s.lots.FindByID(ctx, lotID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrLotNotFound
		}
		if err != nil {
			return err
		}

		if err := mutate(lot); err != nil {
			return err
		}

		err = s.lots.UpdateIfVersion(ctx, lot)
		if errors.Is(err, repository.ErrVersionConflict) {
			log.Printf("[BidService] Version conflict on lot %s, retrying (%d/%d)",
				lotID, attempt+1, casMaxRetries)
			continue
		}
		return err
	}
	return ErrConflict
}

// guard applies the checks shared by all three entry points.
func (s *BidService) guard(lot *model.Lot, bidderID string) error {
	if lot.OwnerID == bidderID {
		return ErrSelfBid
	}
	if lot.Status == model.LotStatusEnded {
		return ErrLotEnded
	}
	return nil
}

// applyAntiSnipe extends the deadline when a bid lands inside the snipe
// window. Runs before the bid is recorded and never shortens the deadline.
func (s *BidService) applyAntiSnipe(lot *model.Lot, now time.Time) {
	if lot.FinishedTime.Sub(now) <= s.cfg.SnipeWindow {
		extended := now.Add(s.cfg.SnipeExtension)
		if extended.After(lot.FinishedTime) {
			lot.FinishedTime = extended
		}
		lot.Status = model.LotStatusActive
	}
}

func (s *BidService) displayName(ctx context.Context, userID string) string {
	if s.users == nil {
		return userID
	}
	name, err := s.users.GetDisplayName(ctx, userID)
	if err != nil {
		return userID
	}
	return name
}

// afterBid runs the accepted-bid side effects: cache invalidation, event
// publishing, and restarting the reconcile loop.
func (s *BidService) afterBid(ctx context.Context, lotID string, own model.Ownership) {
	s.invalidate(ctx, lotID)

	if err := s.publisher.PublishBid(ctx, events.BidEvent{
		EventID:   uid.New(),
		LotID:     lotID,
		UserID:    own.UserID,
		Amount:    own.Amount.String(),
		IsAuto:    own.IsAuto,
		Timestamp: s.now(),
	}); err != nil {
		log.Printf("[BidService] Failed to publish bid event for lot %s: %v", lotID, err)
	}

	if s.scheduler != nil {
		s.scheduler.Start()
	}
}

func (s *BidService) invalidate(ctx context.Context, lotID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, lotCacheKey(lotID)); err != nil {
		log.Printf("[BidService] Failed to invalidate cache for lot %s: %v", lotID, err)
	}
}
