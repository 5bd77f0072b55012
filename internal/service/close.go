package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bidhub-api/internal/cache"
	"bidhub-api/internal/config"
	"bidhub-api/internal/events"
	"bidhub-api/internal/model"
	"bidhub-api/internal/repository"
	"bidhub-api/pkg/uid"
)

// CloseService transitions lots from active to ended once their deadline
// has passed. It is invoked opportunistically from the read path, from the
// reconcile sweep, and manually over HTTP.
type CloseService struct {
	lots      repository.LotRepository
	orders    repository.OrderRepository
	notifier  Notifier
	publisher events.Publisher
	cache     cache.Cache // optional
	cfg       config.AuctionConfig

	now func() time.Time
}

// NewCloseService creates a new close service.
func NewCloseService(
	lots repository.LotRepository,
	orders repository.OrderRepository,
	notifier Notifier,
	publisher events.Publisher,
	cfg config.AuctionConfig,
) *CloseService {
	return &CloseService{
		lots:      lots,
		orders:    orders,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetCache wires the lot read cache so closes invalidate it.
func (s *CloseService) SetCache(c cache.Cache) {
	s.cache = c
}

// CloseIfExpired ends the lot if its deadline has passed.
//
// A lot with zero bids never closes on its own: its deadline is pushed
// forward by NoBidExtension and it stays active. A lot already referenced
// by an order was finalized downstream and is left alone. Otherwise the
// lot ends now, keeps a display grace window, and the winner and losers
// are notified.
func (s *CloseService) CloseIfExpired(ctx context.Context, lotID string) error {
	for attempt := 0; attempt < casMaxRetries; attempt++ {
		lot, err := s.lots.FindByID(ctx, lotID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrLotNotFound
		}
		if err != nil {
			return err
		}

		if lot.Status == model.LotStatusEnded {
			return nil
		}
		now := s.now()
		if !lot.IsExpired(now) {
			return nil
		}

		if len(lot.TopOwnerships) == 0 {
			lot.FinishedTime = lot.FinishedTime.Add(s.cfg.NoBidExtension)
			lot.Status = model.LotStatusActive
			lot.UpdatedAt = now

			err := s.lots.UpdateIfVersion(ctx, lot)
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			if err != nil {
				return err
			}
			s.invalidate(ctx, lotID)
			log.Printf("[Close] Lot %s had no bids, deadline pushed to %s",
				lotID, lot.FinishedTime.Format(time.RFC3339))
			return nil
		}

		finalized, err := s.orders.ExistsForLot(ctx, lotID)
		if err != nil {
			return fmt.Errorf("failed to check orders for lot %s: %w", lotID, err)
		}
		if finalized {
			return nil
		}

		originalDeadline := lot.FinishedTime
		lot.Status = model.LotStatusEnded
		lot.FinishedTime = now
		lot.BidHideTime = originalDeadline.Add(s.cfg.BidHideGrace)
		lot.UpdatedAt = now

		err = s.lots.UpdateIfVersion(ctx, lot)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return err
		}

		s.invalidate(ctx, lotID)
		s.finish(ctx, lot, now)
		return nil
	}
	return ErrConflict
}

// finish dispatches the close side effects: notifications to the owner,
// the winner, and every loser, plus the close event.
func (s *CloseService) finish(ctx context.Context, lot *model.Lot, now time.Time) {
	winner := lot.HighestOwnership()

	s.notifier.Notify(ctx, lot.OwnerID, "Your auction has ended",
		fmt.Sprintf("Auction %q closed at %s.", lot.Title, winner.Amount))
	s.notifier.Notify(ctx, winner.UserID, "You won the auction",
		fmt.Sprintf("You won %q at %s.", lot.Title, winner.Amount))
	for _, o := range lot.TopOwnerships {
		if o.UserID == winner.UserID {
			continue
		}
		s.notifier.Notify(ctx, o.UserID, "Auction ended",
			fmt.Sprintf("Auction %q closed. Your bid of %s did not win.", lot.Title, o.Amount))
	}

	if err := s.publisher.PublishLotClosed(ctx, events.LotClosedEvent{
		EventID:   uid.New(),
		LotID:     lot.ID,
		WinnerID:  winner.UserID,
		Amount:    winner.Amount.String(),
		Timestamp: now,
	}); err != nil {
		log.Printf("[Close] Failed to publish close event for lot %s: %v", lot.ID, err)
	}
}

func (s *CloseService) invalidate(ctx context.Context, lotID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, lotCacheKey(lotID)); err != nil {
		log.Printf("[Close] Failed to invalidate cache for lot %s: %v", lotID, err)
	}
}
