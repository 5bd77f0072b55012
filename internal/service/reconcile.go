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

	"github.com/shopspring/decimal"
)

// SignalStop is returned by Reconcile when no lot needs proxy-bid work,
// telling the scheduler to halt until new bidding activity restarts it.
const SignalStop = "stop"

// ReconcileService runs the proxy-bid sweep: for every active lot with a
// live proxy bid it recomputes the leading bidder.
type ReconcileService struct {
	lots      repository.LotRepository
	publisher events.Publisher
	closer    *CloseService // optional, closes expired lots noticed mid-sweep
	cache     cache.Cache   // optional
	cfg       config.AuctionConfig

	now func() time.Time
}

// NewReconcileService creates a new reconcile service.
func NewReconcileService(
	lots repository.LotRepository,
	publisher events.Publisher,
	cfg config.AuctionConfig,
) *ReconcileService {
	return &ReconcileService{
		lots:      lots,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetCloser wires the close handler so the sweep can finish expired lots.
func (s *ReconcileService) SetCloser(c *CloseService) {
	s.closer = c
}

// SetCache wires the lot read cache so sweep writes invalidate it.
func (s *ReconcileService) SetCache(c cache.Cache) {
	s.cache = c
}

// Reconcile performs one sweep over all eligible lots. It returns
// SignalStop when none are eligible, otherwise the status message of the
// last lot processed. Store failures mid-sweep abort the remaining lots;
// they are logged, never returned.
func (s *ReconcileService) Reconcile(ctx context.Context) string {
	lots, err := s.lots.FindReconcilable(ctx)
	if err != nil {
		log.Printf("[Reconcile] Failed to load lots: %v", err)
		return "reconcile sweep failed"
	}
	if len(lots) == 0 {
		return SignalStop
	}

	multiplier := s.cfg.Multiplier()
	lastMsg := ""

	for i := range lots {
		lot := &lots[i]

		now := s.now()
		if lot.IsExpired(now) {
			if s.closer != nil {
				if err := s.closer.CloseIfExpired(ctx, lot.ID); err != nil {
					log.Printf("[Reconcile] Failed to close expired lot %s: %v", lot.ID, err)
				}
			}
			lastMsg = fmt.Sprintf("lot %s: deadline elapsed", lot.ID)
			continue
		}

		outcome := reconcileLot(lot, multiplier)
		lastMsg = fmt.Sprintf("lot %s: %s", lot.ID, outcome.message)
		if outcome.raised == nil && len(outcome.demoted) == 0 {
			continue
		}

		lot.UpdatedAt = now
		err := s.lots.UpdateIfVersion(ctx, lot)
		if errors.Is(err, repository.ErrVersionConflict) {
			// A bid landed between read and write; the next sweep will
			// recompute from the fresh state.
			log.Printf("[Reconcile] Lot %s changed during sweep, skipping", lot.ID)
			continue
		}
		if err != nil {
			log.Printf("[Reconcile] Store error on lot %s, aborting sweep: %v", lot.ID, err)
			return lastMsg
		}

		s.invalidate(ctx, lot.ID)
		if outcome.raised != nil {
			if err := s.publisher.PublishBid(ctx, events.BidEvent{
				EventID:   uid.New(),
				LotID:     lot.ID,
				UserID:    outcome.raised.UserID,
				Amount:    outcome.raised.Amount.String(),
				IsAuto:    true,
				Timestamp: now,
			}); err != nil {
				log.Printf("[Reconcile] Failed to publish bid event for lot %s: %v", lot.ID, err)
			}
		}
	}

	return lastMsg
}

func (s *ReconcileService) invalidate(ctx context.Context, lotID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, lotCacheKey(lotID)); err != nil {
		log.Printf("[Reconcile] Failed to invalidate cache for lot %s: %v", lotID, err)
	}
}

// lotOutcome describes what one sweep pass did to a lot.
type lotOutcome struct {
	// raised is the ownership whose amount was increased, nil if none.
	raised *model.Ownership
	// demoted holds user ids whose proxy flag was cleared (priced out).
	demoted []string
	message string
}

// reconcileLot applies the proxy-bid algorithm to a single lot in memory.
//
// With one proxy bidder, the system outbids the current leader by the
// configured increment, up to the bidder's limit. With two or more, the
// top-limit bidder outbids over the runner-up's ceiling (the usual
// second-price mechanic); once the top bidder leads, every other proxy
// bidder is priced out for good.
func reconcileLot(lot *model.Lot, multiplier decimal.Decimal) lotOutcome {
	highest := lot.HighestOwnership()
	autos := lot.AutoOwnerships()
	if len(autos) == 0 {
		return lotOutcome{message: "no proxy bids"}
	}

	if len(autos) == 1 {
		auto := autos[0]
		if auto.UserID == highest.UserID {
			return lotOutcome{message: "proxy bidder already leading"}
		}
		newAmount := highest.Amount.Mul(multiplier).Round(0)
		if newAmount.GreaterThan(auto.LimitBid) {
			return lotOutcome{message: fmt.Sprintf("proxy limit reached for %s", auto.UserID)}
		}
		auto.Amount = newAmount
		return lotOutcome{
			raised:  auto,
			message: fmt.Sprintf("raised %s to %s", auto.UserID, newAmount),
		}
	}

	top, runnerUp := autos[0], autos[1]
	if highest.UserID != top.UserID {
		base := highest.Amount
		if runnerUp.LimitBid.GreaterThan(base) {
			base = runnerUp.LimitBid
		}
		newAmount := base.Mul(multiplier).Round(0)
		if !top.LimitBid.GreaterThan(newAmount) {
			return lotOutcome{message: fmt.Sprintf("proxy limit reached for %s", top.UserID)}
		}
		top.Amount = newAmount
		return lotOutcome{
			raised:  top,
			message: fmt.Sprintf("raised %s to %s", top.UserID, newAmount),
		}
	}

	// The top-limit proxy bidder already leads: everyone else is out.
	var demoted []string
	for _, auto := range autos[1:] {
		if auto.IsAuto {
			auto.IsAuto = false
			demoted = append(demoted, auto.UserID)
		}
	}
	if len(demoted) == 0 {
		return lotOutcome{message: "proxy bidder already leading"}
	}
	return lotOutcome{
		demoted: demoted,
		message: fmt.Sprintf("priced out %d proxy bidder(s)", len(demoted)),
	}
}
