package service

import (
	"context"
	"sync"
	"time"

	"bidhub-api/internal/config"
	"bidhub-api/internal/events"
	"bidhub-api/internal/model"
	"bidhub-api/internal/repository"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func testCfg() config.AuctionConfig {
	return config.AuctionConfig{
		PercentAutoBid:    5,
		SnipeWindow:       3 * time.Minute,
		SnipeExtension:    3 * time.Minute,
		ReconcileInterval: time.Minute,
		NoBidExtension:    24 * time.Hour,
		BidHideGrace:      10 * time.Minute,
		DefaultPageLimit:  20,
		MaxPageLimit:      100,
	}
}

// activeLot builds a lot one hour from its deadline, owned by "seller".
func activeLot(id string, owners ...model.Ownership) *model.Lot {
	hasAuto := false
	for _, o := range owners {
		if o.IsAuto {
			hasAuto = true
		}
	}
	return &model.Lot{
		ID:               id,
		OwnerID:          "seller",
		Title:            "test lot " + id,
		Price:            d(100),
		StartDate:        testNow.Add(-time.Hour),
		FinishedTime:     testNow.Add(time.Hour),
		Status:           model.LotStatusActive,
		HasActiveAutoBid: hasAuto,
		TopOwnerships:    owners,
	}
}

// recordingNotifier captures notifications by recipient.
type recordingNotifier struct {
	mu    sync.Mutex
	notes map[string][]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{notes: make(map[string][]string)}
}

func (n *recordingNotifier) Notify(ctx context.Context, userID, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes[userID] = append(n.notes[userID], subject)
}

func (n *recordingNotifier) subjects(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notes[userID]
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	bids   []events.BidEvent
	closes []events.LotClosedEvent
}

func (p *recordingPublisher) PublishBid(ctx context.Context, event events.BidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bids = append(p.bids, event)
	return nil
}

func (p *recordingPublisher) PublishLotClosed(ctx context.Context, event events.LotClosedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes = append(p.closes, event)
	return nil
}

func (p *recordingPublisher) Close() {}

// fakeStarter records scheduler restarts.
type fakeStarter struct {
	mu    sync.Mutex
	count int
}

func (f *fakeStarter) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
}

func (f *fakeStarter) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// conflictingRepo wraps the in-memory store and fails the first n
// conditional writes, exercising the retry path.
type conflictingRepo struct {
	*repository.MemoryLotRepository
	remaining int
}

func (r *conflictingRepo) UpdateIfVersion(ctx context.Context, lot *model.Lot) error {
	if r.remaining > 0 {
		r.remaining--
		return repository.ErrVersionConflict
	}
	return r.MemoryLotRepository.UpdateIfVersion(ctx, lot)
}

func newBidService(repo *repository.MemoryLotRepository) *BidService {
	s := NewBidService(repo, repo, nil, newRecordingNotifier(), events.NoopPublisher{}, testCfg())
	s.now = func() time.Time { return testNow }
	return s
}
