package service

import (
	"context"
	"testing"
	"time"

	"bidhub-api/internal/events"
	"bidhub-api/internal/model"
	"bidhub-api/internal/repository"

	"github.com/peterldowns/testy/check"
)

func newReconcileService(repo *repository.MemoryLotRepository) *ReconcileService {
	s := NewReconcileService(repo, events.NoopPublisher{}, testCfg())
	s.now = func() time.Time { return testNow }
	return s
}

func TestReconcileNoEligibleLotsSignalsStop(t *testing.T) {
	ctx := context.Background()
	svc := newReconcileService(repository.NewMemoryLotRepository())

	check.Equal(t, SignalStop, svc.Reconcile(ctx))
}

func TestReconcileSingleProxyOutbidsLeader(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	check.NoError(t, repo.Insert(ctx, activeLot("lot-1",
		model.Ownership{UserID: "bob", Amount: d(120)},
		model.Ownership{UserID: "alice", IsAuto: true, LimitBid: d(200)},
	)))
	svc := newReconcileService(repo)

	msg := svc.Reconcile(ctx)
	check.NotEqual(t, SignalStop, msg)

	stored, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)
	alice := stored.Ownership("alice")
	// 120 * 1.05 = 126
	check.True(t, alice.Amount.Equal(d(126)))
	check.Equal(t, "alice", stored.HighestOwnership().UserID)
	check.Equal(t, int64(2), stored.Version)
}

func TestReconcileRoundsHalfUp(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	check.NoError(t, repo.Insert(ctx, activeLot("lot-1",
		model.Ownership{UserID: "bob", Amount: d(110)},
		model.Ownership{UserID: "alice", IsAuto: true, LimitBid: d(200)},
	)))
	svc := newReconcileService(repo)

	svc.Reconcile(ctx)

	stored, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)
	// 110 * 1.05 = 115.5, rounds up to 116
	check.True(t, stored.Ownership("alice").Amount.Equal(d(116)))
}

func TestReconcileRespectsProxyLimit(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	check.NoError(t, repo.Insert(ctx, activeLot("lot-1",
		model.Ownership{UserID: "bob", Amount: d(195)},
		model.Ownership{UserID: "alice", IsAuto: true, LimitBid: d(200)},
	)))
	svc := newReconcileService(repo)

	svc.Reconcile(ctx)

	stored, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)
	// 195 * 1.05 = 204.75, rounds to 205, over the 200 limit: no raise.
	check.True(t, stored.Ownership("alice").Amount.IsZero())
	check.Equal(t, "bob", stored.HighestOwnership().UserID)
	// Nothing changed so nothing was written.
	check.Equal(t, int64(1), stored.Version)
}

func TestReconcileLeadingProxyUntouched(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	check.NoError(t, repo.Insert(ctx, activeLot("lot-1",
		model.Ownership{UserID: "alice", Amount: d(126), IsAuto: true, LimitBid: d(200)},
		model.Ownership{UserID: "bob", Amount: d(120)},
	)))
	svc := newReconcileService(repo)

	svc.Reconcile(ctx)

	stored, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)
	check.True(t, stored.Ownership("alice").Amount.Equal(d(126)))
	check.Equal(t, int64(1), stored.Version)
}

func TestReconcileTwoProxiesOutbidsRunnerUpCeiling(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	check.NoError(t, repo.Insert(ctx, activeLot("lot-1",
		model.Ownership{UserID: "bob", Amount: d(100)},
		model.Ownership{UserID: "alice", IsAuto: true, LimitBid: d(500)},
		model.Ownership{UserID: "carol", IsAuto: true, LimitBid: d(300)},
	)))
	svc := newReconcileService(repo)

	svc.Reconcile(ctx)

	stored, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)
	// The top-limit bidder prices over the runner-up's ceiling:
	// max(100, 300) * 1.05 = 315.
	check.True(t, stored.Ownership("alice").Amount.Equal(d(315)))
	check.Equal(t, "alice", stored.HighestOwnership().UserID)
}

func TestReconcilePricesOutTrailingProxies(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	check.NoError(t, repo.Insert(ctx, activeLot("lot-1",
		model.Ownership{UserID: "alice", Amount: d(315), IsAuto: true, LimitBid: d(500)},
		model.Ownership{UserID: "carol", Amount: d(100), IsAuto: true, LimitBid: d(300)},
		model.Ownership{UserID: "dave", Amount: d(90), IsAuto: true, LimitBid: d(250)},
	)))
	svc := newReconcileService(repo)

	svc.Reconcile(ctx)

	stored, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)
	check.True(t, stored.Ownership("alice").IsAuto)
	check.False(t, stored.Ownership("carol").IsAuto)
	check.False(t, stored.Ownership("dave").IsAuto)
	// Standing amounts survive the demotion.
	check.True(t, stored.Ownership("carol").Amount.Equal(d(100)))
}

func TestReconcileConvergesToFixedPoint(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	check.NoError(t, repo.Insert(ctx, activeLot("lot-1",
		model.Ownership{UserID: "bob", Amount: d(120)},
		model.Ownership{UserID: "alice", IsAuto: true, LimitBid: d(200)},
	)))
	svc := newReconcileService(repo)

	svc.Reconcile(ctx)
	first, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)

	// A second sweep with no new bids must not move anything.
	svc.Reconcile(ctx)
	second, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)

	check.Equal(t, first.Version, second.Version)
	check.True(t, first.Ownership("alice").Amount.Equal(second.Ownership("alice").Amount))
}

func TestReconcileClosesExpiredLots(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	lot := activeLot("lot-1",
		model.Ownership{UserID: "bob", Amount: d(120)},
		model.Ownership{UserID: "alice", Amount: d(126), IsAuto: true, LimitBid: d(200)},
	)
	lot.FinishedTime = testNow.Add(-time.Minute)
	check.NoError(t, repo.Insert(ctx, lot))

	closer := NewCloseService(repo, repo, newRecordingNotifier(), events.NoopPublisher{}, testCfg())
	closer.now = func() time.Time { return testNow }

	svc := newReconcileService(repo)
	svc.SetCloser(closer)

	svc.Reconcile(ctx)

	stored, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)
	check.Equal(t, model.LotStatusEnded, stored.Status)
}

func TestReconcilePublishesRaise(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	check.NoError(t, repo.Insert(ctx, activeLot("lot-1",
		model.Ownership{UserID: "bob", Amount: d(120)},
		model.Ownership{UserID: "alice", IsAuto: true, LimitBid: d(200)},
	)))

	pub := &recordingPublisher{}
	svc := NewReconcileService(repo, pub, testCfg())
	svc.now = func() time.Time { return testNow }

	svc.Reconcile(ctx)

	check.Equal(t, 1, len(pub.bids))
	check.Equal(t, "alice", pub.bids[0].UserID)
	check.Equal(t, "126", pub.bids[0].Amount)
	check.True(t, pub.bids[0].IsAuto)
}
