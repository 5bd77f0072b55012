package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bidhub-api/internal/events"
	"bidhub-api/internal/model"
	"bidhub-api/internal/repository"

	"github.com/peterldowns/testy/check"
)

func newLotService(repo *repository.MemoryLotRepository) *LotService {
	s := NewLotService(repo, testCfg(), 0)
	s.now = func() time.Time { return testNow }

	closer := NewCloseService(repo, repo, newRecordingNotifier(), events.NoopPublisher{}, testCfg())
	closer.now = func() time.Time { return testNow }
	s.SetCloser(closer)
	return s
}

func TestCreateLot(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	svc := newLotService(repo)

	lot, err := svc.CreateLot(ctx, "seller", CreateLotInput{
		Title:        "vintage radio",
		Price:        d(100),
		FinishedTime: testNow.Add(48 * time.Hour),
	})
	check.NoError(t, err)
	check.Equal(t, model.LotStatusInitial, lot.Status)
	check.Equal(t, "seller", lot.OwnerID)
	check.Equal(t, 0, len(lot.TopOwnerships))
	check.Equal(t, int64(1), lot.Version)
	// Start date defaults to creation time.
	check.Equal(t, testNow, lot.StartDate)
}

func TestGetLotNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newLotService(repository.NewMemoryLotRepository())

	_, err := svc.GetLot(ctx, "missing")
	check.True(t, err == ErrLotNotFound)
}

func TestGetLotFinalizesExpiredLot(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	lot := activeLot("lot-1", model.Ownership{UserID: "alice", Amount: d(200)})
	lot.FinishedTime = testNow.Add(-time.Minute)
	check.NoError(t, repo.Insert(ctx, lot))
	svc := newLotService(repo)

	got, err := svc.GetLot(ctx, "lot-1")
	check.NoError(t, err)
	check.Equal(t, model.LotStatusEnded, got.Status)
}

func TestListLotsFinalizesExpiredLotsInPage(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()

	expired := activeLot("expired", model.Ownership{UserID: "alice", Amount: d(200)})
	expired.FinishedTime = testNow.Add(-time.Minute)
	check.NoError(t, repo.Insert(ctx, expired))
	check.NoError(t, repo.Insert(ctx, activeLot("live", model.Ownership{UserID: "bob", Amount: d(100)})))

	svc := newLotService(repo)

	lots, total, err := svc.ListLots(ctx, repository.LotFilter{})
	check.NoError(t, err)
	check.Equal(t, int64(2), total)

	byID := map[string]model.Lot{}
	for _, l := range lots {
		byID[l.ID] = l
	}
	check.Equal(t, model.LotStatusEnded, byID["expired"].Status)
	check.Equal(t, model.LotStatusActive, byID["live"].Status)
}

// failingReadRepo fails FindByID for one id, leaving every other call to
// the underlying store.
type failingReadRepo struct {
	*repository.MemoryLotRepository
	failID string
}

func (r *failingReadRepo) FindByID(ctx context.Context, id string) (*model.Lot, error) {
	if id == r.failID {
		return nil, errors.New("store offline")
	}
	return r.MemoryLotRepository.FindByID(ctx, id)
}

func TestListLotsKeepsSnapshotWhenReReadFails(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryLotRepository()
	lot := activeLot("lot-1", model.Ownership{UserID: "alice", Amount: d(200)})
	lot.FinishedTime = testNow.Add(-time.Minute)
	check.NoError(t, mem.Insert(ctx, lot))

	svc := NewLotService(&failingReadRepo{MemoryLotRepository: mem, failID: "lot-1"}, testCfg(), 0)
	svc.now = func() time.Time { return testNow }
	closer := NewCloseService(mem, mem, newRecordingNotifier(), events.NoopPublisher{}, testCfg())
	closer.now = func() time.Time { return testNow }
	svc.SetCloser(closer)

	lots, total, err := svc.ListLots(ctx, repository.LotFilter{})
	check.NoError(t, err)
	check.Equal(t, int64(1), total)
	check.Equal(t, 1, len(lots))
	// The close landed but the refresh failed; the page keeps the stale
	// snapshot rather than erroring out.
	check.Equal(t, model.LotStatusActive, lots[0].Status)

	stored, err := mem.FindByID(ctx, "lot-1")
	check.NoError(t, err)
	check.Equal(t, model.LotStatusEnded, stored.Status)
}

func TestEndLotDelegatesToCloser(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLotRepository()
	lot := activeLot("lot-1", model.Ownership{UserID: "alice", Amount: d(200)})
	lot.FinishedTime = testNow.Add(-time.Minute)
	check.NoError(t, repo.Insert(ctx, lot))
	svc := newLotService(repo)

	check.NoError(t, svc.EndLot(ctx, "lot-1"))

	stored, err := repo.FindByID(ctx, "lot-1")
	check.NoError(t, err)
	check.Equal(t, model.LotStatusEnded, stored.Status)
}
