package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

// scriptedReconciler returns canned sweep results in order, then repeats
// the last one.
type scriptedReconciler struct {
	mu      sync.Mutex
	results []string
	calls   int
}

func (r *scriptedReconciler) Reconcile(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++
	if i >= len(r.results) {
		i = len(r.results) - 1
	}
	return r.results[i]
}

func (r *scriptedReconciler) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSchedulerStartStop(t *testing.T) {
	rec := &scriptedReconciler{results: []string{"lot x: raised"}}
	s := NewReconcileScheduler(rec, 5*time.Millisecond)

	check.False(t, s.IsRunning())
	s.Start()
	check.True(t, s.IsRunning())

	waitFor(t, func() bool { return rec.callCount() >= 2 })

	s.Stop()
	check.False(t, s.IsRunning())

	// Stop again is safe.
	s.Stop()
	check.False(t, s.IsRunning())
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	rec := &scriptedReconciler{results: []string{"lot x: raised"}}
	s := NewReconcileScheduler(rec, time.Hour)
	defer s.Stop()

	s.Start()
	s.Start()
	s.Start()
	check.True(t, s.IsRunning())
}

func TestSchedulerHaltsOnStopSignal(t *testing.T) {
	rec := &scriptedReconciler{results: []string{SignalStop}}
	s := NewReconcileScheduler(rec, 5*time.Millisecond)

	s.Start()
	waitFor(t, func() bool { return !s.IsRunning() })
	check.Equal(t, 1, rec.callCount())
}

func TestSchedulerRestartsAfterHalt(t *testing.T) {
	rec := &scriptedReconciler{results: []string{SignalStop}}
	s := NewReconcileScheduler(rec, 5*time.Millisecond)

	s.Start()
	waitFor(t, func() bool { return !s.IsRunning() })

	// New bidding activity wakes the loop back up.
	s.Start()
	check.True(t, s.IsRunning())
	waitFor(t, func() bool { return rec.callCount() >= 2 })
	s.Stop()
}

func TestSchedulerRunNow(t *testing.T) {
	rec := &scriptedReconciler{results: []string{"lot x: raised"}}
	s := NewReconcileScheduler(rec, time.Hour)

	msg := s.RunNow(context.Background())
	check.Equal(t, "lot x: raised", msg)
	check.Equal(t, 1, rec.callCount())
	check.False(t, s.IsRunning())
}
