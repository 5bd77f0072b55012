package service

import (
	"context"
	"log"
	"sync"
	"time"
)

// sweepTimeout bounds one reconcile sweep.
const sweepTimeout = time.Minute

// Reconciler is the sweep invoked by the scheduler.
type Reconciler interface {
	Reconcile(ctx context.Context) string
}

// ReconcileScheduler runs the proxy-bid sweep on a fixed interval. It halts
// itself when the sweep reports SignalStop and is restarted by the bid
// service whenever new bidding activity arrives; Start is idempotent.
type ReconcileScheduler struct {
	reconciler Reconciler
	interval   time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewReconcileScheduler creates a scheduler. A zero interval defaults to
// one minute.
func NewReconcileScheduler(reconciler Reconciler, interval time.Duration) *ReconcileScheduler {
	if interval == 0 {
		interval = time.Minute
	}
	return &ReconcileScheduler{
		reconciler: reconciler,
		interval:   interval,
	}
}

// Start begins the sweep loop. Calling Start while running is a no-op.
func (s *ReconcileScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	log.Printf("[ReconcileScheduler] Started - interval: %v", s.interval)
	go s.run(stopCh)
}

// run is the sweep loop. stopCh is captured at Start so a later restart
// never races with this loop's shutdown.
func (s *ReconcileScheduler) run(stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.sweep() == SignalStop {
				s.Stop()
				log.Printf("[ReconcileScheduler] No eligible lots, halting")
				return
			}
		case <-stopCh:
			log.Printf("[ReconcileScheduler] Stopped")
			return
		}
	}
}

func (s *ReconcileScheduler) sweep() string {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	msg := s.reconciler.Reconcile(ctx)
	if msg != SignalStop {
		log.Printf("[ReconcileScheduler] Sweep done: %s", msg)
	}
	return msg
}

// Stop halts the sweep loop. Safe to call when not running.
func (s *ReconcileScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// IsRunning reports whether the sweep loop is active.
func (s *ReconcileScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow triggers one sweep immediately, outside the loop.
func (s *ReconcileScheduler) RunNow(ctx context.Context) string {
	return s.reconciler.Reconcile(ctx)
}
