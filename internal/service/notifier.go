package service

import (
	"context"
	"log"
)

// Notifier delivers user-facing notifications (email downstream). Delivery
// is fire-and-forget: callers ignore failures.
type Notifier interface {
	Notify(ctx context.Context, userID, subject, body string)
}

// LogNotifier writes notifications to the process log. Stands in for the
// mail sender in development and tests.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, userID, subject, body string) {
	log.Printf("[Notifier] to=%s subject=%q body=%q", userID, subject, body)
}
