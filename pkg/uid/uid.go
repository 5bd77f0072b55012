// Package uid generates the identifiers used for lots, orders, events,
// and request tracing.
package uid

import "github.com/google/uuid"

// New returns a fresh random identifier in UUID string form.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether id parses as a UUID. Handlers use this to
// reject malformed path parameters before hitting the store.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
