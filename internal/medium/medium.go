// Package medium abstracts the key-value persistence medium backing the
// studio's client-side stores. Values are strings, writes are quota-limited,
// and a missing or unreadable key is reported as absence rather than an
// error so callers can treat bad state as an empty store.
package medium

import "errors"

// Storage errors.
var (
	// ErrQuotaExceeded is returned by Set when the write would push the
	// medium past its configured capacity.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrUnavailable is returned when the underlying medium cannot be
	// reached at all.
	ErrUnavailable = errors.New("storage unavailable")
)

// Medium is a string key-value store with quota-limited writes.
type Medium interface {
	// Get returns the value for key and whether it exists. Read failures
	// are reported as absence.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any previous value. It returns
	// ErrQuotaExceeded when the write would exceed the configured capacity.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(key string)
}
