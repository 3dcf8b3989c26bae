package cache

import "time"

// Cache holds short-lived exchange metadata such as symbol filters and
// ticker prices. Keys are "<kind>:<symbol>".
type Cache interface {
	// Get returns (value, true) on a hit.
	Get(key string) (interface{}, bool)

	// Set stores value for ttl. It reports whether the value was admitted.
	Set(key string, value interface{}, ttl time.Duration) bool

	Delete(key string)

	Close()
}
