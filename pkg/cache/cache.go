package cache

import "time"

// Cache is a TTL cache used for venue state and webhook dedup.
type Cache interface {
	// Get returns (value, true) if present and unexpired.
	Get(key string) (interface{}, bool)

	// Set stores a value with a TTL. Admission is best-effort: false means the value was dropped.
	Set(key string, value interface{}, ttl time.Duration) bool

	Delete(key string)

	Clear()

	Close()
}
