package cache

import "time"

// Cache is the interface shared by the memory and Redis backends. It holds
// cheap-to-recompute read models (the last parsed parameter table, firmware
// release lookups), never authoritative state.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	SetWithTTL(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	Clear()
}
