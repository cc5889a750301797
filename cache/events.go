package cache

import "github.com/prostomarkeloff/emergent/observability"

const (
	EventGetStart     observability.EventType = "cache.get.start"
	EventGetHit       observability.EventType = "cache.get.hit"
	EventGetMiss      observability.EventType = "cache.get.miss"
	EventGetFetch     observability.EventType = "cache.get.fetch"
	EventGetComplete  observability.EventType = "cache.get.complete"
	EventRefill       observability.EventType = "cache.refill"
	EventRefillError  observability.EventType = "cache.refill.error"
	EventInvalidate   observability.EventType = "cache.invalidate"
	EventTierWriteErr observability.EventType = "cache.tier.write_error"
)
