package cache

// Config controls ambient concerns of an Executor: which Observer to emit
// events through. Tier-specific knobs (LRU size, TTL) are constructor
// arguments to the individual Tier implementations, not part of this
// struct, since they vary per implementation.
type Config struct {
	Observer string `json:"observer,omitempty"`
}

// DefaultConfig returns a Config using the "noop" observer.
func DefaultConfig() Config {
	return Config{Observer: "noop"}
}

// Merge overlays non-zero fields from source onto c.
func (c *Config) Merge(source Config) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}
