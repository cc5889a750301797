package saga

// Config controls the ambient concerns of Run: which Observer to emit
// events through.
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
