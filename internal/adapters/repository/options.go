package repository

import "time"

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithProvider labels published metrics with the owning provider.
func WithProvider(name string) Option {
	return func(s *MemStore) {
		if name != "" {
			s.provider = name
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
