package probe

import (
	"slices"
	"time"
)

// Config holds the probe parameters.
type Config struct {
	BaseURL  string        // gateway base URL, http or https
	Provider string        // provider to subscribe against
	Games    []string      // game ids to subscribe to
	Duration time.Duration // how long to collect updates
	Timeout  time.Duration // HTTP request and ack timeout
	Verbose  bool          // log every received frame
}

// Report is the outcome of one probe run.
type Report struct {
	Provider string
	Direct   bool
	Health   string

	Acked    []string
	Rejected map[string]string
	Updates  int
	PerGame  map[string]int

	// Violations lists game ids delivered to us without a subscription.
	Violations   []string
	Unsubscribed int

	Started  time.Time
	Duration time.Duration
}

func newReport(cfg *Config) *Report {
	return &Report{
		Provider: cfg.Provider,
		Rejected: make(map[string]string),
		PerGame:  make(map[string]int),
		Started:  time.Now(),
	}
}

func (r *Report) violation(gameID string) {
	if !slices.Contains(r.Violations, gameID) {
		r.Violations = append(r.Violations, gameID)
	}
}
