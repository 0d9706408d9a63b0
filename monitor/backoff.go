package monitor

import "time"

// BackoffConfig shapes the poll slowdown after consecutive failures.
type BackoffConfig struct {
	// Grace is how many consecutive failures keep the base interval before
	// the delay starts growing. The first few misses are usually a backend
	// restart, not an outage.
	Grace      int
	Multiplier float64
	MaxDelay   time.Duration
}

// nextDelay returns the poll delay after failCount consecutive failures
// (0 = healthy) given the base interval.
func nextDelay(cfg BackoffConfig, base time.Duration, failCount int) time.Duration {
	if failCount <= cfg.Grace {
		return base
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(base)
	for i := cfg.Grace; i < failCount; i++ {
		delay *= cfg.Multiplier
		if cfg.MaxDelay > 0 && delay >= float64(cfg.MaxDelay) {
			return cfg.MaxDelay
		}
	}
	return time.Duration(delay)
}
