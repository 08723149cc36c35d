package provider

import (
	"strings"
	"sync"
	"time"
)

// Status represents the health state of a provider.
type Status int

const (
	StatusHealthy  Status = iota // Provider is working normally
	StatusDegraded               // Provider is erroring but usable
	StatusLimited                // Provider is rate limiting
)

// Monitor tracks provider health and rate limiting.
type Monitor struct {
	mu sync.RWMutex

	// Response time tracking
	recentLatencies  []time.Duration
	maxLatencyWindow int

	// Error tracking
	throttleCount    int
	throttlePatterns []string
	limitedUntil     time.Time

	successCount int
	failureCount int
	lastSuccess  time.Time
	lastFailure  time.Time

	degradedThreshold float64
}

// NewMonitor creates a new monitor with default settings.
func NewMonitor() *Monitor {
	return &Monitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit",
			"quota exceeded",
			"too many requests",
			"tokens per minute",
			"requests per minute",
		},
		degradedThreshold: 0.5, // 50% error rate
	}
}

// RecordSuccess records a successful completion with its latency.
func (m *Monitor) RecordSuccess(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.successCount++
	m.lastSuccess = time.Now()

	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}
}

// RecordFailure records a failed completion.
func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failureCount++
	m.lastFailure = time.Now()
}

// RecordThrottle records a rate-limit response and the window during
// which the provider should be skipped.
func (m *Monitor) RecordThrottle(until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.throttleCount++
	if until.After(m.limitedUntil) {
		m.limitedUntil = until
	}
}

// DetectThrottlePattern checks if a message contains rate-limit
// signatures (case-insensitive substring match).
func (m *Monitor) DetectThrottlePattern(message string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowerMsg := strings.ToLower(message)
	for _, pattern := range m.throttlePatterns {
		if strings.Contains(lowerMsg, pattern) {
			return true
		}
	}
	return false
}

// CheckStatus returns the current status of the provider. A limited
// provider whose window has elapsed re-enters rotation as healthy.
func (m *Monitor) CheckStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if time.Now().Before(m.limitedUntil) {
		return StatusLimited
	}

	total := m.successCount + m.failureCount
	if total > 10 {
		rate := float64(m.failureCount) / float64(total)
		if rate > m.degradedThreshold {
			return StatusDegraded
		}
	}

	return StatusHealthy
}

// LimitedUntil returns the end of the current rate-limit window, or
// the zero time when no window is active.
func (m *Monitor) LimitedUntil() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if time.Now().Before(m.limitedUntil) {
		return m.limitedUntil
	}
	return time.Time{}
}

// AverageLatency returns the average latency of recent completions.
func (m *Monitor) AverageLatency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.recentLatencies) == 0 {
		return 0
	}

	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

// Health returns a snapshot of the provider's health metrics.
func (m *Monitor) Health() HealthStatus {
	avg := m.AverageLatency()

	m.mu.RLock()
	defer m.mu.RUnlock()

	h := HealthStatus{
		Available:     !time.Now().Before(m.limitedUntil),
		Latency:       avg,
		LastSuccessAt: m.lastSuccess,
		LastFailureAt: m.lastFailure,
	}
	if total := m.successCount + m.failureCount; total > 0 {
		h.ErrorRate = float64(m.failureCount) / float64(total)
	}
	return h
}
