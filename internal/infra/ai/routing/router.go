// Package routing handles AI provider selection, rotation, and
// failover logic.
//
// This package contains:
//   - Router: priority-ordered provider selection with model-first
//     rotation and rate-limit cooldowns
//   - rate-limit signature detection shared with the classifiers
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leadscout/internal/infra/ai/provider"
	"leadscout/internal/metrics"
)

// attemptsPerProvider bounds the total attempt budget to
// providers × 5 per completion request.
const attemptsPerProvider = 5

// maxResetCycles bounds how many full exhaustion resets a single
// request waits through before giving up.
const maxResetCycles = 1

// Config defines router failover behavior.
type Config struct {
	// RetryDelay is the fixed wait before retrying the same
	// provider/model after an isolated non-rate-limit error.
	RetryDelay time.Duration

	// HighTraffic is the continuous-error window after which a slot
	// is abandoned even below the error-count threshold.
	HighTraffic time.Duration

	// Cooldown is how long a rate-limited provider/model is skipped
	// before re-entering rotation.
	Cooldown time.Duration

	// ResetSleep is the pause after full exhaustion before rotation
	// state is reset and the request resumes.
	ResetSleep time.Duration

	// MaxErrors is the error count that forces an advance.
	MaxErrors int
}

// DefaultConfig preserves the thresholds the failover heuristic was
// tuned with: 3 errors, 60s high-traffic window, 60s cooldown and
// exhaustion backoff, 2s same-slot retry delay.
func DefaultConfig() Config {
	return Config{
		RetryDelay:  2 * time.Second,
		HighTraffic: 60 * time.Second,
		Cooldown:    60 * time.Second,
		ResetSleep:  60 * time.Second,
		MaxErrors:   3,
	}
}

// slotState is the runtime state of one provider+model pair. Created
// lazily on first use; reset when a cooldown elapses or after a
// success. All mutation happens under the router mutex so there is a
// single logical writer per key.
type slotState struct {
	errorCount           int
	lastErrorAt          time.Time
	firstErrorInWindowAt time.Time
	rateLimitedUntil     time.Time
}

// Router selects a provider+model for each completion request, tracks
// rate-limit and error state per slot, fails over in priority order
// (next model within the same provider first, then the next provider),
// and recovers slots whose cooldown has elapsed.
type Router struct {
	mu        sync.Mutex
	providers []provider.Provider // priority order
	current   int
	state     map[string]*slotState

	cfg Config
	log *slog.Logger

	// sleep is injectable so tests can fast-forward waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRouter creates a router over the given providers in priority
// order.
func NewRouter(providers []provider.Provider, cfg Config) *Router {
	if cfg.MaxErrors == 0 {
		cfg = DefaultConfig()
	}
	return &Router{
		providers: providers,
		state:     make(map[string]*slotState),
		cfg:       cfg,
		log:       slog.Default(),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func slotKey(p provider.Provider) string {
	return p.Name() + "/" + p.CurrentModel()
}

// Complete routes one completion request, transparently trying
// providers and models until one succeeds or the attempt budget
// across all providers is exhausted.
func (r *Router) Complete(ctx context.Context, messages []provider.Message) (string, error) {
	if len(r.providers) == 0 {
		return "", fmt.Errorf("no AI providers registered")
	}

	budget := len(r.providers) * attemptsPerProvider
	attempts := 0
	resets := 0
	var lastErr error

	for {
		p, ok := r.nextAvailable()
		if !ok {
			// Every slot is cooling down or locally unavailable.
			if resets >= maxResetCycles {
				return "", r.exhausted(lastErr)
			}
			resets++
			r.log.Warn("All AI providers cooling down, pausing before reset",
				"sleep", r.cfg.ResetSleep)
			if err := r.sleep(ctx, r.cfg.ResetSleep); err != nil {
				return "", err
			}
			r.reset()
			continue
		}

		key := slotKey(p)
		attempts++

		text, err := p.Complete(ctx, messages)
		if err == nil {
			r.recordSuccess(key)
			metrics.AICallsTotal.WithLabelValues(p.Name(), p.CurrentModel(), "success").Inc()
			return text, nil
		}
		lastErr = err
		metrics.AICallsTotal.WithLabelValues(p.Name(), p.CurrentModel(), "error").Inc()

		advance := r.recordFailure(p, key, err)

		if attempts >= budget {
			if resets >= maxResetCycles {
				return "", r.exhausted(lastErr)
			}
			resets++
			attempts = 0
			r.log.Warn("AI attempt budget exhausted, pausing before reset",
				"budget", budget, "sleep", r.cfg.ResetSleep)
			if err := r.sleep(ctx, r.cfg.ResetSleep); err != nil {
				return "", err
			}
			r.reset()
			continue
		}

		if advance {
			r.Rotate()
			continue
		}

		// Isolated non-rate-limit error: retry the same slot after a
		// fixed delay.
		r.log.Debug("Retrying same provider after isolated error",
			"provider", p.Name(), "model", p.CurrentModel(), "error", err)
		if err := r.sleep(ctx, r.cfg.RetryDelay); err != nil {
			return "", err
		}
	}
}

func (r *Router) exhausted(lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%w: last error: %v", ErrExhausted, lastErr)
	}
	return ErrExhausted
}

// nextAvailable resolves the current provider, skipping providers that
// are unregistered or locally unavailable and slots inside a rate-limit
// window. Slots whose cooldown elapsed are cleared so they re-enter
// rotation.
func (r *Router) nextAvailable() (provider.Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	totalSlots := 0
	for _, p := range r.providers {
		n := len(p.Models())
		if n == 0 {
			n = 1
		}
		totalSlots += n
	}

	for i := 0; i < totalSlots; i++ {
		p := r.providers[r.current]

		if !p.IsAvailable() {
			r.advanceProviderLocked(p)
			continue
		}

		st := r.slotLocked(slotKey(p))
		if !st.rateLimitedUntil.IsZero() {
			if time.Now().After(st.rateLimitedUntil) {
				// Cooldown elapsed: the slot re-enters rotation.
				st.rateLimitedUntil = time.Time{}
				st.errorCount = 0
				st.firstErrorInWindowAt = time.Time{}
			} else {
				r.advanceLocked(p)
				continue
			}
		}

		return p, true
	}

	return nil, false
}

func (r *Router) slotLocked(key string) *slotState {
	st, ok := r.state[key]
	if !ok {
		st = &slotState{}
		r.state[key] = st
	}
	return st
}

// advanceLocked moves to the next model within the same provider when
// one remains, otherwise to the next provider in priority order.
func (r *Router) advanceLocked(p provider.Provider) {
	if p.RotateModel() {
		return
	}
	r.advanceProviderLocked(p)
}

func (r *Router) advanceProviderLocked(p provider.Provider) {
	p.ResetModelRotation()
	r.current = (r.current + 1) % len(r.providers)
}

// Rotate forces an advance past the current provider/model. Exposed
// for operational force-switching; also used internally on failover.
func (r *Router) Rotate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.providers[r.current]
	from := p.Name() + "/" + p.CurrentModel()
	r.advanceLocked(p)
	to := r.providers[r.current]
	metrics.ProviderRotations.WithLabelValues(p.Name()).Inc()
	r.log.Info("Rotated AI provider",
		"from", from, "to", to.Name()+"/"+to.CurrentModel())
}

// reset clears all model rotations and returns to the first provider.
// Rate-limit windows are kept: a slot re-enters rotation only once its
// cooldown elapses.
func (r *Router) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.providers {
		p.ResetModelRotation()
	}
	for _, st := range r.state {
		st.errorCount = 0
		st.firstErrorInWindowAt = time.Time{}
	}
	r.current = 0
}

// recordSuccess zeroes the slot's error state after a qualifying
// success.
func (r *Router) recordSuccess(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.slotLocked(key)
	st.errorCount = 0
	st.firstErrorInWindowAt = time.Time{}
	st.rateLimitedUntil = time.Time{}
}

// recordFailure updates the slot's error state and reports whether the
// router should advance: on a rate-limit error, after MaxErrors
// consecutive errors, or when the slot has been erroring continuously
// for longer than the high-traffic window.
func (r *Router) recordFailure(p provider.Provider, key string, err error) bool {
	r.mu.Lock()
	st := r.slotLocked(key)

	now := time.Now()
	if st.errorCount == 0 || st.firstErrorInWindowAt.IsZero() {
		st.firstErrorInWindowAt = now
	}
	st.errorCount++
	st.lastErrorAt = now

	if IsRateLimit(err) {
		until := now.Add(r.cfg.Cooldown)
		st.rateLimitedUntil = until
		r.mu.Unlock()

		p.MarkAsLimited(until)
		r.log.Warn("AI provider rate limited",
			"provider", p.Name(), "model", p.CurrentModel(), "until", until)
		return true
	}

	continuous := now.Sub(st.firstErrorInWindowAt)
	errorCount := st.errorCount
	advance := errorCount >= r.cfg.MaxErrors || continuous > r.cfg.HighTraffic
	r.mu.Unlock()

	if advance {
		r.log.Warn("AI provider erroring, failing over",
			"provider", p.Name(), "model", p.CurrentModel(),
			"errors", errorCount, "error", err)
	}
	return advance
}

// SlotSnapshot is the externally visible state of one provider+model
// pair, for health reporting.
type SlotSnapshot struct {
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	ErrorCount       int       `json:"error_count"`
	RateLimitedUntil time.Time `json:"rate_limited_until,omitempty"`
}

// Snapshot returns the state of all known slots plus the currently
// selected provider/model.
func (r *Router) Snapshot() (current string, slots []SlotSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.providers[r.current]
	current = p.Name() + "/" + p.CurrentModel()

	for _, prov := range r.providers {
		for _, model := range prov.Models() {
			key := prov.Name() + "/" + model
			snap := SlotSnapshot{Provider: prov.Name(), Model: model}
			if st, ok := r.state[key]; ok {
				snap.ErrorCount = st.errorCount
				if time.Now().Before(st.rateLimitedUntil) {
					snap.RateLimitedUntil = st.rateLimitedUntil
				}
			}
			slots = append(slots, snap)
		}
	}
	return current, slots
}
