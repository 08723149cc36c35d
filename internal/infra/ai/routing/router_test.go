package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadscout/internal/infra/ai/provider"
)

// =============================================================================
// Mock Provider
// =============================================================================

type scripted struct {
	text string
	err  error
}

type fakeProvider struct {
	mu        sync.Mutex
	name      string
	models    []string
	idx       int
	available bool
	limited   time.Time
	script    []scripted // consumed per call; last entry repeats
	calls     int
}

func newFakeProvider(name string, models ...string) *fakeProvider {
	return &fakeProvider{name: name, models: models, available: true}
}

func (p *fakeProvider) Name() string     { return p.name }
func (p *fakeProvider) Models() []string { return p.models }

func (p *fakeProvider) CurrentModel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.models[p.idx]
}

func (p *fakeProvider) RotateModel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx+1 >= len(p.models) {
		return false
	}
	p.idx++
	return true
}

func (p *fakeProvider) ResetModelRotation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx = 0
}

func (p *fakeProvider) IsAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *fakeProvider) MarkAsLimited(until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limited = until
}

func (p *fakeProvider) Complete(ctx context.Context, messages []provider.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.script) == 0 {
		return "", errors.New("no scripted response")
	}
	s := p.script[0]
	if len(p.script) > 1 {
		p.script = p.script[1:]
	}
	return s.text, s.err
}

func (p *fakeProvider) Close() error { return nil }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// =============================================================================
// Tests
// =============================================================================

func fastConfig() Config {
	return Config{
		RetryDelay:  time.Millisecond,
		HighTraffic: time.Minute,
		Cooldown:    20 * time.Millisecond,
		ResetSleep:  30 * time.Millisecond,
		MaxErrors:   3,
	}
}

func TestComplete_FirstProviderSucceeds(t *testing.T) {
	p1 := newFakeProvider("openai", "gpt-4o-mini")
	p1.script = []scripted{{text: "hello"}}
	p2 := newFakeProvider("groq", "llama-3.3-70b")

	r := NewRouter([]provider.Provider{p1, p2}, fastConfig())

	got, err := r.Complete(context.Background(), []provider.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
	if p2.callCount() != 0 {
		t.Errorf("second provider should not be called")
	}
}

func TestComplete_RateLimitRotatesModelFirst(t *testing.T) {
	// Two models on the first provider: a rate limit on the first
	// model must rotate within the provider before failing over.
	p1 := newFakeProvider("openai", "gpt-4o-mini", "gpt-4o")
	p1.script = []scripted{
		{err: errors.New("rate limit exceeded")},
		{text: "from second model"},
	}
	p2 := newFakeProvider("groq", "llama-3.3-70b")

	r := NewRouter([]provider.Provider{p1, p2}, fastConfig())

	got, err := r.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "from second model" {
		t.Errorf("expected second model response, got %q", got)
	}
	if p1.CurrentModel() != "gpt-4o" {
		t.Errorf("expected rotation to gpt-4o, got %s", p1.CurrentModel())
	}
	if p2.callCount() != 0 {
		t.Errorf("should not have failed over to second provider")
	}
	if p1.limited.IsZero() {
		t.Error("provider should have been marked as limited")
	}
}

func TestComplete_ThreeErrorsFailOver(t *testing.T) {
	boom := errors.New("upstream 500")
	p1 := newFakeProvider("openai", "gpt-4o-mini")
	p1.script = []scripted{{err: boom}, {err: boom}, {err: boom}}
	p2 := newFakeProvider("groq", "llama-3.3-70b")
	p2.script = []scripted{{text: "rescued"}}

	r := NewRouter([]provider.Provider{p1, p2}, fastConfig())

	got, err := r.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "rescued" {
		t.Errorf("expected rescued, got %q", got)
	}
	// Errors 1 and 2 are isolated: retried on the same slot. The
	// third forces the advance.
	if p1.callCount() != 3 {
		t.Errorf("expected 3 calls to first provider, got %d", p1.callCount())
	}
}

func TestComplete_IsolatedErrorRetriesSameSlot(t *testing.T) {
	p1 := newFakeProvider("openai", "gpt-4o-mini")
	p1.script = []scripted{
		{err: errors.New("connection reset")},
		{text: "recovered"},
	}

	r := NewRouter([]provider.Provider{p1}, fastConfig())

	got, err := r.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "recovered" {
		t.Errorf("expected recovered, got %q", got)
	}
	if p1.CurrentModel() != "gpt-4o-mini" {
		t.Errorf("model should not have rotated, got %s", p1.CurrentModel())
	}
}

func TestComplete_SkipsUnavailableProvider(t *testing.T) {
	p1 := newFakeProvider("openai", "gpt-4o-mini")
	p1.available = false
	p2 := newFakeProvider("groq", "llama-3.3-70b")
	p2.script = []scripted{{text: "from groq"}}

	r := NewRouter([]provider.Provider{p1, p2}, fastConfig())

	got, err := r.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "from groq" {
		t.Errorf("expected groq response, got %q", got)
	}
	if p1.callCount() != 0 {
		t.Errorf("unavailable provider must not be called")
	}
}

func TestComplete_ExhaustionConverges(t *testing.T) {
	// Both providers rate limited on first contact. The router must
	// wait through exactly one reset cycle and then succeed once the
	// cooldown has elapsed - never loop forever.
	p1 := newFakeProvider("openai", "gpt-4o-mini")
	p1.script = []scripted{
		{err: errors.New("429 too many requests")},
		{text: "after cooldown"},
	}
	p2 := newFakeProvider("groq", "llama-3.3-70b")
	p2.script = []scripted{{err: errors.New("quota exceeded for today")}}

	cfg := fastConfig()
	r := NewRouter([]provider.Provider{p1, p2}, cfg)

	var sleeps []time.Duration
	var mu sync.Mutex
	r.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		time.Sleep(d)
		return nil
	}

	got, err := r.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "after cooldown" {
		t.Errorf("expected post-cooldown response, got %q", got)
	}

	mu.Lock()
	defer mu.Unlock()
	resetSleeps := 0
	for _, d := range sleeps {
		if d == cfg.ResetSleep {
			resetSleeps++
		}
	}
	if resetSleeps != 1 {
		t.Errorf("expected exactly one reset sleep, got %d", resetSleeps)
	}
}

func TestComplete_AllDownReturnsExhausted(t *testing.T) {
	// Cooldown far longer than the reset sleep: the second pass still
	// finds every slot limited and the call must fail, not spin.
	p1 := newFakeProvider("openai", "gpt-4o-mini")
	p1.script = []scripted{{err: errors.New("rate limit exceeded")}}

	cfg := fastConfig()
	cfg.Cooldown = time.Hour
	cfg.ResetSleep = time.Millisecond
	r := NewRouter([]provider.Provider{p1}, cfg)
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := r.Complete(context.Background(), nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestComplete_ContextCancelledDuringWait(t *testing.T) {
	p1 := newFakeProvider("openai", "gpt-4o-mini")
	p1.script = []scripted{{err: errors.New("connection reset")}}

	cfg := fastConfig()
	cfg.RetryDelay = time.Minute
	r := NewRouter([]provider.Provider{p1}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Complete(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	p1 := newFakeProvider("openai", "gpt-4o-mini", "gpt-4o")
	p2 := newFakeProvider("groq", "llama-3.3-70b")
	r := NewRouter([]provider.Provider{p1, p2}, fastConfig())

	current, slots := r.Snapshot()
	if current != "openai/gpt-4o-mini" {
		t.Errorf("unexpected current slot: %s", current)
	}
	if len(slots) != 3 {
		t.Errorf("expected 3 slots, got %d", len(slots))
	}
}
