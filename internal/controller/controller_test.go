package controller

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/chakramx/chakram/internal/config"
	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/motion"
)

type point struct {
	x, y float64
	ok   bool
}

type scriptedSource struct {
	points  []point
	next    int
	buttons input.Buttons
}

func (s *scriptedSource) Sample() (float64, float64, bool) {
	if len(s.points) == 0 {
		return 0, 0, false
	}
	p := s.points[min(s.next, len(s.points)-1)]
	s.next++
	return p.x, p.y, p.ok
}

func (s *scriptedSource) Buttons() input.Buttons { return s.buttons }

func (s *scriptedSource) push(x, y float64) {
	s.points = append(s.points, point{x: x, y: y, ok: true})
}

type panicSource struct{}

func (panicSource) Sample() (float64, float64, bool) { panic("device gone") }

type recordingSink struct {
	mu  sync.Mutex
	log []string
}

func (r *recordingSink) Press(a input.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "PRESS "+a.String())
	return nil
}

func (r *recordingSink) Release(a input.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "RELEASE "+a.String())
	return nil
}

func (r *recordingSink) entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.log)
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = nil
}

type heldKey struct{ held bool }

func (k *heldKey) ModifierHeld() bool { return k.held }

type fakeTracer struct {
	samples []motion.Sample
	actions []string
}

func (f *fakeTracer) RecordSample(s motion.Sample) { f.samples = append(f.samples, s) }

func (f *fakeTracer) RecordAction(_ time.Time, ka input.KeyAction, _ error) {
	f.actions = append(f.actions, ka.String())
}

func noSleep(time.Duration) {}

// staticConfig disables every speed dependent feature so thresholds are exact.
func staticConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Adaptive.Enabled = false
	cfg.Prediction.Enabled = false
	cfg.CombatMode.Enabled = false
	cfg.GameState.Enabled = false
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return cfg
}

func newController(t *testing.T, cfg *config.Config, opts Options) *Controller {
	t.Helper()
	if opts.Sleep == nil {
		opts.Sleep = noSleep
	}
	c, err := New(slog.New(slog.DiscardHandler), cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func assertLog(t *testing.T, got []string, want ...string) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Fatalf("actions:\n got  %v\n want %v", got, want)
	}
}

func TestNewRequiresSourceAndSink(t *testing.T) {
	_, err := New(slog.New(slog.DiscardHandler), staticConfig(t), Options{Sink: &recordingSink{}})
	if err == nil {
		t.Fatal("expected an error without a source")
	}
}

func TestTickPressesSectorKey(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	sink := &recordingSink{}
	c := newController(t, staticConfig(t), Options{Source: src, Sink: sink})

	c.Tick(at(0))

	assertLog(t, sink.entries(), "PRESS up")
	snap := c.Snapshot()
	if !snap.Available || snap.Sector != "overhead" || snap.State != "active(overhead)" {
		t.Errorf("snapshot = %+v", snap)
	}
	if !slices.Equal(snap.Held, []string{"up"}) {
		t.Errorf("held = %v", snap.Held)
	}
}

func TestTickSectorChangeSequence(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	src.push(1, 0)
	sink := &recordingSink{}
	var sleeps []time.Duration
	c := newController(t, staticConfig(t), Options{
		Source: src,
		Sink:   sink,
		Sleep:  func(d time.Duration) { sleeps = append(sleeps, d) },
	})

	c.Tick(at(0))
	c.Tick(at(100))

	assertLog(t, sink.entries(),
		"PRESS up",
		"PRESS middle_mouse",
		"RELEASE up",
		"RELEASE middle_mouse",
		"PRESS right",
	)
	if !slices.Equal(sleeps, []time.Duration{10 * time.Millisecond}) {
		t.Errorf("sleeps = %v", sleeps)
	}
	if got := c.Snapshot().State; got != "active(right)" {
		t.Errorf("state = %s", got)
	}
}

func TestTickDeadzoneReleasesAfterDebounce(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	src.push(0, 0)
	src.push(0, 0)
	src.push(0, 0)
	sink := &recordingSink{}
	c := newController(t, staticConfig(t), Options{Source: src, Sink: sink})

	c.Tick(at(0))
	c.Tick(at(10))
	c.Tick(at(40))
	assertLog(t, sink.entries(), "PRESS up")

	c.Tick(at(70))
	assertLog(t, sink.entries(), "PRESS up", "RELEASE up")
	snap := c.Snapshot()
	if snap.State != "neutral" || !snap.InDeadzone || len(snap.Held) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestTickUnavailableSourceKeepsKeys(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	src.points = append(src.points, point{})
	sink := &recordingSink{}
	c := newController(t, staticConfig(t), Options{Source: src, Sink: sink})

	c.Tick(at(0))
	c.Tick(at(10))
	c.Tick(at(500))

	assertLog(t, sink.entries(), "PRESS up")
	snap := c.Snapshot()
	if snap.Available {
		t.Error("expected an unavailable snapshot")
	}
	if snap.Tick != 3 {
		t.Errorf("tick = %d, want 3", snap.Tick)
	}
	if !slices.Equal(snap.Held, []string{"up"}) {
		t.Errorf("held = %v", snap.Held)
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	c := newController(t, staticConfig(t), Options{Source: panicSource{}, Sink: &recordingSink{}})
	c.Tick(at(0))
	c.Tick(at(10))
}

func TestReloadReleasesAndRebinds(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	sink := &recordingSink{}
	c := newController(t, staticConfig(t), Options{Source: src, Sink: sink})
	c.Tick(at(0))

	next := staticConfig(t)
	next.Sectors[0].Key = "w"
	if err := next.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	c.Reload(next)
	assertLog(t, sink.entries(), "PRESS up")

	c.Tick(at(10))
	assertLog(t, sink.entries(), "PRESS up", "RELEASE up", "PRESS w")
	if c.Config() != next {
		t.Error("reloaded configuration not in use")
	}
}

func TestCancelButtonReleasesActiveKey(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	sink := &recordingSink{}
	c := newController(t, staticConfig(t), Options{Source: src, Sink: sink})

	c.Tick(at(0))
	sink.reset()

	src.buttons = input.ButtonCancel
	c.Tick(at(10))
	assertLog(t, sink.entries(), "PRESS middle_mouse", "RELEASE middle_mouse", "RELEASE up")

	// Holding the button is not a second press.
	sink.reset()
	c.Tick(at(20))
	assertLog(t, sink.entries())
	if got := c.Snapshot().State; got != "active(overhead)" {
		t.Errorf("state = %s", got)
	}
}

func TestCancelButtonIgnoredWhileUnavailable(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	src.points = append(src.points, point{})
	sink := &recordingSink{}
	c := newController(t, staticConfig(t), Options{Source: src, Sink: sink})

	c.Tick(at(0))
	sink.reset()

	src.buttons = input.ButtonCancel
	c.Tick(at(10))
	assertLog(t, sink.entries())
	if got := c.Snapshot().Held; !slices.Equal(got, []string{"up"}) {
		t.Errorf("held = %v", got)
	}
}

func TestReloadClearsMovementHistory(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	src.push(0, -0.9)
	src.push(0, -0.8)
	c := newController(t, staticConfig(t), Options{Source: src, Sink: &recordingSink{}})

	c.Tick(at(0))
	c.Tick(at(10))
	if got := len(c.Snapshot().Trail); got != 2 {
		t.Fatalf("trail = %d points, want 2", got)
	}

	c.Reload(staticConfig(t))
	c.Tick(at(20))
	trail := c.Snapshot().Trail
	if len(trail) != 1 || trail[0].Y != -0.8 {
		t.Errorf("trail after reload = %v, want only the new sample", trail)
	}
}

func TestCombatKeyTogglesOnRisingEdge(t *testing.T) {
	cfg := staticConfig(t)
	cfg.CombatMode.Enabled = true
	cfg.CombatMode.StartActive = false
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	src := &scriptedSource{}
	src.push(0, 0)
	key := &heldKey{}
	c := newController(t, cfg, Options{Source: src, Sink: &recordingSink{}, CombatKey: key})

	steps := []struct {
		held bool
		want bool
	}{
		{false, false},
		{true, true},
		{true, true},
		{false, true},
		{true, false},
	}
	for i, s := range steps {
		key.held = s.held
		c.Tick(at(i * 10))
		if got := c.Snapshot().CombatManual; got != s.want {
			t.Fatalf("step %d: combat = %v, want %v", i, got, s.want)
		}
	}
}

func TestCombatDeadzoneApplies(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Adaptive.Enabled = true
	cfg.Adaptive.DynamicDeadzone.Enabled = false
	cfg.CombatMode.Enabled = true
	cfg.CombatMode.StartActive = true
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	src := &scriptedSource{}
	src.push(0, -0.12)
	sink := &recordingSink{}
	c := newController(t, cfg, Options{Source: src, Sink: sink})

	c.Tick(at(0))

	if got := c.Snapshot().Deadzone; got != cfg.CombatMode.Deadzone {
		t.Errorf("deadzone = %v, want %v", got, cfg.CombatMode.Deadzone)
	}
	assertLog(t, sink.entries(), "PRESS up")
}

func TestTracerSeesSamplesAndActions(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	tr := &fakeTracer{}
	c := newController(t, staticConfig(t), Options{Source: src, Sink: &recordingSink{}, Tracer: tr})

	c.Tick(at(0))

	if len(tr.samples) != 1 || !tr.samples[0].T.Equal(at(0)) {
		t.Errorf("samples = %+v", tr.samples)
	}
	if !slices.Equal(tr.actions, []string{"PRESS up"}) {
		t.Errorf("actions = %v", tr.actions)
	}
}

func TestAimModeSnapshot(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Aim.Enabled = true
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	src := &scriptedSource{}
	src.push(0, -1)
	sink := &recordingSink{}
	c := newController(t, cfg, Options{Source: src, Sink: sink, AimModifier: &heldKey{held: true}})

	c.Tick(at(0))

	snap := c.Snapshot()
	if snap.Aim == nil {
		t.Fatal("expected aim telemetry")
	}
	if snap.Aim.Phase != "aiming" || snap.Aim.Remembered != "overhead" {
		t.Errorf("aim = %+v", snap.Aim)
	}
	assertLog(t, sink.entries())
}

func TestAimModeUsesAimDeadzone(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Aim.Enabled = true
	cfg.Aim.Deadzone = 0.1
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	src := &scriptedSource{}
	src.push(0, -0.12)
	c := newController(t, cfg, Options{Source: src, Sink: &recordingSink{}, AimModifier: &heldKey{}})

	c.Tick(at(0))

	snap := c.Snapshot()
	if snap.InDeadzone || snap.Sector != "overhead" {
		t.Errorf("inDeadzone = %v, sector = %q; 0.12 is outside the aim deadzone", snap.InDeadzone, snap.Sector)
	}
}

func TestRunReleasesKeysOnStop(t *testing.T) {
	src := &scriptedSource{}
	src.push(0, -1)
	sink := &recordingSink{}
	c := newController(t, staticConfig(t), Options{Source: src, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.entries()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no key pressed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assertLog(t, sink.entries(), "PRESS up", "RELEASE up")
	if n := c.ReleaseAll(); n != 0 {
		t.Errorf("second ReleaseAll released %d", n)
	}
}

// circleSource sweeps the stick around the rim so every tick changes sector
// often enough to exercise the sequencer.
type circleSource struct{ i int }

func (c *circleSource) Sample() (float64, float64, bool) {
	c.i++
	a := float64(c.i%360) * math.Pi / 180
	return math.Cos(a), math.Sin(a), true
}

type nopSink struct{}

func (nopSink) Press(input.Action) error   { return nil }
func (nopSink) Release(input.Action) error { return nil }

func BenchmarkTick(b *testing.B) {
	cfg := config.Default()
	if err := cfg.Resolve(); err != nil {
		b.Fatalf("Resolve: %v", err)
	}
	c, err := New(slog.New(slog.DiscardHandler), cfg, Options{Source: &circleSource{}, Sink: nopSink{}, Sleep: noSleep})
	if err != nil {
		b.Fatalf("New: %v", err)
	}

	now := t0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		now = now.Add(10 * time.Millisecond)
		c.Tick(now)
	}
}
