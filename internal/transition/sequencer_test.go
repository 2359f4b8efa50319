package transition

import (
	"errors"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/input/inputtest"
	"github.com/chakramx/chakram/internal/sector"
)

var (
	keyN   = inputtest.MustParse("w")
	keyE   = inputtest.MustParse("d")
	keyS   = inputtest.MustParse("s")
	keyW   = inputtest.MustParse("a")
	cancel = inputtest.MustParse("middle_mouse")
	t0     = time.Unix(1_700_000_000, 0)
)

var errSink = errors.New("sink failure")

// recorder is a Sink that logs every call, and sleeps, in one ordered list.
type recorder struct {
	log  []string
	fail map[string]bool
}

func (r *recorder) do(op string, a input.Action) error {
	entry := op + " " + a.String()
	r.log = append(r.log, entry)
	if r.fail[entry] {
		return errSink
	}
	return nil
}

func (r *recorder) Press(a input.Action) error   { return r.do("PRESS", a) }
func (r *recorder) Release(a input.Action) error { return r.do("RELEASE", a) }

func (r *recorder) sleep(d time.Duration) {
	r.log = append(r.log, "SLEEP "+d.String())
}

func (r *recorder) reset() {
	r.log = nil
}

type batchRecorder struct {
	recorder
	batches  int
	failSend bool
}

func (b *batchRecorder) Send(actions []input.KeyAction) error {
	b.batches++
	if b.failSend {
		return errSink
	}
	for _, ka := range actions {
		b.log = append(b.log, ka.String())
	}
	return nil
}

func testConfig() Config {
	return Config{
		Keys: map[sector.Name]input.Action{
			"N": keyN, "E": keyE, "S": keyS, "W": keyW,
		},
		Cancel:       cancel,
		DeadzoneTime: 50 * time.Millisecond,
		Settle:       10 * time.Millisecond,
		Timeout:      200 * time.Millisecond,
	}
}

func newSequencer(sink interface {
	input.Sink
	sleep(time.Duration)
}, cfg Config) *Sequencer {
	return NewSequencer(slog.New(slog.DiscardHandler), sink, sink.sleep, cfg)
}

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

func in(s sector.Name, at int) Input {
	return Input{Sector: s, Now: ms(at)}
}

func dead(at int) Input {
	return Input{InDeadzone: true, Now: ms(at)}
}

func assertLog(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(want) == 0 {
		want = nil
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("actions:\n got  %q\n want %q", got, want)
	}
}

func assertState(t *testing.T, s *Sequencer, want State) {
	t.Helper()
	if got := s.State(); got != want {
		t.Fatalf("state = %v, want %v", got, want)
	}
}

func TestNeutralToActive(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())

	res := s.Step(in("N", 0))
	assertLog(t, r.log, "PRESS w")
	assertState(t, s, State{Phase: Active, Sector: "N"})
	if !res.Changed || res.To != "N" {
		t.Fatalf("result = %+v", res)
	}

	r.reset()
	s.Step(in("N", 10))
	assertLog(t, r.log)
}

func TestSectorChangeOrder(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	r.reset()

	res := s.Step(in("E", 10))
	assertLog(t, r.log,
		"PRESS middle_mouse",
		"RELEASE w",
		"SLEEP 10ms",
		"RELEASE middle_mouse",
		"PRESS d",
	)
	assertState(t, s, State{Phase: Active, Sector: "E"})
	if res.Atomic || res.From != "N" || res.To != "E" || res.Failed {
		t.Fatalf("result = %+v", res)
	}
	if held := s.Held(); len(held) != 1 || held[0] != keyE {
		t.Fatalf("held = %v, want [d]", held)
	}
}

func TestAtomicThroughDeadzoneBatch(t *testing.T) {
	b := &batchRecorder{}
	cfg := testConfig()
	cfg.Cooldown = time.Second
	s := newSequencer(b, cfg)

	s.Step(in("N", 0))
	s.Step(dead(10))
	b.reset()

	res := s.Step(Input{Sector: "S", Quick: true, Now: ms(20)})
	if !res.Atomic {
		t.Fatalf("expected the atomic path, got %+v", res)
	}
	if b.batches != 1 {
		t.Fatalf("batches = %d, want 1", b.batches)
	}
	assertLog(t, b.log,
		"PRESS middle_mouse",
		"RELEASE w",
		"RELEASE middle_mouse",
		"PRESS s",
	)
	assertState(t, s, State{Phase: Active, Sector: "S"})

	// The atomic path resets the cooldown, so an immediate normal change runs.
	b.reset()
	res = s.Step(in("W", 30))
	if res.Deferred || s.State().Sector != "W" {
		t.Fatalf("change after atomic path was rate limited: %+v", res)
	}
}

func TestAtomicWithoutBatchSinkNeverSleeps(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())

	s.Step(in("N", 0))
	s.Step(dead(10))
	r.reset()

	s.Step(Input{Sector: "E", Quick: true, Now: ms(20)})
	assertLog(t, r.log,
		"PRESS middle_mouse",
		"RELEASE w",
		"RELEASE middle_mouse",
		"PRESS d",
	)
}

func TestAtomicSettleIsTunable(t *testing.T) {
	b := &batchRecorder{}
	cfg := testConfig()
	cfg.AtomicSettle = 2 * time.Millisecond
	s := newSequencer(b, cfg)

	s.Step(in("N", 0))
	s.Step(dead(10))
	b.reset()

	s.Step(Input{Sector: "E", Quick: true, Now: ms(20)})
	if b.batches != 0 {
		t.Fatalf("a settle delay cannot be honoured inside a batch")
	}
	assertLog(t, b.log,
		"PRESS middle_mouse",
		"RELEASE w",
		"SLEEP 2ms",
		"RELEASE middle_mouse",
		"PRESS d",
	)
}

func TestQuickWithoutDeadzoneIsNotAtomic(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	r.reset()

	res := s.Step(Input{Sector: "E", Quick: true, Now: ms(10)})
	if res.Atomic {
		t.Fatalf("quick movement that never touched the deadzone took the atomic path")
	}
}

func TestDeadzoneDebounceReleasesOnce(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	r.reset()

	released := 0
	for _, at := range []int{10, 50, 90} {
		res := s.Step(dead(at))
		released += res.Released
		if at == 10 && len(r.log) != 0 {
			t.Fatalf("released on the deadzone entry tick")
		}
	}
	assertLog(t, r.log, "RELEASE w")
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	assertState(t, s, State{Phase: Neutral})
	if s.LastActive() != "N" {
		t.Fatalf("last active = %q, want N", s.LastActive())
	}
}

func TestDeadzoneGrazeKeepsKey(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	r.reset()

	s.Step(dead(10))
	s.Step(dead(40))
	s.Step(in("N", 50))
	assertLog(t, r.log)
	assertState(t, s, State{Phase: Active, Sector: "N"})
	if s.LastActive() != sector.None {
		t.Fatalf("last active not consumed on exit")
	}
}

func TestSliceThroughNeutralUsesLastActive(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	s.Step(dead(10))
	s.Step(dead(70))
	r.reset()

	res := s.Step(in("S", 80))
	if res.From != "N" || res.To != "S" {
		t.Fatalf("result = %+v, want N -> S", res)
	}
	// w was already released by the debounce.
	assertLog(t, r.log,
		"PRESS middle_mouse",
		"SLEEP 10ms",
		"RELEASE middle_mouse",
		"PRESS s",
	)
	assertState(t, s, State{Phase: Active, Sector: "S"})
}

func TestReturnToSameSectorAfterNeutral(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	s.Step(dead(10))
	s.Step(dead(70))
	r.reset()

	s.Step(in("N", 80))
	assertLog(t, r.log, "PRESS w")
}

func TestCooldownDefersChange(t *testing.T) {
	r := &recorder{}
	cfg := testConfig()
	cfg.Cooldown = 300 * time.Millisecond
	s := newSequencer(r, cfg)

	s.Step(in("N", 0))
	s.Step(in("E", 10))
	r.reset()

	if res := s.Step(in("S", 100)); !res.Deferred {
		t.Fatalf("change inside cooldown was not deferred: %+v", res)
	}
	assertLog(t, r.log)
	assertState(t, s, State{Phase: Active, Sector: "E"})

	s.Step(in("S", 320))
	assertState(t, s, State{Phase: Active, Sector: "S"})
}

func TestFailedReleaseResolvesImmediately(t *testing.T) {
	r := &recorder{fail: map[string]bool{"RELEASE w": true}}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))

	res := s.Step(in("E", 10))
	if !res.Failed {
		t.Fatalf("expected a failed change, got %+v", res)
	}
	// Every remaining step still ran.
	if n := len(r.log); n != 6 {
		t.Fatalf("calls = %d (%q), want 6", n, r.log)
	}
	if s.IsHeld(keyN) {
		t.Fatalf("failed release must still be forgotten")
	}
	if !s.IsHeld(keyE) {
		t.Fatalf("successful press must be remembered")
	}
	assertState(t, s, State{Phase: Active, Sector: "E"})

	r.reset()
	res = s.Step(in("S", 20))
	if res.From != "E" || res.To != "S" || res.Failed {
		t.Fatalf("next change not taken: %+v", res)
	}
	assertState(t, s, State{Phase: Active, Sector: "S"})
}

func TestFailedChangeThenDeadzoneReleases(t *testing.T) {
	r := &recorder{fail: map[string]bool{"RELEASE w": true}}
	cfg := testConfig()
	s := newSequencer(r, cfg)
	s.Step(in("N", 0))
	s.Step(in("E", 10))
	r.reset()

	for at := 20; at <= 200; at += 10 {
		s.Step(dead(at))
		if !s.IsHeld(keyE) {
			if elapsed := ms(at).Sub(ms(20)); elapsed > cfg.DeadzoneTime {
				t.Fatalf("released after %v, debounce is %v", elapsed, cfg.DeadzoneTime)
			}
			break
		}
	}
	if len(s.Held()) != 0 {
		t.Fatalf("held = %v after deadzone, want nothing", s.Held())
	}
	assertLog(t, r.log, "RELEASE d")
	assertState(t, s, State{Phase: Neutral})
}

func TestFailedPressReturnsToNeutral(t *testing.T) {
	r := &recorder{fail: map[string]bool{"PRESS d": true}}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	s.Step(in("E", 10))

	if s.IsHeld(keyE) || len(s.Held()) != 0 {
		t.Fatalf("held = %v, want nothing", s.Held())
	}
	assertState(t, s, State{Phase: Neutral})

	// The next tick retries the press.
	delete(r.fail, "PRESS d")
	r.reset()
	s.Step(in("E", 20))
	assertLog(t, r.log, "PRESS d")
	assertState(t, s, State{Phase: Active, Sector: "E"})
}

type panicSink struct {
	recorder
	panicOn string
}

func (p *panicSink) Release(a input.Action) error {
	if "RELEASE "+a.String() == p.panicOn {
		panic("sink wedged")
	}
	return p.recorder.Release(a)
}

func TestInterruptedChangeRecoversAfterTimeout(t *testing.T) {
	p := &panicSink{panicOn: "RELEASE w"}
	s := newSequencer(p, testConfig())
	s.Step(in("N", 0))

	func() {
		defer func() { _ = recover() }()
		s.Step(in("E", 10))
	}()
	assertState(t, s, State{Phase: Changing, From: "N", To: "E", Started: ms(10)})

	p.panicOn = ""
	p.reset()
	s.Step(in("S", 100))
	s.Step(in("S", 210))
	assertLog(t, p.log)

	res := s.Step(in("E", 211))
	if !res.Recovered {
		t.Fatalf("stuck change not recovered: %+v", res)
	}
	assertState(t, s, State{Phase: Active, Sector: "E"})
}

func TestBatchFailureFallsBack(t *testing.T) {
	b := &batchRecorder{failSend: true}
	s := newSequencer(b, testConfig())
	s.Step(in("N", 0))
	s.Step(dead(10))
	b.reset()

	s.Step(Input{Sector: "E", Quick: true, Now: ms(20)})
	assertLog(t, b.log, "RELEASE w", "PRESS d")
	assertState(t, s, State{Phase: Active, Sector: "E"})
}

func TestReleaseAllIsIdempotent(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	r.reset()

	if n := s.ReleaseAll(); n != 1 {
		t.Fatalf("first release all = %d, want 1", n)
	}
	if n := s.ReleaseAll(); n != 0 {
		t.Fatalf("second release all = %d, want 0", n)
	}
	assertLog(t, r.log, "RELEASE w")
}

func TestCancelKeepsSectorWithoutKey(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	r.reset()

	s.Cancel()
	assertLog(t, r.log,
		"PRESS middle_mouse",
		"SLEEP 10ms",
		"RELEASE middle_mouse",
		"RELEASE w",
	)
	assertState(t, s, State{Phase: Active, Sector: "N"})

	r.reset()
	s.Step(in("N", 20))
	assertLog(t, r.log)

	s.Step(in("E", 30))
	assertLog(t, r.log,
		"PRESS middle_mouse",
		"SLEEP 10ms",
		"RELEASE middle_mouse",
		"PRESS d",
	)
}

func TestNoSectorOutsideDeadzoneIsNoop(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	r.reset()

	s.Step(in(sector.None, 10))
	assertLog(t, r.log)
	assertState(t, s, State{Phase: Active, Sector: "N"})
}

func TestReset(t *testing.T) {
	r := &recorder{}
	s := newSequencer(r, testConfig())
	s.Step(in("N", 0))
	s.Step(dead(10))

	if n := s.Reset(); n != 1 {
		t.Fatalf("reset released %d, want 1", n)
	}
	assertState(t, s, State{Phase: Neutral})
	if s.InDeadzone() || s.LastActive() != sector.None {
		t.Fatalf("reset kept deadzone tracking")
	}
}
