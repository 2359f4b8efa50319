// Package transition owns the held key set and turns per-tick sector
// classifications into strictly ordered press/release sequences.
package transition

import (
	"log/slog"
	"time"

	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/sector"
	"github.com/chakramx/chakram/internal/utils"
)

const (
	DefaultDeadzoneTime = 50 * time.Millisecond
	DefaultSettle       = 10 * time.Millisecond
	DefaultTimeout      = 200 * time.Millisecond
)

type Config struct {
	Keys   map[sector.Name]input.Action
	Cancel input.Action

	// DeadzoneTime is how long the input must stay in the deadzone before
	// every held key is released.
	DeadzoneTime time.Duration
	// Settle is slept between pressing and releasing the cancel action.
	Settle time.Duration
	// AtomicSettle is the same delay on the quick path; zero sends the whole
	// sequence back to back.
	AtomicSettle time.Duration
	// Timeout bounds how long a Changing state may stay unconfirmed.
	Timeout time.Duration
	// Cooldown is the minimum time between two non-atomic sector changes.
	Cooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.DeadzoneTime <= 0 {
		c.DeadzoneTime = DefaultDeadzoneTime
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	if c.AtomicSettle < 0 {
		c.AtomicSettle = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Sequencer is owned by the tick goroutine. Only ReleaseAll may be called
// after the owner stopped ticking.
type Sequencer struct {
	logger *slog.Logger
	sink   input.Sink
	sleep  utils.Sleeper
	cfg    Config

	state State
	// Held actions in press order; heldIdx indexes them by identity.
	held    []input.Action
	heldIdx map[input.ID]int

	inDeadzone    bool
	deadzoneEntry time.Time
	lastActive    sector.Name
	lastChange    time.Time
}

func NewSequencer(logger *slog.Logger, sink input.Sink, sleep utils.Sleeper, cfg Config) *Sequencer {
	if sleep == nil {
		sleep = utils.Sleep
	}
	return &Sequencer{
		logger:  logger,
		sink:    sink,
		sleep:   sleep,
		cfg:     cfg.withDefaults(),
		heldIdx: make(map[input.ID]int),
	}
}

func (s *Sequencer) State() State {
	return s.state
}

func (s *Sequencer) InDeadzone() bool {
	return s.inDeadzone
}

// LastActive is the sector that was active when the input entered the
// deadzone, None once it has been consumed.
func (s *Sequencer) LastActive() sector.Name {
	return s.lastActive
}

// Held returns a copy of the currently held actions in press order.
func (s *Sequencer) Held() []input.Action {
	return append([]input.Action(nil), s.held...)
}

func (s *Sequencer) IsHeld(a input.Action) bool {
	_, ok := s.heldIdx[a.ID()]
	return ok
}

// Step advances the state machine by one tick.
func (s *Sequencer) Step(in Input) Result {
	var res Result

	if s.state.Phase == Changing {
		if in.Now.Sub(s.state.Started) <= s.cfg.Timeout {
			return res
		}
		s.recover(in.Now)
		res.Recovered = true
	}

	wasInDeadzone := s.inDeadzone
	if in.InDeadzone {
		s.stepDeadzone(in.Now, &res)
		return res
	}
	s.inDeadzone = false

	target := in.Sector
	if target == sector.None {
		return res
	}

	from := sector.None
	if s.state.Phase == Active {
		from = s.state.Sector
	}
	// Slicing through the deadzone: the sector active before the deadzone is
	// the one being left, even if its key was already released.
	viaDeadzone := s.lastActive != sector.None
	if viaDeadzone && target != s.lastActive {
		from = s.lastActive
	}

	switch {
	case from == target:
		s.lastActive = sector.None
	case from == sector.None:
		s.lastActive = sector.None
		res.Changed = s.enter(target)
		res.To = target
	default:
		atomic := in.Quick && wasInDeadzone
		if !atomic && s.inCooldown(in.Now) {
			res.Deferred = true
			return res
		}
		s.lastActive = sector.None
		res.From, res.To, res.Atomic = from, target, atomic
		res.Failed = !s.change(from, target, atomic, in.Now)
		res.Changed = true
	}
	return res
}

func (s *Sequencer) stepDeadzone(now time.Time, res *Result) {
	if !s.inDeadzone {
		s.inDeadzone = true
		s.deadzoneEntry = now
		if s.state.Phase == Active {
			s.lastActive = s.state.Sector
		}
		return
	}

	if s.state.Phase == Neutral {
		return
	}
	if elapsed := now.Sub(s.deadzoneEntry); elapsed >= s.cfg.DeadzoneTime {
		res.From = s.state.Sector
		res.Released = s.ReleaseAll()
		res.Neutral = true
		s.state = State{Phase: Neutral}
		s.logger.Debug("Returned to neutral",
			slog.String("from", string(res.From)),
			slog.Duration("inDeadzone", elapsed))
	}
}

func (s *Sequencer) inCooldown(now time.Time) bool {
	return s.cfg.Cooldown > 0 && !s.lastChange.IsZero() && now.Sub(s.lastChange) < s.cfg.Cooldown
}

// enter is the Neutral -> Active transition.
func (s *Sequencer) enter(target sector.Name) bool {
	key, ok := s.cfg.Keys[target]
	if !ok {
		s.logger.Error("No key mapped for sector", slog.String("sector", string(target)))
		return false
	}
	s.exec(input.PressOf(key))
	s.state = State{Phase: Active, Sector: target}
	return true
}

// change runs press(cancel), release(from), release(cancel), press(to). The
// state is Changing only while the sequence runs. Once it returns, failed
// steps included, the state follows the held set: Active(to) when the target
// key is held, Neutral otherwise, so the next tick can press it again. A
// sequence that never returns (a panicking sink) leaves Changing for the
// timeout to resolve.
func (s *Sequencer) change(from, to sector.Name, atomic bool, now time.Time) bool {
	s.state = State{Phase: Changing, From: from, To: to, Started: now}

	toKey, mapped := s.cfg.Keys[to]
	if !mapped {
		s.logger.Error("No key mapped for sector", slog.String("sector", string(to)))
		s.state = State{Phase: Neutral}
		return false
	}
	fromKey, hasFrom := s.cfg.Keys[from]
	releaseFrom := hasFrom && s.IsHeld(fromKey)

	s.logger.Debug("Sector change",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Bool("atomic", atomic))

	var confirmed bool
	if atomic {
		confirmed = s.changeAtomic(fromKey, toKey, releaseFrom)
		s.lastChange = time.Time{}
	} else {
		confirmed = s.changeSequential(fromKey, toKey, releaseFrom, s.cfg.Settle)
		s.lastChange = now
	}

	if s.IsHeld(toKey) {
		s.state = State{Phase: Active, Sector: to}
	} else {
		s.state = State{Phase: Neutral}
	}
	if !confirmed {
		s.logger.Warn("Sector change incomplete",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.String("state", s.state.String()))
	}
	return confirmed
}

func (s *Sequencer) changeSequential(fromKey, toKey input.Action, releaseFrom bool, settle time.Duration) bool {
	ok := s.exec(input.PressOf(s.cfg.Cancel))
	if releaseFrom {
		ok = s.exec(input.ReleaseOf(fromKey)) && ok
	}
	if settle > 0 {
		s.sleep(settle)
	}
	ok = s.exec(input.ReleaseOf(s.cfg.Cancel)) && ok
	return s.exec(input.PressOf(toKey)) && ok
}

func (s *Sequencer) changeAtomic(fromKey, toKey input.Action, releaseFrom bool) bool {
	batch, isBatch := s.sink.(input.BatchSink)
	if !isBatch || s.cfg.AtomicSettle > 0 {
		return s.changeSequential(fromKey, toKey, releaseFrom, s.cfg.AtomicSettle)
	}

	steps := make([]input.KeyAction, 0, 4)
	steps = append(steps, input.PressOf(s.cfg.Cancel))
	if releaseFrom {
		steps = append(steps, input.ReleaseOf(fromKey))
	}
	steps = append(steps, input.ReleaseOf(s.cfg.Cancel), input.PressOf(toKey))

	if err := batch.Send(steps); err != nil {
		s.logger.Error("Atomic sector change failed, falling back to single actions", slog.Any("error", err))
		s.forget(s.cfg.Cancel)
		ok := true
		if releaseFrom {
			ok = s.exec(input.ReleaseOf(fromKey))
		}
		return s.exec(input.PressOf(toKey)) && ok
	}

	for _, ka := range steps {
		s.logger.Debug(ka.Type.String(), slog.String("key", ka.Action.String()), slog.Bool("batch", true))
		if ka.Type == input.Press {
			s.remember(ka.Action)
		} else {
			s.forget(ka.Action)
		}
	}
	return true
}

// exec runs one action against the sink and updates the held set: releases
// are forgotten even when they fail, presses are remembered only on success.
// Pressing a held action or releasing one that is not held is a no-op.
func (s *Sequencer) exec(ka input.KeyAction) bool {
	held := s.IsHeld(ka.Action)
	if ka.Type == input.Press && held || ka.Type == input.Release && !held {
		return true
	}

	err := input.Execute(s.sink, ka)
	if ka.Type == input.Release {
		s.forget(ka.Action)
	}
	if err != nil {
		s.logger.Error("Key action failed",
			slog.String("action", ka.Type.String()),
			slog.String("key", ka.Action.String()),
			slog.Any("error", err))
		return false
	}
	if ka.Type == input.Press {
		s.remember(ka.Action)
	}
	s.logger.Debug(ka.Type.String(), slog.String("key", ka.Action.String()))
	return true
}

func (s *Sequencer) remember(a input.Action) {
	if _, ok := s.heldIdx[a.ID()]; ok {
		return
	}
	s.heldIdx[a.ID()] = len(s.held)
	s.held = append(s.held, a)
}

func (s *Sequencer) forget(a input.Action) {
	i, ok := s.heldIdx[a.ID()]
	if !ok {
		return
	}
	s.held = append(s.held[:i], s.held[i+1:]...)
	delete(s.heldIdx, a.ID())
	for j := i; j < len(s.held); j++ {
		s.heldIdx[s.held[j].ID()] = j
	}
}

func (s *Sequencer) recover(now time.Time) {
	stuck := s.state
	if stuck.To != sector.None {
		s.state = State{Phase: Active, Sector: stuck.To}
	} else {
		s.state = State{Phase: Neutral}
	}
	s.logger.Warn("Sector change timed out, forcing state",
		slog.String("from", string(stuck.From)),
		slog.String("to", string(stuck.To)),
		slog.Duration("elapsed", now.Sub(stuck.Started)),
		slog.String("state", s.state.String()))
}

// ReleaseAll releases every held action once and returns how many release
// calls were made. A second call releases nothing.
func (s *Sequencer) ReleaseAll() int {
	held := s.Held()
	for _, a := range held {
		s.exec(input.ReleaseOf(a))
	}
	return len(held)
}

// Cancel taps the cancel action and releases the active sector key. The
// sector stays current, so its key is pressed again only after the input
// moves to another sector or passes through neutral.
func (s *Sequencer) Cancel() {
	if s.state.Phase == Changing {
		return
	}
	s.exec(input.PressOf(s.cfg.Cancel))
	if s.cfg.Settle > 0 {
		s.sleep(s.cfg.Settle)
	}
	s.exec(input.ReleaseOf(s.cfg.Cancel))

	if s.state.Phase == Active {
		if key, ok := s.cfg.Keys[s.state.Sector]; ok {
			s.exec(input.ReleaseOf(key))
		}
	}
	s.logger.Info("Cancel requested", slog.String("state", s.state.String()))
}

// Reset releases everything and returns to Neutral, forgetting deadzone
// tracking. Used on stop and on configuration reload.
func (s *Sequencer) Reset() int {
	n := s.ReleaseAll()
	s.state = State{Phase: Neutral}
	s.inDeadzone = false
	s.deadzoneEntry = time.Time{}
	s.lastActive = sector.None
	s.lastChange = time.Time{}
	return n
}
