// Package controller runs the per-tick pipeline: sample, analyze, infer the
// game state, adapt the deadzone, classify, and sequence key actions.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chakramx/chakram/internal/adaptive"
	"github.com/chakramx/chakram/internal/aim"
	"github.com/chakramx/chakram/internal/config"
	"github.com/chakramx/chakram/internal/event"
	"github.com/chakramx/chakram/internal/gamestate"
	"github.com/chakramx/chakram/internal/health"
	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/motion"
	"github.com/chakramx/chakram/internal/sector"
	"github.com/chakramx/chakram/internal/transition"
	"github.com/chakramx/chakram/internal/utils"
)

// Options carries the I/O collaborators. Only Source and Sink are required.
type Options struct {
	Source input.Source
	Sink   input.Sink
	Sleep  utils.Sleeper
	Tracer Tracer
	// CombatKey reports the combat toggle key; AimModifier the aim modifier.
	CombatKey   input.ModifierReader
	AimModifier input.ModifierReader
}

type Controller struct {
	logger *slog.Logger
	opts   Options
	sink   input.Sink

	// mu serializes Tick with ReleaseAll and Close from other goroutines.
	mu  sync.Mutex
	now time.Time

	cfg        *config.Config
	classifier *sector.Classifier
	analyzer   *motion.Analyzer
	detector   *gamestate.Detector
	seq        *transition.Sequencer
	aim        *aim.Engine
	monitor    *health.TickMonitor
	params     adaptive.Params

	prevButtons   input.Buttons
	combatKeyDown bool
	ticks         uint64

	pending  atomic.Pointer[config.Config]
	snapshot atomic.Pointer[Snapshot]
}

func New(logger *slog.Logger, cfg *config.Config, opts Options) (*Controller, error) {
	if opts.Source == nil || opts.Sink == nil {
		return nil, fmt.Errorf("controller needs a source and a sink")
	}
	if opts.Sleep == nil {
		opts.Sleep = utils.Sleep
	}

	c := &Controller{
		logger:   logger,
		opts:     opts,
		analyzer: motion.NewAnalyzer(motion.DefaultHistorySize, utils.Seconds(cfg.Prediction.Horizon)),
		detector: gamestate.NewDetector(logger, cfg.Runtime.CombatKeys, utils.Seconds(cfg.GameState.Timeout)),
	}
	c.sink = wrapSink(opts.Sink, opts.Tracer, func() time.Time { return c.now })
	if err := c.build(cfg); err != nil {
		return nil, err
	}
	c.snapshot.Store(&Snapshot{State: c.seq.State().String()})
	return c, nil
}

// build replaces every per-config component and clears the movement and game
// state history. Held keys must already be released.
func (c *Controller) build(cfg *config.Config) error {
	classifier, err := sector.NewClassifier(cfg.Runtime.Sectors)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidSectors, err)
	}

	c.cfg = cfg
	c.classifier = classifier
	c.analyzer.Reset()
	c.analyzer.SetHorizon(utils.Seconds(cfg.Prediction.Horizon))
	c.detector.Reset()
	c.detector.Configure(cfg.Runtime.CombatKeys, utils.Seconds(cfg.GameState.Timeout))
	c.detector.SetManual(cfg.CombatMode.Enabled && cfg.CombatMode.StartActive)
	c.seq = transition.NewSequencer(c.logger, c.sink, c.opts.Sleep, transition.Config{
		Keys:         cfg.Runtime.Keys,
		Cancel:       cfg.Runtime.Cancel,
		DeadzoneTime: utils.Seconds(cfg.DeadzoneTimeThreshold),
		Settle:       utils.Seconds(cfg.Transition.Settle),
		AtomicSettle: utils.Seconds(cfg.Transition.AtomicSettle),
		Timeout:      utils.Seconds(cfg.Transition.Timeout),
		Cooldown:     utils.Seconds(cfg.Transition.Cooldown),
	})
	c.aim = aim.NewEngine(c.logger, c.sink, c.opts.Sleep, aim.Config{
		Keys:             cfg.Runtime.Keys,
		Memory:           utils.Seconds(cfg.Aim.DirectionMemory),
		Hold:             utils.Seconds(cfg.Aim.PressDuration),
		Cooldown:         utils.Seconds(cfg.Aim.Cooldown),
		RequiresMovement: cfg.Aim.RequiresMovement,
		BlockWhileHeld:   cfg.Aim.BlockWhileHeld,
		BlockKey:         cfg.Runtime.BlockKey,
		Toggle:           cfg.Aim.Mode == config.AimToggle,
		Smoothing:        cfg.Aim.Smoothing,
	})
	c.monitor = health.NewTickMonitor(c.logger, utils.Seconds(cfg.Health.TickBudget), utils.Seconds(cfg.Health.Sustained))
	c.params = adaptive.Params{
		Enabled:          cfg.Adaptive.Enabled,
		Dynamic:          cfg.Adaptive.DynamicDeadzone.Enabled,
		Deadzone:         cfg.Deadzone,
		CombatDeadzone:   cfg.CombatMode.Deadzone,
		DeadzoneFactor:   adaptive.Range{Min: cfg.Adaptive.DynamicDeadzone.MinFactor, Max: cfg.Adaptive.DynamicDeadzone.MaxFactor},
		Smoothness:       cfg.Adaptive.Smoothness.Base,
		CombatSmoothness: cfg.CombatMode.Smoothness,
		SmoothnessFactor: adaptive.Range{Min: cfg.Adaptive.Smoothness.MinFactor, Max: cfg.Adaptive.Smoothness.MaxFactor},
	}
	if !cfg.CombatMode.Enabled {
		c.params.CombatDeadzone = cfg.Deadzone
		c.params.CombatSmoothness = cfg.Adaptive.Smoothness.Base
	}
	return nil
}

func (c *Controller) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Classifier returns the sector layout in use. It is replaced, never
// modified, on reload.
func (c *Controller) Classifier() *sector.Classifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier
}

// Reload schedules cfg to replace the running configuration at the start of
// the next tick. The last call before that tick wins.
func (c *Controller) Reload(cfg *config.Config) {
	c.pending.Store(cfg)
}

// Snapshot returns the telemetry of the last completed tick.
func (c *Controller) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// Run ticks at the configured rate until ctx is done. Every held key is
// released before it returns, including when a tick panics.
func (c *Controller) Run(ctx context.Context) error {
	interval := c.Config().TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer func() {
		if n := c.ReleaseAll(); n > 0 {
			c.logger.Info("Released held keys on stop", slog.Int("keys", n))
		}
	}()

	c.logger.Info("Controller started",
		slog.Duration("tick", interval),
		slog.String("source", c.Config().Input.Source))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Controller stopped")
			return nil
		case now := <-ticker.C:
			c.Tick(now)
			if next := c.Config().TickInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// ReleaseAll releases every key held by the sequencer or the aim engine.
// A second call releases nothing.
func (c *Controller) ReleaseAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.ReleaseAll() + c.aim.ReleaseAll()
}

// Tick runs one pipeline pass for a sample taken at now. It never returns an
// error and recovers from panics in any collaborator.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic in tick",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
		if c.monitor.Observe(now, time.Since(started)) {
			event.Send(event.TickOverrun(event.At(now, "Sustained tick overrun"), now.Sub(c.monitor.OverrunStart)))
		}
	}()

	c.now = now
	c.ticks++
	if cfg := c.pending.Swap(nil); cfg != nil {
		c.apply(cfg, now)
	}

	c.handleCombatKey(now)

	x, y, ok := c.opts.Source.Sample()
	if !ok {
		prev := c.Snapshot()
		prev.Tick, prev.Time, prev.Available = c.ticks, now, false
		c.snapshot.Store(&prev)
		return
	}
	c.handleButtons(now)

	sample := motion.Sample{X: x, Y: y, T: now}
	if c.opts.Tracer != nil {
		c.opts.Tracer.RecordSample(sample)
	}
	metrics := c.analyzer.Update(sample)

	c.updateGameState(now)
	dz := adaptive.EffectiveDeadzone(c.params, c.detector, c.analyzer)
	smoothness := adaptive.TransitionSmoothness(c.params, c.detector, c.analyzer)

	angle, distance := sector.Polar(x, y)
	snap := &Snapshot{
		Tick:            c.ticks,
		Time:            now,
		Available:       true,
		X:               x,
		Y:               y,
		Angle:           angle,
		Distance:        distance,
		Deadzone:        dz,
		Smoothness:      smoothness,
		Speed:           metrics.Speed,
		DirectionChange: c.analyzer.DirectionChange(),
		Trail:           c.analyzer.Trail(),
		GameState:       c.detector.State().String(),
		CombatManual:    c.detector.Manual(),
		InCombat:        c.detector.InCombat(),
		CombatIntensity: c.detector.Intensity(now, 0),
	}
	if last := c.detector.LastAction(); !last.IsZero() {
		snap.LastCombatAction = &last
	}

	if c.cfg.Aim.Enabled {
		c.stepAim(now, x, y, snap)
	} else {
		c.stepSectors(now, angle, distance, dz, snap)
	}

	snap.State = c.seq.State().String()
	for _, a := range c.seq.Held() {
		snap.Held = append(snap.Held, a.String())
	}
	snap.TickOverruns = c.monitor.Overruns()
	snap.WorstTick = c.monitor.Worst()
	c.snapshot.Store(snap)
}

func (c *Controller) stepSectors(now time.Time, angle, distance, dz float64, snap *Snapshot) {
	inDeadzone := distance < dz
	target := c.classifier.Classify(angle, distance, dz)
	snap.Sector = target
	snap.InDeadzone = inDeadzone

	if c.cfg.Adaptive.Enabled && c.cfg.Prediction.Enabled {
		pred := c.analyzer.Predict(c.classifier, dz)
		snap.PredictedSector = pred.Sector
		snap.PredictionConfidence = pred.Confidence
		if !inDeadzone && pred.Sector != sector.None && pred.Confidence > c.cfg.Prediction.ConfidenceThreshold {
			target = pred.Sector
		}
	}

	quick := c.analyzer.IsQuickMovement(c.cfg.QuickMovementThreshold)
	snap.Quick = quick

	res := c.seq.Step(transition.Input{
		Sector:     target,
		InDeadzone: inDeadzone,
		Quick:      quick,
		Now:        now,
	})

	if res.Recovered {
		event.Send(event.TransitionRecovered(event.At(now, "Stuck sector change recovered"), c.seq.State().Sector))
	}
	if res.Changed && !res.Failed && res.To != sector.None {
		msg := fmt.Sprintf("Sector %s -> %s", res.From, res.To)
		event.Send(event.SectorChanged(event.At(now, msg), res.From, res.To, res.Atomic))
	}
	if res.Neutral {
		event.Send(event.DeadzoneReleased(event.At(now, "Returned to neutral"), res.From, res.Released))
	}
}

func (c *Controller) stepAim(now time.Time, x, y float64, snap *Snapshot) {
	held := false
	if c.opts.AimModifier != nil {
		held = c.opts.AimModifier.ModifierHeld()
	}
	angle, distance := sector.Polar(c.aim.Smooth(x, y))
	target := c.classifier.Classify(angle, distance, c.cfg.Aim.Deadzone)
	snap.Sector = target
	snap.InDeadzone = distance < c.cfg.Aim.Deadzone

	res := c.aim.Step(aim.Input{Sector: target, Modifier: held, Now: now})
	if res.Fired {
		event.Send(event.AimFired(event.At(now, "Aim fired "+string(res.Sector)), res.Sector))
	}
	snap.Aim = &AimSnapshot{
		Phase:      c.aim.Phase().String(),
		Remembered: c.aim.Remembered(now),
		BlockHeld:  c.aim.BlockHeld(),
	}
}

// updateGameState feeds the detector when detection is enabled. The manual
// override applies either way.
func (c *Controller) updateGameState(now time.Time) {
	if !c.cfg.GameState.Enabled {
		return
	}
	before := c.detector.State()
	after := c.detector.Update(c.seq.Held(), now)
	if after != before {
		event.Send(event.CombatStateChanged(event.At(now, "Game state "+after.String()), after == gamestate.Combat, false))
	}
}

func (c *Controller) handleButtons(now time.Time) {
	br, ok := c.opts.Source.(input.ButtonReader)
	if !ok {
		return
	}
	b := br.Buttons()
	pressed := b &^ c.prevButtons
	c.prevButtons = b

	if pressed.Has(input.ButtonCancel) && !c.cfg.Aim.Enabled {
		c.seq.Cancel()
	}
	if pressed.Has(input.ButtonCombatToggle) {
		c.toggleCombat(now)
	}
}

func (c *Controller) handleCombatKey(now time.Time) {
	if c.opts.CombatKey == nil {
		return
	}
	down := c.opts.CombatKey.ModifierHeld()
	if down && !c.combatKeyDown {
		c.toggleCombat(now)
	}
	c.combatKeyDown = down
}

func (c *Controller) toggleCombat(now time.Time) {
	if !c.cfg.CombatMode.Enabled {
		return
	}
	on := !c.detector.Manual()
	c.detector.SetManual(on)
	state := "deactivated"
	if on {
		state = "activated"
	}
	c.logger.Info("Combat mode " + state)
	event.Send(event.CombatStateChanged(event.At(now, "Combat mode "+state), on, true))
}

func (c *Controller) apply(cfg *config.Config, now time.Time) {
	released := c.seq.Reset() + c.aim.ReleaseAll()
	if err := c.build(cfg); err != nil {
		c.logger.Error("Rejected configuration reload", slog.Any("error", err))
		// build validates before touching state, so the old components are intact.
		return
	}
	c.prevButtons = 0
	c.combatKeyDown = false
	c.logger.Info("Configuration reloaded", slog.Int("releasedKeys", released))
	event.Send(event.ConfigReloaded(event.At(now, "Configuration reloaded"), released))
}
