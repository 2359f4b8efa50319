// Package aim implements the flick-to-aim, release-to-commit input mode: while
// a modifier is held the last classified sector is remembered, and releasing
// the modifier fires one timed press of that sector's key.
package aim

import (
	"log/slog"
	"time"

	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/sector"
	"github.com/chakramx/chakram/internal/utils"
)

const (
	DefaultMemory   = 250 * time.Millisecond
	DefaultHold     = 50 * time.Millisecond
	DefaultCooldown = 200 * time.Millisecond
	// DeadzoneScale is applied to the base deadzone when no aim deadzone is set.
	DeadzoneScale = 0.8
	// DefaultSmoothing is the weight of a new sample in the aim position average.
	DefaultSmoothing = 0.25
)

type Phase int

const (
	Idle Phase = iota
	Aiming
	Cooldown
)

func (p Phase) String() string {
	switch p {
	case Aiming:
		return "aiming"
	case Cooldown:
		return "cooldown"
	}
	return "idle"
}

type Config struct {
	Keys map[sector.Name]input.Action
	// Memory is how long a classified sector stays eligible after motion stops.
	Memory   time.Duration
	Hold     time.Duration
	Cooldown time.Duration
	// RequiresMovement false fires the last sector even after Memory expired.
	RequiresMovement bool
	BlockWhileHeld   bool
	BlockKey         input.Action
	// Toggle makes each modifier press start or commit an aim, instead of
	// aiming for as long as the modifier is held.
	Toggle bool
	// Smoothing is the weight of a new position sample while aiming. Zero or
	// one disables smoothing.
	Smoothing float64
}

func (c Config) withDefaults() Config {
	if c.Memory <= 0 {
		c.Memory = DefaultMemory
	}
	if c.Hold <= 0 {
		c.Hold = DefaultHold
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	if c.BlockKey.IsZero() {
		c.BlockWhileHeld = false
	}
	if c.Smoothing < 0 || c.Smoothing > 1 {
		c.Smoothing = 0
	}
	return c
}

type Input struct {
	Sector   sector.Name
	Modifier bool
	Now      time.Time
}

type Result struct {
	Fired  bool
	Sector sector.Name
}

// Engine is driven by the tick goroutine only.
type Engine struct {
	logger *slog.Logger
	sink   input.Sink
	sleep  utils.Sleeper
	cfg    Config

	phase         Phase
	lastSector    sector.Name
	lastSeen      time.Time
	cooldownUntil time.Time
	blockHeld     bool

	modifierDown bool
	toggled      bool
	smoothX      ema
	smoothY      ema
}

func NewEngine(logger *slog.Logger, sink input.Sink, sleep utils.Sleeper, cfg Config) *Engine {
	if sleep == nil {
		sleep = utils.Sleep
	}
	cfg = cfg.withDefaults()
	return &Engine{
		logger:  logger,
		sink:    sink,
		sleep:   sleep,
		cfg:     cfg,
		smoothX: ema{alpha: cfg.Smoothing},
		smoothY: ema{alpha: cfg.Smoothing},
	}
}

func (e *Engine) Phase() Phase {
	return e.phase
}

// Remembered returns the sector that would fire if the modifier were released at now.
func (e *Engine) Remembered(now time.Time) sector.Name {
	if e.phase != Aiming || e.lastSector == sector.None {
		return sector.None
	}
	if e.cfg.RequiresMovement && now.Sub(e.lastSeen) > e.cfg.Memory {
		return sector.None
	}
	return e.lastSector
}

func (e *Engine) BlockHeld() bool {
	return e.blockHeld
}

// Smooth filters a stick position while aiming so jitter does not move the
// remembered sector. Outside Aiming, or with smoothing disabled, the position
// passes through and the filter restarts.
func (e *Engine) Smooth(x, y float64) (float64, float64) {
	if e.phase != Aiming || e.cfg.Smoothing == 0 || e.cfg.Smoothing == 1 {
		e.smoothX.reset()
		e.smoothY.reset()
		return x, y
	}
	return e.smoothX.update(x), e.smoothY.update(y)
}

func (e *Engine) Step(in Input) Result {
	active := e.activation(in.Modifier)
	if e.phase == Cooldown {
		if in.Now.Before(e.cooldownUntil) {
			e.toggled = false
			return Result{}
		}
		e.phase = Idle
	}

	switch e.phase {
	case Idle:
		if active {
			e.startAiming(in)
		}
	case Aiming:
		if in.Sector != sector.None {
			e.lastSector = in.Sector
			e.lastSeen = in.Now
		}
		if !active {
			return e.commit(in.Now)
		}
	}
	return Result{}
}

// activation turns the modifier level into the wanted aiming state: the level
// itself in hold mode, flipped on every press in toggle mode.
func (e *Engine) activation(modifier bool) bool {
	pressed := modifier && !e.modifierDown
	e.modifierDown = modifier
	if !e.cfg.Toggle {
		return modifier
	}
	if pressed {
		e.toggled = !e.toggled
	}
	return e.toggled
}

func (e *Engine) startAiming(in Input) {
	e.phase = Aiming
	e.lastSector = in.Sector
	e.lastSeen = in.Now
	if e.cfg.BlockWhileHeld {
		e.pressBlock()
	}
	e.logger.Debug("Aim started")
}

func (e *Engine) commit(now time.Time) Result {
	target := e.Remembered(now)
	e.releaseBlock()
	e.lastSector = sector.None
	e.toggled = false

	if target == sector.None {
		e.phase = Idle
		e.logger.Debug("Aim released without a direction")
		return Result{}
	}

	key, ok := e.cfg.Keys[target]
	if !ok {
		e.phase = Idle
		e.logger.Error("No key mapped for sector", slog.String("sector", string(target)))
		return Result{}
	}

	if err := e.sink.Press(key); err != nil {
		e.logger.Error("Aim press failed", slog.String("key", key.String()), slog.Any("error", err))
	} else {
		e.sleep(e.cfg.Hold)
	}
	if err := e.sink.Release(key); err != nil {
		e.logger.Error("Aim release failed", slog.String("key", key.String()), slog.Any("error", err))
	}

	e.phase = Cooldown
	e.cooldownUntil = now.Add(e.cfg.Cooldown)
	e.logger.Debug("Aim fired", slog.String("sector", string(target)), slog.String("key", key.String()))
	return Result{Fired: true, Sector: target}
}

func (e *Engine) pressBlock() {
	if err := e.sink.Press(e.cfg.BlockKey); err != nil {
		e.logger.Error("Block press failed", slog.Any("error", err))
		return
	}
	e.blockHeld = true
}

func (e *Engine) releaseBlock() {
	if !e.blockHeld {
		return
	}
	e.blockHeld = false
	if err := e.sink.Release(e.cfg.BlockKey); err != nil {
		e.logger.Error("Block release failed", slog.Any("error", err))
	}
}

// ReleaseAll drops an in-progress aim and releases the block key if held.
// Calling it again does nothing.
func (e *Engine) ReleaseAll() int {
	n := 0
	if e.blockHeld {
		n = 1
	}
	e.releaseBlock()
	if e.phase == Aiming {
		e.phase = Idle
	}
	e.lastSector = sector.None
	e.toggled = false
	return n
}
