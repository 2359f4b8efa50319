// Package gamestate infers whether the controlled application is in an
// action-intensive phase from how recently combat keys were held.
package gamestate

import (
	"log/slog"
	"time"

	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/utils"
)

const (
	DefaultTimeout = 5 * time.Second

	intensityHistory = 20
	// 10 combat actions every 3 seconds counts as full intensity.
	intensityActions = 10
	intensityWindow  = 3 * time.Second
)

type State int

const (
	Exploration State = iota
	Combat
)

func (s State) String() string {
	if s == Combat {
		return "combat"
	}
	return "exploration"
}

// Detector is a hysteresis filter over the held key set: a single combat key
// observation keeps the state in Combat until the timeout elapses. A manual
// override forces combat parameters regardless of the detected state.
type Detector struct {
	logger     *slog.Logger
	combatKeys map[input.ID]struct{}
	timeout    time.Duration

	state      State
	manual     bool
	lastAction time.Time
	// Ticks with a combat key held, oldest first, bounded by intensityHistory.
	actions []time.Time
}

func NewDetector(logger *slog.Logger, combatKeys []input.Action, timeout time.Duration) *Detector {
	d := &Detector{logger: logger}
	d.Configure(combatKeys, timeout)
	return d
}

// Configure replaces the combat keys and timeout, keeping the observed history.
func (d *Detector) Configure(combatKeys []input.Action, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	keys := make(map[input.ID]struct{}, len(combatKeys))
	for _, k := range combatKeys {
		keys[k.ID()] = struct{}{}
	}
	d.combatKeys = keys
	d.timeout = timeout
}

// Update feeds the currently held actions observed at now and returns the
// resulting state. Every tick with a combat key held counts as one observation.
func (d *Detector) Update(held []input.Action, now time.Time) State {
	active := false
	for _, a := range held {
		if _, ok := d.combatKeys[a.ID()]; ok {
			active = true
			break
		}
	}

	next := d.state
	switch {
	case active:
		d.recordAction(now)
		d.lastAction = now
		next = Combat
	case !d.lastAction.IsZero() && now.Sub(d.lastAction) < d.timeout:
		next = Combat
	default:
		next = Exploration
	}

	if next != d.state {
		d.logger.Info("Game state changed",
			slog.String("from", d.state.String()),
			slog.String("to", next.String()))
		d.state = next
	}
	return d.state
}

func (d *Detector) recordAction(now time.Time) {
	if len(d.actions) == intensityHistory {
		copy(d.actions, d.actions[1:])
		d.actions = d.actions[:intensityHistory-1]
	}
	d.actions = append(d.actions, now)
}

func (d *Detector) State() State {
	return d.state
}

// SetManual sets the manual combat override.
func (d *Detector) SetManual(on bool) {
	d.manual = on
}

func (d *Detector) Manual() bool {
	return d.manual
}

// InCombat reports whether combat parameters apply: detected combat or the
// manual override.
func (d *Detector) InCombat() bool {
	return d.state == Combat || d.manual
}

func (d *Detector) LastAction() time.Time {
	return d.lastAction
}

// OptimalDeadzone returns combat while InCombat, base otherwise.
func (d *Detector) OptimalDeadzone(base, combat float64) float64 {
	if d.InCombat() {
		return combat
	}
	return base
}

func (d *Detector) OptimalSmoothness(base, combat float64) float64 {
	if d.InCombat() {
		return combat
	}
	return base
}

// Intensity reports combat key activity inside window as a value in [0,1].
// A non-positive window uses the default 3s.
func (d *Detector) Intensity(now time.Time, window time.Duration) float64 {
	if window <= 0 {
		window = intensityWindow
	}
	count := 0
	for _, t := range d.actions {
		if now.Sub(t) <= window {
			count++
		}
	}
	expected := intensityActions * window.Seconds() / intensityWindow.Seconds()
	return utils.Clamp(float64(count)/expected, 0, 1)
}

// Reset forgets the detected state, the history and the manual override.
func (d *Detector) Reset() {
	d.state = Exploration
	d.manual = false
	d.lastAction = time.Time{}
	d.actions = nil
}
