package input

import "math"

// Source yields normalized axis values in [-1,1]. ok is false when the device
// is unavailable, in which case the caller skips the tick.
type Source interface {
	Sample() (x, y float64, ok bool)
}

type Buttons uint32

const (
	ButtonCancel Buttons = 1 << iota
	ButtonCombatToggle
)

func (b Buttons) Has(flag Buttons) bool {
	return b&flag != 0
}

// ButtonReader is implemented by sources that also expose device buttons.
type ButtonReader interface {
	Buttons() Buttons
}

// ModifierReader reports whether the aim modifier is currently held.
type ModifierReader interface {
	ModifierHeld() bool
}

// Cursor is an absolute pointer position provider.
type Cursor interface {
	Position() (x, y int, ok bool)
	SetPosition(x, y int) error
}

type MouseAxesOptions struct {
	Scale       float64
	PointerLock bool
	LockCenterX int
	LockCenterY int
	InvertY     bool
	// Gated makes the axes report zero unless Modifier reports held.
	Gated bool
}

// MouseAxes converts relative pointer motion into joystick-like axes.
type MouseAxes struct {
	cursor   Cursor
	modifier ModifierReader
	opts     MouseAxesOptions
	lastX    int
	lastY    int
	primed   bool
}

func NewMouseAxes(cursor Cursor, modifier ModifierReader, opts MouseAxesOptions) *MouseAxes {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	return &MouseAxes{cursor: cursor, modifier: modifier, opts: opts}
}

func (m *MouseAxes) Sample() (float64, float64, bool) {
	px, py, ok := m.cursor.Position()
	if !ok {
		return 0, 0, false
	}

	if !m.primed {
		m.primed = true
		m.remember(px, py)
		return 0, 0, true
	}

	dx := px - m.lastX
	dy := py - m.lastY
	m.remember(px, py)

	if m.opts.Gated && (m.modifier == nil || !m.modifier.ModifierHeld()) {
		return 0, 0, true
	}

	x := clampUnit(float64(dx) / m.opts.Scale)
	y := clampUnit(float64(dy) / m.opts.Scale)
	if m.opts.InvertY {
		y = -y
	}
	return x, y, true
}

func (m *MouseAxes) ModifierHeld() bool {
	return m.modifier != nil && m.modifier.ModifierHeld()
}

func (m *MouseAxes) remember(px, py int) {
	if m.opts.PointerLock {
		// Re-centre so the pointer never hits a screen edge mid flick.
		if err := m.cursor.SetPosition(m.opts.LockCenterX, m.opts.LockCenterY); err == nil {
			m.lastX, m.lastY = m.opts.LockCenterX, m.opts.LockCenterY
			return
		}
	}
	m.lastX, m.lastY = px, py
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
