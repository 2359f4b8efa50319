// Package adaptive composes the per-tick deadzone and transition smoothness
// from static configuration, the combat state and movement speed.
package adaptive

import (
	"github.com/chakramx/chakram/internal/utils"
)

// CombatParams is implemented by gamestate.Detector.
type CombatParams interface {
	OptimalDeadzone(base, combat float64) float64
	OptimalSmoothness(base, combat float64) float64
}

// SpeedFactors is implemented by motion.Analyzer.
type SpeedFactors interface {
	DynamicDeadzoneFactor(minFactor, maxFactor float64) float64
	TransitionSmoothnessFactor(minFactor, maxFactor float64) float64
}

type Range struct {
	Min float64
	Max float64
}

type Params struct {
	// Enabled false pins both outputs to their static base values.
	Enabled bool
	Dynamic bool

	Deadzone       float64
	CombatDeadzone float64
	DeadzoneFactor Range

	Smoothness       float64
	CombatSmoothness float64
	SmoothnessFactor Range
}

// EffectiveDeadzone applies, in order: static base, the game state's pick
// between base and combat value, speed factor. A nil g keeps the base.
func EffectiveDeadzone(p Params, g CombatParams, m SpeedFactors) float64 {
	if !p.Enabled {
		return p.Deadzone
	}

	dz := p.Deadzone
	if g != nil {
		dz = g.OptimalDeadzone(p.Deadzone, p.CombatDeadzone)
	}
	if p.Dynamic && m != nil {
		dz *= m.DynamicDeadzoneFactor(p.DeadzoneFactor.Min, p.DeadzoneFactor.Max)
	}
	return utils.Clamp(dz, 0, 1)
}

func TransitionSmoothness(p Params, g CombatParams, m SpeedFactors) float64 {
	if !p.Enabled {
		return p.Smoothness
	}

	s := p.Smoothness
	if g != nil {
		s = g.OptimalSmoothness(p.Smoothness, p.CombatSmoothness)
	}
	if p.Dynamic && m != nil {
		s *= m.TransitionSmoothnessFactor(p.SmoothnessFactor.Min, p.SmoothnessFactor.Max)
	}
	return s
}
