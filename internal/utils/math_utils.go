package utils

import (
	"math"
)

type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vector) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

func VectorAdd(v1, v2 Vector) Vector {
	var res = v1
	res.X += v2.X
	res.Y += v2.Y
	return res
}

func VectorSub(v1, v2 Vector) Vector {
	var res = v1
	res.X -= v2.X
	res.Y -= v2.Y
	return res
}

func VectorMultiply(v Vector, m float64) Vector {
	res := v
	res.X *= m
	res.Y *= m
	return res
}

func VectorDivide(v Vector, d float64) Vector {
	res := v
	res.X /= d
	res.Y /= d
	return res
}

// VectorClamp clamps each axis independently into [lo, hi].
func VectorClamp(v Vector, lo, hi float64) Vector {
	return Vector{X: Clamp(v.X, lo, hi), Y: Clamp(v.Y, lo, hi)}
}

func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// AngleDeg returns the polar angle of v in [0,360). 0° is +X and angles grow
// clockwise on screen because +Y points down.
func AngleDeg(v Vector) float64 {
	a := math.Atan2(v.Y, v.X) * 180 / math.Pi
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}

// Lerp interpolates from a to b by t in [0,1].
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
