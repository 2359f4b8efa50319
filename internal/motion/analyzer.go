// Package motion tracks recent input samples and derives velocity,
// acceleration and a short horizon position prediction from them.
package motion

import (
	"math"
	"time"

	"github.com/chakramx/chakram/internal/sector"
	"github.com/chakramx/chakram/internal/utils"
)

const (
	DefaultHistorySize = 15
	DefaultHorizon     = 100 * time.Millisecond

	// Speeds (units/s) bounding the linear part of the adaptive factor curve.
	slowSpeed = 0.5
	fastSpeed = 2.0

	minPredictSpeed      = 0.5
	minPredictConfidence = 0.3
)

type velocitySample struct {
	v        utils.Vector
	from, to time.Time
}

// Prediction is the extrapolated position after the horizon. Sector is None
// when the confidence is too low or the position lands inside the deadzone.
type Prediction struct {
	Valid      bool
	Position   utils.Vector
	Sector     sector.Name
	Confidence float64
}

type Metrics struct {
	Position     utils.Vector
	Velocity     utils.Vector
	Speed        float64
	Acceleration utils.Vector
	// Direction of travel in degrees, same convention as sector angles.
	Direction  float64
	Prediction Prediction
}

// Analyzer is owned by the tick goroutine and is not safe for concurrent use.
type Analyzer struct {
	positions  *ring[Sample]
	velocities *ring[velocitySample]
	horizon    time.Duration

	velocity     utils.Vector
	speed        float64
	acceleration utils.Vector
	direction    float64
	prediction   Prediction
}

func NewAnalyzer(historySize int, horizon time.Duration) *Analyzer {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Analyzer{
		positions:  newRing[Sample](historySize),
		velocities: newRing[velocitySample](historySize),
		horizon:    horizon,
	}
}

// SetHorizon changes the prediction horizon; non-positive means the default.
func (a *Analyzer) SetHorizon(horizon time.Duration) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	a.horizon = horizon
}

// Update records s and recomputes every derived metric.
func (a *Analyzer) Update(s Sample) Metrics {
	a.positions.push(s)

	if prev, ok := a.positions.back(1); ok {
		if dt := s.T.Sub(prev.T).Seconds(); dt > 0 {
			v := utils.VectorDivide(utils.VectorSub(s.Position(), prev.Position()), dt)
			a.velocities.push(velocitySample{v: v, from: prev.T, to: s.T})
			a.velocity = v
			a.speed = v.Len()
			if !v.IsZero() {
				a.direction = utils.AngleDeg(v)
			}
		}
	}

	if a.velocities.len() >= 2 {
		cur, _ := a.velocities.back(0)
		prev, _ := a.velocities.back(1)
		if dt := cur.to.Sub(prev.from).Seconds(); dt > 0 && cur.to.Equal(s.T) {
			a.acceleration = utils.VectorDivide(utils.VectorSub(cur.v, prev.v), dt)
		}
	}

	a.predict()
	return a.Metrics()
}

func (a *Analyzer) predict() {
	cur, ok := a.positions.back(0)
	if a.positions.len() < 2 || a.velocities.len() < 1 || !ok {
		a.prediction = Prediction{}
		return
	}

	step := utils.VectorMultiply(a.velocity, a.horizon.Seconds())
	a.prediction = Prediction{
		Valid:    true,
		Position: utils.VectorClamp(utils.VectorAdd(cur.Position(), step), -1, 1),
	}
	if a.speed > minPredictSpeed {
		a.prediction.Confidence = math.Min(1, a.speed/2)
	}
}

func (a *Analyzer) Metrics() Metrics {
	var pos utils.Vector
	if cur, ok := a.positions.back(0); ok {
		pos = cur.Position()
	}
	return Metrics{
		Position:     pos,
		Velocity:     a.velocity,
		Speed:        a.speed,
		Acceleration: a.acceleration,
		Direction:    a.direction,
		Prediction:   a.prediction,
	}
}

// Predict classifies the predicted position against deadzone.
func (a *Analyzer) Predict(c *sector.Classifier, deadzone float64) Prediction {
	p := a.prediction
	if !p.Valid || p.Confidence < minPredictConfidence {
		p.Sector = sector.None
		return p
	}
	p.Sector = c.ClassifyXY(p.Position.X, p.Position.Y, deadzone)
	return p
}

func (a *Analyzer) Speed() float64 {
	return a.speed
}

func (a *Analyzer) IsQuickMovement(threshold float64) bool {
	return a.speed > threshold
}

// speedFactor maps speed onto [minFactor, maxFactor]: slow movement gets
// maxFactor, fast movement gets minFactor, linear in between.
func (a *Analyzer) speedFactor(minFactor, maxFactor float64) float64 {
	switch {
	case a.speed < slowSpeed:
		return maxFactor
	case a.speed > fastSpeed:
		return minFactor
	}
	t := (a.speed - slowSpeed) / (fastSpeed - slowSpeed)
	return utils.Lerp(maxFactor, minFactor, t)
}

// DynamicDeadzoneFactor shrinks the deadzone for fast movement and grows it for slow, precise movement.
func (a *Analyzer) DynamicDeadzoneFactor(minFactor, maxFactor float64) float64 {
	return a.speedFactor(minFactor, maxFactor)
}

func (a *Analyzer) TransitionSmoothnessFactor(minFactor, maxFactor float64) float64 {
	return a.speedFactor(minFactor, maxFactor)
}

// DirectionChange returns how many degrees (0-180) the direction of travel
// turned between the last two displacement segments.
func (a *Analyzer) DirectionChange() float64 {
	p3, ok3 := a.positions.back(0)
	p2, ok2 := a.positions.back(1)
	p1, ok1 := a.positions.back(2)
	if !ok1 || !ok2 || !ok3 {
		return 0
	}

	oldSeg := utils.VectorSub(p2.Position(), p1.Position())
	newSeg := utils.VectorSub(p3.Position(), p2.Position())
	if oldSeg.IsZero() || newSeg.IsZero() {
		return 0
	}

	diff := math.Abs(utils.AngleDeg(newSeg) - utils.AngleDeg(oldSeg))
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// Trail returns the recorded positions, oldest first.
func (a *Analyzer) Trail() []utils.Vector {
	samples := a.positions.slice()
	out := make([]utils.Vector, len(samples))
	for i, s := range samples {
		out[i] = s.Position()
	}
	return out
}

func (a *Analyzer) Reset() {
	a.positions.reset()
	a.velocities.reset()
	a.velocity = utils.Vector{}
	a.speed = 0
	a.acceleration = utils.Vector{}
	a.direction = 0
	a.prediction = Prediction{}
}
