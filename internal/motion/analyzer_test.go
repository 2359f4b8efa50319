package motion

import (
	"math"
	"testing"
	"time"

	"github.com/chakramx/chakram/internal/sector"
)

var epoch = time.Unix(1_700_000_000, 0)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func compass(t *testing.T) *sector.Classifier {
	t.Helper()
	c, err := sector.NewClassifier([]sector.Def{
		{Name: "N", Start: 315, End: 45},
		{Name: "E", Start: 45, End: 135},
		{Name: "S", Start: 135, End: 225},
		{Name: "W", Start: 225, End: 315},
	})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func TestRingEvictsOldest(t *testing.T) {
	r := newRing[int](15)
	for i := 0; i < 20; i++ {
		r.push(i)
	}
	if r.len() != 15 {
		t.Fatalf("len = %d, want 15", r.len())
	}
	got := r.slice()
	if got[0] != 5 || got[14] != 19 {
		t.Fatalf("ring contents = %v", got)
	}
	if v, _ := r.back(0); v != 19 {
		t.Fatalf("newest = %d, want 19", v)
	}
	if _, ok := r.back(15); ok {
		t.Fatalf("back(15) must be out of range")
	}
}

func TestAnalyzerHistoryIsBounded(t *testing.T) {
	a := NewAnalyzer(DefaultHistorySize, 0)
	for i := 0; i < 40; i++ {
		a.Update(Sample{X: float64(i) / 100, T: at(i * 10)})
	}
	if n := len(a.Trail()); n != DefaultHistorySize {
		t.Fatalf("trail length = %d, want %d", n, DefaultHistorySize)
	}
}

func TestVelocityAndSpeed(t *testing.T) {
	a := NewAnalyzer(0, 0)
	a.Update(Sample{X: 0, Y: 0, T: at(0)})
	m := a.Update(Sample{X: 0.06, Y: 0.08, T: at(10)})

	if !approx(m.Velocity.X, 6) || !approx(m.Velocity.Y, 8) {
		t.Fatalf("velocity = %+v, want (6,8)", m.Velocity)
	}
	if !approx(m.Speed, 10) {
		t.Fatalf("speed = %v, want 10", m.Speed)
	}
	if !a.IsQuickMovement(5) || a.IsQuickMovement(10.5) {
		t.Fatalf("quick movement threshold must be strict")
	}
}

func TestZeroDeltaKeepsPreviousVelocity(t *testing.T) {
	a := NewAnalyzer(0, 0)
	a.Update(Sample{X: 0, T: at(0)})
	a.Update(Sample{X: 0.1, T: at(10)})
	m := a.Update(Sample{X: 0.5, T: at(10)})

	if !approx(m.Velocity.X, 10) {
		t.Fatalf("velocity after zero dt = %+v, want previous (10,0)", m.Velocity)
	}
	if math.IsInf(m.Acceleration.X, 0) || math.IsNaN(m.Acceleration.X) {
		t.Fatalf("acceleration must stay finite, got %+v", m.Acceleration)
	}
}

func TestAcceleration(t *testing.T) {
	a := NewAnalyzer(0, 0)
	a.Update(Sample{X: 0, T: at(0)})
	a.Update(Sample{X: 0.1, T: at(100)})
	m := a.Update(Sample{X: 0.3, T: at(200)})

	// velocities 1 and 2 units/s over a 0.2s span
	if !approx(m.Acceleration.X, 5) {
		t.Fatalf("acceleration = %+v, want (5,0)", m.Acceleration)
	}
}

func TestPredictionClampsAndScoresConfidence(t *testing.T) {
	a := NewAnalyzer(0, 0)
	a.Update(Sample{X: 0.8, T: at(0)})
	m := a.Update(Sample{X: 0.9, T: at(10)})

	p := m.Prediction
	if !p.Valid {
		t.Fatalf("expected a prediction")
	}
	if p.Position.X != 1 {
		t.Fatalf("predicted x = %v, want clamped 1", p.Position.X)
	}
	if p.Confidence != 1 {
		t.Fatalf("confidence = %v, want 1", p.Confidence)
	}
}

func TestPredictionConfidenceBounds(t *testing.T) {
	a := NewAnalyzer(0, 0)
	a.Update(Sample{T: at(0)})
	for i := 1; i < 200; i++ {
		x := math.Sin(float64(i) / 7)
		y := math.Cos(float64(i) / 3)
		m := a.Update(Sample{X: x, Y: y, T: at(i * 10 * (i%3 + 1))})
		c := m.Prediction.Confidence
		if c < 0 || c > 1 {
			t.Fatalf("confidence %v outside [0,1]", c)
		}
		if m.Speed <= 0.5 && c != 0 {
			t.Fatalf("confidence %v with speed %v, want 0", c, m.Speed)
		}
	}
}

func TestPredictSector(t *testing.T) {
	c := compass(t)

	a := NewAnalyzer(0, 0)
	a.Update(Sample{X: 0, Y: 0, T: at(0)})
	a.Update(Sample{X: 0, Y: 0.1, T: at(10)})
	if got := a.Predict(c, 0.15); got.Sector != "E" {
		t.Fatalf("predicted sector = %q, want E", got.Sector)
	}

	back := NewAnalyzer(0, 0)
	back.Update(Sample{X: 0.3, T: at(0)})
	back.Update(Sample{X: 0.28, T: at(10)})
	if got := back.Predict(c, 0.15); got.Sector != sector.None || !got.Valid {
		t.Fatalf("prediction landing in the deadzone = %+v, want valid with no sector", got)
	}

	slow := NewAnalyzer(0, 0)
	slow.Update(Sample{X: 0.5, T: at(0)})
	slow.Update(Sample{X: 0.501, T: at(10)})
	if got := slow.Predict(c, 0.15); got.Sector != sector.None || got.Confidence != 0 {
		t.Fatalf("slow movement must not predict, got %+v", got)
	}

	empty := NewAnalyzer(0, 0)
	if got := empty.Predict(c, 0.15); got.Valid || got.Sector != sector.None {
		t.Fatalf("no history must not predict, got %+v", got)
	}
}

func TestSpeedFactorCurve(t *testing.T) {
	tests := []struct {
		speed float64
		want  float64
	}{
		{0, 1.5},
		{0.49, 1.5},
		{0.5, 1.5},
		{1.25, 1.15},
		{2.0, 0.8},
		{2.01, 0.8},
		{10, 0.8},
	}
	for _, tt := range tests {
		a := NewAnalyzer(0, 0)
		a.speed = tt.speed
		if got := a.DynamicDeadzoneFactor(0.8, 1.5); !approx(got, tt.want) {
			t.Errorf("factor at speed %v = %v, want %v", tt.speed, got, tt.want)
		}
		if got := a.TransitionSmoothnessFactor(0.8, 1.5); !approx(got, tt.want) {
			t.Errorf("smoothness factor at speed %v = %v, want %v", tt.speed, got, tt.want)
		}
	}
}

func TestDirectionChange(t *testing.T) {
	a := NewAnalyzer(0, 0)
	a.Update(Sample{X: 0, Y: 0, T: at(0)})
	a.Update(Sample{X: 0.1, Y: 0, T: at(10)})
	a.Update(Sample{X: 0.1, Y: 0.1, T: at(20)})
	if got := a.DirectionChange(); !approx(got, 90) {
		t.Fatalf("direction change = %v, want 90", got)
	}

	a.Update(Sample{X: 0.1, Y: 0.1, T: at(30)})
	if got := a.DirectionChange(); got != 0 {
		t.Fatalf("standing still must report 0, got %v", got)
	}
}

func TestReset(t *testing.T) {
	a := NewAnalyzer(0, 0)
	a.Update(Sample{X: 0, T: at(0)})
	a.Update(Sample{X: 0.5, T: at(10)})
	a.Reset()

	m := a.Metrics()
	if m.Speed != 0 || m.Prediction.Valid || len(a.Trail()) != 0 {
		t.Fatalf("reset left state behind: %+v", m)
	}
}

func BenchmarkAnalyzerUpdate(b *testing.B) {
	a := NewAnalyzer(DefaultHistorySize, DefaultHorizon)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		angle := float64(i%360) * math.Pi / 180
		a.Update(Sample{X: math.Cos(angle), Y: math.Sin(angle), T: epoch.Add(time.Duration(i) * 10 * time.Millisecond)})
	}
}
