package aim

// ema is an exponential moving average. The first sample after a reset is
// taken as is; alpha weights every later one.
type ema struct {
	alpha  float64
	value  float64
	primed bool
}

func (f *ema) update(v float64) float64 {
	if !f.primed {
		f.value, f.primed = v, true
		return v
	}
	f.value = f.alpha*v + (1-f.alpha)*f.value
	return f.value
}

func (f *ema) reset() {
	f.value, f.primed = 0, false
}
