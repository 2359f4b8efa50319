package trace

import (
	"time"

	"github.com/chakramx/chakram/internal/motion"
)

// ReplaySource plays recorded samples back as an input.Source. Next advances
// to the following sample and reports its timestamp; Sample returns the
// current one.
type ReplaySource struct {
	samples []motion.Sample
	pos     int
}

func NewReplaySource(samples []motion.Sample) *ReplaySource {
	return &ReplaySource{samples: samples, pos: -1}
}

func (r *ReplaySource) Next() (time.Time, bool) {
	if r.pos+1 >= len(r.samples) {
		return time.Time{}, false
	}
	r.pos++
	return r.samples[r.pos].T, true
}

func (r *ReplaySource) Sample() (float64, float64, bool) {
	if r.pos < 0 || r.pos >= len(r.samples) {
		return 0, 0, false
	}
	s := r.samples[r.pos]
	return s.X, s.Y, true
}

func (r *ReplaySource) Len() int {
	return len(r.samples)
}

func (r *ReplaySource) Rewind() {
	r.pos = -1
}
