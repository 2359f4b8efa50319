package utils

import (
	"time"
)

// Sleeper blocks the calling goroutine for d. It is injected wherever a fixed
// settle delay is needed so tests can observe it instead of waiting.
type Sleeper func(d time.Duration)

// Sleep is a bounded sleep: non-positive durations return immediately and
// anything above MaxSettle is capped.
func Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d > MaxSettle {
		d = MaxSettle
	}
	time.Sleep(d)
}

// MaxSettle caps every in-tick delay so a misconfigured value cannot stall the loop.
const MaxSettle = 250 * time.Millisecond

// Seconds converts a float seconds config value into a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
