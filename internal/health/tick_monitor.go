package health

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// TickMonitor tracks sustained control loop overruns.
// A tick that takes longer than Budget is an overrun; when overruns persist
// for Sustained the monitor warns once and keeps quiet until ticks recover.
type TickMonitor struct {
	OverrunStart time.Time
	Budget       time.Duration // Per tick budget (10ms at 100 Hz)
	Sustained    time.Duration // How long overruns must persist before warning
	Logger       *slog.Logger

	warned   bool
	overruns atomic.Int64
	worst    atomic.Int64
}

// NewTickMonitor creates a monitor with the given budget and sustain window
// Default: warn after 2 seconds of ticks over 10ms
func NewTickMonitor(logger *slog.Logger, budget, sustained time.Duration) *TickMonitor {
	if budget <= 0 {
		budget = 10 * time.Millisecond
	}
	if sustained <= 0 {
		sustained = 2 * time.Second
	}
	return &TickMonitor{
		Budget:    budget,
		Sustained: sustained,
		Logger:    logger,
	}
}

// Observe records one tick that started at now and took d.
// Returns true the first time an overrun episode exceeds Sustained.
func (tm *TickMonitor) Observe(now time.Time, d time.Duration) bool {
	if d > time.Duration(tm.worst.Load()) {
		tm.worst.Store(int64(d))
	}

	if d <= tm.Budget {
		if !tm.OverrunStart.IsZero() {
			if tm.warned {
				tm.Logger.Info("Tick duration returned to normal",
					slog.Duration("overrunDuration", now.Sub(tm.OverrunStart)))
			}
			tm.OverrunStart = time.Time{}
			tm.warned = false
		}
		return false
	}

	tm.overruns.Add(1)
	if tm.OverrunStart.IsZero() {
		tm.OverrunStart = now
		tm.Logger.Debug("Tick over budget",
			slog.Duration("tick", d),
			slog.Duration("budget", tm.Budget))
		return false
	}

	elapsed := now.Sub(tm.OverrunStart)
	if elapsed < tm.Sustained || tm.warned {
		return false
	}

	tm.warned = true
	tm.Logger.Warn("Sustained tick overrun detected",
		slog.Duration("tick", d),
		slog.Duration("budget", tm.Budget),
		slog.Duration("duration", elapsed))
	return true
}

// Overruns is the total number of ticks over budget. Safe to call from any goroutine.
func (tm *TickMonitor) Overruns() int64 {
	return tm.overruns.Load()
}

// Worst is the longest tick observed. Safe to call from any goroutine.
func (tm *TickMonitor) Worst() time.Duration {
	return time.Duration(tm.worst.Load())
}
