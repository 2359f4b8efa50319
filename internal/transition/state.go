package transition

import (
	"fmt"
	"time"

	"github.com/chakramx/chakram/internal/sector"
)

type Phase int

const (
	Neutral Phase = iota
	Active
	Changing
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "active"
	case Changing:
		return "changing"
	}
	return "neutral"
}

// State is the sequencer state. Sector is set for Active; From, To and
// Started are set for Changing.
type State struct {
	Phase   Phase
	Sector  sector.Name
	From    sector.Name
	To      sector.Name
	Started time.Time
}

func (s State) String() string {
	switch s.Phase {
	case Active:
		return fmt.Sprintf("active(%s)", s.Sector)
	case Changing:
		return fmt.Sprintf("changing(%s->%s)", s.From, s.To)
	}
	return "neutral"
}

// Input is everything the sequencer needs from one tick.
type Input struct {
	// Sector is the classified (or predicted) sector, None inside the deadzone.
	Sector     sector.Name
	InDeadzone bool
	Quick      bool
	Now        time.Time
}

// Result describes what a Step did, for events and telemetry.
type Result struct {
	From      sector.Name
	To        sector.Name
	Changed   bool
	Atomic    bool
	Deferred  bool
	Neutral   bool
	Released  int
	Recovered bool
	Failed    bool
}
