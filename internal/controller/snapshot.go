package controller

import (
	"time"

	"github.com/chakramx/chakram/internal/sector"
	"github.com/chakramx/chakram/internal/utils"
)

// Snapshot is the read-only telemetry of one tick. A published Snapshot is
// never modified, so readers may keep it.
type Snapshot struct {
	Tick      uint64    `json:"tick"`
	Time      time.Time `json:"time"`
	Available bool      `json:"available"`

	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Angle    float64     `json:"angle"`
	Distance float64     `json:"distance"`
	Sector   sector.Name `json:"sector"`

	PredictedSector      sector.Name `json:"predictedSector"`
	PredictionConfidence float64     `json:"predictionConfidence"`

	State           string  `json:"state"`
	InDeadzone      bool    `json:"inDeadzone"`
	Deadzone        float64 `json:"deadzone"`
	Smoothness      float64 `json:"smoothness"`
	Speed           float64 `json:"speed"`
	DirectionChange float64 `json:"directionChange"`
	Quick           bool    `json:"quick"`
	// Trail is the recent position history, oldest first.
	Trail []utils.Vector `json:"trail"`

	GameState        string     `json:"gameState"`
	CombatManual     bool       `json:"combatManual"`
	InCombat         bool       `json:"inCombat"`
	CombatIntensity  float64    `json:"combatIntensity"`
	LastCombatAction *time.Time `json:"lastCombatAction,omitempty"`

	Held []string `json:"held"`

	Aim *AimSnapshot `json:"aim,omitempty"`

	TickOverruns int64         `json:"tickOverruns"`
	WorstTick    time.Duration `json:"worstTick"`
}

type AimSnapshot struct {
	Phase      string      `json:"phase"`
	Remembered sector.Name `json:"remembered"`
	BlockHeld  bool        `json:"blockHeld"`
}
