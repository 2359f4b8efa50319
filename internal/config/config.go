package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"

	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/sector"
	"github.com/chakramx/chakram/internal/utils"
)

const FileName = "chakram.yaml"

var (
	Version = "dev"

	ErrInvalidSectors = errors.New("invalid sector configuration")
	ErrInvalidKey     = errors.New("invalid key mapping")
)

const (
	SourceJoystick = "joystick"
	SourceSDL      = "sdl"
	SourceMouse    = "mouse"

	SinkSendInput = "sendinput"
	SinkLog       = "log"

	AimHold   = "hold"
	AimToggle = "toggle"
)

type SectorCfg struct {
	Name  string  `yaml:"name" json:"name"`
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
	Key   string  `yaml:"key" json:"key"`
}

type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type FactorRange struct {
	MinFactor float64 `yaml:"minFactor"`
	MaxFactor float64 `yaml:"maxFactor"`
}

// Config is read once and never mutated afterwards; a reload builds a new one.
// Durations are in seconds.
type Config struct {
	Debug struct {
		Log bool `yaml:"log"`
	} `yaml:"debug"`
	LogSaveDirectory string `yaml:"logSaveDirectory"`
	TickRate         int    `yaml:"tickRate"`

	Input struct {
		Source     string `yaml:"source"`
		JoystickID int    `yaml:"joystickId"`
		Mouse      struct {
			Scale       float64  `yaml:"scale"`
			PointerLock bool     `yaml:"pointerLock"`
			LockCenter  Point    `yaml:"lockCenter"`
			InvertY     bool     `yaml:"invertY"`
			Modifiers   []string `yaml:"modifiers"`
		} `yaml:"mouse"`
		Sink string `yaml:"sink"`
	} `yaml:"input"`

	Deadzone               float64     `yaml:"deadzone"`
	DeadzoneTimeThreshold  float64     `yaml:"deadzoneTimeThreshold"`
	QuickMovementThreshold float64     `yaml:"quickMovementThreshold"`
	Sectors                []SectorCfg `yaml:"sectors"`
	CancelKey              string      `yaml:"cancelKey"`

	Transition struct {
		Settle       float64 `yaml:"settle"`
		AtomicSettle float64 `yaml:"atomicSettle"`
		Timeout      float64 `yaml:"timeout"`
		Cooldown     float64 `yaml:"cooldown"`
	} `yaml:"transition"`

	Adaptive struct {
		Enabled         bool `yaml:"enabled"`
		DynamicDeadzone struct {
			Enabled     bool `yaml:"enabled"`
			FactorRange `yaml:",inline"`
		} `yaml:"dynamicDeadzone"`
		Smoothness struct {
			Base        float64 `yaml:"base"`
			FactorRange `yaml:",inline"`
		} `yaml:"smoothness"`
	} `yaml:"adaptive"`

	Prediction struct {
		Enabled             bool    `yaml:"enabled"`
		Horizon             float64 `yaml:"horizon"`
		ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	} `yaml:"prediction"`

	CombatMode struct {
		Enabled     bool    `yaml:"enabled"`
		StartActive bool    `yaml:"startActive"`
		Key         string  `yaml:"key"`
		Deadzone    float64 `yaml:"deadzone"`
		Smoothness  float64 `yaml:"smoothness"`
	} `yaml:"combatMode"`

	GameState struct {
		Enabled bool    `yaml:"enabled"`
		Timeout float64 `yaml:"timeout"`
		// Empty means every sector key counts as a combat key.
		CombatKeys []string `yaml:"combatKeys"`
	} `yaml:"gameState"`

	Aim struct {
		Enabled          bool    `yaml:"enabled"`
		Modifier         string  `yaml:"modifier"`
		Deadzone         float64 `yaml:"deadzone"`
		DirectionMemory  float64 `yaml:"directionMemory"`
		PressDuration    float64 `yaml:"pressDuration"`
		Cooldown         float64 `yaml:"cooldown"`
		RequiresMovement bool    `yaml:"requiresMovement"`
		BlockWhileHeld   bool    `yaml:"blockWhileHeld"`
		BlockKey         string  `yaml:"blockKey"`
		// Mode is AimHold or AimToggle.
		Mode string `yaml:"mode"`
		// Smoothing is the weight of a new sample in the aim position average;
		// 0 or 1 disables it.
		Smoothing float64 `yaml:"smoothing"`
	} `yaml:"aim"`

	Telemetry struct {
		Enabled      bool    `yaml:"enabled"`
		Port         int     `yaml:"port"`
		PushInterval float64 `yaml:"pushInterval"`
		// Statsview serves runtime charts on this address in builds tagged
		// statsview. Empty disables it.
		Statsview string `yaml:"statsview"`
	} `yaml:"telemetry"`

	Trace struct {
		Enabled   bool   `yaml:"enabled"`
		Path      string `yaml:"path"`
		QueueSize int    `yaml:"queueSize"`
		BatchSize int    `yaml:"batchSize"`
	} `yaml:"trace"`

	Health struct {
		TickBudget float64 `yaml:"tickBudget"`
		Sustained  float64 `yaml:"sustained"`
	} `yaml:"health"`

	Runtime Runtime `yaml:"-"`
}

// Runtime holds the values resolved from the raw configuration by Resolve.
type Runtime struct {
	Sectors        []sector.Def
	Keys           map[sector.Name]input.Action
	Cancel         input.Action
	CombatToggle   input.Action
	CombatKeys     []input.Action
	AimModifier    input.Action
	BlockKey       input.Action
	MouseModifiers []input.Action
}

// Default returns the built-in configuration. Load decodes on top of it, so
// any key missing from the file keeps its default.
func Default() *Config {
	c := &Config{}
	c.Debug.Log = true
	c.LogSaveDirectory = "logs"
	c.TickRate = 100

	c.Input.Source = SourceJoystick
	c.Input.Sink = SinkSendInput
	c.Input.Mouse.Scale = 50
	c.Input.Mouse.Modifiers = []string{"alt"}

	c.Deadzone = 0.15
	c.DeadzoneTimeThreshold = 0.05
	c.QuickMovementThreshold = 0.05
	c.Sectors = []SectorCfg{
		{Name: "overhead", Start: 225, End: 315, Key: "up"},
		{Name: "right", Start: 315, End: 45, Key: "right"},
		{Name: "thrust", Start: 45, End: 135, Key: "down"},
		{Name: "left", Start: 135, End: 225, Key: "left"},
	}
	c.CancelKey = "middle_mouse"

	c.Transition.Settle = 0.01
	c.Transition.Timeout = 0.2

	c.Adaptive.Enabled = true
	c.Adaptive.DynamicDeadzone.Enabled = true
	c.Adaptive.DynamicDeadzone.FactorRange = FactorRange{MinFactor: 0.8, MaxFactor: 1.5}
	c.Adaptive.Smoothness.Base = 1.0
	c.Adaptive.Smoothness.FactorRange = FactorRange{MinFactor: 0.7, MaxFactor: 1.3}

	c.Prediction.Enabled = true
	c.Prediction.Horizon = 0.1
	c.Prediction.ConfidenceThreshold = 0.7

	c.CombatMode.Enabled = true
	c.CombatMode.StartActive = true
	c.CombatMode.Key = "f1"
	c.CombatMode.Deadzone = 0.1
	c.CombatMode.Smoothness = 0.5

	c.GameState.Enabled = true
	c.GameState.Timeout = 5

	c.Aim.Modifier = "right_mouse"
	c.Aim.DirectionMemory = 0.25
	c.Aim.PressDuration = 0.05
	c.Aim.Cooldown = 0.2
	c.Aim.RequiresMovement = true
	c.Aim.Mode = AimHold
	c.Aim.Smoothing = 0.25

	c.Telemetry.Enabled = true
	c.Telemetry.Port = 8087
	c.Telemetry.PushInterval = 0.05

	c.Trace.Path = filepath.Join("traces", "chakram.db")
	c.Trace.QueueSize = 4096
	c.Trace.BatchSize = 256

	c.Health.TickBudget = 0.01
	c.Health.Sustained = 2
	return c
}

// Load reads path, applies defaults and resolves the result.
func Load(path string) (*Config, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", path, err)
	}
	defer r.Close()

	cfg := Default()
	d := yaml.NewDecoder(r)
	if err = d.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error reading config %s: %w", path, err)
	}
	if err = cfg.Resolve(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for in-memory yaml.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve normalizes numeric fields, validates the sector table and turns
// every key name into an input.Action.
func (c *Config) Resolve() error {
	c.normalize()

	rt := Runtime{Keys: make(map[sector.Name]input.Action, len(c.Sectors))}
	for _, s := range c.Sectors {
		rt.Sectors = append(rt.Sectors, sector.Def{Name: sector.Name(s.Name), Start: s.Start, End: s.End})
	}
	if err := sector.Validate(rt.Sectors); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSectors, err)
	}

	var err error
	for _, s := range c.Sectors {
		a, perr := parseKey("sector "+s.Name, s.Key)
		if perr != nil {
			return perr
		}
		rt.Keys[sector.Name(s.Name)] = a
	}
	if rt.Cancel, err = parseKey("cancelKey", c.CancelKey); err != nil {
		return err
	}

	if c.CombatMode.Key != "" {
		if rt.CombatToggle, err = parseKey("combatMode.key", c.CombatMode.Key); err != nil {
			return err
		}
	}

	if len(c.GameState.CombatKeys) == 0 {
		for _, s := range c.Sectors {
			rt.CombatKeys = append(rt.CombatKeys, rt.Keys[sector.Name(s.Name)])
		}
	}
	for _, k := range c.GameState.CombatKeys {
		a, perr := parseKey("gameState.combatKeys", k)
		if perr != nil {
			return perr
		}
		rt.CombatKeys = append(rt.CombatKeys, a)
	}

	if c.Aim.Enabled {
		if rt.AimModifier, err = parseKey("aim.modifier", c.Aim.Modifier); err != nil {
			return err
		}
	}
	if c.Aim.BlockWhileHeld {
		if rt.BlockKey, err = parseKey("aim.blockKey", c.Aim.BlockKey); err != nil {
			return err
		}
	}

	for _, m := range c.Input.Mouse.Modifiers {
		a, perr := parseKey("input.mouse.modifiers", m)
		if perr != nil {
			return perr
		}
		rt.MouseModifiers = append(rt.MouseModifiers, a)
	}

	switch c.Aim.Mode {
	case AimHold, AimToggle:
	default:
		return fmt.Errorf("unknown aim mode %q", c.Aim.Mode)
	}

	switch c.Input.Source {
	case SourceJoystick, SourceSDL, SourceMouse:
	default:
		return fmt.Errorf("unknown input source %q", c.Input.Source)
	}
	switch c.Input.Sink {
	case SinkSendInput, SinkLog:
	default:
		return fmt.Errorf("unknown input sink %q", c.Input.Sink)
	}

	c.Runtime = rt
	return nil
}

func parseKey(field, name string) (input.Action, error) {
	a, err := input.ParseAction(name)
	if err != nil {
		return input.Action{}, fmt.Errorf("%w: %s: %w", ErrInvalidKey, field, err)
	}
	return a, nil
}

func (c *Config) normalize() {
	c.Deadzone = utils.Clamp(c.Deadzone, 0, 1)
	c.CombatMode.Deadzone = utils.Clamp(c.CombatMode.Deadzone, 0, 1)
	if c.TickRate <= 0 {
		c.TickRate = 100
	}
	if c.Input.Mouse.Scale <= 0 {
		c.Input.Mouse.Scale = 50
	}
	if c.Aim.Deadzone <= 0 {
		c.Aim.Deadzone = c.Deadzone * 0.8
	}
	if c.Aim.Mode == "" {
		c.Aim.Mode = AimHold
	}
	c.Aim.Smoothing = utils.Clamp(c.Aim.Smoothing, 0, 1)
	if c.Telemetry.Port == 0 {
		c.Telemetry.Port = 8087
	}
	if c.Telemetry.PushInterval <= 0 {
		c.Telemetry.PushInterval = 0.05
	}
	if c.Trace.QueueSize <= 0 {
		c.Trace.QueueSize = 4096
	}
	if c.Trace.BatchSize <= 0 {
		c.Trace.BatchSize = 256
	}
	if dz := c.Adaptive.DynamicDeadzone; dz.MinFactor > dz.MaxFactor {
		c.Adaptive.DynamicDeadzone.MinFactor, c.Adaptive.DynamicDeadzone.MaxFactor = dz.MaxFactor, dz.MinFactor
	}
}

// TickInterval is the period of the control loop.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Save writes cfg as yaml to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	text, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err = os.WriteFile(path, text, 0644); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

// EnsureConfigDir copies templateDir to dir when dir holds no configuration yet.
// It reports whether a copy was made.
func EnsureConfigDir(dir, templateDir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("error checking config directory: %w", err)
	}

	if err := cp.Copy(templateDir, dir); err != nil {
		return false, fmt.Errorf("error copying template: %w", err)
	}
	return true, nil
}
