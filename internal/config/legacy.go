package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/chakramx/chakram/internal/utils"
)

// legacyConfig is the JSON document written by the previous desktop editor.
type legacyConfig struct {
	Deadzone               *float64                `json:"deadzone"`
	DeadzoneTimeThreshold  *float64                `json:"deadzone_time_threshold"`
	DeadzoneSpeedThreshold *float64                `json:"deadzone_speed_threshold"`
	ReleaseDelay           *float64                `json:"release_delay"`
	SectorChangeCooldown   *float64                `json:"sector_change_cooldown"`
	AltModeKey             *string                 `json:"alt_mode_key"`
	AltModeCursorOffset    *float64                `json:"alt_mode_cursor_offset"`
	Sectors                map[string]legacySector `json:"sectors"`
	KeyMappings            map[string]string       `json:"key_mappings"`
}

type legacySector struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ImportLegacyJSON converts a legacy JSON configuration into a resolved
// Config. Missing fields keep their defaults. Legacy sector tables are
// unordered, so sectors are ordered by start angle.
func ImportLegacyJSON(path string) (*Config, error) {
	data, err := utils.GetJsonData(path)
	if err != nil {
		return nil, fmt.Errorf("error reading legacy config %s: %w", path, err)
	}

	var legacy legacyConfig
	if err = json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("error parsing legacy config %s: %w", path, err)
	}

	cfg := Default()
	setFloat(&cfg.Deadzone, legacy.Deadzone)
	setFloat(&cfg.DeadzoneTimeThreshold, legacy.DeadzoneTimeThreshold)
	setFloat(&cfg.QuickMovementThreshold, legacy.DeadzoneSpeedThreshold)
	setFloat(&cfg.Transition.Cooldown, legacy.SectorChangeCooldown)
	setFloat(&cfg.Input.Mouse.Scale, legacy.AltModeCursorOffset)
	// A zero release delay meant "use the built-in settle".
	if legacy.ReleaseDelay != nil && *legacy.ReleaseDelay > 0 {
		cfg.Transition.Settle = *legacy.ReleaseDelay
	}

	if len(legacy.Sectors) > 0 {
		keys := cfg.defaultSectorKeys()
		cfg.Sectors = cfg.Sectors[:0]
		for name, s := range legacy.Sectors {
			key := keys[name]
			if k, ok := legacy.KeyMappings[name]; ok {
				key = k
			}
			cfg.Sectors = append(cfg.Sectors, SectorCfg{Name: name, Start: s.Start, End: s.End, Key: key})
		}
		sort.Slice(cfg.Sectors, func(i, j int) bool {
			return cfg.Sectors[i].Start < cfg.Sectors[j].Start
		})
	} else {
		for i, s := range cfg.Sectors {
			if k, ok := legacy.KeyMappings[s.Name]; ok {
				cfg.Sectors[i].Key = k
			}
		}
	}
	if k, ok := legacy.KeyMappings["cancel"]; ok {
		cfg.CancelKey = k
	}
	// The alt mode key gated the cursor driven mode; here it gates mouse axes.
	// The root field wins over the key mapping entry.
	if k, ok := legacy.KeyMappings["alt_mode"]; ok {
		cfg.Input.Mouse.Modifiers = []string{k}
	}
	if legacy.AltModeKey != nil && *legacy.AltModeKey != "" {
		cfg.Input.Mouse.Modifiers = []string{*legacy.AltModeKey}
	}

	if err = cfg.Resolve(); err != nil {
		return nil, fmt.Errorf("legacy config %s: %w", path, err)
	}
	return cfg, nil
}

// LegacyPath is where the previous desktop editor kept its configuration.
func LegacyPath(home string) string {
	return filepath.Join(home, ".chakram_controller", "config.json")
}

// MigrateLegacy imports legacyPath and saves it as path when path does not
// exist yet. It reports whether a configuration was imported; a missing
// legacy file is not an error.
func MigrateLegacy(path, legacyPath string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("error checking config %s: %w", path, err)
	}
	if _, err := os.Stat(legacyPath); os.IsNotExist(err) {
		return false, nil
	}

	cfg, err := ImportLegacyJSON(legacyPath)
	if err != nil {
		return false, err
	}
	if err = Save(path, cfg); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Config) defaultSectorKeys() map[string]string {
	keys := make(map[string]string, len(c.Sectors))
	for _, s := range c.Sectors {
		keys[s.Name] = s.Key
	}
	return keys
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
