package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/chakramx/chakram/internal/config"
	"github.com/chakramx/chakram/internal/controller"
	"github.com/chakramx/chakram/internal/input"
)

type devices struct {
	closer      io.Closer
	source      input.Source
	sink        input.Sink
	combatKey   input.ModifierReader
	aimModifier input.ModifierReader
}

func (d devices) options() controller.Options {
	return controller.Options{
		Source:      d.source,
		Sink:        d.sink,
		CombatKey:   d.combatKey,
		AimModifier: d.aimModifier,
	}
}

func openDevices(logger *slog.Logger, cfg *config.Config) (devices, error) {
	var d devices
	var err error

	if d.source, err = openSource(logger, cfg); err != nil {
		return d, err
	}
	if c, ok := d.source.(io.Closer); ok {
		d.closer = c
	}

	switch cfg.Input.Sink {
	case config.SinkLog:
		d.sink = input.NewLogSink(logger)
	default:
		if d.sink, err = input.NewSystemSink(); err != nil {
			return d, fmt.Errorf("error opening input sink: %w", err)
		}
	}

	if cfg.CombatMode.Enabled && !cfg.Runtime.CombatToggle.IsZero() {
		if d.combatKey, err = input.NewModifierReader([]input.Action{cfg.Runtime.CombatToggle}); err != nil {
			return d, fmt.Errorf("error opening combat key: %w", err)
		}
	}
	if cfg.Aim.Enabled {
		if d.aimModifier, err = input.NewModifierReader([]input.Action{cfg.Runtime.AimModifier}); err != nil {
			return d, fmt.Errorf("error opening aim modifier: %w", err)
		}
	}

	logger.Info("Input devices ready",
		slog.String("source", cfg.Input.Source),
		slog.String("sink", cfg.Input.Sink))
	return d, nil
}

func (d devices) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func openSource(logger *slog.Logger, cfg *config.Config) (input.Source, error) {
	switch cfg.Input.Source {
	case config.SourceSDL:
		joystick, err := input.OpenSDLJoystick(cfg.Input.JoystickID)
		if err != nil {
			return nil, fmt.Errorf("error opening sdl joystick %d: %w", cfg.Input.JoystickID, err)
		}
		logger.Info("SDL joystick opened", slog.String("name", joystick.Name()))
		return joystick, nil
	case config.SourceMouse:
		cursor, err := input.NewCursor()
		if err != nil {
			return nil, fmt.Errorf("error opening cursor: %w", err)
		}
		var modifier input.ModifierReader
		if len(cfg.Runtime.MouseModifiers) > 0 {
			if modifier, err = input.NewModifierReader(cfg.Runtime.MouseModifiers); err != nil {
				return nil, fmt.Errorf("error opening mouse modifiers: %w", err)
			}
		}
		m := cfg.Input.Mouse
		return input.NewMouseAxes(cursor, modifier, input.MouseAxesOptions{
			Scale:       m.Scale,
			PointerLock: m.PointerLock,
			LockCenterX: m.LockCenter.X,
			LockCenterY: m.LockCenter.Y,
			InvertY:     m.InvertY,
			Gated:       modifier != nil,
		}), nil
	}

	joystick, err := input.OpenJoystick(cfg.Input.JoystickID)
	if err != nil {
		return nil, fmt.Errorf("error opening joystick %d: %w", cfg.Input.JoystickID, err)
	}
	return joystick, nil
}
