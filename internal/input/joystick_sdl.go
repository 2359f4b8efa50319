//go:build sdl

package input

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"
)

const sdlAxisMax = 32767

// SDLJoystick polls a joystick or gamepad through SDL2. It works on every
// platform SDL supports, including the ones winmm does not.
type SDLJoystick struct {
	joy     *sdl.Joystick
	buttons Buttons
}

func OpenSDLJoystick(index int) (*SDLJoystick, error) {
	if err := sdl.InitSubSystem(sdl.INIT_JOYSTICK); err != nil {
		return nil, fmt.Errorf("%w: sdl: %w", ErrDeviceUnavailable, err)
	}
	if index < 0 || index >= sdl.NumJoysticks() {
		sdl.QuitSubSystem(sdl.INIT_JOYSTICK)
		return nil, fmt.Errorf("%w: sdl joystick %d", ErrDeviceUnavailable, index)
	}

	joy := sdl.JoystickOpen(index)
	if joy == nil || !joy.Attached() {
		sdl.QuitSubSystem(sdl.INIT_JOYSTICK)
		return nil, fmt.Errorf("%w: sdl joystick %d not attached", ErrDeviceUnavailable, index)
	}
	return &SDLJoystick{joy: joy}, nil
}

func (j *SDLJoystick) Name() string {
	return j.joy.Name()
}

func (j *SDLJoystick) Sample() (float64, float64, bool) {
	sdl.JoystickUpdate()
	if !j.joy.Attached() {
		return 0, 0, false
	}

	j.buttons = 0
	if j.joy.Button(0) != 0 {
		j.buttons |= ButtonCancel
	}
	if j.joy.Button(1) != 0 {
		j.buttons |= ButtonCombatToggle
	}

	x := clampUnit(float64(j.joy.Axis(0)) / sdlAxisMax)
	y := clampUnit(float64(j.joy.Axis(1)) / sdlAxisMax)
	return x, y, true
}

func (j *SDLJoystick) Buttons() Buttons {
	return j.buttons
}

func (j *SDLJoystick) Close() error {
	j.joy.Close()
	sdl.QuitSubSystem(sdl.INIT_JOYSTICK)
	return nil
}
