//go:build !sdl

package input

import "fmt"

// SDLJoystick is only available in builds tagged sdl.
type SDLJoystick struct{}

func OpenSDLJoystick(index int) (*SDLJoystick, error) {
	return nil, fmt.Errorf("%w: built without sdl support", ErrDeviceUnavailable)
}

func (j *SDLJoystick) Name() string                     { return "" }
func (j *SDLJoystick) Sample() (float64, float64, bool) { return 0, 0, false }
func (j *SDLJoystick) Buttons() Buttons                 { return 0 }
func (j *SDLJoystick) Close() error                     { return nil }
