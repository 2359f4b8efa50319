//go:build !windows

package input

type Joystick struct{}

func OpenJoystick(id int) (*Joystick, error) {
	return nil, errUnsupportedPlatform
}

func (j *Joystick) Sample() (float64, float64, bool) { return 0, 0, false }
func (j *Joystick) Buttons() Buttons                 { return 0 }

func NewCursor() (Cursor, error) {
	return nil, errUnsupportedPlatform
}

func NewModifierReader(actions []Action) (ModifierReader, error) {
	return nil, errUnsupportedPlatform
}

func NewSystemSink() (BatchSink, error) {
	return nil, errUnsupportedPlatform
}
