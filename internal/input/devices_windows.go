//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"github.com/chakramx/chakram/internal/utils/winproc"
	"github.com/lxn/win"
)

const joyAxisCenter = 32767.5

// Joystick polls a winmm joystick. Button 0 is the cancel button and button 1
// toggles combat mode.
type Joystick struct {
	id      uint32
	buttons Buttons
}

func OpenJoystick(id int) (*Joystick, error) {
	n, _, _ := winproc.JoyGetNumDev.Call()
	if n == 0 || id < 0 || uint32(id) >= uint32(n) {
		return nil, fmt.Errorf("%w: joystick %d", ErrDeviceUnavailable, id)
	}
	j := &Joystick{id: uint32(id)}
	if _, _, ok := j.Sample(); !ok {
		return nil, fmt.Errorf("%w: joystick %d not responding", ErrDeviceUnavailable, id)
	}
	return j, nil
}

func (j *Joystick) Sample() (float64, float64, bool) {
	info := winproc.JOYINFOEX{Flags: winproc.JOY_RETURNALL}
	info.Size = uint32(unsafe.Sizeof(info))
	ret, _, _ := winproc.JoyGetPosEx.Call(uintptr(j.id), uintptr(unsafe.Pointer(&info)))
	if ret != winproc.JOYERR_NOERROR {
		return 0, 0, false
	}

	j.buttons = 0
	if info.Buttons&0x1 != 0 {
		j.buttons |= ButtonCancel
	}
	if info.Buttons&0x2 != 0 {
		j.buttons |= ButtonCombatToggle
	}

	x := clampUnit((float64(info.Xpos) - joyAxisCenter) / joyAxisCenter)
	y := clampUnit((float64(info.Ypos) - joyAxisCenter) / joyAxisCenter)
	return x, y, true
}

func (j *Joystick) Buttons() Buttons {
	return j.buttons
}

// Win32Cursor reads and warps the system cursor.
type Win32Cursor struct{}

func NewCursor() (Cursor, error) {
	return Win32Cursor{}, nil
}

func (Win32Cursor) Position() (int, int, bool) {
	var pt win.POINT
	if !win.GetCursorPos(&pt) {
		return 0, 0, false
	}
	return int(pt.X), int(pt.Y), true
}

func (Win32Cursor) SetPosition(x, y int) error {
	if !win.SetCursorPos(int32(x), int32(y)) {
		return fmt.Errorf("%w: SetCursorPos", ErrInjectionFailed)
	}
	return nil
}

// AsyncKeyState reports a modifier as held when any of its actions is down.
type AsyncKeyState struct {
	vks []int32
}

func NewModifierReader(actions []Action) (ModifierReader, error) {
	m := &AsyncKeyState{}
	for _, a := range actions {
		m.vks = append(m.vks, asyncVK(a))
	}
	return m, nil
}

func (m *AsyncKeyState) ModifierHeld() bool {
	for _, vk := range m.vks {
		if win.GetAsyncKeyState(vk) < 0 {
			return true
		}
	}
	return false
}

func asyncVK(a Action) int32 {
	if a.Kind == KindKey {
		return int32(a.Code)
	}
	switch MouseButton(a.Code) {
	case MouseLeft:
		return win.VK_LBUTTON
	case MouseRight:
		return win.VK_RBUTTON
	case MouseMiddle:
		return win.VK_MBUTTON
	case MouseX1:
		return win.VK_XBUTTON1
	}
	return win.VK_XBUTTON2
}

func NewSystemSink() (BatchSink, error) {
	return NewSendInputSink(), nil
}
