//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"github.com/chakramx/chakram/internal/utils/winproc"
	"github.com/lxn/win"
)

const (
	mouseeventfXDown = 0x0080
	mouseeventfXUp   = 0x0100
	xbutton1         = 0x0001
	xbutton2         = 0x0002
)

// SendInputSink injects input with SendInput. Keys are sent as scan codes so
// games reading raw input see them.
type SendInputSink struct{}

func NewSendInputSink() *SendInputSink {
	return &SendInputSink{}
}

func (s *SendInputSink) Press(a Action) error {
	return s.Send([]KeyAction{PressOf(a)})
}

func (s *SendInputSink) Release(a Action) error {
	return s.Send([]KeyAction{ReleaseOf(a)})
}

// Send hands every action to the OS in a single SendInput call. SendInput
// inserts the events serially, nothing else can interleave with them.
func (s *SendInputSink) Send(actions []KeyAction) error {
	if len(actions) == 0 {
		return nil
	}

	// KEYBD_INPUT and MOUSE_INPUT have the same size, the array is reused for both.
	inputs := make([]win.KEYBD_INPUT, len(actions))
	for i, ka := range actions {
		switch ka.Action.Kind {
		case KindKey:
			inputs[i] = keyboardInput(ka)
		case KindMouse:
			mi := (*win.MOUSE_INPUT)(unsafe.Pointer(&inputs[i]))
			*mi = mouseInput(ka)
		default:
			return fmt.Errorf("%w: invalid action %v", ErrInjectionFailed, ka)
		}
	}

	sent := win.SendInput(uint32(len(inputs)), unsafe.Pointer(&inputs[0]), int32(unsafe.Sizeof(inputs[0])))
	if int(sent) != len(inputs) {
		return fmt.Errorf("%w: %d of %d events sent", ErrInjectionFailed, sent, len(inputs))
	}
	return nil
}

func keyboardInput(ka KeyAction) win.KEYBD_INPUT {
	scan, _, _ := winproc.MapVirtualKey.Call(uintptr(ka.Action.Code), winproc.MAPVK_VK_TO_VSC)
	flags := uint32(win.KEYEVENTF_SCANCODE)
	if isExtendedKey(ka.Action.Code) {
		flags |= win.KEYEVENTF_EXTENDEDKEY
	}
	if ka.Type == Release {
		flags |= win.KEYEVENTF_KEYUP
	}

	return win.KEYBD_INPUT{
		Type: win.INPUT_KEYBOARD,
		Ki: win.KEYBDINPUT{
			WVk:     ka.Action.Code,
			WScan:   uint16(scan),
			DwFlags: flags,
		},
	}
}

func mouseInput(ka KeyAction) win.MOUSE_INPUT {
	var flags, data uint32
	down := ka.Type == Press
	switch MouseButton(ka.Action.Code) {
	case MouseLeft:
		flags = pick(down, win.MOUSEEVENTF_LEFTDOWN, win.MOUSEEVENTF_LEFTUP)
	case MouseRight:
		flags = pick(down, win.MOUSEEVENTF_RIGHTDOWN, win.MOUSEEVENTF_RIGHTUP)
	case MouseMiddle:
		flags = pick(down, win.MOUSEEVENTF_MIDDLEDOWN, win.MOUSEEVENTF_MIDDLEUP)
	case MouseX1:
		flags, data = pick(down, mouseeventfXDown, mouseeventfXUp), xbutton1
	case MouseX2:
		flags, data = pick(down, mouseeventfXDown, mouseeventfXUp), xbutton2
	}

	return win.MOUSE_INPUT{
		Type: win.INPUT_MOUSE,
		Mi: win.MOUSEINPUT{
			MouseData: data,
			DwFlags:   flags,
		},
	}
}

func pick(down bool, onDown, onUp uint32) uint32 {
	if down {
		return onDown
	}
	return onUp
}

func isExtendedKey(vk uint16) bool {
	switch vk {
	case vkLeft, vkUp, vkRight, vkDown:
		return true
	}
	return false
}
