package input

import (
	"fmt"
	"strings"
)

// Virtual-key codes, same values as the Win32 VK_* constants.
const (
	vkBack    = 0x08
	vkTab     = 0x09
	vkReturn  = 0x0D
	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkEscape  = 0x1B
	vkSpace   = 0x20
	vkLeft    = 0x25
	vkUp      = 0x26
	vkRight   = 0x27
	vkDown    = 0x28
	vkF1      = 0x70
)

var namedKeys = map[string]uint16{
	"backspace": vkBack,
	"tab":       vkTab,
	"enter":     vkReturn,
	"shift":     vkShift,
	"ctrl":      vkControl,
	"alt":       vkMenu,
	"esc":       vkEscape,
	"escape":    vkEscape,
	"space":     vkSpace,
	"left":      vkLeft,
	"up":        vkUp,
	"right":     vkRight,
	"down":      vkDown,
}

var mouseNames = map[string]MouseButton{
	"left_mouse":   MouseLeft,
	"right_mouse":  MouseRight,
	"middle_mouse": MouseMiddle,
	"mouse4":       MouseX1,
	"mouse5":       MouseX2,
}

// ParseAction resolves a configured key name into an Action. It is called once
// at config load so the tick loop never does string lookups.
func ParseAction(name string) (Action, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return Action{}, fmt.Errorf("%w: empty name", ErrUnknownKey)
	}

	if btn, ok := mouseNames[n]; ok {
		return Mouse(btn, n), nil
	}
	if vk, ok := namedKeys[n]; ok {
		return Key(vk, n), nil
	}

	if len(n) == 1 {
		c := n[0]
		switch {
		case c >= 'a' && c <= 'z':
			return Key(uint16(c-'a'+'A'), n), nil
		case c >= '0' && c <= '9':
			return Key(uint16(c), n), nil
		}
	}

	if strings.HasPrefix(n, "f") {
		var num int
		if _, err := fmt.Sscanf(n, "f%d", &num); err == nil && num >= 1 && num <= 12 && n == fmt.Sprintf("f%d", num) {
			return Key(uint16(vkF1+num-1), n), nil
		}
	}

	return Action{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}
