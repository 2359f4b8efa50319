//go:build windows

package winproc

import "golang.org/x/sys/windows"

var (
	USER32        = windows.NewLazySystemDLL("user32.dll")
	MapVirtualKey = USER32.NewProc("MapVirtualKeyW")
	GetKeyState   = USER32.NewProc("GetKeyState")

	WINMM        = windows.NewLazySystemDLL("winmm.dll")
	JoyGetPosEx  = WINMM.NewProc("joyGetPosEx")
	JoyGetNumDev = WINMM.NewProc("joyGetNumDevs")
)

const (
	MAPVK_VK_TO_VSC = 0

	JOY_RETURNALL  = 0x000000FF
	JOYERR_NOERROR = 0
)

// JOYINFOEX mirrors the winmm structure filled by joyGetPosEx.
type JOYINFOEX struct {
	Size         uint32
	Flags        uint32
	Xpos         uint32
	Ypos         uint32
	Zpos         uint32
	Rpos         uint32
	Upos         uint32
	Vpos         uint32
	Buttons      uint32
	ButtonNumber uint32
	POV          uint32
	Reserved1    uint32
	Reserved2    uint32
}
