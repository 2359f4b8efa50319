//go:build windows

package utils

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// ShowDialog pops a blocking message box, used for fatal startup errors when
// no console is attached.
func ShowDialog(title, message string) {
	t, _ := syscall.UTF16PtrFromString(title)
	txt, _ := syscall.UTF16PtrFromString(message)

	windows.MessageBox(0, txt, t, 0)
}
