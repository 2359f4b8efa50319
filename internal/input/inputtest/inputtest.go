// Package inputtest provides helpers for tests that build key actions from
// literal names.
package inputtest

import (
	"github.com/chakramx/chakram/internal/input"
)

// MustParse is input.ParseAction for literal names; it panics on an unknown name.
func MustParse(name string) input.Action {
	a, err := input.ParseAction(name)
	if err != nil {
		panic(err)
	}
	return a
}
