package input

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKey          = errors.New("unknown key name")
	ErrDeviceUnavailable   = errors.New("input device unavailable")
	ErrInjectionFailed     = errors.New("input injection failed")
	errUnsupportedPlatform = fmt.Errorf("%w: unsupported platform", ErrDeviceUnavailable)
)

type Kind uint8

const (
	KindKey Kind = iota + 1
	KindMouse
)

// MouseButton identifies a pointer button carried by an Action of KindMouse.
type MouseButton uint16

const (
	MouseLeft MouseButton = iota + 1
	MouseRight
	MouseMiddle
	MouseX1
	MouseX2
)

// Action is either a keyboard virtual key or a mouse button. Both are consumed
// the same way by a Sink, so callers never special-case the cancel button.
type Action struct {
	Kind Kind
	Code uint16
	Name string
}

func Key(vk uint16, name string) Action {
	return Action{Kind: KindKey, Code: vk, Name: name}
}

func Mouse(btn MouseButton, name string) Action {
	return Action{Kind: KindMouse, Code: uint16(btn), Name: name}
}

func (a Action) IsZero() bool {
	return a.Kind == 0
}

func (a Action) String() string {
	if a.Name != "" {
		return a.Name
	}
	switch a.Kind {
	case KindKey:
		return fmt.Sprintf("vk_%#02x", a.Code)
	case KindMouse:
		return fmt.Sprintf("mouse_%d", a.Code)
	}
	return "none"
}

// ID is the bookkeeping identity of an action. Two actions with different
// display names but the same device code are the same physical input.
type ID struct {
	Kind Kind
	Code uint16
}

func (a Action) ID() ID {
	return ID{Kind: a.Kind, Code: a.Code}
}

type ActionType uint8

const (
	Press ActionType = iota + 1
	Release
)

func (t ActionType) String() string {
	if t == Press {
		return "PRESS"
	}
	return "RELEASE"
}

type KeyAction struct {
	Type   ActionType
	Action Action
}

func PressOf(a Action) KeyAction   { return KeyAction{Type: Press, Action: a} }
func ReleaseOf(a Action) KeyAction { return KeyAction{Type: Release, Action: a} }

func (k KeyAction) String() string {
	return k.Type.String() + " " + k.Action.String()
}

// Sink injects synthetic input into the OS.
type Sink interface {
	Press(a Action) error
	Release(a Action) error
}

// BatchSink injects several actions in one uninterruptible call, in order.
type BatchSink interface {
	Sink
	Send(actions []KeyAction) error
}

// Execute runs a single KeyAction against sink.
func Execute(sink Sink, ka KeyAction) error {
	if ka.Type == Press {
		return sink.Press(ka.Action)
	}
	return sink.Release(ka.Action)
}
