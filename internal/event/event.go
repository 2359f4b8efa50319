package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/chakramx/chakram/internal/sector"
)

type Event interface {
	ID() uuid.UUID
	Message() string
	OccurredAt() time.Time
	Kind() string
}

type BaseEvent struct {
	id         uuid.UUID
	message    string
	occurredAt time.Time
}

func (b BaseEvent) ID() uuid.UUID {
	return b.id
}

func (b BaseEvent) Message() string {
	return b.message
}

func (b BaseEvent) OccurredAt() time.Time {
	return b.occurredAt
}

// Text builds a BaseEvent stamped with the current time.
func Text(message string) BaseEvent {
	return At(time.Now(), message)
}

// At builds a BaseEvent for something that happened at t, such as a tick timestamp.
func At(t time.Time, message string) BaseEvent {
	return BaseEvent{
		id:         uuid.New(),
		message:    message,
		occurredAt: t,
	}
}

type SectorChangedEvent struct {
	BaseEvent
	From   sector.Name
	To     sector.Name
	Atomic bool
}

func SectorChanged(be BaseEvent, from, to sector.Name, atomic bool) SectorChangedEvent {
	return SectorChangedEvent{BaseEvent: be, From: from, To: to, Atomic: atomic}
}

func (SectorChangedEvent) Kind() string { return "sectorChanged" }

type DeadzoneReleasedEvent struct {
	BaseEvent
	Sector   sector.Name
	Released int
}

func DeadzoneReleased(be BaseEvent, s sector.Name, released int) DeadzoneReleasedEvent {
	return DeadzoneReleasedEvent{BaseEvent: be, Sector: s, Released: released}
}

func (DeadzoneReleasedEvent) Kind() string { return "deadzoneReleased" }

type TransitionRecoveredEvent struct {
	BaseEvent
	Sector sector.Name
}

func TransitionRecovered(be BaseEvent, s sector.Name) TransitionRecoveredEvent {
	return TransitionRecoveredEvent{BaseEvent: be, Sector: s}
}

func (TransitionRecoveredEvent) Kind() string { return "transitionRecovered" }

type CombatStateChangedEvent struct {
	BaseEvent
	InCombat bool
	// Manual is true when the change came from the combat toggle rather
	// than the detector.
	Manual bool
}

func CombatStateChanged(be BaseEvent, inCombat, manual bool) CombatStateChangedEvent {
	return CombatStateChangedEvent{BaseEvent: be, InCombat: inCombat, Manual: manual}
}

func (CombatStateChangedEvent) Kind() string { return "combatStateChanged" }

type AimFiredEvent struct {
	BaseEvent
	Sector sector.Name
}

func AimFired(be BaseEvent, s sector.Name) AimFiredEvent {
	return AimFiredEvent{BaseEvent: be, Sector: s}
}

func (AimFiredEvent) Kind() string { return "aimFired" }

type ConfigReloadedEvent struct {
	BaseEvent
	Released int
}

func ConfigReloaded(be BaseEvent, released int) ConfigReloadedEvent {
	return ConfigReloadedEvent{BaseEvent: be, Released: released}
}

func (ConfigReloadedEvent) Kind() string { return "configReloaded" }

type TickOverrunEvent struct {
	BaseEvent
	Duration time.Duration
}

func TickOverrun(be BaseEvent, d time.Duration) TickOverrunEvent {
	return TickOverrunEvent{BaseEvent: be, Duration: d}
}

func (TickOverrunEvent) Kind() string { return "tickOverrun" }
