// Package sector maps a polar input position onto named angular sectors.
package sector

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chakramx/chakram/internal/utils"
)

var (
	ErrOverlap  = errors.New("sector ranges overlap")
	ErrGap      = errors.New("sector ranges leave a gap")
	ErrBadRange = errors.New("invalid sector range")
)

// Name identifies a sector. The empty Name means "no sector".
type Name string

const None Name = ""

// Def is one angular range in degrees. Start > End wraps through 0°.
// Both ends are inclusive, so neighbouring sectors may share a boundary angle.
type Def struct {
	Name  Name
	Start float64
	End   float64
}

func (d Def) Contains(angle float64) bool {
	if d.Start > d.End {
		return angle >= d.Start || angle <= d.End
	}
	return d.Start <= angle && angle <= d.End
}

// Width returns the angular size of the range in degrees.
func (d Def) Width() float64 {
	if d.Start > d.End {
		return 360 - d.Start + d.End
	}
	return d.End - d.Start
}

// Center returns the bisecting angle of the range in [0,360).
func (d Def) Center() float64 {
	c := d.Start + d.Width()/2
	if c >= 360 {
		c -= 360
	}
	return c
}

// Classifier is immutable after construction and safe to share.
type Classifier struct {
	defs []Def
}

// NewClassifier validates defs and returns a classifier that checks them in
// the given order. Shared boundary angles go to the earlier sector.
func NewClassifier(defs []Def) (*Classifier, error) {
	if err := Validate(defs); err != nil {
		return nil, err
	}
	return &Classifier{defs: append([]Def(nil), defs...)}, nil
}

func (c *Classifier) Defs() []Def {
	return append([]Def(nil), c.defs...)
}

func (c *Classifier) Lookup(name Name) (Def, bool) {
	for _, d := range c.defs {
		if d.Name == name {
			return d, true
		}
	}
	return Def{}, false
}

// Classify returns the sector containing angle, or None when distance is
// inside the deadzone.
func (c *Classifier) Classify(angle, distance, deadzone float64) Name {
	if distance < deadzone {
		return None
	}
	for _, d := range c.defs {
		if d.Contains(angle) {
			return d.Name
		}
	}
	return None
}

// ClassifyXY normalizes (x, y) to polar form and classifies it.
func (c *Classifier) ClassifyXY(x, y, deadzone float64) Name {
	angle, distance := Polar(x, y)
	return c.Classify(angle, distance, deadzone)
}

// Polar converts axis values to (angle in [0,360), distance in [0,1]).
func Polar(x, y float64) (float64, float64) {
	v := utils.Vector{X: x, Y: y}
	return utils.AngleDeg(v), math.Min(1, v.Len())
}

type span struct {
	start, end float64
	name       Name
}

// Validate fails when the ranges do not partition [0,360): every angle must
// belong to a sector and interiors must not overlap.
func Validate(defs []Def) error {
	if len(defs) == 0 {
		return fmt.Errorf("%w: no sectors defined", ErrBadRange)
	}

	seen := make(map[Name]bool, len(defs))
	spans := make([]span, 0, len(defs)+1)
	for _, d := range defs {
		if d.Name == None {
			return fmt.Errorf("%w: unnamed sector", ErrBadRange)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate sector %q", ErrBadRange, d.Name)
		}
		seen[d.Name] = true

		if d.Start < 0 || d.Start >= 360 || d.End < 0 || d.End > 360 {
			return fmt.Errorf("%w: %q [%v,%v] outside [0,360]", ErrBadRange, d.Name, d.Start, d.End)
		}
		if d.Start == d.End {
			return fmt.Errorf("%w: %q has zero width", ErrBadRange, d.Name)
		}

		if d.Start > d.End {
			spans = append(spans, span{d.Start, 360, d.Name}, span{0, d.End, d.Name})
		} else {
			spans = append(spans, span{d.Start, d.End, d.Name})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	cursor := 0.0
	prev := Name("")
	for _, s := range spans {
		if s.end == s.start {
			continue
		}
		switch {
		case s.start > cursor:
			return fmt.Errorf("%w: (%v,%v) not covered", ErrGap, cursor, s.start)
		case s.start < cursor:
			return fmt.Errorf("%w: %q and %q share (%v,%v)", ErrOverlap, prev, s.name, s.start, math.Min(cursor, s.end))
		}
		cursor = s.end
		prev = s.name
	}
	if cursor < 360 {
		return fmt.Errorf("%w: (%v,360) not covered", ErrGap, cursor)
	}
	return nil
}
