package combat

import (
	"github.com/kasuganosora/rtsmicro/game/unit"
	"github.com/kasuganosora/rtsmicro/game/values"
)

// Group is a cluster of units formed by the caller, friendly or hostile.
// It is treated as immutable while an assessment runs.
type Group struct {
	Name   string
	Units  unit.Units
	Center unit.Point
	Power  values.Power
}

// NewGroup derives center and power from us.
func NewGroup(name string, us unit.Units, src values.Source) *Group {
	return &Group{
		Name:   name,
		Units:  us,
		Center: us.Center(),
		Power:  values.Of(src, us),
	}
}
