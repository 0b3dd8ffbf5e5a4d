package combat

import "github.com/kasuganosora/rtsmicro/game/unit"

// RangedMicro focuses fire with ranged weapons. Priorities, when set, replace
// power-based valuation of hostiles.
type RangedMicro struct {
	Engine     *Engine
	Priorities Priorities
}

// GroupSolve attack-moves an idle group towards the closest hostile group
// while it is advancing and nothing is in range yet.
func (m *RangedMicro) GroupSolve(a *Assessment, current Action) Action {
	return advance(a, current)
}

// UnitSolve fires on the best target when the unit is ready. Units that are
// reloading or channelling a lock-on keep their current order.
func (m *RangedMicro) UnitSolve(a *Assessment, u *unit.Unit, current Action) Action {
	if a.MoveType.IsRetreat() {
		return current
	}
	if m.Engine.IsLockedOn(u) || !m.Engine.IsReady(u) {
		return current
	}
	return m.Engine.FocusFire(u, current, m.Priorities)
}

// MeleeMicro focuses fire at close range on ground targets.
type MeleeMicro struct {
	Engine *Engine
}

func (m *MeleeMicro) GroupSolve(a *Assessment, current Action) Action {
	return advance(a, current)
}

func (m *MeleeMicro) UnitSolve(a *Assessment, u *unit.Unit, current Action) Action {
	if a.MoveType.IsRetreat() {
		return current
	}
	return m.Engine.MeleeFocusFire(u, current)
}

func advance(a *Assessment, current Action) Action {
	if a.MoveType.IsRetreat() || a.MoveType == MoveReGroup {
		return current
	}
	if !current.IsZero() || a.ClosestGroup == nil || len(a.EnemiesNearby) > 0 {
		return current
	}
	return AttackMove(a.ClosestGroup.Center)
}

// Doctrines selects the MicroStep for each unit: an explicit per-type entry
// first, then Melee for melee types, then Default.
type Doctrines struct {
	Default MicroStep
	Melee   MicroStep
	ByType  map[unit.TypeID]MicroStep
	values  UnitValues
}

// NewDoctrines builds the standard ranged/melee registry over e.
func NewDoctrines(e *Engine, priorities Priorities) *Doctrines {
	return &Doctrines{
		Default: &RangedMicro{Engine: e, Priorities: priorities},
		Melee:   &MeleeMicro{Engine: e},
		ByType:  make(map[unit.TypeID]MicroStep),
		values:  e.Values(),
	}
}

// Register overrides the doctrine of one unit type.
func (d *Doctrines) Register(t unit.TypeID, m MicroStep) {
	d.ByType[t] = m
}

// For returns the doctrine for u.
func (d *Doctrines) For(u *unit.Unit) MicroStep {
	if m, ok := d.ByType[u.Type]; ok {
		return m
	}
	if d.Melee != nil && d.values != nil && d.values.IsMelee(u) {
		return d.Melee
	}
	return d.Default
}
