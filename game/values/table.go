package values

import (
	"sync"

	"github.com/kasuganosora/rtsmicro/game/unit"
	"github.com/kasuganosora/rtsmicro/resource"
)

// DefaultPower is the power assigned to a unit type missing from the table.
const DefaultPower = 1.0

// entry is the immutable per-type row used at lookup time.
type entry struct {
	power          float64
	groundRange    float64
	airRange       float64
	canShootGround bool
	canShootAir    bool
	melee          bool
	radius         float64
}

// Table answers per-unit-type combat value queries. Safe for concurrent use;
// Replace swaps the whole table atomically so reloads never expose a partial view.
type Table struct {
	mu    sync.RWMutex
	types map[unit.TypeID]entry
}

// NewTable builds a table from the loaded unit type rows.
func NewTable(rl *resource.ResourceLoader) *Table {
	t := &Table{}
	t.Replace(rl)
	return t
}

// Replace swaps in the rows of rl. A nil loader clears the table.
func (t *Table) Replace(rl *resource.ResourceLoader) {
	types := make(map[unit.TypeID]entry)
	if rl != nil {
		for _, ut := range rl.UnitTypes {
			if ut == nil {
				continue
			}
			types[ut.ID] = entry{
				power:          ut.Power,
				groundRange:    ut.GroundRange,
				airRange:       ut.AirRange,
				canShootGround: ut.CanShootGround,
				canShootAir:    ut.CanShootAir,
				melee:          ut.Melee,
				radius:         ut.Radius,
			}
		}
	}
	t.mu.Lock()
	t.types = types
	t.mu.Unlock()
}

// Len returns the number of known unit types.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.types)
}

func (t *Table) lookup(id unit.TypeID) (entry, bool) {
	t.mu.RLock()
	e, ok := t.types[id]
	t.mu.RUnlock()
	return e, ok
}

// CanShootAir reports whether u's type has an anti-air weapon.
func (t *Table) CanShootAir(u *unit.Unit) bool {
	e, _ := t.lookup(u.Type)
	return e.canShootAir
}

// CanShootGround reports whether u's type has an anti-ground weapon.
func (t *Table) CanShootGround(u *unit.Unit) bool {
	e, _ := t.lookup(u.Type)
	return e.canShootGround
}

// AirRange is the anti-air weapon range of u's type, 0 when it has none.
func (t *Table) AirRange(u *unit.Unit) float64 {
	e, _ := t.lookup(u.Type)
	if !e.canShootAir {
		return 0
	}
	return e.airRange
}

// GroundRange is the anti-ground weapon range of u's type, 0 when it has none.
func (t *Table) GroundRange(u *unit.Unit) float64 {
	e, _ := t.lookup(u.Type)
	if !e.canShootGround {
		return 0
	}
	return e.groundRange
}

// RealRange is the center-to-center distance at which attacker can hit target:
// the matching weapon range plus both radii. 0 when attacker cannot hit target.
func (t *Table) RealRange(attacker, target *unit.Unit) float64 {
	var r float64
	if target.IsFlying {
		r = t.AirRange(attacker)
	} else {
		r = t.GroundRange(attacker)
	}
	if r <= 0 {
		return 0
	}
	return r + t.radius(attacker) + t.radius(target)
}

// PowerByType returns the power of one unit of type id scaled by healthFactor.
func (t *Table) PowerByType(id unit.TypeID, healthFactor float64) float64 {
	e, ok := t.lookup(id)
	if !ok {
		return DefaultPower * healthFactor
	}
	return e.power * healthFactor
}

// IsMelee reports whether u's type fights in melee.
func (t *Table) IsMelee(u *unit.Unit) bool {
	e, _ := t.lookup(u.Type)
	return e.melee
}

func (t *Table) radius(u *unit.Unit) float64 {
	if u.Radius > 0 {
		return u.Radius
	}
	e, _ := t.lookup(u.Type)
	return e.radius
}
