package combat

import (
	"github.com/kasuganosora/rtsmicro/game/unit"
)

// Priorities maps hostile unit types to a kill priority. Unlisted types are -1.
type Priorities map[unit.TypeID]float64

func (p Priorities) of(t unit.TypeID) float64 {
	if v, ok := p[t]; ok {
		return v
	}
	return -1
}

// IsValidTarget reports whether u may be ordered as an attack target.
func IsValidTarget(u *unit.Unit) bool {
	return !u.IsMemory && !u.IsHallucination && !u.IsSnapshot && !u.NotAttackable
}

// LastTargeted returns the unit targeted by u's first order, if any.
func LastTargeted(u *unit.Unit) (unit.Tag, bool) {
	if len(u.Orders) == 0 || u.Orders[0].TargetTag == 0 {
		return 0, false
	}
	return u.Orders[0].TargetTag, true
}

// IsLockedOn reports whether u carries the lock-on effect.
func (e *Engine) IsLockedOn(u *unit.Unit) bool {
	return e.svc.Buffs.HasBuff(u, unit.BuffLockOn)
}

// candidate scoring shared by both selectors.
type picker struct {
	best      *unit.Unit
	bestScore float64
}

// offer keeps h when score strictly beats the best so far. The bar starts at 0.
func (p *picker) offer(h *unit.Unit, score float64) {
	if score > p.bestScore {
		p.best, p.bestScore = h, score
	}
}

func (e *Engine) proximity(u, h *unit.Unit, lookup float64) float64 {
	return 1 - u.DistanceTo(h)/lookup
}

func (e *Engine) continuity(h *unit.Unit, last unit.Tag, hasLast bool) float64 {
	if hasLast && h.Tag == last {
		return e.params.ContinuityBonus
	}
	return 0
}

// FocusFire picks the best attack target for a ranged unit. priorities may be
// nil or empty, in which case hostiles are valued by type power. When nothing scores
// above zero, current is returned unchanged.
func (e *Engine) FocusFire(u *unit.Unit, current Action, priorities Priorities) Action {
	v := e.svc.Values
	shootAir := v.CanShootAir(u)
	shootGround := v.CanShootGround(u)

	lookup := min(v.AirRange(u)+e.params.LookupMargin, v.GroundRange(u)+e.params.LookupMargin)
	if lookup <= 0 {
		return current
	}
	hostiles := e.svc.Query.EnemiesInRange(u.Position, lookup)
	if len(hostiles) == 0 {
		return current
	}

	last, hasLast := LastTargeted(u)
	var p picker
	for _, h := range hostiles {
		if !IsValidTarget(h) {
			continue
		}
		if h.IsFlying && !shootAir || !h.IsFlying && !shootGround {
			continue
		}

		hurt := 1 - h.ShieldHealthPercentage
		var base float64
		switch {
		case unit.IsChangeling(h.Type):
			base = 1
		case len(priorities) > 0:
			base = priorities.of(h.Type) * hurt
		default:
			base = 2 * v.PowerByType(h.Type, hurt)
		}
		p.offer(h, base+e.proximity(u, h, lookup)+e.continuity(h, last, hasLast))
	}

	if p.best == nil {
		return current
	}
	return Attack(p.best.Tag)
}

// MeleeFocusFire picks the best ground target for a melee unit, preferring
// hostiles it can already hit.
func (e *Engine) MeleeFocusFire(u *unit.Unit, current Action) Action {
	v := e.svc.Values
	lookup := v.GroundRange(u) + e.params.LookupMargin
	if lookup <= 0 {
		return current
	}
	hostiles := e.svc.Query.EnemiesInRange(u.Position, lookup)
	if len(hostiles) == 0 {
		return current
	}

	last, hasLast := LastTargeted(u)
	var p picker
	for _, h := range hostiles {
		if h.IsFlying || !IsValidTarget(h) {
			continue
		}
		value := 1 - h.ShieldHealthPercentage
		if u.DistanceTo(h) < v.RealRange(u, h) {
			value++
		}
		p.offer(h, value+e.proximity(u, h, lookup)+e.continuity(h, last, hasLast))
	}

	if p.best == nil {
		return current
	}
	return Attack(p.best.Tag)
}
