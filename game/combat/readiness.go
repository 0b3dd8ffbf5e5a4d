package combat

import "github.com/kasuganosora/rtsmicro/game/unit"

type readinessClass int

const (
	// classWeapon: ready when the weapon timer is within one step of firing.
	classWeapon readinessClass = iota
	// classLockOn: busy while the lock-on channel can still be cancelled.
	classLockOn
	// classNova: ready only when the single big ability is.
	classNova
	// classCycle: ready during the opening window of a fixed loop cycle.
	classCycle
)

type readinessRule struct {
	class   readinessClass
	ability unit.AbilityID
	period  int
	window  int
}

// readinessRules maps special-cased unit types to their rule. Types not listed
// use the weapon rule.
var readinessRules = map[unit.TypeID]readinessRule{
	unit.TypeCyclone:   {class: classLockOn, ability: unit.AbilityCancelLockOn},
	unit.TypeDisruptor: {class: classNova, ability: unit.AbilityPurificationNova},
	unit.TypeOracle:    {class: classCycle, period: 16, window: 8},
	unit.TypeCarrier:   {class: classCycle, period: 32, window: 8},
}

func ruleFor(t unit.TypeID) readinessRule {
	if r, ok := readinessRules[t]; ok {
		return r
	}
	return readinessRule{class: classWeapon}
}

// IsReady reports whether u may act this tick.
func (e *Engine) IsReady(u *unit.Unit) bool {
	r := ruleFor(u.Type)
	switch r.class {
	case classLockOn:
		if e.svc.Cooldowns.IsAbilityReady(u.Tag, r.ability) {
			return false
		}
		return e.weaponReady(u)
	case classNova:
		return e.svc.Cooldowns.IsAbilityReady(u.Tag, r.ability)
	case classCycle:
		return e.svc.Clock.GameLoop()%r.period < r.window
	default:
		return e.weaponReady(u)
	}
}

func (e *Engine) weaponReady(u *unit.Unit) bool {
	return u.WeaponCooldown <= e.svc.Clock.StepSize()+e.params.WeaponDelayBonus
}
