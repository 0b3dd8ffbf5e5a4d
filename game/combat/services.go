package combat

import "github.com/kasuganosora/rtsmicro/game/unit"

// UnitQuery finds hostile units around a point.
// Implemented by *spatial.Index.
type UnitQuery interface {
	EnemiesInRange(center unit.Point, radius float64) []*unit.Unit
}

// UnitValues answers per-type capability and value questions.
// Implemented by *values.Table.
type UnitValues interface {
	CanShootAir(u *unit.Unit) bool
	CanShootGround(u *unit.Unit) bool
	AirRange(u *unit.Unit) float64
	GroundRange(u *unit.Unit) float64
	// RealRange is asymmetric: the range at which attacker hits target.
	RealRange(attacker, target *unit.Unit) float64
	PowerByType(t unit.TypeID, healthFactor float64) float64
	IsMelee(u *unit.Unit) bool
}

// Cooldowns reports ability readiness. Implemented by *cooldown.View.
type Cooldowns interface {
	IsAbilityReady(tag unit.Tag, ability unit.AbilityID) bool
}

// Clock exposes the simulation timing of the current tick.
type Clock interface {
	StepSize() float64
	GameLoop() int
}

// Buffs answers status-effect queries.
type Buffs interface {
	HasBuff(u *unit.Unit, b unit.BuffID) bool
}

// FixedClock is a Clock for one tick.
type FixedClock struct {
	Step float64
	Loop int
}

func (c FixedClock) StepSize() float64 { return c.Step }
func (c FixedClock) GameLoop() int { return c.Loop }

// SnapshotBuffs reads buffs straight from the unit snapshot.
type SnapshotBuffs struct{}

func (SnapshotBuffs) HasBuff(u *unit.Unit, b unit.BuffID) bool { return u.HasBuff(b) }

type noCooldowns struct{}

func (noCooldowns) IsAbilityReady(unit.Tag, unit.AbilityID) bool { return false }

// Services bundles the collaborators an Engine consumes.
type Services struct {
	Query     UnitQuery
	Values    UnitValues
	Cooldowns Cooldowns
	Clock     Clock
	Buffs     Buffs
}
