package combat

import (
	"go.uber.org/zap"

	"github.com/kasuganosora/rtsmicro/game/spatial"
	"github.com/kasuganosora/rtsmicro/game/unit"
	"github.com/kasuganosora/rtsmicro/game/values"
	"github.com/kasuganosora/rtsmicro/resource"
)

// Test unit types. Radii are zero so real range equals weapon range.
const (
	typeMarine   unit.TypeID = 48  // ground+air, range 5
	typeTank     unit.TypeID = 33  // ground only, range 5
	typeZergling unit.TypeID = 105 // melee
	typeMutalisk unit.TypeID = 108 // flying, ground+air, range 3
	typeShort    unit.TypeID = 900 // ground only, range 1
	typeLong     unit.TypeID = 901 // ground only, range 8
	typeHostile  unit.TypeID = 902 // ground only, range 6
	typeBig      unit.TypeID = 903 // power 4
)

func newTestValues() *values.Table {
	rl := resource.NewLoader("")
	rl.UnitTypes = []*resource.UnitType{
		{ID: typeMarine, Power: 1, GroundRange: 5, AirRange: 5, CanShootGround: true, CanShootAir: true},
		{ID: typeTank, Power: 3, GroundRange: 5, CanShootGround: true},
		{ID: typeZergling, Power: 0.5, GroundRange: 0.1, CanShootGround: true, Melee: true},
		{ID: typeMutalisk, Power: 1.5, GroundRange: 3, AirRange: 3, CanShootGround: true, CanShootAir: true},
		{ID: typeShort, Power: 1, GroundRange: 1, CanShootGround: true},
		{ID: typeLong, Power: 1, GroundRange: 8, CanShootGround: true},
		{ID: typeHostile, Power: 2, GroundRange: 6, CanShootGround: true},
		{ID: typeBig, Power: 4, GroundRange: 5, CanShootGround: true},
		{ID: unit.TypeCyclone, Power: 2, GroundRange: 5, AirRange: 5, CanShootGround: true, CanShootAir: true},
		{ID: unit.TypeDisruptor, Power: 3},
	}
	return values.NewTable(rl)
}

// fakeCooldowns lists the (tag, ability) pairs that are ready.
type fakeCooldowns map[unit.Tag]map[unit.AbilityID]bool

func (f fakeCooldowns) IsAbilityReady(tag unit.Tag, a unit.AbilityID) bool {
	return f[tag][a]
}

type fixture struct {
	values    *values.Table
	hostiles  unit.Units
	cooldowns fakeCooldowns
	clock     FixedClock
	params    Params
}

func newFixture(hostiles ...*unit.Unit) *fixture {
	return &fixture{
		values:    newTestValues(),
		hostiles:  hostiles,
		cooldowns: fakeCooldowns{},
		clock:     FixedClock{Step: 1, Loop: 0},
		params:    DefaultParams(),
	}
}

func (f *fixture) engine() *Engine {
	return NewEngine(Services{
		Query:     spatial.NewIndex(f.hostiles),
		Values:    f.values,
		Cooldowns: f.cooldowns,
		Clock:     f.clock,
	}, f.params, zap.NewNop())
}

func mk(tag unit.Tag, t unit.TypeID, x, y float64) *unit.Unit {
	return &unit.Unit{Tag: tag, Type: t, Position: unit.Point{X: x, Y: y}, ShieldHealthPercentage: 1}
}

func hp(u *unit.Unit, shp float64) *unit.Unit {
	u.ShieldHealthPercentage = shp
	return u
}

func flying(u *unit.Unit) *unit.Unit {
	u.IsFlying = true
	return u
}

func targeting(u *unit.Unit, tag unit.Tag) *unit.Unit {
	u.Orders = []unit.Order{{Ability: 23, TargetTag: tag}}
	return u
}
