package combat

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/kasuganosora/rtsmicro/game/unit"
	"github.com/kasuganosora/rtsmicro/game/values"
)

// ErrEmptyGroup is returned by Assess when the friendly unit list is empty.
var ErrEmptyGroup = errors.New("combat: empty group")

// Params are the fixed scoring and scan constants.
type Params struct {
	ScanBase         float64 `mapstructure:"scan_base" json:"scan_base"`
	ScanPerUnit      float64 `mapstructure:"scan_per_unit" json:"scan_per_unit"`
	LookupMargin     float64 `mapstructure:"lookup_margin" json:"lookup_margin"`
	ContinuityBonus  float64 `mapstructure:"continuity_bonus" json:"continuity_bonus"`
	WeaponDelayBonus float64 `mapstructure:"weapon_delay_bonus" json:"weapon_delay_bonus"`
}

// DefaultParams returns the standard constants.
func DefaultParams() Params {
	return Params{
		ScanBase:         15,
		ScanPerUnit:      0.1,
		LookupMargin:     3,
		ContinuityBonus:  3,
		WeaponDelayBonus: 1.5,
	}
}

// Engine evaluates groups and picks targets for one tick. It performs no I/O;
// every collaborator is a per-tick view supplied by the caller.
type Engine struct {
	svc    Services
	params Params
	logger *zap.Logger
}

// NewEngine creates an Engine. Query and Values are required. A nil Buffs
// reads buffs from snapshots, a nil Cooldowns reports nothing ready and a nil
// Clock is loop 0 with a zero step.
func NewEngine(svc Services, params Params, logger *zap.Logger) *Engine {
	if svc.Buffs == nil {
		svc.Buffs = SnapshotBuffs{}
	}
	if svc.Cooldowns == nil {
		svc.Cooldowns = noCooldowns{}
	}
	if svc.Clock == nil {
		svc.Clock = FixedClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{svc: svc, params: params, logger: logger}
}

// Params returns the constants the engine was built with.
func (e *Engine) Params() Params { return e.params }

// Values returns the unit value service.
func (e *Engine) Values() UnitValues { return e.svc.Values }

// Assessment is the per-tick tactical summary of one friendly group.
// It is rebuilt from scratch by every Assess call.
type Assessment struct {
	Group    *Group
	MoveType MoveType
	// Center is the mean position of the friendly units.
	Center unit.Point

	ReadyToAttackRatio float64
	EngageRatio        float64
	CanEngageRatio     float64

	// ClosestGroup is nil when no hostile group is known.
	ClosestGroup         *Group
	ClosestGroupDistance float64

	// NearestHostile maps each friendly unit to the closest scanned hostile.
	// Units with no hostile in scan range have no entry.
	NearestHostile map[unit.Tag]*unit.Unit
	EnemiesNearby  []*unit.Unit
	EnemyGroups    []*Group

	OurPower     values.Power
	EngagedPower values.Power
}

// HasClosestGroup reports whether a hostile group was found.
func (a *Assessment) HasClosestGroup() bool { return a.ClosestGroup != nil }

// ScanRadius returns the hostile scan radius for a group of n units.
func (e *Engine) ScanRadius(n int) float64 {
	return e.params.ScanBase + e.params.ScanPerUnit*float64(n)
}

// Assess computes the readiness and engagement summary of group. units are the
// group members to evaluate; enemyGroups are the hostile groups known this tick.
func (e *Engine) Assess(group *Group, units unit.Units, enemyGroups []*Group, move MoveType) (Assessment, error) {
	if len(units) == 0 {
		return Assessment{}, ErrEmptyGroup
	}
	if group == nil {
		group = NewGroup("", units, e.svc.Values)
	}

	a := Assessment{
		Group:          group,
		MoveType:       move,
		Center:         units.Center(),
		EnemyGroups:    enemyGroups,
		NearestHostile: make(map[unit.Tag]*unit.Unit),
		OurPower:       values.Of(e.svc.Values, units),
	}

	for _, g := range enemyGroups {
		if g == nil {
			continue
		}
		d := g.Center.DistanceTo(group.Center)
		if a.ClosestGroup == nil || d < a.ClosestGroupDistance {
			a.ClosestGroup = g
			a.ClosestGroupDistance = d
		}
	}

	a.EnemiesNearby = e.svc.Query.EnemiesInRange(a.Center, e.ScanRadius(len(group.Units)))
	a.EngagedPower = values.Of(e.svc.Values, a.EnemiesNearby)

	var ready, engaged, canEngage int
	for _, u := range units {
		if e.IsReady(u) {
			ready++
		}

		var nearest *unit.Unit
		nearestD := math.Inf(1)
		inTheirRange, inOurRange := false, false
		for _, h := range a.EnemiesNearby {
			d := u.DistanceTo(h)
			if d < nearestD {
				nearest, nearestD = h, d
			}
			if !inTheirRange && d < e.svc.Values.RealRange(h, u) {
				inTheirRange = true
			}
			if !inOurRange && d < e.svc.Values.RealRange(u, h) {
				inOurRange = true
			}
		}
		if nearest != nil {
			a.NearestHostile[u.Tag] = nearest
		}
		if inTheirRange {
			engaged++
		}
		if inOurRange {
			canEngage++
		}
	}

	n := float64(len(units))
	a.ReadyToAttackRatio = float64(ready) / n
	a.EngageRatio = float64(engaged) / n
	a.CanEngageRatio = float64(canEngage) / n

	if ce := e.logger.Check(zap.DebugLevel, "combat: assessed group"); ce != nil {
		ce.Write(
			zap.String("group", group.Name),
			zap.Int("units", len(units)),
			zap.Int("nearby", len(a.EnemiesNearby)),
			zap.Float64("ready", a.ReadyToAttackRatio),
			zap.Float64("engage", a.EngageRatio),
			zap.Float64("can_engage", a.CanEngageRatio),
		)
	}
	return a, nil
}
