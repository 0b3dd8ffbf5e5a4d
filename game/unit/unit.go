package unit

import "math"

// Tag is the stable identity of a unit across ticks. 0 means "no unit".
type Tag uint64

// TypeID identifies a unit type (stable game data id).
type TypeID uint32

// AbilityID identifies an ability (stable game data id).
type AbilityID uint32

// BuffID identifies a buff or status effect.
type BuffID uint32

// Point is a 2D map position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance between two points.
func (p Point) DistanceTo(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Order is one entry of a unit's order queue.
// An order targets either another unit (TargetTag != 0) or a position.
type Order struct {
	Ability   AbilityID `json:"ability"`
	TargetTag Tag       `json:"target_tag,omitempty"`
	TargetPos *Point    `json:"target_pos,omitempty"`
}

// Unit is a read-only per-tick snapshot of a friendly or hostile agent.
type Unit struct {
	Tag      Tag     `json:"tag"`
	Type     TypeID  `json:"type"`
	Position Point   `json:"pos"`
	Radius   float64 `json:"radius"`

	// WeaponCooldown is the remaining weapon timer in game loops.
	WeaponCooldown float64 `json:"weapon_cooldown"`
	// ShieldHealthPercentage is (shield + health) / (max shield + max health), 0..1.
	ShieldHealthPercentage float64 `json:"shield_health_pct"`

	IsFlying        bool `json:"flying,omitempty"`
	IsMemory        bool `json:"memory,omitempty"`
	IsHallucination bool `json:"hallucination,omitempty"`
	IsSnapshot      bool `json:"snapshot,omitempty"`
	NotAttackable   bool `json:"not_attackable,omitempty"`

	// Abilities lists the abilities the game reports as currently castable.
	Abilities []AbilityID `json:"abilities,omitempty"`
	Buffs     []BuffID    `json:"buffs,omitempty"`
	Orders    []Order     `json:"orders,omitempty"`
}

// DistanceTo returns the center-to-center distance to another unit.
func (u *Unit) DistanceTo(o *Unit) float64 {
	return u.Position.DistanceTo(o.Position)
}

// HasBuff reports whether the snapshot lists buff b.
func (u *Unit) HasBuff(b BuffID) bool {
	for _, id := range u.Buffs {
		if id == b {
			return true
		}
	}
	return false
}

// HasAbility reports whether ability a is currently castable.
func (u *Unit) HasAbility(a AbilityID) bool {
	for _, id := range u.Abilities {
		if id == a {
			return true
		}
	}
	return false
}

// ---- Units ----

// Units is an ordered collection of unit snapshots.
type Units []*Unit

// Center returns the mean position. Empty collections center at the origin.
func (us Units) Center() Point {
	if len(us) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, u := range us {
		sx += u.Position.X
		sy += u.Position.Y
	}
	n := float64(len(us))
	return Point{X: sx / n, Y: sy / n}
}

// ByTag indexes units by tag. Later duplicates overwrite earlier ones.
func (us Units) ByTag() map[Tag]*Unit {
	m := make(map[Tag]*Unit, len(us))
	for _, u := range us {
		m[u.Tag] = u
	}
	return m
}

// Tags returns the tags in collection order.
func (us Units) Tags() []Tag {
	tags := make([]Tag, len(us))
	for i, u := range us {
		tags[i] = u.Tag
	}
	return tags
}
