package values

import "github.com/kasuganosora/rtsmicro/game/unit"

// Source is the subset of Table that power aggregation needs.
type Source interface {
	PowerByType(t unit.TypeID, healthFactor float64) float64
	CanShootAir(u *unit.Unit) bool
	CanShootGround(u *unit.Unit) bool
	IsMelee(u *unit.Unit) bool
}

// Power is an aggregate of unit power split by role.
type Power struct {
	Total          float64 `json:"total"`
	AirPresence    float64 `json:"air_presence"`
	GroundPresence float64 `json:"ground_presence"`
	AntiAir        float64 `json:"anti_air"`
	AntiGround     float64 `json:"anti_ground"`
	Melee          float64 `json:"melee"`
	Ranged         float64 `json:"ranged"`
	Count          int     `json:"count"`
}

// Add folds one unit into p, weighted by its shield+health fraction.
func (p *Power) Add(t Source, u *unit.Unit) {
	v := t.PowerByType(u.Type, u.ShieldHealthPercentage)
	p.Total += v
	p.Count++
	if u.IsFlying {
		p.AirPresence += v
	} else {
		p.GroundPresence += v
	}
	if t.CanShootAir(u) {
		p.AntiAir += v
	}
	if t.CanShootGround(u) {
		p.AntiGround += v
	}
	if t.IsMelee(u) {
		p.Melee += v
	} else if t.CanShootAir(u) || t.CanShootGround(u) {
		p.Ranged += v
	}
}

// AddUnits folds every unit of us into p.
func (p *Power) AddUnits(t Source, us unit.Units) {
	for _, u := range us {
		p.Add(t, u)
	}
}

// Merge adds the totals of o into p.
func (p *Power) Merge(o Power) {
	p.Total += o.Total
	p.AirPresence += o.AirPresence
	p.GroundPresence += o.GroundPresence
	p.AntiAir += o.AntiAir
	p.AntiGround += o.AntiGround
	p.Melee += o.Melee
	p.Ranged += o.Ranged
	p.Count += o.Count
}

// Of returns the aggregate power of us.
func Of(t Source, us unit.Units) Power {
	var p Power
	p.AddUnits(t, us)
	return p
}
