package combat

import "github.com/kasuganosora/rtsmicro/game/unit"

// Action is a declarative command for one unit. The zero Action means
// "no command"; dispatching it is the caller's job.
type Action struct {
	TargetTag unit.Tag       `json:"target_tag,omitempty"`
	TargetPos *unit.Point    `json:"target_pos,omitempty"`
	IsAttack  bool           `json:"is_attack,omitempty"`
	Ability   unit.AbilityID `json:"ability,omitempty"`
}

// Attack returns an attack order on tag.
func Attack(tag unit.Tag) Action {
	return Action{TargetTag: tag, IsAttack: true}
}

// AttackMove returns an attack-move order towards p.
func AttackMove(p unit.Point) Action {
	return Action{TargetPos: &p, IsAttack: true}
}

// IsZero reports whether a carries no command.
func (a Action) IsZero() bool {
	return a.TargetTag == 0 && a.TargetPos == nil && !a.IsAttack && a.Ability == 0
}

// Equal compares two actions by value, including the target position.
func (a Action) Equal(b Action) bool {
	if a.TargetTag != b.TargetTag || a.IsAttack != b.IsAttack || a.Ability != b.Ability {
		return false
	}
	if a.TargetPos == nil || b.TargetPos == nil {
		return a.TargetPos == b.TargetPos
	}
	return *a.TargetPos == *b.TargetPos
}
