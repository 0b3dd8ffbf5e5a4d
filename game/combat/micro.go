package combat

import (
	"fmt"
	"strings"

	"github.com/kasuganosora/rtsmicro/game/unit"
)

// MoveType is the group-level intent the caller is executing this tick.
type MoveType int

const (
	MoveAssault MoveType = iota
	MovePush
	MoveSearchAndDestroy
	MoveDefensiveRetreat
	MovePanicRetreat
	MoveHarass
	MoveReGroup
)

var moveTypeNames = [...]string{
	MoveAssault:          "assault",
	MovePush:             "push",
	MoveSearchAndDestroy: "search_and_destroy",
	MoveDefensiveRetreat: "defensive_retreat",
	MovePanicRetreat:     "panic_retreat",
	MoveHarass:           "harass",
	MoveReGroup:          "regroup",
}

func (m MoveType) String() string {
	if m >= 0 && int(m) < len(moveTypeNames) {
		return moveTypeNames[m]
	}
	return fmt.Sprintf("MoveType(%d)", int(m))
}

// IsRetreat reports whether the group is disengaging.
func (m MoveType) IsRetreat() bool {
	return m == MoveDefensiveRetreat || m == MovePanicRetreat
}

// ParseMoveType parses a move type name. The empty string is MoveAssault.
func ParseMoveType(s string) (MoveType, error) {
	if s == "" {
		return MoveAssault, nil
	}
	s = strings.ToLower(s)
	for i, name := range moveTypeNames {
		if name == s {
			return MoveType(i), nil
		}
	}
	return 0, fmt.Errorf("combat: unknown move type %q", s)
}

func (m MoveType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MoveType) UnmarshalText(b []byte) error {
	v, err := ParseMoveType(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MicroStep is one combat doctrine: how a group and its units act given the
// assessment of this tick. Implementations return current when they have
// nothing better to do.
type MicroStep interface {
	GroupSolve(a *Assessment, current Action) Action
	UnitSolve(a *Assessment, u *unit.Unit, current Action) Action
}
