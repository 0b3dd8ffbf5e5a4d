package unit

// Unit type ids that the engine special-cases. Values follow the game's stable ids.
const (
	TypeCarrier                 TypeID = 79
	TypeOracle                  TypeID = 495
	TypeCyclone                 TypeID = 692
	TypeDisruptor               TypeID = 694
	TypeChangeling              TypeID = 12
	TypeChangelingZealot        TypeID = 13
	TypeChangelingMarineShield  TypeID = 14
	TypeChangelingMarine        TypeID = 15
	TypeChangelingZerglingWings TypeID = 16
	TypeChangelingZergling      TypeID = 17
)

// Ability ids.
const (
	AbilityPurificationNova AbilityID = 2346
	AbilityCancelLockOn     AbilityID = 2354
)

// Buff ids.
const (
	BuffLockOn BuffID = 116
)

var changelings = map[TypeID]bool{
	TypeChangeling:              true,
	TypeChangelingZealot:        true,
	TypeChangelingMarineShield:  true,
	TypeChangelingMarine:        true,
	TypeChangelingZerglingWings: true,
	TypeChangelingZergling:      true,
}

// IsChangeling reports whether t is one of the mimic unit types.
func IsChangeling(t TypeID) bool {
	return changelings[t]
}
