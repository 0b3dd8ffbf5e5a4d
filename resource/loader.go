package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kasuganosora/rtsmicro/game/unit"
)

// ---- Data Structures ----

// UnitType is one row of UnitTypes.json: the static combat values of a unit type.
type UnitType struct {
	ID             unit.TypeID `json:"id"`
	Name           string      `json:"name"`
	Power          float64     `json:"power"`
	GroundRange    float64     `json:"groundRange"`
	AirRange       float64     `json:"airRange"`
	CanShootGround bool        `json:"canShootGround"`
	CanShootAir    bool        `json:"canShootAir"`
	Melee          bool        `json:"melee"`
	Radius         float64     `json:"radius"`
}

// Ability is one row of Abilities.json.
type Ability struct {
	ID            unit.AbilityID `json:"id"`
	Name          string         `json:"name"`
	CooldownLoops int            `json:"cooldownLoops"`
}

// PriorityPreset is one row of Priorities.json: a named type → priority table
// used to seed priority profiles.
type PriorityPreset struct {
	Name       string                  `json:"name"`
	Priorities map[unit.TypeID]float64 `json:"priorities"`
}

// ---- ResourceLoader ----

// ResourceLoader reads and holds the static combat data files.
type ResourceLoader struct {
	DataPath   string
	UnitTypes  []*UnitType
	Abilities  []*Ability
	Priorities []*PriorityPreset

	unitByID    map[unit.TypeID]*UnitType
	abilityByID map[unit.AbilityID]*Ability
}

// NewLoader creates a ResourceLoader for the given data directory.
func NewLoader(dataPath string) *ResourceLoader {
	return &ResourceLoader{
		DataPath:    dataPath,
		unitByID:    make(map[unit.TypeID]*UnitType),
		abilityByID: make(map[unit.AbilityID]*Ability),
	}
}

// Load reads all data files and builds the lookup indexes.
// UnitTypes.json is required; Abilities.json and Priorities.json are optional.
func (rl *ResourceLoader) Load() error {
	loaders := []func() error{
		rl.loadUnitTypes,
		rl.loadAbilities,
		rl.loadPriorities,
	}
	for _, fn := range loaders {
		if err := fn(); err != nil {
			return err
		}
	}
	rl.buildIndexes()
	return nil
}

// UnitTypeByID returns the unit type row for id, or nil.
func (rl *ResourceLoader) UnitTypeByID(id unit.TypeID) *UnitType {
	return rl.unitByID[id]
}

// AbilityByID returns the ability row for id, or nil.
func (rl *ResourceLoader) AbilityByID(id unit.AbilityID) *Ability {
	return rl.abilityByID[id]
}

func (rl *ResourceLoader) path(file string) string {
	return filepath.Join(rl.DataPath, file)
}

func loadJSONArray[T any](path string) ([]*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", path, err)
	}
	var arr []*T
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return arr, nil
}

// loadOptionalJSONArray is loadJSONArray but treats a missing file as empty.
func loadOptionalJSONArray[T any](path string) ([]*T, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return loadJSONArray[T](path)
}

func (rl *ResourceLoader) loadUnitTypes() error {
	var err error
	rl.UnitTypes, err = loadJSONArray[UnitType](rl.path("UnitTypes.json"))
	return err
}

func (rl *ResourceLoader) loadAbilities() error {
	var err error
	rl.Abilities, err = loadOptionalJSONArray[Ability](rl.path("Abilities.json"))
	return err
}

func (rl *ResourceLoader) loadPriorities() error {
	var err error
	rl.Priorities, err = loadOptionalJSONArray[PriorityPreset](rl.path("Priorities.json"))
	return err
}

func (rl *ResourceLoader) buildIndexes() {
	rl.unitByID = make(map[unit.TypeID]*UnitType, len(rl.UnitTypes))
	for _, ut := range rl.UnitTypes {
		if ut == nil {
			continue
		}
		rl.unitByID[ut.ID] = ut
	}
	rl.abilityByID = make(map[unit.AbilityID]*Ability, len(rl.Abilities))
	for _, a := range rl.Abilities {
		if a == nil {
			continue
		}
		rl.abilityByID[a.ID] = a
	}
}
