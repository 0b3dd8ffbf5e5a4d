package resource

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/rtsmicro/game/unit"
)

// writeJSON writes v as JSON to dir/filename.
func writeJSON(t *testing.T, dir, filename string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), data, 0644))
}

func setupMinimalDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeJSON(t, dir, "UnitTypes.json", []map[string]interface{}{
		{"id": 48, "name": "Marine", "power": 1, "groundRange": 5, "airRange": 5,
			"canShootGround": true, "canShootAir": true, "radius": 0.375},
		{"id": 105, "name": "Zergling", "power": 0.5, "groundRange": 0.1,
			"canShootGround": true, "melee": true, "radius": 0.375},
	})
	return dir
}

// ---- Load() ----

func TestLoader_Load_Success(t *testing.T) {
	dir := setupMinimalDataDir(t)
	rl := NewLoader(dir)
	require.NoError(t, rl.Load())

	require.Len(t, rl.UnitTypes, 2)
	marine := rl.UnitTypeByID(48)
	require.NotNil(t, marine)
	assert.Equal(t, "Marine", marine.Name)
	assert.Equal(t, 5.0, marine.AirRange)
	assert.True(t, marine.CanShootAir)

	ling := rl.UnitTypeByID(105)
	require.NotNil(t, ling)
	assert.True(t, ling.Melee)
	assert.False(t, ling.CanShootAir)

	assert.Nil(t, rl.UnitTypeByID(9999))
	assert.Empty(t, rl.Abilities)
	assert.Empty(t, rl.Priorities)
}

func TestLoader_Load_MissingUnitTypes(t *testing.T) {
	rl := NewLoader(t.TempDir())
	err := rl.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnitTypes.json")
}

func TestLoader_Load_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "UnitTypes.json"), []byte("{not json"), 0644))
	err := NewLoader(dir).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoader_Load_AbilitiesAndPriorities(t *testing.T) {
	dir := setupMinimalDataDir(t)
	writeJSON(t, dir, "Abilities.json", []Ability{
		{ID: unit.AbilityPurificationNova, Name: "PurificationNova", CooldownLoops: 1008},
	})
	writeJSON(t, dir, "Priorities.json", []PriorityPreset{
		{Name: "anti-bio", Priorities: map[unit.TypeID]float64{48: 5, 105: 2}},
	})

	rl := NewLoader(dir)
	require.NoError(t, rl.Load())

	a := rl.AbilityByID(unit.AbilityPurificationNova)
	require.NotNil(t, a)
	assert.Equal(t, 1008, a.CooldownLoops)

	require.Len(t, rl.Priorities, 1)
	assert.Equal(t, 5.0, rl.Priorities[0].Priorities[48])
}

func TestLoader_Load_NullEntriesSkipped(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, dir, "UnitTypes.json", []interface{}{nil, map[string]interface{}{"id": 1, "name": "A"}})
	rl := NewLoader(dir)
	require.NoError(t, rl.Load())
	assert.NotNil(t, rl.UnitTypeByID(1))
	assert.Nil(t, rl.UnitTypeByID(0))
}
