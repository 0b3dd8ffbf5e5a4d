package cooldown

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/game/unit"
	"github.com/kasuganosora/rtsmicro/resource"
)

const keyPrefix = "cooldown:"

// DefaultTTL bounds how long an idle unit's ability history is kept.
const DefaultTTL = 10 * time.Minute

// Tracker stores the game loop at which each unit last used each ability.
// Ability availability itself comes from the unit snapshot; the tracker only
// adds the cooldown window on top of it.
type Tracker struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger

	mu        sync.RWMutex
	cooldowns map[unit.AbilityID]int
}

// NewTracker creates a Tracker over c.
func NewTracker(c cache.Cache, ttl time.Duration, logger *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		cache:     c,
		ttl:       ttl,
		logger:    logger,
		cooldowns: make(map[unit.AbilityID]int),
	}
}

// SetCooldowns replaces the ability cooldown lengths with those of rl.
func (t *Tracker) SetCooldowns(rl *resource.ResourceLoader) {
	m := make(map[unit.AbilityID]int)
	if rl != nil {
		for _, a := range rl.Abilities {
			if a == nil || a.CooldownLoops <= 0 {
				continue
			}
			m[a.ID] = a.CooldownLoops
		}
	}
	t.mu.Lock()
	t.cooldowns = m
	t.mu.Unlock()
}

// CooldownLoops returns the cooldown length of ability a, 0 when unknown.
func (t *Tracker) CooldownLoops(a unit.AbilityID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cooldowns[a]
}

// key scopes a unit's history to its owner: unit tags are only unique within
// one game, and every bot runs its own game. Owner 0 is the anonymous caller.
func key(owner int64, tag unit.Tag) string {
	return keyPrefix + strconv.FormatInt(owner, 10) + ":" + strconv.FormatUint(uint64(tag), 10)
}

// Record stores that owner's unit tag used ability at game loop.
func (t *Tracker) Record(ctx context.Context, owner int64, tag unit.Tag, ability unit.AbilityID, loop int) error {
	k := key(owner, tag)
	if err := t.cache.HSet(ctx, k, strconv.FormatUint(uint64(ability), 10), strconv.Itoa(loop)); err != nil {
		return fmt.Errorf("cooldown: record %d/%d: %w", tag, ability, err)
	}
	if err := t.cache.Expire(ctx, k, t.ttl); err != nil {
		return fmt.Errorf("cooldown: expire %d: %w", tag, err)
	}
	return nil
}

// Forget drops all history of owner's given units.
func (t *Tracker) Forget(ctx context.Context, owner int64, tags ...unit.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = key(owner, tag)
	}
	return t.cache.Del(ctx, keys...)
}

// LastUsed returns the recorded ability uses of owner's unit tag.
func (t *Tracker) LastUsed(ctx context.Context, owner int64, tag unit.Tag) (map[unit.AbilityID]int, error) {
	k := key(owner, tag)
	raw, err := t.cache.HGetAll(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("cooldown: load %d: %w", tag, err)
	}
	return t.parse(k, raw), nil
}

func (t *Tracker) parse(k string, raw map[string]string) map[unit.AbilityID]int {
	out := make(map[unit.AbilityID]int, len(raw))
	for field, val := range raw {
		a, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			t.logger.Warn("cooldown: bad ability field", zap.String("key", k), zap.String("field", field))
			continue
		}
		loop, err := strconv.Atoi(val)
		if err != nil {
			t.logger.Warn("cooldown: bad loop value", zap.String("key", k), zap.String("value", val))
			continue
		}
		out[unit.AbilityID(a)] = loop
	}
	return out
}

// View loads the history of owner's units us in one batched read into an
// in-memory snapshot for game loop `loop`. The snapshot answers
// IsAbilityReady without I/O.
func (t *Tracker) View(ctx context.Context, owner int64, loop int, us unit.Units) (*View, error) {
	v := &View{
		loop:     loop,
		units:    us.ByTag(),
		lastUsed: make(map[unit.Tag]map[unit.AbilityID]int, len(us)),
	}
	t.mu.RLock()
	v.cooldowns = t.cooldowns
	t.mu.RUnlock()
	if len(us) == 0 {
		return v, nil
	}

	keys := make([]string, len(us))
	for i, u := range us {
		keys[i] = key(owner, u.Tag)
	}
	raw, err := t.cache.HGetAllMany(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("cooldown: load %d units: %w", len(us), err)
	}
	for i, u := range us {
		if i >= len(raw) || len(raw[i]) == 0 {
			continue
		}
		v.lastUsed[u.Tag] = t.parse(keys[i], raw[i])
	}
	return v, nil
}

// View is a read-only per-tick cooldown snapshot.
type View struct {
	loop      int
	units     map[unit.Tag]*unit.Unit
	lastUsed  map[unit.Tag]map[unit.AbilityID]int
	cooldowns map[unit.AbilityID]int
}

// IsAbilityReady reports whether the unit lists ability as castable and its
// last recorded use is at least one cooldown ago. Unknown units are never ready.
func (v *View) IsAbilityReady(tag unit.Tag, ability unit.AbilityID) bool {
	u, ok := v.units[tag]
	if !ok || !u.HasAbility(ability) {
		return false
	}
	last, used := v.lastUsed[tag][ability]
	if !used {
		return true
	}
	return v.loop-last >= v.cooldowns[ability]
}
