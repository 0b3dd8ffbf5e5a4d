package tick

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/game/combat"
	"github.com/kasuganosora/rtsmicro/game/cooldown"
	"github.com/kasuganosora/rtsmicro/game/spatial"
	"github.com/kasuganosora/rtsmicro/game/unit"
	"github.com/kasuganosora/rtsmicro/game/values"
	"github.com/kasuganosora/rtsmicro/journal"
)

// Pub/sub channel of the assessment feed and prefix of the per-bot recent lists.
const (
	ChannelAssessment = "combat:assessment"
	keyRecentPrefix   = "combat:recent:"
)

// DefaultGroupName names the implicit group holding every friendly unit.
const DefaultGroupName = "all"

// GroupSpec names a set of units by tag. Command is the group's current
// order, passed to GroupSolve.
type GroupSpec struct {
	Name    string        `json:"name"`
	Tags    []unit.Tag    `json:"tags"`
	Command combat.Action `json:"command"`
}

// AbilityUse reports that a unit cast an ability. Loop 0 means the tick's loop.
type AbilityUse struct {
	Tag     unit.Tag       `json:"tag"`
	Ability unit.AbilityID `json:"ability"`
	Loop    int            `json:"loop,omitempty"`
}

// Input is one tick of a bot's world state.
type Input struct {
	Loop          int             `json:"loop"`
	StepSize      float64         `json:"step_size"`
	MoveType      combat.MoveType `json:"move_type"`
	Friendly      unit.Units      `json:"friendly"`
	Hostile       unit.Units      `json:"hostile"`
	Groups        []GroupSpec     `json:"groups"`
	HostileGroups []GroupSpec     `json:"hostile_groups"`
	Profile       string          `json:"profile"`
	AbilityUses   []AbilityUse    `json:"ability_uses"`
	Dead          []unit.Tag      `json:"dead"`

	BotID   *int64 `json:"-"`
	TraceID string `json:"-"`
}

// owner scopes per-game state (ability history, recent feed) to the calling
// bot. Unauthenticated callers share owner 0.
func (in Input) owner() int64 {
	if in.BotID == nil {
		return 0
	}
	return *in.BotID
}

// RecentKey is the cache list holding the newest summaries of one bot.
func RecentKey(botID int64) string {
	return keyRecentPrefix + strconv.FormatInt(botID, 10)
}

// GroupResult is the assessment of one friendly group and, for Solve, the
// commands chosen for its units.
type GroupResult struct {
	Name                 string                     `json:"name"`
	MoveType             combat.MoveType            `json:"move_type"`
	Center               unit.Point                 `json:"center"`
	ReadyToAttackRatio   float64                    `json:"ready_to_attack_ratio"`
	EngageRatio          float64                    `json:"engage_ratio"`
	CanEngageRatio       float64                    `json:"can_engage_ratio"`
	ClosestGroup         string                     `json:"closest_group,omitempty"`
	ClosestGroupDistance float64                    `json:"closest_group_distance,omitempty"`
	EnemiesNearby        int                        `json:"enemies_nearby"`
	NearestHostile       map[unit.Tag]unit.Tag      `json:"nearest_hostile"`
	OurPower             values.Power               `json:"our_power"`
	EngagedPower         values.Power               `json:"engaged_power"`
	GroupCommand         *combat.Action             `json:"group_command,omitempty"`
	Commands             map[unit.Tag]combat.Action `json:"commands,omitempty"`
}

// Result is the outcome of one tick.
type Result struct {
	Loop    int           `json:"loop"`
	TraceID string        `json:"trace_id,omitempty"`
	Profile string        `json:"profile,omitempty"`
	Groups  []GroupResult `json:"groups"`
}

// Journal receives one entry per solved group.
type Journal interface {
	Record(e journal.Entry)
}

// Options configures a Solver.
type Options struct {
	Params          combat.Params
	DefaultStepSize float64
	DefaultProfile  string
	RecentLimit     int
}

// Solver runs the combat engine for one tick at a time. A Solver is safe for
// concurrent use; every call builds its own engine.
type Solver struct {
	values   *values.Table
	tracker  *cooldown.Tracker
	profiles *ProfileStore
	cache    cache.Cache
	pubsub   cache.PubSub
	journal  Journal
	opts     Options
	logger   *zap.Logger
}

// NewSolver creates a Solver. profiles, pubsub and j may be nil.
func NewSolver(vt *values.Table, tracker *cooldown.Tracker, profiles *ProfileStore,
	c cache.Cache, ps cache.PubSub, j Journal, opts Options, logger *zap.Logger) *Solver {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 100
	}
	if opts.Params == (combat.Params{}) {
		opts.Params = combat.DefaultParams()
	}
	return &Solver{
		values:   vt,
		tracker:  tracker,
		profiles: profiles,
		cache:    c,
		pubsub:   ps,
		journal:  j,
		opts:     opts,
		logger:   logger,
	}
}

// Assess evaluates every group without choosing commands or recording
// anything.
func (s *Solver) Assess(ctx context.Context, in Input) (Result, error) {
	return s.run(ctx, in, false)
}

// Solve records the reported ability uses, assesses every group and picks a
// command for each unit. The summary is published and journaled. Ability
// history of units listed in Dead is dropped.
func (s *Solver) Solve(ctx context.Context, in Input) (Result, error) {
	owner := in.owner()
	if err := s.tracker.Forget(ctx, owner, in.Dead...); err != nil {
		return Result{}, fmt.Errorf("tick: %w", err)
	}
	for _, use := range in.AbilityUses {
		loop := use.Loop
		if loop == 0 {
			loop = in.Loop
		}
		if err := s.tracker.Record(ctx, owner, use.Tag, use.Ability, loop); err != nil {
			return Result{}, fmt.Errorf("tick: %w", err)
		}
	}
	res, err := s.run(ctx, in, true)
	if err != nil {
		return res, err
	}
	s.publish(ctx, in, res)
	return res, nil
}

type preparedGroup struct {
	group   *combat.Group
	command combat.Action
}

func (s *Solver) run(ctx context.Context, in Input, solve bool) (Result, error) {
	friendly := compact(in.Friendly)
	hostile := compact(in.Hostile)

	groups, err := s.friendlyGroups(in.Groups, friendly)
	if err != nil {
		return Result{}, err
	}
	enemyGroups := s.hostileGroups(in.HostileGroups, hostile)

	profile := in.Profile
	if profile == "" {
		profile = s.opts.DefaultProfile
	}
	var prio combat.Priorities
	if s.profiles != nil {
		if prio, err = s.profiles.Priorities(ctx, profile); err != nil {
			return Result{}, err
		}
	}

	view, err := s.tracker.View(ctx, in.owner(), in.Loop, friendly)
	if err != nil {
		return Result{}, fmt.Errorf("tick: %w", err)
	}
	step := in.StepSize
	if step <= 0 {
		step = s.opts.DefaultStepSize
	}

	logger := s.logger.With(zap.String("trace_id", in.TraceID), zap.Int("loop", in.Loop))
	engine := combat.NewEngine(combat.Services{
		Query:     spatial.NewIndex(hostile),
		Values:    s.values,
		Cooldowns: view,
		Clock:     combat.FixedClock{Step: step, Loop: in.Loop},
		Buffs:     combat.SnapshotBuffs{},
	}, s.opts.Params, logger)
	doctrines := combat.NewDoctrines(engine, prio)

	res := Result{Loop: in.Loop, TraceID: in.TraceID, Profile: profile, Groups: make([]GroupResult, 0, len(groups))}
	for _, pg := range groups {
		start := time.Now()
		a, err := engine.Assess(pg.group, pg.group.Units, enemyGroups, in.MoveType)
		if err != nil {
			s.record(in, profile, pg.group, nil, err, time.Since(start))
			return Result{}, fmt.Errorf("tick: group %q: %w", pg.group.Name, err)
		}
		gr := summarize(&a)
		if solve {
			solveGroup(doctrines, &a, pg.command, &gr)
			s.record(in, profile, pg.group, &gr, nil, time.Since(start))
		}
		res.Groups = append(res.Groups, gr)
	}
	return res, nil
}

// solveGroup runs GroupSolve with the doctrine of the group's first unit,
// then UnitSolve for every unit with the group command as current order.
func solveGroup(d *combat.Doctrines, a *combat.Assessment, current combat.Action, gr *GroupResult) {
	units := a.Group.Units
	groupCmd := d.For(units[0]).GroupSolve(a, current)
	if !groupCmd.IsZero() {
		c := groupCmd
		gr.GroupCommand = &c
	}
	gr.Commands = make(map[unit.Tag]combat.Action, len(units))
	for _, u := range units {
		cmd := d.For(u).UnitSolve(a, u, groupCmd)
		if !cmd.IsZero() {
			gr.Commands[u.Tag] = cmd
		}
	}
}

func summarize(a *combat.Assessment) GroupResult {
	gr := GroupResult{
		Name:               a.Group.Name,
		MoveType:           a.MoveType,
		Center:             a.Center,
		ReadyToAttackRatio: a.ReadyToAttackRatio,
		EngageRatio:        a.EngageRatio,
		CanEngageRatio:     a.CanEngageRatio,
		EnemiesNearby:      len(a.EnemiesNearby),
		NearestHostile:     make(map[unit.Tag]unit.Tag, len(a.NearestHostile)),
		OurPower:           a.OurPower,
		EngagedPower:       a.EngagedPower,
	}
	if a.ClosestGroup != nil {
		gr.ClosestGroup = a.ClosestGroup.Name
		gr.ClosestGroupDistance = a.ClosestGroupDistance
	}
	for tag, h := range a.NearestHostile {
		gr.NearestHostile[tag] = h.Tag
	}
	return gr
}

// friendlyGroups resolves group specs against the friendly units. Without
// specs every friendly unit forms one group.
func (s *Solver) friendlyGroups(specs []GroupSpec, friendly unit.Units) ([]preparedGroup, error) {
	if len(specs) == 0 {
		return []preparedGroup{{group: combat.NewGroup(DefaultGroupName, friendly, s.values)}}, nil
	}
	byTag := friendly.ByTag()
	out := make([]preparedGroup, 0, len(specs))
	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("group-%d", i)
		}
		us := resolve(spec.Tags, byTag)
		if len(us) == 0 {
			return nil, fmt.Errorf("tick: group %q: %w", name, combat.ErrEmptyGroup)
		}
		out = append(out, preparedGroup{group: combat.NewGroup(name, us, s.values), command: spec.Command})
	}
	return out, nil
}

// hostileGroups resolves hostile group specs. Without specs all hostiles
// form one group; groups with no known unit are dropped.
func (s *Solver) hostileGroups(specs []GroupSpec, hostile unit.Units) []*combat.Group {
	if len(specs) == 0 {
		if len(hostile) == 0 {
			return nil
		}
		return []*combat.Group{combat.NewGroup("hostile", hostile, s.values)}
	}
	byTag := hostile.ByTag()
	out := make([]*combat.Group, 0, len(specs))
	for i, spec := range specs {
		us := resolve(spec.Tags, byTag)
		if len(us) == 0 {
			continue
		}
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("hostile-%d", i)
		}
		out = append(out, combat.NewGroup(name, us, s.values))
	}
	return out
}

func resolve(tags []unit.Tag, byTag map[unit.Tag]*unit.Unit) unit.Units {
	us := make(unit.Units, 0, len(tags))
	seen := make(map[unit.Tag]bool, len(tags))
	for _, tag := range tags {
		if u, ok := byTag[tag]; ok && !seen[tag] {
			seen[tag] = true
			us = append(us, u)
		}
	}
	return us
}

func compact(us unit.Units) unit.Units {
	out := us[:0:0]
	for _, u := range us {
		if u != nil {
			out = append(out, u)
		}
	}
	return out
}

func (s *Solver) record(in Input, profile string, g *combat.Group, gr *GroupResult, err error, d time.Duration) {
	if s.journal == nil {
		return
	}
	e := journal.Entry{
		TraceID:   in.TraceID,
		BotID:     in.BotID,
		GameLoop:  in.Loop,
		GroupName: g.Name,
		MoveType:  in.MoveType.String(),
		Profile:   profile,
		UnitCount: len(g.Units),
		Duration:  d,
	}
	if gr != nil {
		e.ReadyRatio = gr.ReadyToAttackRatio
		e.EngageRatio = gr.EngageRatio
		e.CanEngageRatio = gr.CanEngageRatio
		e.EnemiesNearby = gr.EnemiesNearby
		e.Actions = gr.Commands
	}
	if err != nil {
		e.Error = err.Error()
	}
	s.journal.Record(e)
}

// Summary is the feed entry published after every solved tick.
type Summary struct {
	BotID   *int64         `json:"bot_id,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
	Loop    int            `json:"loop"`
	Groups  []GroupSummary `json:"groups"`
	At      int64          `json:"at"`
}

// GroupSummary is the feed view of one group.
type GroupSummary struct {
	Name          string  `json:"name"`
	Ready         float64 `json:"ready"`
	Engage        float64 `json:"engage"`
	CanEngage     float64 `json:"can_engage"`
	EnemiesNearby int     `json:"enemies_nearby"`
	Commands      int     `json:"commands"`
}

func (s *Solver) publish(ctx context.Context, in Input, res Result) {
	sum := Summary{BotID: in.BotID, TraceID: in.TraceID, Loop: in.Loop, At: time.Now().UnixMilli()}
	for _, g := range res.Groups {
		sum.Groups = append(sum.Groups, GroupSummary{
			Name:          g.Name,
			Ready:         g.ReadyToAttackRatio,
			Engage:        g.EngageRatio,
			CanEngage:     g.CanEngageRatio,
			EnemiesNearby: g.EnemiesNearby,
			Commands:      len(g.Commands),
		})
	}
	b, err := json.Marshal(sum)
	if err != nil {
		return
	}
	if s.pubsub != nil {
		if err := s.pubsub.Publish(ctx, ChannelAssessment, string(b)); err != nil {
			s.logger.Warn("assessment publish failed", zap.Error(err))
		}
	}
	key := RecentKey(in.owner())
	if err := s.cache.LPush(ctx, key, string(b)); err != nil {
		s.logger.Warn("recent feed push failed", zap.Error(err))
		return
	}
	if err := s.cache.LTrim(ctx, key, 0, int64(s.opts.RecentLimit-1)); err != nil {
		s.logger.Warn("recent feed trim failed", zap.Error(err))
	}
}

// Recent returns botID's newest published summaries, newest first.
func (s *Solver) Recent(ctx context.Context, botID int64, n int) ([]Summary, error) {
	if n <= 0 || n > s.opts.RecentLimit {
		n = s.opts.RecentLimit
	}
	raw, err := s.cache.LRange(ctx, RecentKey(botID), 0, int64(n-1))
	if err != nil {
		return nil, fmt.Errorf("tick: recent: %w", err)
	}
	out := make([]Summary, 0, len(raw))
	for _, r := range raw {
		var sum Summary
		if err := json.Unmarshal([]byte(r), &sum); err != nil {
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}
