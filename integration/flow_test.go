package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	apiws "github.com/kasuganosora/rtsmicro/api/ws"
	"github.com/kasuganosora/rtsmicro/game/combat"
	"github.com/kasuganosora/rtsmicro/game/tick"
	"github.com/kasuganosora/rtsmicro/game/unit"
	"github.com/kasuganosora/rtsmicro/model"
	"github.com/kasuganosora/rtsmicro/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skirmish is a marine ball facing a tank and a mutalisk, with a second
// group of zerglings guarding a far hostile group.
func skirmish(loop int) tick.Input {
	return tick.Input{
		Loop: loop,
		Friendly: unit.Units{
			{Tag: 1, Type: 48, Position: unit.Point{X: 0, Y: 0}, ShieldHealthPercentage: 1},
			{Tag: 2, Type: 48, Position: unit.Point{X: 1, Y: 0}, ShieldHealthPercentage: 1},
			{Tag: 3, Type: 48, Position: unit.Point{X: 0, Y: 1}, ShieldHealthPercentage: 1},
			{Tag: 10, Type: 105, Position: unit.Point{X: 60, Y: 60}, ShieldHealthPercentage: 1},
		},
		Hostile: unit.Units{
			{Tag: 100, Type: 33, Position: unit.Point{X: 5, Y: 0}, ShieldHealthPercentage: 0.4},
			{Tag: 101, Type: 108, Position: unit.Point{X: 0, Y: 4}, ShieldHealthPercentage: 0.9, IsFlying: true},
			{Tag: 200, Type: 73, Position: unit.Point{X: 100, Y: 100}, ShieldHealthPercentage: 1},
		},
		Groups: []tick.GroupSpec{
			{Name: "bio", Tags: []unit.Tag{1, 2, 3}},
			{Name: "lings", Tags: []unit.Tag{10}},
		},
		HostileGroups: []tick.GroupSpec{
			{Name: "front", Tags: []unit.Tag{100, 101}},
			{Name: "far", Tags: []unit.Tag{200}},
		},
	}
}

func groupByName(t *testing.T, res tick.Result, name string) tick.GroupResult {
	t.Helper()
	for _, g := range res.Groups {
		if g.Name == name {
			return g
		}
	}
	t.Fatalf("group %q missing", name)
	return tick.GroupResult{}
}

func TestBotLifecycle(t *testing.T) {
	ts := NewTestServer(t)
	name := UniqueID("bot")
	botID, key := ts.RegisterBot(t, name, "anti-armor")
	token := ts.Login(t, name, key)

	// REST solve with the bot's profile
	in := skirmish(100)
	in.Profile = "anti-armor"
	resp := ts.PostJSON(t, "/api/combat/solve", in, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res tick.Result
	ReadJSON(t, resp, &res)
	require.Len(t, res.Groups, 2)

	bio := groupByName(t, res, "bio")
	assert.Equal(t, 1.0, bio.ReadyToAttackRatio)
	assert.Greater(t, bio.EngageRatio, 0.0)
	assert.Equal(t, "front", bio.ClosestGroup)
	for _, tag := range []unit.Tag{1, 2, 3} {
		assert.Equal(t, combat.Attack(100), bio.Commands[tag], "tank first under anti-armor")
	}

	lings := groupByName(t, res, "lings")
	require.NotNil(t, lings.GroupCommand)
	assert.True(t, lings.GroupCommand.IsAttack)
	require.NotNil(t, lings.GroupCommand.TargetPos)
	assert.Equal(t, unit.Point{X: 100, Y: 100}, *lings.GroupCommand.TargetPos, "closest hostile group")

	// journal entries land asynchronously
	path := "/api/admin/decisions?bot_id=" + strconv.FormatInt(botID, 10)
	require.Eventually(t, func() bool {
		var out struct {
			Count int `json:"count"`
		}
		ReadJSON(t, ts.Admin(t, http.MethodGet, path, nil), &out)
		return out.Count == 2
	}, 3*time.Second, 20*time.Millisecond)

	// recent feed
	resp = ts.Get(t, "/api/combat/recent?n=5", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recent struct {
		Ticks []tick.Summary `json:"ticks"`
	}
	ReadJSON(t, resp, &recent)
	require.Len(t, recent.Ticks, 1)
	assert.Equal(t, botID, *recent.Ticks[0].BotID)
}

func TestWebSocketTicks(t *testing.T) {
	ts := NewTestServer(t)
	name := UniqueID("ws")
	botID, key := ts.RegisterBot(t, name, "")
	token := ts.Login(t, name, key)

	wc := ts.ConnectWS(t, token)
	seq := wc.Send(apiws.MsgTick, skirmish(1))
	pkt := wc.Recv(3 * time.Second)
	require.Equal(t, apiws.MsgTickResult, pkt.Type, string(pkt.Payload))
	assert.Equal(t, seq, pkt.Seq)

	var res tick.Result
	require.NoError(t, json.Unmarshal(pkt.Payload, &res))
	bio := groupByName(t, res, "bio")
	// no profile: valuation by power, the tank is worth more than the mutalisk
	assert.Equal(t, combat.Attack(100), bio.Commands[1])

	resp := ts.Admin(t, http.MethodGet, "/api/admin/bots", nil)
	var bots struct {
		Bots []struct {
			ID     int64 `json:"id"`
			Online bool  `json:"online"`
		} `json:"bots"`
	}
	ReadJSON(t, resp, &bots)
	require.Len(t, bots.Bots, 1)
	assert.Equal(t, botID, bots.Bots[0].ID)
	assert.True(t, bots.Bots[0].Online)

	// disabling the bot blocks new logins but not the open socket
	resp = ts.Admin(t, http.MethodPost, "/api/admin/bots/"+strconv.FormatInt(botID, 10)+"/status",
		map[string]bool{"disabled": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.PostJSON(t, "/api/auth/login", map[string]string{"name": name, "key": key}, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	wc.Send(apiws.MsgPing, struct{}{})
	assert.Equal(t, apiws.MsgPong, wc.Recv(3*time.Second).Type)
}

func TestAbilityCooldownAcrossTicks(t *testing.T) {
	ts := NewTestServer(t)
	name := UniqueID("nova")
	_, key := ts.RegisterBot(t, name, "")
	token := ts.Login(t, name, key)

	disruptor := unit.Unit{Tag: 7, Type: unit.TypeDisruptor, ShieldHealthPercentage: 1,
		Abilities: []unit.AbilityID{unit.AbilityPurificationNova}}
	marine := unit.Unit{Tag: 8, Type: 48, Position: unit.Point{X: 1}, ShieldHealthPercentage: 1}

	// nova ready: one of two units ready
	in := tick.Input{Loop: 10, Friendly: unit.Units{&disruptor, &marine}}
	var res tick.Result
	ReadJSON(t, ts.PostJSON(t, "/api/combat/assess", in, token), &res)
	assert.Equal(t, 1.0, res.Groups[0].ReadyToAttackRatio)

	// report the nova cast, the cooldown holds for the following ticks
	in.AbilityUses = []tick.AbilityUse{{Tag: 7, Ability: unit.AbilityPurificationNova}}
	resp := ts.PostJSON(t, "/api/combat/solve", in, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	in = tick.Input{Loop: 20, Friendly: unit.Units{&disruptor, &marine}}
	ReadJSON(t, ts.PostJSON(t, "/api/combat/assess", in, token), &res)
	assert.Equal(t, 0.5, res.Groups[0].ReadyToAttackRatio)

	in.Loop = 10 + 954
	ReadJSON(t, ts.PostJSON(t, "/api/combat/assess", in, token), &res)
	assert.Equal(t, 1.0, res.Groups[0].ReadyToAttackRatio)
}

func TestProfilesAndScheduler(t *testing.T) {
	ts := NewTestServer(t)
	name := UniqueID("prof")
	_, key := ts.RegisterBot(t, name, "")
	token := ts.Login(t, name, key)

	var list struct {
		Profiles []model.PriorityProfile `json:"profiles"`
	}
	ReadJSON(t, ts.Get(t, "/api/profiles", token), &list)
	assert.Len(t, list.Profiles, len(ts.Res.Priorities), "seeded from Priorities.json")

	// bots cannot edit profiles
	resp := ts.do(t, http.MethodPut, "/api/profiles/mine", map[string]interface{}{
		"priorities": map[string]float64{"48": 1},
	}, bearer(token))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Admin(t, http.MethodPut, "/api/profiles/mine", map[string]interface{}{
		"priorities": map[string]float64{"108": 9},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	in := skirmish(5)
	in.Profile = "mine"
	var res tick.Result
	ReadJSON(t, ts.PostJSON(t, "/api/combat/solve", in, token), &res)
	assert.Equal(t, combat.Attack(101), groupByName(t, res, "bio").Commands[1], "mutalisk first")

	for _, task := range []string{scheduler.TaskReloadTables, scheduler.TaskPruneJournal} {
		resp = ts.Admin(t, http.MethodPost, "/api/admin/scheduler/"+task+"/run", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, task)
		resp.Body.Close()
	}
}

func TestSSEFeed(t *testing.T) {
	ts := NewTestServer(t)
	name := UniqueID("sse")
	_, key := ts.RegisterBot(t, name, "")
	token := ts.Login(t, name, key)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rd := bufio.NewReader(resp.Body)
	waitEvent := func(want string) string {
		var event string
		for {
			line, err := rd.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "event: ") {
				event = strings.TrimPrefix(line, "event: ")
			}
			if strings.HasPrefix(line, "data: ") && event == want {
				return strings.TrimPrefix(line, "data: ")
			}
		}
	}
	waitEvent("connected")

	r := ts.PostJSON(t, "/api/combat/solve", skirmish(42), token)
	require.Equal(t, http.StatusOK, r.StatusCode)
	r.Body.Close()

	var sum tick.Summary
	require.NoError(t, json.Unmarshal([]byte(waitEvent("assessment")), &sum))
	assert.Equal(t, 42, sum.Loop)
	assert.Len(t, sum.Groups, 2)
}
