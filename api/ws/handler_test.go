package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/config"
	"github.com/kasuganosora/rtsmicro/game/combat"
	"github.com/kasuganosora/rtsmicro/game/cooldown"
	"github.com/kasuganosora/rtsmicro/game/tick"
	"github.com/kasuganosora/rtsmicro/game/values"
	mw "github.com/kasuganosora/rtsmicro/middleware"
	"github.com/kasuganosora/rtsmicro/model"
	"github.com/kasuganosora/rtsmicro/resource"
	"github.com/kasuganosora/rtsmicro/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var testSec = config.SecurityConfig{JWTSecret: "ws-secret", JWTTTLH: time.Hour}

type wsEnv struct {
	server *httptest.Server
	cache  cache.Cache
	sm     *SessionManager
}

func newWSEnv(t *testing.T, limiters *mw.Limiters) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, ps := testutil.SetupTestCache(t)
	db := testutil.SetupTestDB(t)

	rl := resource.NewLoader("")
	rl.UnitTypes = []*resource.UnitType{
		{ID: 48, Power: 1, GroundRange: 5, AirRange: 5, CanShootGround: true, CanShootAir: true},
		{ID: 33, Power: 3, GroundRange: 5, CanShootGround: true},
	}
	tracker := cooldown.NewTracker(c, time.Minute, nop())
	solver := tick.NewSolver(values.NewTable(rl), tracker, tick.NewProfileStore(db, c, nop()),
		c, ps, nil, tick.Options{DefaultStepSize: 2}, nop())

	router := NewRouter(nop())
	RegisterCombatHandlers(router, solver, limiters, nop())
	sm := NewSessionManager(c, nop())
	h := NewHandler(c, testSec, sm, router, nop())

	r := gin.New()
	r.GET("/ws", h.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &wsEnv{server: srv, cache: c, sm: sm}
}

func (e *wsEnv) token(t *testing.T, botID int64) string {
	t.Helper()
	tok, err := mw.GenerateToken(botID, "bot", testSec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, e.cache.Set(context.Background(), mw.SessionKey(tok), "1", time.Hour))
	return tok
}

func (e *wsEnv) dial(t *testing.T, tok string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + tok
	return websocket.DefaultDialer.Dial(url, nil)
}

func send(t *testing.T, conn *websocket.Conn, seq uint64, msgType string, payload string) {
	t.Helper()
	pkt := Packet{Seq: seq, Type: msgType}
	if payload != "" {
		pkt.Payload = json.RawMessage(payload)
	}
	require.NoError(t, conn.WriteJSON(pkt))
}

func recv(t *testing.T, conn *websocket.Conn) Packet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var pkt Packet
	require.NoError(t, conn.ReadJSON(&pkt))
	return pkt
}

const wsTick = `{
	"loop": 12,
	"friendly": [{"tag": 1, "type": 48, "pos": {"x": 0, "y": 0}, "shield_health_pct": 1}],
	"hostile":  [{"tag": 100, "type": 33, "pos": {"x": 3, "y": 0}, "shield_health_pct": 1}]
}`

func TestServeWS_RejectsBadToken(t *testing.T) {
	e := newWSEnv(t, nil)
	_, resp, err := e.dial(t, "garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// valid signature but no live session
	tok, err := mw.GenerateToken(1, "bot", testSec.JWTSecret, time.Hour)
	require.NoError(t, err)
	_, resp, err = e.dial(t, tok)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_TickRoundTrip(t *testing.T) {
	e := newWSEnv(t, nil)
	conn, _, err := e.dial(t, e.token(t, 5))
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, 1, MsgTick, wsTick)
	pkt := recv(t, conn)
	require.Equal(t, MsgTickResult, pkt.Type, string(pkt.Payload))
	assert.Equal(t, uint64(1), pkt.Seq)

	var res tick.Result
	require.NoError(t, json.Unmarshal(pkt.Payload, &res))
	assert.Equal(t, 12, res.Loop)
	assert.NotEmpty(t, res.TraceID)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, combat.Attack(100), res.Groups[0].Commands[1])

	send(t, conn, 2, MsgAssess, wsTick)
	pkt = recv(t, conn)
	assert.Equal(t, MsgAssessResult, pkt.Type)

	send(t, conn, 3, MsgPing, "")
	assert.Equal(t, MsgPong, recv(t, conn).Type)
}

func TestServeWS_ErrorsReplied(t *testing.T) {
	e := newWSEnv(t, nil)
	conn, _, err := e.dial(t, e.token(t, 5))
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, 1, MsgTick, `{"friendly": []}`)
	pkt := recv(t, conn)
	assert.Equal(t, MsgError, pkt.Type)
	assert.Contains(t, string(pkt.Payload), combat.ErrEmptyGroup.Error())

	send(t, conn, 2, MsgTick, `"nope"`)
	pkt = recv(t, conn)
	assert.Equal(t, MsgError, pkt.Type)
	assert.Equal(t, uint64(2), pkt.Seq)
}

func TestServeWS_RateLimited(t *testing.T) {
	e := newWSEnv(t, mw.NewLimiters(rate.Limit(0.001), 1))
	conn, _, err := e.dial(t, e.token(t, 5))
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, 1, MsgTick, wsTick)
	assert.Equal(t, MsgTickResult, recv(t, conn).Type)
	send(t, conn, 2, MsgTick, wsTick)
	pkt := recv(t, conn)
	assert.Equal(t, MsgError, pkt.Type)
	assert.Contains(t, string(pkt.Payload), ErrRateLimited.Error())
}

func TestServeWS_OnlineSet(t *testing.T) {
	e := newWSEnv(t, nil)
	ctx := context.Background()
	conn, _, err := e.dial(t, e.token(t, 7))
	require.NoError(t, err)

	// the session is registered before the first reply
	send(t, conn, 1, MsgPing, "")
	recv(t, conn)
	members, err := e.cache.SMembers(ctx, model.OnlineBotsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, members)
	assert.Equal(t, 1, e.sm.Count())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return e.sm.Count() == 0 }, 3*time.Second, 20*time.Millisecond)
	members, err = e.cache.SMembers(ctx, model.OnlineBotsKey)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestServeWS_DuplicateLoginDisplaces(t *testing.T) {
	e := newWSEnv(t, nil)
	first, _, err := e.dial(t, e.token(t, 9))
	require.NoError(t, err)
	defer first.Close()
	send(t, first, 1, MsgPing, "")
	recv(t, first)
	old := e.sm.Get(9)

	second, _, err := e.dial(t, e.token(t, 9))
	require.NoError(t, err)
	defer second.Close()
	send(t, second, 1, MsgPing, "")
	recv(t, second)

	assert.True(t, old.IsClosed())
	assert.NotSame(t, old, e.sm.Get(9))
	assert.Equal(t, 1, e.sm.Count())

	// the displaced connection is closed by the server
	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = first.ReadMessage()
	assert.Error(t, err)

	// its disconnect must not drop the new session
	time.Sleep(100 * time.Millisecond)
	members, err := e.cache.SMembers(context.Background(), model.OnlineBotsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, members)
}
