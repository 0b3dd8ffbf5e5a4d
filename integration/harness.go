package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/rtsmicro/api/rest"
	"github.com/kasuganosora/rtsmicro/api/sse"
	apiws "github.com/kasuganosora/rtsmicro/api/ws"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/config"
	"github.com/kasuganosora/rtsmicro/game/cooldown"
	"github.com/kasuganosora/rtsmicro/game/tick"
	"github.com/kasuganosora/rtsmicro/game/values"
	"github.com/kasuganosora/rtsmicro/journal"
	mw "github.com/kasuganosora/rtsmicro/middleware"
	"github.com/kasuganosora/rtsmicro/resource"
	"github.com/kasuganosora/rtsmicro/scheduler"
	"github.com/kasuganosora/rtsmicro/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// DataDir holds the unit tables shipped with the server.
const DataDir = "../data"

// AdminKey is the admin key of every TestServer.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with all subsystems wired together.
type TestServer struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	SM       *apiws.SessionManager
	Res      *resource.ResourceLoader
	Journal  *journal.Journal
	Sched    *scheduler.Scheduler
	Profiles *tick.ProfileStore
	Server   *httptest.Server
	URL      string // http://127.0.0.1:<port>
	WSURL    string // ws://127.0.0.1:<port>/ws
	Sec      config.SecurityConfig
}

// NewTestServer creates a fully wired server over the shipped data tables.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		TickRateRPS:    1000,
		TickRateBurst:  2000,
		AllowedOrigins: []string{},
	}

	// ---- Unit tables ----
	res := resource.NewLoader(DataDir)
	require.NoError(t, res.Load(), "load %s", DataDir)
	vt := values.NewTable(res)
	tracker := cooldown.NewTracker(c, 10*time.Minute, logger)
	tracker.SetCooldowns(res)

	profiles := tick.NewProfileStore(db, c, logger)
	_, err := profiles.Seed(t.Context(), res.Priorities)
	require.NoError(t, err)

	j := journal.New(db, logger, 10, 20*time.Millisecond)
	solver := tick.NewSolver(vt, tracker, profiles, c, pubsub, j, tick.Options{DefaultStepSize: 2}, logger)

	sched := scheduler.New(logger)
	sched.AddTicker(scheduler.TaskReloadTables, time.Hour, scheduler.ReloadTables(DataDir, vt, tracker, logger))
	sched.AddTicker(scheduler.TaskPruneJournal, time.Hour, scheduler.PruneJournal(j, 72*time.Hour, logger))

	// ---- WS ----
	wsRouter := apiws.NewRouter(logger)
	tickLimiters := mw.NewLimiters(rate.Limit(sec.TickRateRPS), sec.TickRateBurst)
	apiws.RegisterCombatHandlers(wsRouter, solver, tickLimiters, logger)
	sm := apiws.NewSessionManager(c, logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "unit_types": vt.Len()})
	})

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(db, c, sec, logger)
	combatH := apirest.NewCombatHandler(solver, logger)
	prioH := apirest.NewPriorityHandler(profiles, logger)
	adminH := apirest.NewAdminHandler(db, c, sched, j, logger)
	sseH := sse.NewHandler(pubsub, c, sec, logger)
	auth := mw.Auth(sec, c)
	adminAuth := apirest.AdminAuth(AdminKey)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)

		combatG := api.Group("/combat", auth, mw.BotRateLimit(tickLimiters))
		combatG.POST("/assess", combatH.Assess)
		combatG.POST("/solve", combatH.Solve)
		combatG.GET("/recent", combatH.Recent)

		profG := api.Group("/profiles")
		profG.GET("", auth, prioH.List)
		profG.GET("/:name", auth, prioH.Get)
		profG.PUT("/:name", adminAuth, prioH.Put)
		profG.DELETE("/:name", adminAuth, prioH.Delete)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(nil), adminAuth)
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.POST("/scheduler/:name/run", adminH.RunSchedulerTask)
		adminG.POST("/bots", adminH.CreateBot)
		adminG.GET("/bots", adminH.ListBots)
		adminG.POST("/bots/:id/status", adminH.SetBotStatus)
		adminG.GET("/decisions", adminH.Decisions)
		adminG.POST("/announce", sseH.PostAnnounce)
	}

	wsH := apiws.NewHandler(c, sec, sm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	ts := &TestServer{
		DB:       db,
		Cache:    c,
		PubSub:   pubsub,
		SM:       sm,
		Res:      res,
		Journal:  j,
		Sched:    sched,
		Profiles: profiles,
		Server:   server,
		URL:      url,
		WSURL:    "ws" + url[len("http"):] + "/ws",
		Sec:      sec,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the test server and background workers.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Journal.Stop(context.Background())
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, bearer(token))
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, bearer(token))
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.do(t, method, path, body, map[string]string{"X-Admin-Key": AdminKey})
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Bot helpers ---

var uniqueCounter uint64

// UniqueID returns a name unique within the test binary.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, atomic.AddUint64(&uniqueCounter, 1))
}

// RegisterBot creates a bot through the admin API and returns its id and key.
func (ts *TestServer) RegisterBot(t *testing.T, name, profile string) (int64, string) {
	t.Helper()
	resp := ts.Admin(t, http.MethodPost, "/api/admin/bots", map[string]string{"name": name, "profile": profile})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		Bot struct {
			ID int64 `json:"id"`
		} `json:"bot"`
		Key string `json:"key"`
	}
	ReadJSON(t, resp, &out)
	return out.Bot.ID, out.Key
}

// Login logs a bot in and returns its token.
func (ts *TestServer) Login(t *testing.T, name, key string) string {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{"name": name, "key": key}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	ReadJSON(t, resp, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection. A background readLoop
// feeds readCh so a timed-out read never poisons the connection.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 64)}
	go wc.readLoop()
	t.Cleanup(func() { conn.Close() })
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet and returns its seq.
func (wc *WSClient) Send(msgType string, payload interface{}) uint64 {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	raw, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteJSON(apiws.Packet{Seq: seq, Type: msgType, Payload: raw}))
	return seq
}

// Recv reads one packet with a timeout.
func (wc *WSClient) Recv(timeout time.Duration) apiws.Packet {
	wc.t.Helper()
	select {
	case res := <-wc.readCh:
		require.NoError(wc.t, res.err, "WS recv failed")
		var pkt apiws.Packet
		require.NoError(wc.t, json.Unmarshal(res.data, &pkt))
		return pkt
	case <-time.After(timeout):
		wc.t.Fatalf("WS recv timed out after %s", timeout)
		return apiws.Packet{}
	}
}
