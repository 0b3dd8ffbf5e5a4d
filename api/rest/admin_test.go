package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rtsmicro/api/rest"
	"github.com/kasuganosora/rtsmicro/journal"
	"github.com/kasuganosora/rtsmicro/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminKey = "admin-secret"

func newAdminRouter(t *testing.T) (*gin.Engine, *testEnv) {
	env := newTestEnv(t)
	h := rest.NewAdminHandler(env.db, env.cache, env.sched, env.journal, nopLogger())
	auth := rest.NewAuthHandler(env.db, env.cache, testSec, nopLogger())

	r := gin.New()
	r.POST("/api/auth/login", auth.Login)
	admin := r.Group("/api/admin", rest.AdminAuth(adminKey))
	admin.GET("/metrics", h.Metrics)
	admin.GET("/scheduler", h.ListSchedulerTasks)
	admin.POST("/scheduler/:name/run", h.RunSchedulerTask)
	admin.POST("/bots", h.CreateBot)
	admin.GET("/bots", h.ListBots)
	admin.POST("/bots/:id/status", h.SetBotStatus)
	admin.GET("/decisions", h.Decisions)
	return r, env
}

func adminHdr() []string { return []string{"X-Admin-Key", adminKey} }

func TestAdminAuth(t *testing.T) {
	r := gin.New()
	r.GET("/off", rest.AdminAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/on", rest.AdminAuth(adminKey), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(r, "/off", "X-Admin-Key", "").Code)
	assert.Equal(t, http.StatusUnauthorized, getJSON(r, "/on").Code)
	assert.Equal(t, http.StatusUnauthorized, getJSON(r, "/on", "X-Admin-Key", "nope").Code)
	assert.Equal(t, http.StatusOK, getJSON(r, "/on", adminHdr()...).Code)
}

func TestAdmin_CreateBotAndLogin(t *testing.T) {
	r, _ := newAdminRouter(t)

	w := postJSON(r, "/api/admin/bots", map[string]string{"name": "gamma", "profile": "anti-air"}, adminHdr()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Bot model.Bot `json:"bot"`
		Key string    `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotZero(t, resp.Bot.ID)
	assert.Equal(t, "anti-air", resp.Bot.Profile)
	assert.NotEmpty(t, resp.Key)
	assert.NotContains(t, w.Body.String(), "key_hash")

	login(t, r, "gamma", resp.Key)

	w = postJSON(r, "/api/admin/bots", map[string]string{"name": "gamma"}, adminHdr()...)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdmin_ListAndDisableBots(t *testing.T) {
	r, env := newAdminRouter(t)
	bot := createBot(t, env.db, "delta", "secret-key-4", model.BotStatusActive)
	require.NoError(t, env.cache.SAdd(context.Background(), model.OnlineBotsKey, strconv.FormatInt(bot.ID, 10)))

	w := getJSON(r, "/api/admin/bots", adminHdr()...)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Bots []struct {
			ID     int64 `json:"id"`
			Online bool  `json:"online"`
		} `json:"bots"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.True(t, list.Bots[0].Online)

	path := "/api/admin/bots/" + strconv.FormatInt(bot.ID, 10) + "/status"
	require.Equal(t, http.StatusOK, postJSON(r, path, map[string]bool{"disabled": true}, adminHdr()...).Code)
	w = postJSON(r, "/api/auth/login", map[string]string{"name": "delta", "key": "secret-key-4"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.Equal(t, http.StatusOK, postJSON(r, path, map[string]bool{"disabled": false}, adminHdr()...).Code)
	login(t, r, "delta", "secret-key-4")

	assert.Equal(t, http.StatusNotFound, postJSON(r, "/api/admin/bots/999/status", nil, adminHdr()...).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/api/admin/bots/x/status", nil, adminHdr()...).Code)
}

func TestAdmin_Metrics(t *testing.T) {
	r, env := newAdminRouter(t)
	env.sched.AddTicker("noop", time.Hour, func(context.Context) error { return nil })

	w := getJSON(r, "/api/admin/metrics", adminHdr()...)
	require.Equal(t, http.StatusOK, w.Code)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Contains(t, m, "uptime_s")
	assert.Contains(t, m, "goroutines")
	assert.EqualValues(t, 0, m["online_bots"])
	assert.Equal(t, []interface{}{"noop"}, m["scheduler_tasks"])
}

func TestAdmin_SchedulerTasks(t *testing.T) {
	r, env := newAdminRouter(t)
	runs := 0
	env.sched.AddTicker("count", time.Hour, func(context.Context) error { runs++; return nil })
	env.sched.AddTicker("fail", time.Hour, func(context.Context) error { return errors.New("boom") })

	assert.Equal(t, http.StatusOK, postJSON(r, "/api/admin/scheduler/count/run", nil, adminHdr()...).Code)
	assert.Equal(t, 1, runs)
	w := postJSON(r, "/api/admin/scheduler/fail/run", nil, adminHdr()...)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "boom")
	assert.Equal(t, http.StatusNotFound, postJSON(r, "/api/admin/scheduler/nope/run", nil, adminHdr()...).Code)

	w = getJSON(r, "/api/admin/scheduler", adminHdr()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count"`)
	assert.Contains(t, w.Body.String(), `"fail"`)
}

func TestAdmin_Decisions(t *testing.T) {
	r, env := newAdminRouter(t)
	one, two := int64(1), int64(2)
	env.journal.Record(journal.Entry{TraceID: "a", BotID: &one, GameLoop: 1, GroupName: "all"})
	env.journal.Record(journal.Entry{TraceID: "b", BotID: &two, GameLoop: 2, GroupName: "all"})
	env.journal.Record(journal.Entry{TraceID: "c", BotID: &one, GameLoop: 3, GroupName: "all"})
	env.journal.Stop(context.Background())

	w := getJSON(r, "/api/admin/decisions?bot_id=1", adminHdr()...)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Decisions []model.DecisionLog `json:"decisions"`
		Count     int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "c", resp.Decisions[0].TraceID)

	assert.Equal(t, http.StatusBadRequest, getJSON(r, "/api/admin/decisions?bot_id=x", adminHdr()...).Code)
}
