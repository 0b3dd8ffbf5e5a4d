package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/game/cooldown"
	"github.com/kasuganosora/rtsmicro/game/tick"
	"github.com/kasuganosora/rtsmicro/game/unit"
	"github.com/kasuganosora/rtsmicro/game/values"
	"github.com/kasuganosora/rtsmicro/journal"
	"github.com/kasuganosora/rtsmicro/resource"
	"github.com/kasuganosora/rtsmicro/scheduler"
	"github.com/kasuganosora/rtsmicro/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func nopLogger() *zap.Logger { return zap.NewNop() }

const (
	typeMarine unit.TypeID = 48
	typeTank   unit.TypeID = 33
)

type testEnv struct {
	db       *gorm.DB
	cache    cache.Cache
	pubsub   cache.PubSub
	solver   *tick.Solver
	profiles *tick.ProfileStore
	sched    *scheduler.Scheduler
	journal  *journal.Journal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := nopLogger()

	rl := resource.NewLoader("")
	rl.UnitTypes = []*resource.UnitType{
		{ID: typeMarine, Power: 1, GroundRange: 5, AirRange: 5, CanShootGround: true, CanShootAir: true},
		{ID: typeTank, Power: 3, GroundRange: 5, CanShootGround: true},
	}
	tracker := cooldown.NewTracker(c, time.Minute, logger)
	profiles := tick.NewProfileStore(db, c, logger)
	j := journal.New(db, logger, 10, 50*time.Millisecond)
	t.Cleanup(func() { j.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	solver := tick.NewSolver(values.NewTable(rl), tracker, profiles, c, ps, j,
		tick.Options{DefaultStepSize: 2, RecentLimit: 50}, logger)
	return &testEnv{db: db, cache: c, pubsub: ps, solver: solver, profiles: profiles, sched: sched, journal: j}
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if s, ok := body.(string); ok {
		rd = bytes.NewReader([]byte(s))
	} else {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodPost, path, body, headers...)
}

func getJSON(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
