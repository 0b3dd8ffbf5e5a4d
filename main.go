package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apirest "github.com/kasuganosora/rtsmicro/api/rest"
	"github.com/kasuganosora/rtsmicro/api/sse"
	apiws "github.com/kasuganosora/rtsmicro/api/ws"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/config"
	dbadapter "github.com/kasuganosora/rtsmicro/db"
	"github.com/kasuganosora/rtsmicro/game/combat"
	"github.com/kasuganosora/rtsmicro/game/cooldown"
	"github.com/kasuganosora/rtsmicro/game/tick"
	"github.com/kasuganosora/rtsmicro/game/values"
	"github.com/kasuganosora/rtsmicro/journal"
	mw "github.com/kasuganosora/rtsmicro/middleware"
	"github.com/kasuganosora/rtsmicro/model"
	"github.com/kasuganosora/rtsmicro/resource"
	"github.com/kasuganosora/rtsmicro/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		RedisPrefix:     cfg.Cache.RedisPrefix,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cacheConfig.Shared()))

	// ---- Unit tables ----
	res := resource.NewLoader(cfg.Data.Dir)
	if err := res.Load(); err != nil {
		log.Fatalf("unit tables: %v", err)
	}
	logger.Info("unit tables loaded",
		zap.Int("unit_types", len(res.UnitTypes)),
		zap.Int("abilities", len(res.Abilities)))
	vt := values.NewTable(res)
	tracker := cooldown.NewTracker(c, cfg.Combat.CooldownTTL, logger)
	tracker.SetCooldowns(res)

	// ---- Priority profiles ----
	profiles := tick.NewProfileStore(db, c, logger)
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if n, err := profiles.Seed(seedCtx, res.Priorities); err != nil {
		logger.Warn("profile seed failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("priority profiles seeded", zap.Int("count", n))
	}
	seedCancel()

	// ---- Journal ----
	var j *journal.Journal
	var tickJournal tick.Journal
	if cfg.Journal.Enabled {
		j = journal.New(db, logger, cfg.Journal.BatchSize, cfg.Journal.FlushInterval)
		tickJournal = j
		defer j.Stop(context.Background())
	}

	// ---- Solver ----
	solver := tick.NewSolver(vt, tracker, profiles, c, pubsub, tickJournal, tick.Options{
		Params: combat.Params{
			ScanBase:         cfg.Combat.ScanBase,
			ScanPerUnit:      cfg.Combat.ScanPerUnit,
			LookupMargin:     cfg.Combat.LookupMargin,
			ContinuityBonus:  cfg.Combat.ContinuityBonus,
			WeaponDelayBonus: cfg.Combat.WeaponDelayBonus,
		},
		DefaultStepSize: cfg.Combat.DefaultStepSize,
		DefaultProfile:  cfg.Combat.DefaultProfile,
		RecentLimit:     cfg.Combat.RecentLimit,
	}, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	if cacheConfig.Shared() {
		// several instances share one redis: only the lease holder runs a task
		host, _ := os.Hostname()
		sched.SetLocker(c, host+"/"+uuid.NewString())
	}
	if cfg.Data.ReloadInterval > 0 {
		sched.AddTicker(scheduler.TaskReloadTables, cfg.Data.ReloadInterval,
			scheduler.ReloadTables(cfg.Data.Dir, vt, tracker, logger))
	}
	if j != nil && cfg.Journal.PruneInterval > 0 {
		sched.AddTicker(scheduler.TaskPruneJournal, cfg.Journal.PruneInterval,
			scheduler.PruneJournal(j, cfg.Journal.Retention, logger))
	}

	// ---- WS ----
	wsRouter := apiws.NewRouter(logger)
	// one budget per bot across REST and WS
	tickLimiters := mw.NewLimiters(rate.Limit(cfg.Security.TickRateRPS), cfg.Security.TickRateBurst)
	apiws.RegisterCombatHandlers(wsRouter, solver, tickLimiters, logger)
	sm := apiws.NewSessionManager(c, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "unit_types": vt.Len()})
	})

	authH := apirest.NewAuthHandler(db, c, cfg.Security, logger)
	combatH := apirest.NewCombatHandler(solver, logger)
	prioH := apirest.NewPriorityHandler(profiles, logger)
	adminH := apirest.NewAdminHandler(db, c, sched, j, logger)
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	auth := mw.Auth(cfg.Security, c)
	adminAuth := apirest.AdminAuth(cfg.Server.AdminKey)

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
		profG.PUT("/:name", mw.IPWhitelist(cfg.Security.AdminAllowIPs), adminAuth, prioH.Put)
		profG.DELETE("/:name", mw.IPWhitelist(cfg.Security.AdminAllowIPs), adminAuth, prioH.Delete)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminAllowIPs), adminAuth)
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.POST("/scheduler/:name/run", adminH.RunSchedulerTask)
		adminG.POST("/bots", adminH.CreateBot)
		adminG.GET("/bots", adminH.ListBots)
		adminG.POST("/bots/:id/status", adminH.SetBotStatus)
		adminG.GET("/decisions", adminH.Decisions)
		adminG.POST("/announce", sseH.PostAnnounce)
	}

	wsH := apiws.NewHandler(c, cfg.Security, sm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	sm.CloseAll(5 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
