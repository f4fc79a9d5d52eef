package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	commonmw "codearena/internal/common/http/middleware"
	"codearena/internal/common/metrics"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	compController "codearena/internal/competition/controller"
	"codearena/internal/competition/realtime"
	compRepo "codearena/internal/competition/repository"
	compService "codearena/internal/competition/service"
	"codearena/internal/judge/judge0"
	judgesvc "codearena/internal/judge/service"
	problemController "codearena/internal/problem/controller"
	problemRepo "codearena/internal/problem/repository"
	problemService "codearena/internal/problem/service"
	submitController "codearena/internal/submit/controller"
	submitRepo "codearena/internal/submit/repository"
	submitService "codearena/internal/submit/service"
	"codearena/pkg/utils/logger"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/arena_service.yaml"
	defaultEnvPath    = ".env"
)

type controllers struct {
	problems *problemController.ProblemController
	submits  *submitController.SubmitController
	rooms    *compController.RoomController
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envPath := flag.String("env", defaultEnvPath, "Optional .env file loaded before the config is expanded")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		return
	}
	defer func() { _ = mysqlDB.Close() }()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(ctx, "init redis failed", zap.Error(err))
		return
	}
	defer func() { _ = redisCache.Close() }()

	var mqClient mq.MessageQueue
	if appCfg.Kafka.Enabled() {
		kafkaQueue, err := mq.NewKafkaQueue(appCfg.Kafka)
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return
		}
		mqClient = kafkaQueue
		defer func() { _ = mqClient.Close() }()
	}

	var archive *submitService.SourceArchive
	if appCfg.MinIO.Enabled() {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.Submit.SourceBucket); err != nil {
			logger.Error(ctx, "ensure source bucket failed", zap.Error(err))
			return
		}
		archive, err = submitService.NewSourceArchive(objStorage, appCfg.Submit.SourceBucket, appCfg.Submit.SourceKeyPrefix)
		if err != nil {
			logger.Error(ctx, "init source archive failed", zap.Error(err))
			return
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	judgeMetrics := metrics.NewJudgeMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	judgeClient, err := judge0.NewClient(appCfg.Judge.Client, nil)
	if err != nil {
		logger.Error(ctx, "init judge client failed", zap.Error(err))
		return
	}
	runner, err := judgesvc.NewRunner(judgesvc.Config{
		Judge:          judgeClient,
		Metrics:        judgeMetrics,
		Timeout:        appCfg.Judge.BatchTimeout,
		MaxConcurrent:  appCfg.Judge.MaxConcurrent,
		AcquireTimeout: appCfg.Judge.AcquireTimeout,
	})
	if err != nil {
		logger.Error(ctx, "init judge runner failed", zap.Error(err))
		return
	}

	problems := problemRepo.NewProblemRepositoryWithTTL(mysqlDB, redisCache, appCfg.Problem.CacheTTL, appCfg.Problem.EmptyTTL)
	problemSvc := problemService.NewProblemService(problems, mysqlDB, runner)

	progressSvc := submitService.NewProgressService(submitRepo.NewProgressRepository(mysqlDB), mysqlDB)
	var events submitService.EventPublisher
	if mqClient != nil {
		events = submitService.NewJudgedEventPublisher(mqClient, appCfg.Submit.JudgedTopic)
	}
	submitSvc, err := submitService.NewSubmitService(submitService.Config{
		SubmissionRepo: submitRepo.NewSubmissionRepositoryWithTTL(mysqlDB, redisCache, appCfg.Submit.SubmissionCacheTTL, appCfg.Submit.SubmissionEmptyTTL),
		Problems:       problems,
		Progress:       progressSvc,
		Judge:          runner,
		Archive:        archive,
		Events:         events,
		Cache:          redisCache,
		MaxCodeBytes:   appCfg.Submit.MaxCodeBytes,
		IdempotencyTTL: appCfg.Submit.IdempotencyTTL,
		Timeouts:       appCfg.Submit.Timeouts,
	})
	if err != nil {
		logger.Error(ctx, "init submit service failed", zap.Error(err))
		return
	}

	// The hub checks membership through the room service, which notifies through the hub.
	var roomSvc *compService.RoomService
	hub := realtime.NewHub(appCfg.Realtime.Hub, realtime.MembershipFunc(func(ctx context.Context, code string, userID int64) (bool, error) {
		return roomSvc.IsParticipant(ctx, code, userID)
	}))
	defer hub.Close()

	var notifier compService.Notifier = hub
	if appCfg.Realtime.RelayEnabled && mqClient != nil {
		relay, err := realtime.NewRelay(mqClient, hub, appCfg.Realtime.Relay)
		if err != nil {
			logger.Error(ctx, "init realtime relay failed", zap.Error(err))
			return
		}
		if err := relay.Subscribe(ctx); err != nil {
			logger.Error(ctx, "subscribe realtime relay failed", zap.Error(err))
			return
		}
		notifier = relay
	}

	roomSvc, err = compService.NewRoomService(compService.Config{
		Rooms:          compRepo.NewRoomRepository(mysqlDB),
		Tx:             mysqlDB,
		Problems:       problems,
		Judge:          runner,
		Notifier:       notifier,
		CodeAttempts:   appCfg.Competition.CodeAttempts,
		MaxSourceBytes: appCfg.Competition.MaxSourceBytes,
	})
	if err != nil {
		logger.Error(ctx, "init room service failed", zap.Error(err))
		return
	}

	if mqClient != nil {
		if err := mqClient.Start(); err != nil {
			logger.Error(ctx, "start kafka consumer failed", zap.Error(err))
			return
		}
		defer func() { _ = mqClient.Stop() }()
	}

	authenticator, err := commonmw.NewAuthenticator(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer)
	if err != nil {
		logger.Error(ctx, "init authenticator failed", zap.Error(err))
		return
	}

	ctrls := controllers{
		problems: problemController.NewProblemController(problemSvc),
		submits:  submitController.NewSubmitController(submitSvc, progressSvc),
		rooms:    compController.NewRoomController(roomSvc, hub),
	}
	router := buildRouter(appCfg, ctrls, authenticator, commonmw.NewRateLimiter(redisCache, appCfg.Submit.RateLimit.Timeout), httpMetrics, registry)
	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "arena http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
}

func buildRouter(cfg *AppConfig, ctrls controllers, auth *commonmw.Authenticator, limiter *commonmw.RateLimiter, httpMetrics *metrics.HTTPMetrics, registry *prometheus.Registry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceMiddleware())
	router.Use(commonmw.RequestLogger())
	router.Use(commonmw.CORSMiddleware(cfg.Server.CORS))
	if cfg.Metrics.Enabled {
		router.Use(httpMetrics.Middleware())
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler(registry)))
	}
	router.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	requireUser := commonmw.AuthMiddleware(auth)
	api := router.Group("/api/v1")

	problems := api.Group("/problems")
	problems.GET("/:id", ctrls.problems.Get)
	problems.POST("", commonmw.AuthMiddleware(auth, cfg.Auth.ProblemAuthorRoles...), ctrls.problems.Create)

	submitLimit := cfg.Submit.RateLimit
	submissions := api.Group("/submissions", requireUser)
	submissions.POST("", commonmw.RateLimitMiddleware(limiter, "submit", submitLimit.SubmitMax, submitLimit.Window), ctrls.submits.Create)
	submissions.POST("/run", commonmw.RateLimitMiddleware(limiter, "run", submitLimit.RunMax, submitLimit.Window), ctrls.submits.Run)
	submissions.GET("/:id", ctrls.submits.Get)
	submissions.GET("/:id/source", ctrls.submits.GetSource)

	api.GET("/users/me/progress", requireUser, ctrls.submits.Progress)

	roomLimit := cfg.Competition.RateLimit
	rooms := api.Group("/competitions", requireUser)
	rooms.POST("", ctrls.rooms.Create)
	rooms.GET("/:code", ctrls.rooms.Get)
	rooms.POST("/:code/join", ctrls.rooms.Join)
	rooms.POST("/:code/submit", commonmw.RateLimitMiddleware(limiter, "competition", roomLimit.SubmitMax, roomLimit.Window), ctrls.rooms.Submit)

	router.GET("/ws/competitions", requireUser, ctrls.rooms.Connect)
	return router
}
