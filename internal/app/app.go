package app

import (
	"codequest_backend/internal/config"
	"codequest_backend/internal/controller"
	"codequest_backend/internal/repository"
	"codequest_backend/internal/service"
	"codequest_backend/pkg/configwatcher"
	"codequest_backend/pkg/database"
	"codequest_backend/pkg/logger"
	"codequest_backend/pkg/monitoring"
	"codequest_backend/pkg/security"
	"codequest_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services *services
	cron     *cron.Cron
	tracer   interface{ Shutdown(context.Context) error }
}

type repositories struct {
	user     *repository.UserRepository
	session  *repository.SessionRepository
	booking  *repository.BookingRepository
	feedback *repository.FeedbackRepository
	joinLog  *repository.JoinLogRepository
	reminder *repository.ReminderRepository
}

type services struct {
	auth     *service.AuthService
	storage  *service.StorageService
	mail     *service.MailService
	session  *service.SessionService
	booking  *service.BookingService
	access   *service.AccessService
	feedback *service.FeedbackService
	reminder *service.ReminderService
}

type controllers struct {
	auth     *controller.AuthController
	session  *controller.SessionController
	booking  *controller.BookingController
	feedback *controller.FeedbackController
	health   *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		session:  repository.NewSessionRepository(db, rdb),
		booking:  repository.NewBookingRepository(db),
		feedback: repository.NewFeedbackRepository(db),
		joinLog:  repository.NewJoinLogRepository(db),
		reminder: repository.NewReminderRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.mail = service.NewMailService(&cfg.Mail)
	s.auth = service.NewAuthService(repos.user, cfg)

	s.session = service.NewSessionService(repos.session, repos.joinLog, s.mail)
	s.booking = service.NewBookingService(repos.booking, repos.session, service.NewPaymentProvider(&cfg.Payment), s.mail, &cfg.Payment)
	s.access = service.NewAccessService(repos.session, repos.booking, repos.joinLog, cfg.Server.FrontendURL)
	s.feedback = service.NewFeedbackService(repos.feedback, repos.booking)

	var lock service.TickLock
	if rdb != nil {
		lock = &service.RedisTickLock{
			RDB: rdb,
			Key: "cq:interview:reminder:lease",
			TTL: cfg.Reminder.LeaseTTL,
		}
	}
	s.reminder = service.NewReminderService(repos.booking, repos.reminder, s.mail, lock, cfg.Reminder, cfg.Server.FrontendURL)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:     controller.NewAuthController(s.auth),
		session:  controller.NewSessionController(s.session, s.access),
		booking:  controller.NewBookingController(s.booking, s.storage),
		feedback: controller.NewFeedbackController(s.feedback),
		health:   controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 挂接提醒扫描和幂等记录清理两个定时任务。
// SkipIfStillRunning 保证上一轮没跑完时不叠加新的一轮。
func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := c.AddFunc(cfg.Reminder.CronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Reminder.LeaseTTL)
		defer cancel()
		if err := s.reminder.RunTick(ctx); err != nil {
			logger.Log.Error("提醒扫描失败", zap.Error(err))
		}
	}); err != nil {
		logger.Log.Fatal("提醒任务注册失败", zap.Error(err))
	}

	if _, err := c.AddFunc(cfg.Reminder.CleanupSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.reminder.Cleanup(ctx); err != nil {
			logger.Log.Error("提醒记录清理失败", zap.Error(err))
		}
	}); err != nil {
		logger.Log.Fatal("清理任务注册失败", zap.Error(err))
	}

	c.Start()
	a.cron = c

	// 启动补扫：进程重启错过的窗口靠这轮补上，幂等记录保证不重发
	if cfg.Reminder.RunOnStartup {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Reminder.LeaseTTL)
			defer cancel()
			if err := s.reminder.RunTick(ctx); err != nil {
				logger.Log.Error("启动补扫失败", zap.Error(err))
			}
		}()
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis 只承担缓存和租约，连不上时降级运行
		logger.Log.Warn("Redis unavailable, running without cache and reminder lease", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb)
	svcs := app.initServices(repos, cfg, rdb)
	app.services = svcs
	ctrls := app.initControllers(svcs, db, rdb)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("codequest-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, ctrls, cfg)

	if cfg.Storage.Type != "minio" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	if !cfg.MigrateOnly {
		app.startBackgroundTasks(svcs, cfg)

		// 邮件等外部服务参数支持热更新
		go configwatcher.WatchConfig("configs/config.yaml", func(newCfg *config.Config) {
			svcs.mail.UpdateConfig(&newCfg.Mail)
			logger.Log.Info("配置热更新完成")
		})
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先停定时任务，等正在执行的提醒轮次收尾
	if a.cron != nil {
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(30 * time.Second):
			logger.Log.Warn("提醒任务未在限期内结束")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
