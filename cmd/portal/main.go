package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/internal/auth"
	"github.com/movesmart/maas-backend/internal/bytemark"
	"github.com/movesmart/maas-backend/internal/carpool"
	"github.com/movesmart/maas-backend/internal/ledger"
	"github.com/movesmart/maas-backend/internal/microsurvey"
	"github.com/movesmart/maas-backend/internal/notification"
	"github.com/movesmart/maas-backend/pkg/cache"
	"github.com/movesmart/maas-backend/pkg/common"
	"github.com/movesmart/maas-backend/pkg/config"
	"github.com/movesmart/maas-backend/pkg/database"
	"github.com/movesmart/maas-backend/pkg/errors"
	"github.com/movesmart/maas-backend/pkg/eventbus"
	"github.com/movesmart/maas-backend/pkg/jwtkeys"
	"github.com/movesmart/maas-backend/pkg/logger"
	"github.com/movesmart/maas-backend/pkg/middleware"
	"github.com/movesmart/maas-backend/pkg/ratelimit"
	"github.com/movesmart/maas-backend/pkg/redis"
)

const (
	serviceName = "portal-service"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting portal service", zap.String("version", version))

	if err := errors.InitSentry(errors.DefaultSentryConfig()); err != nil {
		log.Warn("Sentry init failed, continuing without error tracking", zap.Error(err))
	}
	defer errors.Flush(2 * time.Second)

	// Primary database
	db, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// Mega-carpool federation database; the resolver degrades to
	// primary-only peers without it
	var megaStore carpool.MegaStore
	if megaDB, err := database.NewPostgresPool(&cfg.CarpoolDB); err != nil {
		log.Warn("Mega-carpool database unavailable", zap.Error(err))
	} else {
		defer database.Close(megaDB)
		megaStore = carpool.NewMegaRepository(megaDB)
	}

	mongoCtx, cancelMongo := context.WithTimeout(context.Background(), 10*time.Second)
	mongoDB, err := database.NewMongoDatabase(mongoCtx, &cfg.Mongo)
	cancelMongo()
	if err != nil {
		log.Fatal("Failed to connect to mongo", zap.Error(err))
	}
	defer database.CloseMongo(mongoDB)

	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	cacheManager := cache.NewManager(redisClient)

	bus, err := eventbus.New(eventbus.Config{
		URL:        cfg.NATS.URL,
		Name:       serviceName,
		StreamName: cfg.NATS.StreamName,
	})
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer bus.Close()

	// Auth
	keys, err := jwtkeys.NewFromConfig(cfg.JWT)
	if err != nil {
		log.Fatal("Failed to load JWT keys", zap.Error(err))
	}
	authService := auth.NewService(auth.NewRepository(db), keys, cfg.JWT.Lifetime(), cfg.JWT.RefreshWindow())

	// Ledger
	var payments ledger.PaymentClient
	if cfg.Stripe.Enabled && cfg.Stripe.APIKey != "" {
		payments = ledger.NewStripeClient(cfg.Stripe.APIKey, nil)
	} else {
		log.Warn("Stripe disabled, wallet auto-refill unavailable")
	}
	ledgerService := ledger.NewService(ledger.NewRepository(db), cacheManager, payments, cfg.Wallet.DailyRefillLimitUSD)
	ledgerHandler := ledger.NewHandler(ledgerService)

	// Notifications
	notificationService := notification.NewService(notification.NewRepository(db), bus)
	notificationHandler := notification.NewHandler(notificationService)

	// Transit tickets
	bytemarkService := bytemark.NewService(
		bytemark.NewRepository(db, mongoDB),
		bytemark.NewClient(cfg.Bytemark),
		notificationService,
		cfg.Bytemark.CacheMaxAge(),
	)
	bytemarkHandler := bytemark.NewHandler(bytemarkService)

	// Carpool relations
	carpoolRepo := carpool.NewRepository(db)
	carpoolService := carpool.NewService(carpoolRepo, carpool.NewResolver(carpoolRepo, megaStore))
	carpoolHandler := carpool.NewHandler(carpoolService)

	// Microsurvey
	var cipher *microsurvey.IdentifierCipher
	if cfg.Survey.CipherKey != "" {
		cipher, err = microsurvey.NewIdentifierCipher(cfg.Survey.CipherKey)
		if err != nil {
			log.Fatal("Invalid survey cipher key", zap.Error(err))
		}
	} else {
		log.Warn("Survey cipher key not set, forms ingestion disabled")
	}
	var proposer microsurvey.PushTimeProposer
	if cfg.Survey.LLMAPIKey != "" {
		proposer = microsurvey.NewLLMProposer(cfg.Survey)
	}
	orchestrator, err := microsurvey.NewOrchestrator(
		microsurvey.NewRepository(db),
		bus,
		microsurvey.NewScheduler(proposer, cfg.Survey.DefaultTimezone),
		cipher,
		cfg.Survey.RewardPoints,
		cfg.Survey.ActorCap,
	)
	if err != nil {
		log.Fatal("Failed to build survey orchestrator", zap.Error(err))
	}
	defer orchestrator.Shutdown()
	surveyHandler := microsurvey.NewHandler(orchestrator)

	// Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS())
	router.Use(middleware.SentryMiddleware())
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(redisClient.Client, cfg.RateLimit)
		router.Use(middleware.RateLimit(limiter, cfg.RateLimit))
	}

	router.GET("/healthz", common.HealthCheck(serviceName, version))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(auth.Middleware(authService, config.AuthBypassPrefixes(), config.AuthForwardPrefixes()))
	{
		ledgerHandler.RegisterRoutes(api)
		bytemarkHandler.RegisterRoutes(api)
		surveyHandler.RegisterRoutes(api)
	}

	internal := router.Group("/internal/v1")
	{
		notificationHandler.RegisterInternalRoutes(internal)
		carpoolHandler.RegisterInternalRoutes(internal)
		surveyHandler.RegisterInternalRoutes(internal)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("port", cfg.Server.Port), zap.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
