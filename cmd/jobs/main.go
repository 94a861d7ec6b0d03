package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/movesmart/maas-backend/internal/bytemark"
	"github.com/movesmart/maas-backend/internal/ledger"
	"github.com/movesmart/maas-backend/internal/microsurvey"
	"github.com/movesmart/maas-backend/internal/notification"
	"github.com/movesmart/maas-backend/internal/parkmobile"
	"github.com/movesmart/maas-backend/internal/scheduler"
	"github.com/movesmart/maas-backend/internal/trajectory"
	"github.com/movesmart/maas-backend/pkg/cache"
	"github.com/movesmart/maas-backend/pkg/config"
	"github.com/movesmart/maas-backend/pkg/database"
	"github.com/movesmart/maas-backend/pkg/errors"
	"github.com/movesmart/maas-backend/pkg/eventbus"
	"github.com/movesmart/maas-backend/pkg/logger"
	"github.com/movesmart/maas-backend/pkg/redis"
)

const (
	serviceName = "jobs-service"
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
	log.Info("Starting jobs service", zap.String("version", version))

	if err := errors.InitSentry(errors.DefaultSentryConfig()); err != nil {
		log.Warn("Sentry init failed, continuing without error tracking", zap.Error(err))
	}
	defer errors.Flush(2 * time.Second)

	db, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Services driven by the worker
	var payments ledger.PaymentClient
	if cfg.Stripe.Enabled && cfg.Stripe.APIKey != "" {
		payments = ledger.NewStripeClient(cfg.Stripe.APIKey, nil)
	}
	ledgerService := ledger.NewService(ledger.NewRepository(db), cacheManager, payments, cfg.Wallet.DailyRefillLimitUSD)

	notificationStore := notification.NewRepository(db)
	notificationService := notification.NewService(notificationStore, bus)

	bytemarkService := bytemark.NewService(
		bytemark.NewRepository(db, mongoDB),
		bytemark.NewClient(cfg.Bytemark),
		notificationService,
		cfg.Bytemark.CacheMaxAge(),
	)

	parkmobileService := parkmobile.NewService(
		parkmobile.NewRepository(db, mongoDB),
		parkmobile.NewClient(cfg.ParkMobile),
		notificationService,
	)

	trajectoryService := trajectory.NewService(trajectory.NewRepository(db, mongoDB))

	var proposer microsurvey.PushTimeProposer
	if cfg.Survey.LLMAPIKey != "" {
		proposer = microsurvey.NewLLMProposer(cfg.Survey)
	}
	orchestrator, err := microsurvey.NewOrchestrator(
		microsurvey.NewRepository(db),
		bus,
		microsurvey.NewScheduler(proposer, cfg.Survey.DefaultTimezone),
		nil,
		cfg.Survey.RewardPoints,
		cfg.Survey.ActorCap,
	)
	if err != nil {
		log.Fatal("Failed to build survey orchestrator", zap.Error(err))
	}
	defer orchestrator.Shutdown()

	// Push delivery consumer
	if cfg.Firebase.Enabled {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID},
			option.WithCredentialsFile(cfg.Firebase.CredentialsPath))
		if err != nil {
			log.Fatal("Failed to init Firebase", zap.Error(err))
		}
		messenger, err := app.Messaging(ctx)
		if err != nil {
			log.Fatal("Failed to init Firebase messaging", zap.Error(err))
		}

		dispatcher := notification.NewDispatcher(notificationStore, messenger)
		err = bus.Subscribe(ctx, eventbus.SubjectCloudMessage, "jobs-cloud-message", dispatcher.HandleCloudMessage)
		if err != nil {
			log.Fatal("Failed to subscribe to cloud messages", zap.Error(err))
		}
	} else {
		log.Warn("Firebase disabled, cloud messages will not be delivered")
	}

	// Survey nudges re-enter the notification pipeline as regular pushes
	err = bus.Subscribe(ctx, eventbus.SubjectSurveyPush, "jobs-survey-push",
		func(ctx context.Context, event *eventbus.Event) error {
			var task eventbus.SurveyPushTask
			if err := json.Unmarshal(event.Data, &task); err != nil {
				log.Warn("Malformed survey push task", zap.Error(err))
				return nil
			}
			_, err := notificationService.Send(ctx, &notification.SendRequest{
				Users: []int64{task.UserID},
				Type:  notification.TypeMicrosurvey,
				Title: task.Title,
				Body:  task.Body,
			})
			return err
		})
	if err != nil {
		log.Fatal("Failed to subscribe to survey pushes", zap.Error(err))
	}

	// Out-of-band wallet mutations invalidate the cached balance
	err = bus.Subscribe(ctx, eventbus.SubjectLedgerRefresh, "jobs-ledger-refresh",
		func(ctx context.Context, event *eventbus.Event) error {
			var task eventbus.LedgerRefreshTask
			if err := json.Unmarshal(event.Data, &task); err != nil {
				log.Warn("Malformed ledger refresh task", zap.Error(err))
				return nil
			}
			return cacheManager.Delete(ctx, cache.Keys.Wallet(task.UserID))
		})
	if err != nil {
		log.Fatal("Failed to subscribe to ledger refreshes", zap.Error(err))
	}

	worker := scheduler.NewWorker(scheduler.Services{
		Ledger:     ledgerService,
		Bytemark:   bytemarkService,
		ParkMobile: parkmobileService,
		Trajectory: trajectoryService,
		Survey:     orchestrator,
	})
	go worker.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down jobs service...")
	worker.Stop()
	cancel()
	log.Info("Jobs service stopped")
}
