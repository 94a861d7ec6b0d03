package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/internal/bytemark"
	"github.com/movesmart/maas-backend/internal/ledger"
	"github.com/movesmart/maas-backend/internal/microsurvey"
	"github.com/movesmart/maas-backend/internal/parkmobile"
	"github.com/movesmart/maas-backend/internal/trajectory"
	"github.com/movesmart/maas-backend/pkg/logger"
)

const (
	// Base tick; every task decides on each tick whether it is due
	tickInterval = 1 * time.Minute

	parkingAlertInterval     = 1 * time.Minute
	parkingLifecycleInterval = 1 * time.Minute
	surveyTimerInterval      = 1 * time.Minute
	ticketRefreshInterval    = 5 * time.Minute
	parkingTokenInterval     = 30 * time.Minute
	pendingReapInterval      = 1 * time.Hour
	ticketBootstrapInterval  = 1 * time.Hour
	cachePurgeInterval       = 24 * time.Hour
	tripValidationInterval   = 24 * time.Hour
)

// Services are the job surfaces the worker drives. Any field may be nil;
// its tasks are skipped.
type Services struct {
	Ledger     *ledger.Service
	Bytemark   *bytemark.Service
	ParkMobile *parkmobile.Service
	Trajectory *trajectory.Service
	Survey     *microsurvey.Orchestrator
}

// Worker runs the periodic maintenance tasks on a shared ticker.
type Worker struct {
	services Services
	done     chan struct{}
	lastRun  map[string]time.Time
}

// NewWorker creates a new scheduler worker
func NewWorker(services Services) *Worker {
	return &Worker{
		services: services,
		done:     make(chan struct{}),
		lastRun:  make(map[string]time.Time),
	}
}

// Start begins the maintenance loop. It blocks until the context is
// cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	logger.Get().Info("starting scheduler worker")

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.tick(ctx)

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			logger.Get().Info("scheduler worker stopped")
			return
		case <-w.done:
			logger.Get().Info("scheduler worker shutdown requested")
			return
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.done)
}

func (w *Worker) tick(ctx context.Context) {
	if s := w.services.ParkMobile; s != nil {
		w.runTask(ctx, "parking_alerts", parkingAlertInterval, s.CheckOnGoingEvents)
		w.runTask(ctx, "parking_lifecycle", parkingLifecycleInterval, s.CheckFinishedAndExpiredEvents)
		w.runTask(ctx, "parking_token", parkingTokenInterval, s.UpdateToken)
		w.runTask(ctx, "parking_purge", cachePurgeInterval, s.PurgeOutdatedCache)
	}

	if s := w.services.Survey; s != nil {
		w.runTask(ctx, "survey_timers", surveyTimerInterval, s.DispatchDueTimers)
	}

	if s := w.services.Bytemark; s != nil {
		w.runTask(ctx, "ticket_refresh", ticketRefreshInterval, s.RefreshStaleCaches)
		w.runTask(ctx, "ticket_bootstrap", ticketBootstrapInterval, s.BuildCacheIfEmpty)
	}

	if s := w.services.Ledger; s != nil {
		w.runTask(ctx, "pending_reap", pendingReapInterval, s.ClearOldPendingPt)
	}

	if s := w.services.Trajectory; s != nil {
		w.runTask(ctx, "trip_validation", tripValidationInterval, s.CarpoolBlockValidationJob)
	}
}

// runTask executes the task when its interval has elapsed. Failures are
// logged and retried on the next due tick; they never stop the loop.
func (w *Worker) runTask(ctx context.Context, name string, interval time.Duration, task func(context.Context) error) {
	now := time.Now()
	if last, ok := w.lastRun[name]; ok && now.Sub(last) < interval {
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	if err := task(taskCtx); err != nil {
		logger.Get().Error("scheduled task failed", zap.String("task", name), zap.Error(err))
		return
	}
	w.lastRun[name] = now
}
