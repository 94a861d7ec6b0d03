package microsurvey

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/eventbus"
	"github.com/movesmart/maas-backend/pkg/logger"
)

// Publisher is the queue half the orchestrator needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}

// Orchestrator owns the live actor population. Snapshots are the source of
// truth; actors are rehydrated lazily on event receipt and evicted LRU when
// the population exceeds the soft cap.
type Orchestrator struct {
	store        Store
	bus          Publisher
	sched        *Scheduler
	cipher       *IdentifierCipher
	rewardPoints float64
	now          func() time.Time

	mu     sync.Mutex
	actors *lru.Cache[int64, *actor]
}

// NewOrchestrator builds the orchestrator. actorCap is the soft cap on live
// actors; bus may be nil in tests.
func NewOrchestrator(store Store, bus Publisher, sched *Scheduler, cipher *IdentifierCipher, rewardPoints float64, actorCap int) (*Orchestrator, error) {
	o := &Orchestrator{
		store:        store,
		bus:          bus,
		sched:        sched,
		cipher:       cipher,
		rewardPoints: rewardPoints,
		now:          time.Now,
	}

	if actorCap <= 0 {
		actorCap = 10000
	}
	cache, err := lru.NewWithEvict[int64, *actor](actorCap, func(userID int64, a *actor) {
		// The snapshot is durable; dropping the in-memory actor only
		// costs a rehydration on its next event.
		a.stop()
		liveActorsGauge.Dec()
	})
	if err != nil {
		return nil, err
	}
	o.actors = cache
	return o, nil
}

// Start begins a survey for a user. Fails with ErrAlreadyActive when a
// survey is already in flight.
func (o *Orchestrator) Start(ctx context.Context, userID, surveyID int64) error {
	a, err := o.actorFor(ctx, userID, surveyID)
	if err != nil {
		return err
	}
	return a.deliver(ctx, Event{Type: EventStart})
}

// Consent records the user's consent and advances to the first question.
func (o *Orchestrator) Consent(ctx context.Context, userID int64) error {
	return o.deliverExisting(ctx, userID, Event{Type: EventConsentYes})
}

// Cancel aborts an in-flight survey.
func (o *Orchestrator) Cancel(ctx context.Context, userID int64) error {
	return o.deliverExisting(ctx, userID, Event{Type: EventCancel})
}

// HandleFormsResponse ingests one form submission: decrypt the identifier,
// route the answer to the user's actor.
func (o *Orchestrator) HandleFormsResponse(ctx context.Context, resp *FormsResponse) error {
	if o.cipher == nil {
		return errors.New("microsurvey: forms ingestion not configured")
	}
	id, err := o.cipher.Open(resp.Identifier)
	if err != nil {
		return err
	}
	return o.deliverExisting(ctx, id.UserID, Event{
		Type:     EventAnswer,
		Question: int(id.QuestionID),
		Answer:   resp.Answer,
	})
}

// ErrNoTriggerTarget is returned when a trigger request carries neither a
// user list nor a recognized selection action.
var ErrNoTriggerTarget = errors.New("microsurvey: trigger needs user ids or an action")

// maxTriggerBatch caps server-side target selection per trigger call.
const maxTriggerBatch = 1000

// Trigger dispatches START to a batch of users, throttled by settime ms per
// user. Without an explicit user list, targets are selected server-side for
// the start action. Item failures are isolated; the batch continues.
func (o *Orchestrator) Trigger(ctx context.Context, req *TriggerRequest, surveyID int64) (int, error) {
	users := req.UserIDs
	if len(users) == 0 {
		if req.Action != ActionStartMicrosurvey {
			return 0, ErrNoTriggerTarget
		}
		limit := req.Limitation
		if limit <= 0 || limit > maxTriggerBatch {
			limit = maxTriggerBatch
		}
		var err error
		users, err = o.store.CandidateUserIDs(ctx, surveyID, limit)
		if err != nil {
			return 0, err
		}
	}
	if req.Limitation > 0 && len(users) > req.Limitation {
		users = users[:req.Limitation]
	}

	started := 0
	for i, userID := range users {
		if i > 0 && req.Settime > 0 {
			select {
			case <-time.After(time.Duration(req.Settime) * time.Millisecond):
			case <-ctx.Done():
				return started, nil
			}
		}

		err := o.Start(ctx, userID, surveyID)
		switch {
		case err == ErrAlreadyActive:
			logger.Get().Info("survey already in progress, skipping",
				zap.Int64("user_id", userID))
		case err != nil:
			logger.Get().Warn("survey start failed",
				zap.Int64("user_id", userID), zap.Error(err))
		default:
			started++
		}
	}
	return started, nil
}

// DispatchDueTimers refires nudges whose scheduled time has passed, covering
// actors lost to eviction or restart. Runs from the scheduler worker.
func (o *Orchestrator) DispatchDueTimers(ctx context.Context) error {
	userIDs, err := o.store.DueActorUserIDs(ctx, o.now())
	if err != nil {
		return err
	}

	for _, userID := range userIDs {
		if err := o.deliverExisting(ctx, userID, Event{Type: EventTimer}); err != nil {
			logger.Get().Warn("due timer dispatch failed",
				zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// Shutdown stops every live actor. Snapshots are already durable.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actors.Purge()
}

// LiveActors returns the current in-memory actor count.
func (o *Orchestrator) LiveActors() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.actors.Len()
}

func (o *Orchestrator) deliverExisting(ctx context.Context, userID int64, ev Event) error {
	a, err := o.actorFor(ctx, userID, 0)
	if err != nil {
		return err
	}
	return a.deliver(ctx, ev)
}

// actorFor returns the user's live actor, rehydrating from the snapshot when
// needed. surveyID seeds a fresh idle snapshot and is only honored for START.
func (o *Orchestrator) actorFor(ctx context.Context, userID, surveyID int64) (*actor, error) {
	o.mu.Lock()
	if a, ok := o.actors.Get(userID); ok {
		o.mu.Unlock()
		return a, nil
	}
	o.mu.Unlock()

	snap, err := o.store.GetActorState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		if surveyID == 0 {
			return nil, ErrNoActor
		}
		snap = &Snapshot{UserID: userID, SurveyID: surveyID, State: StateIdle}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// Another goroutine may have rehydrated while we read the snapshot.
	if a, ok := o.actors.Get(userID); ok {
		return a, nil
	}

	a := newActor(o, snap)
	o.actors.Add(userID, a)
	liveActorsGauge.Inc()
	return a, nil
}

// retire drops a terminal actor from the population.
func (o *Orchestrator) retire(userID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actors.Remove(userID)
}

func (o *Orchestrator) publishPush(ctx context.Context, snap *Snapshot, title, body string) error {
	if o.bus == nil {
		return nil
	}

	task := eventbus.SurveyPushTask{
		UserID:      snap.UserID,
		SurveyID:    snap.SurveyID,
		Title:       title,
		Body:        body,
		ScheduledAt: o.now(),
	}
	event, err := eventbus.NewEvent("survey_push", "microsurvey-orchestrator", task)
	if err != nil {
		return err
	}
	return o.bus.Publish(ctx, eventbus.SubjectSurveyPush, event)
}
