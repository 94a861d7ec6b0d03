package microsurvey

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/logger"
)

const mailboxDepth = 32

// envelope pairs an event with its reply channel. The sender blocks until
// the transition is persisted, which is the persist-before-ack guarantee.
type envelope struct {
	event Event
	reply chan error
}

// actor is the single writer for one user's survey state. All events for the
// user funnel through its FIFO mailbox; the loop goroutine owns the snapshot.
type actor struct {
	userID   int64
	orch     *Orchestrator
	mailbox  chan envelope
	quit     chan struct{}
	stopOnce sync.Once

	// Owned by the loop goroutine.
	snap   *Snapshot
	survey *Survey
	timer  *time.Timer
}

func newActor(orch *Orchestrator, snap *Snapshot) *actor {
	a := &actor{
		userID:  snap.UserID,
		orch:    orch,
		mailbox: make(chan envelope, mailboxDepth),
		quit:    make(chan struct{}),
		snap:    snap,
	}
	go a.loop()
	return a
}

// deliver enqueues an event and waits for its persisted outcome.
func (a *actor) deliver(ctx context.Context, ev Event) error {
	env := envelope{event: ev, reply: make(chan error, 1)}
	select {
	case a.mailbox <- env:
	case <-a.quit:
		return ErrNoActor
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop halts the loop. The snapshot is already durable, so a stopped actor
// loses nothing; it is rehydrated on the next event.
func (a *actor) stop() {
	a.stopOnce.Do(func() { close(a.quit) })
}

func (a *actor) loop() {
	defer func() {
		if a.timer != nil {
			a.timer.Stop()
		}
	}()

	// An overdue nudge survives restarts and evictions: refire shortly
	// after rehydration instead of at the missed instant.
	if a.snap.NextPushAt != nil {
		a.armTimer(*a.snap.NextPushAt)
	}

	for {
		select {
		case env := <-a.mailbox:
			err := a.handle(env.event)
			env.reply <- err
			if a.snap.Terminal() {
				a.orch.retire(a.userID)
				return
			}
		case <-a.quit:
			return
		}
	}
}

func (a *actor) handle(ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := a.orch.now()
	working := *a.snap
	effects, err := Transition(&working, ev, now)
	if err != nil {
		return err
	}
	if effects.Stale {
		logger.Get().Info("stale_answer",
			zap.Int64("user_id", a.userID),
			zap.Int("question", ev.Question),
			zap.Int("current", a.snap.Question))
		return nil
	}

	// Accepted answers are logged before the snapshot is acknowledged, so
	// the response survives even if the state write below fails.
	if ev.Type == EventAnswer {
		if err := a.orch.store.InsertQuestionLog(ctx, a.userID, a.snap.SurveyID, ev.Question, ev.Answer); err != nil {
			return err
		}
	}

	switch {
	case effects.Reward:
		return a.complete(ctx, &working)

	case effects.Delete:
		// Cancellation persists the terminal snapshot first, then drops
		// the row.
		if err := a.orch.store.SaveActorState(ctx, &working); err != nil {
			return err
		}
		a.snap = &working
		return a.orch.store.DeleteActorState(ctx, a.userID)

	case effects.SchedulePush:
		pushAt := a.orch.sched.NextPushTime(ctx, a.userID, now)
		working.NextPushAt = &pushAt
		if err := a.orch.store.SaveActorState(ctx, &working); err != nil {
			return err
		}
		a.snap = &working
		a.armTimer(pushAt)
		return nil

	case effects.FirePush:
		if err := a.orch.store.SaveActorState(ctx, &working); err != nil {
			return err
		}
		a.snap = &working
		a.publishPush(ctx)
		return nil
	}

	if err := a.orch.store.SaveActorState(ctx, &working); err != nil {
		return err
	}
	a.snap = &working
	return nil
}

// complete pays the reward and deletes the row in one transaction. A
// duplicate bonus is not an error for the caller.
func (a *actor) complete(ctx context.Context, snap *Snapshot) error {
	points := a.orch.rewardPoints
	if survey := a.loadSurvey(ctx); survey != nil && survey.Points > 0 {
		points = survey.Points
	}

	err := a.orch.store.CompleteWithReward(ctx, snap, points)
	if err == ErrDuplicateReward {
		logger.Get().Info("no duplicate bonuses",
			zap.Int64("user_id", a.userID),
			zap.Int64("survey_id", snap.SurveyID))
		err = nil
	}
	if err != nil {
		return err
	}
	a.snap = snap
	return nil
}

func (a *actor) armTimer(at time.Time) {
	if a.timer != nil {
		a.timer.Stop()
	}
	delay := time.Until(at)
	if delay < time.Second {
		delay = time.Second
	}
	a.timer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.deliver(ctx, Event{Type: EventTimer}); err != nil {
			logger.Get().Warn("survey timer delivery failed",
				zap.Int64("user_id", a.userID), zap.Error(err))
		}
	})
}

func (a *actor) publishPush(ctx context.Context) {
	survey := a.loadSurvey(ctx)

	title := "Quick survey"
	body := "We'd love your feedback. Tap to continue."
	if survey != nil {
		title = survey.Title
		if a.snap.Question > 0 {
			body = "Your next question is ready: " + survey.FormURL
		}
	}

	if err := a.orch.publishPush(ctx, a.snap, title, body); err != nil {
		logger.Get().Warn("survey push enqueue failed",
			zap.Int64("user_id", a.userID), zap.Error(err))
	}
}

func (a *actor) loadSurvey(ctx context.Context) *Survey {
	if a.survey != nil {
		return a.survey
	}
	survey, err := a.orch.store.GetSurvey(ctx, a.snap.SurveyID)
	if err != nil {
		logger.Get().Warn("survey lookup failed",
			zap.Int64("survey_id", a.snap.SurveyID), zap.Error(err))
		return nil
	}
	a.survey = survey
	return survey
}
