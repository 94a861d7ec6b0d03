package microsurvey

import (
	"errors"
	"time"
)

// Effects are the side effects a transition demands. The actor executes them
// only after the new snapshot is durably written.
type Effects struct {
	// SchedulePush asks the actor to compute a nudge time and arm a timer.
	SchedulePush bool
	// FirePush delivers the pending nudge now.
	FirePush bool
	// Reward credits the completion bonus and deletes the actor row in one
	// transaction.
	Reward bool
	// Delete removes the actor row (cancellation path).
	Delete bool
	// Stale marks a replayed answer: the event is acknowledged without a
	// state change.
	Stale bool
}

var (
	// ErrAlreadyActive rejects START for a user with a live survey.
	ErrAlreadyActive = errors.New("microsurvey: survey already in progress")
	// ErrNoActor rejects events for users with no active survey.
	ErrNoActor = errors.New("microsurvey: no active survey")
	// ErrUnexpectedEvent rejects events invalid in the current state.
	ErrUnexpectedEvent = errors.New("microsurvey: event not valid in current state")
)

// Transition applies one event to the snapshot in place and returns the side
// effects to run after persistence. The machine is pure: it never touches
// storage, timers, or the queue.
func Transition(snap *Snapshot, ev Event, now time.Time) (Effects, error) {
	switch ev.Type {
	case EventStart:
		if snap.State != StateIdle {
			return Effects{}, ErrAlreadyActive
		}
		snap.State = StateWaitConsent
		snap.Question = 0
		snap.UpdatedOn = now
		return Effects{SchedulePush: true}, nil

	case EventConsentYes:
		if snap.State != StateWaitConsent {
			return Effects{}, ErrUnexpectedEvent
		}
		// Consent is transient: the actor moves straight on to waiting for
		// the first question.
		snap.State = StateWaitQuestion(1)
		snap.Question = 1
		snap.NextPushAt = nil
		snap.UpdatedOn = now
		return Effects{SchedulePush: true}, nil

	case EventAnswer:
		if snap.Question == 0 || snap.State != StateWaitQuestion(snap.Question) {
			return Effects{}, ErrUnexpectedEvent
		}
		if ev.Question < snap.Question {
			return Effects{Stale: true}, nil
		}
		if ev.Question != snap.Question {
			return Effects{}, ErrUnexpectedEvent
		}
		if ev.Question == FinalQuestion {
			snap.State = StateDone
			snap.NextPushAt = nil
			snap.UpdatedOn = now
			return Effects{Reward: true}, nil
		}
		snap.Question = ev.Question + 1
		snap.State = StateWaitQuestion(snap.Question)
		snap.NextPushAt = nil
		snap.UpdatedOn = now
		return Effects{SchedulePush: true}, nil

	case EventCancel:
		if snap.Terminal() {
			return Effects{}, ErrUnexpectedEvent
		}
		snap.State = StateCancelled
		snap.NextPushAt = nil
		snap.UpdatedOn = now
		return Effects{Delete: true}, nil

	case EventTimer:
		if !snap.Waiting() || snap.NextPushAt == nil {
			// Timer raced a transition; nothing left to nudge about.
			return Effects{}, nil
		}
		snap.NextPushAt = nil
		snap.UpdatedOn = now
		return Effects{FirePush: true}, nil
	}

	return Effects{}, ErrUnexpectedEvent
}
