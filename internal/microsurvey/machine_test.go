package microsurvey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshSnapshot() *Snapshot {
	return &Snapshot{UserID: 7, SurveyID: 1, State: StateIdle}
}

func TestTransition_StartToConsentWait(t *testing.T) {
	snap := freshSnapshot()
	now := time.Now()

	effects, err := Transition(snap, Event{Type: EventStart}, now)
	require.NoError(t, err)

	assert.Equal(t, StateWaitConsent, snap.State)
	assert.True(t, effects.SchedulePush)
}

func TestTransition_StartWhileActive(t *testing.T) {
	snap := freshSnapshot()
	snap.State = StateWaitConsent

	_, err := Transition(snap, Event{Type: EventStart}, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestTransition_ConsentAdvancesToFirstQuestion(t *testing.T) {
	snap := freshSnapshot()
	snap.State = StateWaitConsent

	effects, err := Transition(snap, Event{Type: EventConsentYes}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "wait_Q1", snap.State)
	assert.Equal(t, 1, snap.Question)
	assert.True(t, effects.SchedulePush)
}

func TestTransition_AnswerChain(t *testing.T) {
	snap := freshSnapshot()
	snap.State = StateWaitConsent
	now := time.Now()

	_, err := Transition(snap, Event{Type: EventConsentYes}, now)
	require.NoError(t, err)

	for k := 1; k < FinalQuestion; k++ {
		effects, err := Transition(snap, Event{Type: EventAnswer, Question: k}, now)
		require.NoError(t, err)
		assert.Equal(t, StateWaitQuestion(k+1), snap.State)
		assert.True(t, effects.SchedulePush)
	}

	effects, err := Transition(snap, Event{Type: EventAnswer, Question: FinalQuestion}, now)
	require.NoError(t, err)
	assert.Equal(t, StateDone, snap.State)
	assert.True(t, effects.Reward)
	assert.True(t, snap.Terminal())
}

func TestTransition_StaleAnswerIsNoop(t *testing.T) {
	snap := freshSnapshot()
	snap.State = StateWaitQuestion(5)
	snap.Question = 5

	effects, err := Transition(snap, Event{Type: EventAnswer, Question: 3}, time.Now())
	require.NoError(t, err)
	assert.True(t, effects.Stale)
	assert.Equal(t, 5, snap.Question)
	assert.Equal(t, StateWaitQuestion(5), snap.State)
}

func TestTransition_FutureAnswerRejected(t *testing.T) {
	snap := freshSnapshot()
	snap.State = StateWaitQuestion(2)
	snap.Question = 2

	_, err := Transition(snap, Event{Type: EventAnswer, Question: 4}, time.Now())
	assert.ErrorIs(t, err, ErrUnexpectedEvent)
}

func TestTransition_CancelFromAnyNonTerminal(t *testing.T) {
	for _, state := range []string{StateWaitConsent, StateWaitQuestion(1), StateWaitQuestion(11)} {
		snap := freshSnapshot()
		snap.State = state
		if state != StateWaitConsent {
			snap.Question = 1
		}

		effects, err := Transition(snap, Event{Type: EventCancel}, time.Now())
		require.NoError(t, err, state)
		assert.Equal(t, StateCancelled, snap.State)
		assert.True(t, effects.Delete)
	}
}

func TestTransition_CancelAfterDone(t *testing.T) {
	snap := freshSnapshot()
	snap.State = StateDone

	_, err := Transition(snap, Event{Type: EventCancel}, time.Now())
	assert.ErrorIs(t, err, ErrUnexpectedEvent)
}

func TestTransition_TimerFiresPendingPush(t *testing.T) {
	at := time.Now().Add(time.Hour)
	snap := freshSnapshot()
	snap.State = StateWaitConsent
	snap.NextPushAt = &at

	effects, err := Transition(snap, Event{Type: EventTimer}, time.Now())
	require.NoError(t, err)
	assert.True(t, effects.FirePush)
	assert.Nil(t, snap.NextPushAt)
}

func TestTransition_TimerWithoutPendingPush(t *testing.T) {
	snap := freshSnapshot()
	snap.State = StateWaitConsent

	effects, err := Transition(snap, Event{Type: EventTimer}, time.Now())
	require.NoError(t, err)
	assert.False(t, effects.FirePush)
}
