package microsurvey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movesmart/maas-backend/pkg/eventbus"
)

type rewardKey struct {
	userID   int64
	surveyID int64
}

type answerLog struct {
	userID   int64
	surveyID int64
	question int
	answer   string
}

type fakeActorStore struct {
	mu         sync.Mutex
	surveys    map[int64]*Survey
	states     map[int64]*Snapshot
	rewards    map[rewardKey]float64
	wallets    map[int64]float64
	candidates []int64
	answers    []answerLog
	saves      int
}

func newFakeActorStore() *fakeActorStore {
	return &fakeActorStore{
		surveys: map[int64]*Survey{
			1: {ID: 1, Title: "Commute habits", Points: 25, FormURL: "https://forms.example.com/s1"},
		},
		states:  make(map[int64]*Snapshot),
		rewards: make(map[rewardKey]float64),
		wallets: make(map[int64]float64),
	}
}

func (s *fakeActorStore) GetSurvey(_ context.Context, surveyID int64) (*Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surveys[surveyID], nil
}

func (s *fakeActorStore) GetActorState(_ context.Context, userID int64) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.states[userID]; ok {
		copied := *snap
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeActorStore) SaveActorState(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snap
	s.states[snap.UserID] = &copied
	s.saves++
	return nil
}

func (s *fakeActorStore) DeleteActorState(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

func (s *fakeActorStore) DueActorUserIDs(_ context.Context, cutoff time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for userID, snap := range s.states {
		if snap.NextPushAt != nil && !snap.NextPushAt.After(cutoff) {
			ids = append(ids, userID)
		}
	}
	return ids, nil
}

func (s *fakeActorStore) CandidateUserIDs(_ context.Context, surveyID int64, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, id := range s.candidates {
		if _, ok := s.states[id]; ok {
			continue
		}
		if _, ok := s.rewards[rewardKey{userID: id, surveyID: surveyID}]; ok {
			continue
		}
		ids = append(ids, id)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (s *fakeActorStore) InsertQuestionLog(_ context.Context, userID, surveyID int64, question int, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answerLog{userID: userID, surveyID: surveyID, question: question, answer: answer})
	return nil
}

func (s *fakeActorStore) CompleteWithReward(_ context.Context, snap *Snapshot, points float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, snap.UserID)
	key := rewardKey{userID: snap.UserID, surveyID: snap.SurveyID}
	if _, ok := s.rewards[key]; ok {
		return ErrDuplicateReward
	}
	s.rewards[key] = points
	// Mirrors the upsert: a wallet row is created when missing, so the
	// credit always lands.
	s.wallets[snap.UserID] += points
	return nil
}

func (s *fakeActorStore) state(userID int64) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

type recordingBus struct {
	mu     sync.Mutex
	events []*eventbus.Event
}

func (b *recordingBus) Publish(_ context.Context, _ string, event *eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func testCipher(t *testing.T) *IdentifierCipher {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	cipher, err := NewIdentifierCipher(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return cipher
}

func testOrchestrator(t *testing.T, store Store, bus Publisher, actorCap int) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(store, bus, NewScheduler(nil, "UTC"), testCipher(t), 10, actorCap)
	require.NoError(t, err)
	// Midday keeps the fallback scheduler out of the quiet window; a future
	// date keeps in-process timers from firing mid-test.
	fixed := time.Date(2031, 3, 2, 12, 0, 0, 0, time.UTC)
	orch.now = func() time.Time { return fixed }
	t.Cleanup(orch.Shutdown)
	return orch
}

func sealAnswer(t *testing.T, orch *Orchestrator, question, userID, surveyID int64) string {
	t.Helper()
	token, err := orch.cipher.Seal(FormsIdentifier{QuestionID: question, UserID: userID, SurveyID: surveyID})
	require.NoError(t, err)
	return token
}

func TestOrchestrator_FullCompletion(t *testing.T) {
	store := newFakeActorStore()
	orch := testOrchestrator(t, store, &recordingBus{}, 100)
	ctx := context.Background()

	require.NoError(t, orch.Start(ctx, 42, 1))
	require.NotNil(t, store.state(42))
	assert.Equal(t, StateWaitConsent, store.state(42).State)
	assert.NotNil(t, store.state(42).NextPushAt)

	require.NoError(t, orch.Consent(ctx, 42))
	assert.Equal(t, "wait_Q1", store.state(42).State)

	for k := int64(1); k <= FinalQuestion; k++ {
		err := orch.HandleFormsResponse(ctx, &FormsResponse{
			Identifier: sealAnswer(t, orch, k, 42, 1),
			Answer:     "yes",
		})
		require.NoError(t, err, "question %d", k)
	}

	// Every accepted answer was logged in order
	require.Len(t, store.answers, FinalQuestion)
	for i, entry := range store.answers {
		assert.Equal(t, i+1, entry.question)
		assert.Equal(t, "yes", entry.answer)
	}

	// Row gone, exactly one reward at the survey-defined amount, credited
	// to a wallet that did not exist before
	assert.Nil(t, store.state(42))
	assert.Equal(t, 25.0, store.rewards[rewardKey{userID: 42, surveyID: 1}])
	assert.Len(t, store.rewards, 1)
	assert.Equal(t, 25.0, store.wallets[42])

	// Terminal actor leaves the population
	assert.Eventually(t, func() bool { return orch.LiveActors() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestOrchestrator_DuplicateRewardSkipped(t *testing.T) {
	store := newFakeActorStore()
	store.rewards[rewardKey{userID: 42, surveyID: 1}] = 25
	orch := testOrchestrator(t, store, &recordingBus{}, 100)
	ctx := context.Background()

	// Resume at the final question
	require.NoError(t, store.SaveActorState(ctx, &Snapshot{
		UserID: 42, SurveyID: 1, State: StateWaitQuestion(FinalQuestion), Question: FinalQuestion,
	}))

	err := orch.HandleFormsResponse(ctx, &FormsResponse{
		Identifier: sealAnswer(t, orch, FinalQuestion, 42, 1),
	})
	require.NoError(t, err)

	assert.Nil(t, store.state(42))
	assert.Len(t, store.rewards, 1)
}

func TestOrchestrator_StaleAnswerReplay(t *testing.T) {
	store := newFakeActorStore()
	orch := testOrchestrator(t, store, &recordingBus{}, 100)
	ctx := context.Background()

	require.NoError(t, store.SaveActorState(ctx, &Snapshot{
		UserID: 42, SurveyID: 1, State: StateWaitQuestion(5), Question: 5,
	}))

	err := orch.HandleFormsResponse(ctx, &FormsResponse{
		Identifier: sealAnswer(t, orch, 2, 42, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, store.state(42).Question)
	assert.Empty(t, store.answers)
}

func TestOrchestrator_CancelDeletesState(t *testing.T) {
	store := newFakeActorStore()
	orch := testOrchestrator(t, store, &recordingBus{}, 100)
	ctx := context.Background()

	require.NoError(t, orch.Start(ctx, 42, 1))
	require.NoError(t, orch.Cancel(ctx, 42))

	assert.Nil(t, store.state(42))
	assert.Empty(t, store.rewards)
}

func TestOrchestrator_StartTwice(t *testing.T) {
	store := newFakeActorStore()
	orch := testOrchestrator(t, store, &recordingBus{}, 100)
	ctx := context.Background()

	require.NoError(t, orch.Start(ctx, 42, 1))
	assert.ErrorIs(t, orch.Start(ctx, 42, 1), ErrAlreadyActive)
}

func TestOrchestrator_EventForUnknownUser(t *testing.T) {
	store := newFakeActorStore()
	orch := testOrchestrator(t, store, &recordingBus{}, 100)

	assert.ErrorIs(t, orch.Consent(context.Background(), 999), ErrNoActor)
}

func TestOrchestrator_EvictionAndRehydration(t *testing.T) {
	store := newFakeActorStore()
	orch := testOrchestrator(t, store, &recordingBus{}, 1)
	ctx := context.Background()

	require.NoError(t, orch.Start(ctx, 1, 1))
	require.NoError(t, orch.Start(ctx, 2, 1))

	// Soft cap of one: user 1's actor was evicted, its snapshot survives
	assert.Equal(t, 1, orch.LiveActors())
	require.NotNil(t, store.state(1))

	// Next event rehydrates from the snapshot
	require.NoError(t, orch.Consent(ctx, 1))
	assert.Equal(t, "wait_Q1", store.state(1).State)
}

func TestOrchestrator_DispatchDueTimers(t *testing.T) {
	store := newFakeActorStore()
	bus := &recordingBus{}
	orch := testOrchestrator(t, store, bus, 100)
	ctx := context.Background()

	overdue := orch.now().Add(-10 * time.Minute)
	require.NoError(t, store.SaveActorState(ctx, &Snapshot{
		UserID: 42, SurveyID: 1, State: StateWaitQuestion(2), Question: 2,
		NextPushAt: &overdue,
	}))

	require.NoError(t, orch.DispatchDueTimers(ctx))

	assert.Equal(t, 1, bus.count())
	assert.Nil(t, store.state(42).NextPushAt)

	// A second pass finds nothing due
	require.NoError(t, orch.DispatchDueTimers(ctx))
	assert.Equal(t, 1, bus.count())
}

func TestOrchestrator_TriggerBatch(t *testing.T) {
	store := newFakeActorStore()
	orch := testOrchestrator(t, store, &recordingBus{}, 100)

	started, err := orch.Trigger(context.Background(), &TriggerRequest{
		UserIDs: []int64{1, 2, 3},
		Action:  ActionStartMicrosurvey,
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, started)
	for _, userID := range []int64{1, 2, 3} {
		require.NotNil(t, store.state(userID))
		assert.Equal(t, StateWaitConsent, store.state(userID).State)
	}

	// Re-trigger skips users already in flight
	started, err = orch.Trigger(context.Background(), &TriggerRequest{UserIDs: []int64{1, 2, 3}}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, started)
}

func TestOrchestrator_TriggerLimitation(t *testing.T) {
	store := newFakeActorStore()
	orch := testOrchestrator(t, store, &recordingBus{}, 100)

	started, err := orch.Trigger(context.Background(), &TriggerRequest{
		UserIDs:    []int64{1, 2, 3, 4, 5},
		Limitation: 2,
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, started)
	assert.Nil(t, store.state(3))
}

func TestOrchestrator_TriggerByAction(t *testing.T) {
	store := newFakeActorStore()
	store.candidates = []int64{7, 8, 9}
	// User 9 already earned this survey's reward and must be skipped
	store.rewards[rewardKey{userID: 9, surveyID: 1}] = 25
	orch := testOrchestrator(t, store, &recordingBus{}, 100)

	started, err := orch.Trigger(context.Background(), &TriggerRequest{
		Action: ActionStartMicrosurvey,
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, started)
	require.NotNil(t, store.state(7))
	require.NotNil(t, store.state(8))
	assert.Nil(t, store.state(9))

	// A second action trigger finds everyone in flight
	started, err = orch.Trigger(context.Background(), &TriggerRequest{
		Action: ActionStartMicrosurvey,
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, started)
}

func TestOrchestrator_TriggerByActionHonorsLimitation(t *testing.T) {
	store := newFakeActorStore()
	store.candidates = []int64{7, 8, 9}
	orch := testOrchestrator(t, store, &recordingBus{}, 100)

	started, err := orch.Trigger(context.Background(), &TriggerRequest{
		Action:     ActionStartMicrosurvey,
		Limitation: 1,
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, started)
	assert.Nil(t, store.state(8))
}

func TestOrchestrator_TriggerWithoutTargets(t *testing.T) {
	store := newFakeActorStore()
	orch := testOrchestrator(t, store, &recordingBus{}, 100)

	_, err := orch.Trigger(context.Background(), &TriggerRequest{}, 1)
	assert.ErrorIs(t, err, ErrNoTriggerTarget)
}

func TestIdentifierCipher_RoundTrip(t *testing.T) {
	cipher := testCipher(t)

	token, err := cipher.Seal(FormsIdentifier{QuestionID: 4, UserID: 42, SurveyID: 1})
	require.NoError(t, err)

	id, err := cipher.Open(token)
	require.NoError(t, err)
	assert.Equal(t, int64(4), id.QuestionID)
	assert.Equal(t, int64(42), id.UserID)
	assert.Equal(t, int64(1), id.SurveyID)
}

func TestIdentifierCipher_RejectsTampering(t *testing.T) {
	cipher := testCipher(t)

	token, err := cipher.Seal(FormsIdentifier{QuestionID: 4, UserID: 42, SurveyID: 1})
	require.NoError(t, err)

	tampered := "A" + token[1:]
	_, err = cipher.Open(tampered)
	assert.Error(t, err)
}
