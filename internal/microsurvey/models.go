package microsurvey

import (
	"fmt"
	"time"
)

// Actor states. Waiting states carry a scheduled nudge; answering a question
// moves straight through the transient Qk state into the next waiting state.
const (
	StateIdle        = "idle"
	StateWaitConsent = "wait_Consent"
	StateConsent     = "Consent"
	StateDone        = "done"
	StateCancelled   = "cancelled"
)

// FinalQuestion closes the survey: answering it transitions to done.
const FinalQuestion = 12

// StateWaitQuestion names the waiting state for question k.
func StateWaitQuestion(k int) string {
	return fmt.Sprintf("wait_Q%d", k)
}

// EventType identifies an actor event.
type EventType string

const (
	EventStart      EventType = "START"
	EventConsentYes EventType = "CONSENT_YES"
	EventAnswer     EventType = "ANSWER"
	EventCancel     EventType = "CANCEL"
	EventTimer      EventType = "TIMER"
)

// Event is one message delivered to a user's actor mailbox.
type Event struct {
	Type     EventType `json:"type"`
	Question int       `json:"question,omitempty"`
	Answer   string    `json:"answer,omitempty"`
}

// Snapshot is the serializable actor state. It is the source of truth:
// in-memory actors are caches over the persisted snapshot.
type Snapshot struct {
	UserID     int64      `json:"user_id"`
	SurveyID   int64      `json:"survey_id"`
	State      string     `json:"state"`
	Question   int        `json:"question"`
	NextPushAt *time.Time `json:"next_push_at,omitempty"`
	UpdatedOn  time.Time  `json:"updated_on"`
}

// Terminal reports whether the snapshot reached a final state.
func (s *Snapshot) Terminal() bool {
	return s.State == StateDone || s.State == StateCancelled
}

// Waiting reports whether the actor is idle between nudges, which makes it
// a candidate for eviction under memory pressure.
func (s *Snapshot) Waiting() bool {
	return s.State == StateWaitConsent || (s.Question > 0 && s.State == StateWaitQuestion(s.Question))
}

// Survey is the survey definition driving an actor.
type Survey struct {
	ID      int64   `json:"id"`
	Title   string  `json:"title"`
	Points  float64 `json:"points"`
	FormURL string  `json:"form_url"`
}

// FormsIdentifier is the decrypted identity embedded in a Google Forms
// response payload.
type FormsIdentifier struct {
	QuestionID int64 `json:"question_id"`
	UserID     int64 `json:"user_id"`
	SurveyID   int64 `json:"survey_id"`
}

// FormsResponse is one incoming form submission.
type FormsResponse struct {
	Identifier string `json:"identifier" binding:"required"`
	Answer     string `json:"answer"`
}

// ActionStartMicrosurvey selects trigger targets server-side when the
// request carries no explicit user list.
const ActionStartMicrosurvey = "start_microsurvey"

// TriggerRequest is the batch entry point payload. Targets come either from
// an explicit user list or from action-based server-side selection. Settime
// throttles the START dispatch, in milliseconds per user.
type TriggerRequest struct {
	UserIDs    []int64 `json:"user_ids"`
	Action     string  `json:"action"`
	Limitation int     `json:"limitation"`
	Settime    int     `json:"settime"`
}
