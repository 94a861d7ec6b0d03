package eventbus

import "time"

// CloudMessageTask carries one queued notification from the dispatch job to
// the push consumer. UserIDs are the internal numeric user ids; the consumer
// resolves device tokens itself.
type CloudMessageTask struct {
	NotificationID int64     `json:"notification_id"`
	UserIDs        []int64   `json:"user_list"`
	Type           int       `json:"notification_type"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Meta           string    `json:"meta,omitempty"`
	Image          string    `json:"image,omitempty"`
	Language       string    `json:"language"`
	Silent         bool      `json:"silent"`
	EndedOn        time.Time `json:"ended_on"`
	QueuedAt       time.Time `json:"queued_at"`
}

// SurveyPushTask asks the push consumer to deliver a microsurvey prompt at
// its scheduled time.
type SurveyPushTask struct {
	UserID      int64     `json:"user_id"`
	SurveyID    int64     `json:"survey_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// LedgerRefreshTask invalidates a cached wallet balance after an
// out-of-band ledger mutation.
type LedgerRefreshTask struct {
	UserID int64 `json:"user_id"`
}
