package notification

import (
	"strings"
	"time"
)

// NotificationUser send_status values.
const (
	SendStatusQueued     = 0
	SendStatusDispatched = 2
)

// TypeParkingAlert is the notification type for parking meter expiry alerts.
const TypeParkingAlert = 97

// TypeFreeTicket announces a granted free transit ticket.
const TypeFreeTicket = 98

// TypeMicrosurvey marks survey nudge pushes.
const TypeMicrosurvey = 99

// Notification is the parent row for one logical push event.
type Notification struct {
	ID               int64     `json:"id"`
	MsgData          string    `json:"msg_data"`
	StartedOn        time.Time `json:"started_on"`
	EndedOn          time.Time `json:"ended_on"`
	Silent           string    `json:"silent"` // 'T' or 'F'
	NotificationType int       `json:"notification_type"`
}

// NotificationMsg holds the localized message content.
type NotificationMsg struct {
	ID             int64  `json:"id"`
	NotificationID int64  `json:"notification_id"`
	MsgTitle       string `json:"msg_title"`
	MsgBody        string `json:"msg_body"`
	Lang           string `json:"lang"`
}

// NotificationUser tracks per-recipient delivery status.
type NotificationUser struct {
	ID                int64 `json:"id"`
	NotificationMsgID int64 `json:"notification_msg_id"`
	UserID            int64 `json:"user_id"`
	SendStatus        int   `json:"send_status"`
}

// SendRequest describes one logical push event to up to 500 recipients.
type SendRequest struct {
	Users  []int64                `json:"users" binding:"required,min=1,max=500"`
	Type   int                    `json:"type"`
	Title  string                 `json:"title" binding:"required"`
	Body   string                 `json:"body" binding:"required"`
	Meta   map[string]interface{} `json:"meta"`
	Lang   string                 `json:"lang"`
	Silent bool                   `json:"silent"`
	NoPush bool                   `json:"no_push"`
	Image  string                 `json:"image"`
}

// NormalizeLang converts BCP 47 style tags to the stored underscore form,
// e.g. "en-US" becomes "en_us". Idempotent.
func NormalizeLang(lang string) string {
	if lang == "" {
		return "en_us"
	}
	return strings.ToLower(strings.ReplaceAll(lang, "-", "_"))
}

// SilentFlag renders the silent boolean in the stored 'T'/'F' form.
func SilentFlag(silent bool) string {
	if silent {
		return "T"
	}
	return "F"
}
