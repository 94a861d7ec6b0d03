package parkmobile

import "time"

// Parking event statuses. EXPIRED is terminal.
const (
	StatusOnGoing  = "ON_GOING"
	StatusAlerted  = "ALERTED"
	StatusFinished = "FINISHED"
	StatusExpired  = "EXPIRED"
)

// alertLookAhead bounds how far ahead of alert_at the monitor fires.
const alertLookAhead = 5 * time.Minute

// expiryGrace is how long after stop time an event becomes EXPIRED.
const expiryGrace = 24 * time.Hour

// ParkingEvent is one monitored parking session.
type ParkingEvent struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Area        string     `json:"area"`
	Zone        string     `json:"zone"`
	ZoneLat     float64    `json:"zone_lat"`
	ZoneLng     float64    `json:"zone_lng"`
	StartTime   time.Time  `json:"parking_start_time_utc"`
	StopTime    time.Time  `json:"parking_stop_time_utc"`
	LPN         string     `json:"lpn"`
	LPNState    string     `json:"lpn_state"`
	LPNCountry  string     `json:"lpn_country"`
	AlertBefore *int       `json:"alert_before,omitempty"` // minutes
	AlertAt     *time.Time `json:"alert_at,omitempty"`
	Status      string     `json:"status"`
}

// APIToken is the shared upstream OAuth token row.
type APIToken struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// TokenResponse is the upstream OAuth token grant.
type TokenResponse struct {
	AccessToken string `json:"access_token" validate:"required"`
	ExpiresIn   int    `json:"expires_in" validate:"required,gt=0"`
	TokenType   string `json:"token_type"`
}
