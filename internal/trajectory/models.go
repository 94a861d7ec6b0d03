package trajectory

import "time"

// Validation outcomes for a driver/rider trip pair.
const (
	ValidationFail = 1
	ValidationPass = 2
)

// passThreshold is the score above which a trip pair is considered a real
// shared ride.
const passThreshold = 35

// slotSeconds is the trajectory bucketing granularity.
const slotSeconds = 5

// proximityMeters is the co-location radius for one scoring slot.
const proximityMeters = 100.0

// Point is one recorded trajectory sample.
type Point struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
	Speed     float64 `bson:"speed" json:"speed"`
	Timestamp int64   `bson:"timestamp" json:"timestamp"` // unix seconds
}

// MatchRequest identifies one driver/rider pair and the shared time window.
type MatchRequest struct {
	DriverID     int64
	RiderID      int64
	DriverTripID int64
	RiderTripID  int64
	StartTS      int64
	EndTS        int64
}

// ValidatedResult is the persisted outcome of one validation.
type ValidatedResult struct {
	DriverTripID     int64     `json:"driver_trip_id"`
	RiderTripID      int64     `json:"rider_trip_id"`
	ValidationStatus int       `json:"validation_status"`
	Passed           int       `json:"passed"`
	Score            int       `json:"score"`
	CreatedOn        time.Time `json:"created_on"`
}

// TripPair is one unvalidated driver trip with its matched rider trip and
// the pickup-to-dropoff window.
type TripPair struct {
	DriverID     int64
	RiderID      int64
	DriverTripID int64
	RiderTripID  int64
	StartTS      int64
	EndTS        int64
}
