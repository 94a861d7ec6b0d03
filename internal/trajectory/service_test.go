package trajectory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	points  map[[2]int64][]Point // (user_id, trip_id) -> points
	pairs   []*TripPair
	results []*ValidatedResult
}

func (s *fakeStore) TrajectoryPoints(_ context.Context, userID, tripID, startTS, endTS int64) ([]Point, error) {
	var out []Point
	for _, p := range s.points[[2]int64{userID, tripID}] {
		if p.Timestamp >= startTS && p.Timestamp <= endTS {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) UnvalidatedTripPairs(context.Context, time.Time) ([]*TripPair, error) {
	return s.pairs, nil
}

func (s *fakeStore) InsertValidatedResult(_ context.Context, result *ValidatedResult) error {
	s.results = append(s.results, result)
	return nil
}

// colocated generates one sample per second for both users at (nearly) the
// same position, both moving.
func colocated(startTS int64, seconds int) (driver, rider []Point) {
	for i := 0; i < seconds; i++ {
		ts := startTS + int64(i)
		driver = append(driver, Point{Latitude: 41.8781, Longitude: -87.6298, Speed: 10, Timestamp: ts})
		// ~20 m east
		rider = append(rider, Point{Latitude: 41.8781, Longitude: -87.62956, Speed: 9, Timestamp: ts})
	}
	return driver, rider
}

func newFakeStoreWithTrips(startTS int64, driver, rider []Point) *fakeStore {
	return &fakeStore{
		points: map[[2]int64][]Point{
			{1, 100}: driver,
			{2, 200}: rider,
		},
	}
}

func matchReq(startTS, endTS int64) *MatchRequest {
	return &MatchRequest{
		DriverID: 1, RiderID: 2,
		DriverTripID: 100, RiderTripID: 200,
		StartTS: startTS, EndTS: endTS,
	}
}

func TestVerifyTrajectoryMatch_SixtySecondsColocatedScoresTwelve(t *testing.T) {
	startTS := int64(1_700_000_000)
	driver, rider := colocated(startTS, 60)
	store := newFakeStoreWithTrips(startTS, driver, rider)

	score, err := NewService(store).VerifyTrajectoryMatch(context.Background(), matchReq(startTS, startTS+60))
	require.NoError(t, err)
	// 60 seconds of overlap in 5 second slots
	assert.Equal(t, 12, score)
}

func TestVerifyTrajectoryMatch_StationaryPointsDoNotScore(t *testing.T) {
	startTS := int64(1_700_000_000)
	driver, rider := colocated(startTS, 30)
	for i := range rider {
		rider[i].Speed = 0
	}
	store := newFakeStoreWithTrips(startTS, driver, rider)

	score, err := NewService(store).VerifyTrajectoryMatch(context.Background(), matchReq(startTS, startTS+30))
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestVerifyTrajectoryMatch_FarApartDoesNotScore(t *testing.T) {
	startTS := int64(1_700_000_000)
	driver, _ := colocated(startTS, 30)
	var rider []Point
	for i := 0; i < 30; i++ {
		// ~1.1 km away
		rider = append(rider, Point{Latitude: 41.888, Longitude: -87.6298, Speed: 8, Timestamp: startTS + int64(i)})
	}
	store := newFakeStoreWithTrips(startTS, driver, rider)

	score, err := NewService(store).VerifyTrajectoryMatch(context.Background(), matchReq(startTS, startTS+30))
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestVerifyTrajectoryMatch_EarlyStop(t *testing.T) {
	startTS := int64(1_700_000_000)
	// 10 minutes co-located: 120 slots, but scoring stops at 36
	driver, rider := colocated(startTS, 600)
	store := newFakeStoreWithTrips(startTS, driver, rider)

	score, err := NewService(store).VerifyTrajectoryMatch(context.Background(), matchReq(startTS, startTS+600))
	require.NoError(t, err)
	assert.Equal(t, 36, score)
}

func TestVerifyTrajectoryMatch_DisjointSlotsIgnored(t *testing.T) {
	startTS := int64(1_700_000_000)
	driver := []Point{{Latitude: 41.8781, Longitude: -87.6298, Speed: 10, Timestamp: startTS + 2}}
	rider := []Point{{Latitude: 41.8781, Longitude: -87.6298, Speed: 10, Timestamp: startTS + 50}}
	store := newFakeStoreWithTrips(startTS, driver, rider)

	score, err := NewService(store).VerifyTrajectoryMatch(context.Background(), matchReq(startTS, startTS+60))
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestCarpoolBlockValidationJob_PassAndFail(t *testing.T) {
	startTS := int64(1_700_000_000)
	passingDriver, passingRider := colocated(startTS, 600) // will early-stop at 36
	failingDriver, failingRider := colocated(startTS, 60)  // 12 slots

	store := &fakeStore{
		points: map[[2]int64][]Point{
			{1, 100}: passingDriver,
			{2, 200}: passingRider,
			{3, 300}: failingDriver,
			{4, 400}: failingRider,
		},
		pairs: []*TripPair{
			{DriverID: 1, RiderID: 2, DriverTripID: 100, RiderTripID: 200, StartTS: startTS, EndTS: startTS + 600},
			{DriverID: 3, RiderID: 4, DriverTripID: 300, RiderTripID: 400, StartTS: startTS, EndTS: startTS + 60},
		},
	}

	require.NoError(t, NewService(store).CarpoolBlockValidationJob(context.Background()))
	require.Len(t, store.results, 2)

	pass := store.results[0]
	assert.Equal(t, ValidationPass, pass.ValidationStatus)
	assert.Equal(t, 1, pass.Passed)
	assert.Equal(t, 100, pass.Score) // passing pairs record a flat 100

	fail := store.results[1]
	assert.Equal(t, ValidationFail, fail.ValidationStatus)
	assert.Equal(t, 0, fail.Passed)
	assert.Equal(t, 12, fail.Score)
}
