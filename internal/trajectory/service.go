package trajectory

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/geo"
	"github.com/movesmart/maas-backend/pkg/logger"
)

// earlyStopScore ends scoring once reached; the pair already passes.
const earlyStopScore = passThreshold + 1

// Service scores driver/rider trajectory co-location.
type Service struct {
	store Store
}

// NewService creates a new trajectory validator
func NewService(store Store) *Service {
	return &Service{store: store}
}

// VerifyTrajectoryMatch buckets both trajectories into 5-second slots and
// counts the slots where driver and rider were within 100 m while both
// moving. Scoring stops early once the pass threshold is cleared.
func (s *Service) VerifyTrajectoryMatch(ctx context.Context, req *MatchRequest) (int, error) {
	driverPoints, err := s.store.TrajectoryPoints(ctx, req.DriverID, req.DriverTripID, req.StartTS, req.EndTS)
	if err != nil {
		return 0, err
	}
	riderPoints, err := s.store.TrajectoryPoints(ctx, req.RiderID, req.RiderTripID, req.StartTS, req.EndTS)
	if err != nil {
		return 0, err
	}

	driverSlots := bucketPoints(driverPoints, req.StartTS)
	riderSlots := bucketPoints(riderPoints, req.StartTS)

	common := make([]int64, 0, len(driverSlots))
	for k := range driverSlots {
		if _, ok := riderSlots[k]; ok {
			common = append(common, k)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })

	score := 0
	for _, k := range common {
		score += verifyGroup(driverSlots[k], riderSlots[k])
		if score >= earlyStopScore {
			break
		}
	}
	return score, nil
}

// bucketPoints groups samples into 5-second slots relative to startTS.
func bucketPoints(points []Point, startTS int64) map[int64][]Point {
	slots := make(map[int64][]Point)
	for _, p := range points {
		k := (p.Timestamp - startTS) / slotSeconds
		slots[k] = append(slots[k], p)
	}
	return slots
}

// verifyGroup returns 1 when any driver/rider sample pair is within the
// proximity radius with both participants moving.
func verifyGroup(driver, rider []Point) int {
	for _, a := range driver {
		if a.Speed <= 0 {
			continue
		}
		for _, b := range rider {
			if b.Speed <= 0 {
				continue
			}
			if geo.HaversineMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude) <= proximityMeters {
				return 1
			}
		}
	}
	return 0
}

// CarpoolBlockValidationJob validates yesterday's unvalidated trips.
// Per-trip failures are logged and the batch continues.
func (s *Service) CarpoolBlockValidationJob(ctx context.Context) error {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)

	pairs, err := s.store.UnvalidatedTripPairs(ctx, yesterday)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		score, err := s.VerifyTrajectoryMatch(ctx, &MatchRequest{
			DriverID:     pair.DriverID,
			RiderID:      pair.RiderID,
			DriverTripID: pair.DriverTripID,
			RiderTripID:  pair.RiderTripID,
			StartTS:      pair.StartTS,
			EndTS:        pair.EndTS,
		})
		if err != nil {
			logger.Get().Warn("trajectory validation failed",
				zap.Int64("driver_trip_id", pair.DriverTripID),
				zap.Int64("rider_trip_id", pair.RiderTripID),
				zap.Error(err),
			)
			continue
		}

		result := &ValidatedResult{
			DriverTripID:     pair.DriverTripID,
			RiderTripID:      pair.RiderTripID,
			ValidationStatus: ValidationFail,
			Passed:           0,
			Score:            score,
		}
		if score > passThreshold {
			result.ValidationStatus = ValidationPass
			result.Passed = 1
			result.Score = 100
		}

		if err := s.store.InsertValidatedResult(ctx, result); err != nil {
			logger.Get().Warn("failed to persist validation result",
				zap.Int64("driver_trip_id", pair.DriverTripID),
				zap.Error(err),
			)
		}
	}

	logger.Get().Info("carpool validation batch complete", zap.Int("pairs", len(pairs)))
	return nil
}
