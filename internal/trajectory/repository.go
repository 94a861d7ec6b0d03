package trajectory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store is the validator persistence boundary. Trajectories live in mongo,
// trip linkage and results in postgres.
type Store interface {
	TrajectoryPoints(ctx context.Context, userID, tripID, startTS, endTS int64) ([]Point, error)
	UnvalidatedTripPairs(ctx context.Context, day time.Time) ([]*TripPair, error)
	InsertValidatedResult(ctx context.Context, result *ValidatedResult) error
}

const trajectoryCollection = "trip_trajectory"

// Repository implements Store over postgres and mongo.
type Repository struct {
	db    *pgxpool.Pool
	mongo *mongo.Database
}

// NewRepository creates a new trajectory repository
func NewRepository(db *pgxpool.Pool, mongoDB *mongo.Database) *Repository {
	return &Repository{db: db, mongo: mongoDB}
}

type trajectoryDoc struct {
	UserID int64   `bson:"user_id"`
	TripID int64   `bson:"trip_id"`
	Points []Point `bson:"points"`
}

// TrajectoryPoints returns the user's trip samples inside [startTS, endTS].
func (r *Repository) TrajectoryPoints(ctx context.Context, userID, tripID, startTS, endTS int64) ([]Point, error) {
	var doc trajectoryDoc
	err := r.mongo.Collection(trajectoryCollection).
		FindOne(ctx, bson.M{"user_id": userID, "trip_id": tripID}).
		Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(doc.Points))
	for _, p := range doc.Points {
		if p.Timestamp >= startTS && p.Timestamp <= endTS {
			points = append(points, p)
		}
	}
	return points, nil
}

// UnvalidatedTripPairs returns driver trips from the given day that have a
// matched rider trip and no validation result yet.
func (r *Repository) UnvalidatedTripPairs(ctx context.Context, day time.Time) ([]*TripPair, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT dt.driver_id, dt.rider_id, dt.driver_trip_id, dt.rider_trip_id,
		       EXTRACT(EPOCH FROM dt.pickup_time)::bigint,
		       EXTRACT(EPOCH FROM dt.dropoff_time)::bigint
		FROM duo_trip dt
		WHERE dt.pickup_time >= $1 AND dt.pickup_time < $2
		  AND NOT EXISTS (
			SELECT 1 FROM duo_validated_result v
			WHERE v.driver_trip_id = dt.driver_trip_id
			  AND v.rider_trip_id = dt.rider_trip_id
		  )
	`

	rows, err := r.db.Query(ctx, query, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*TripPair
	for rows.Next() {
		p := &TripPair{}
		err := rows.Scan(&p.DriverID, &p.RiderID, &p.DriverTripID, &p.RiderTripID, &p.StartTS, &p.EndTS)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// InsertValidatedResult persists one validation outcome.
func (r *Repository) InsertValidatedResult(ctx context.Context, result *ValidatedResult) error {
	query := `
		INSERT INTO duo_validated_result (driver_trip_id, rider_trip_id, validation_status, passed, score, created_on)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		result.DriverTripID, result.RiderTripID, result.ValidationStatus, result.Passed, result.Score)
	return err
}
