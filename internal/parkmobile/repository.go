package parkmobile

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store is the parking monitor persistence boundary. Events and tokens live
// in postgres; price objects and event history in mongo.
type Store interface {
	AlertCandidates(ctx context.Context, from, to time.Time) ([]*ParkingEvent, error)
	MarkAlerted(ctx context.Context, eventIDs []int64) (int64, error)
	ExpireEvents(ctx context.Context, stopBefore time.Time) (int64, error)
	FinishEvents(ctx context.Context, stopBefore time.Time) (int64, error)

	InsertToken(ctx context.Context, token *APIToken) error
	DeleteExpiredTokens(ctx context.Context, expiresBefore time.Time) (int64, error)

	PurgePriceObjects(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeEventHistory(ctx context.Context, olderThan time.Time) (int64, error)
}

const (
	priceObjectsCollection = "pm_price_objects"
	eventHistoryCollection = "pm_parking_events"
)

// Repository implements Store over postgres and mongo.
type Repository struct {
	db    *pgxpool.Pool
	mongo *mongo.Database
}

// NewRepository creates a new parkmobile repository
func NewRepository(db *pgxpool.Pool, mongoDB *mongo.Database) *Repository {
	return &Repository{db: db, mongo: mongoDB}
}

// AlertCandidates returns ON_GOING events whose alert time falls inside the
// look-ahead window.
func (r *Repository) AlertCandidates(ctx context.Context, from, to time.Time) ([]*ParkingEvent, error) {
	query := `
		SELECT id, user_id, area, zone, zone_lat, zone_lng,
		       parking_start_time_utc, parking_stop_time_utc,
		       lpn, lpn_state, lpn_country, alert_before, alert_at, status
		FROM pm_parking_event
		WHERE status = $1
		  AND alert_before IS NOT NULL
		  AND alert_at >= $2
		  AND alert_at <= $3
	`

	rows, err := r.db.Query(ctx, query, StatusOnGoing, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*ParkingEvent
	for rows.Next() {
		e := &ParkingEvent{}
		err := rows.Scan(
			&e.ID, &e.UserID, &e.Area, &e.Zone, &e.ZoneLat, &e.ZoneLng,
			&e.StartTime, &e.StopTime,
			&e.LPN, &e.LPNState, &e.LPNCountry, &e.AlertBefore, &e.AlertAt, &e.Status,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkAlerted moves the given events to ALERTED in a single update.
func (r *Repository) MarkAlerted(ctx context.Context, eventIDs []int64) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE pm_parking_event
		SET status = $1
		WHERE id = ANY($2) AND status = $3
	`
	result, err := r.db.Exec(ctx, query, StatusAlerted, eventIDs, StatusOnGoing)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ExpireEvents marks any non-expired event as EXPIRED once the stop time is
// older than the cutoff. Runs before FinishEvents; it uses the broader
// source set.
func (r *Repository) ExpireEvents(ctx context.Context, stopBefore time.Time) (int64, error) {
	query := `
		UPDATE pm_parking_event
		SET status = $1
		WHERE status IN ($2, $3, $4)
		  AND parking_stop_time_utc <= $5
	`
	result, err := r.db.Exec(ctx, query,
		StatusExpired, StatusOnGoing, StatusAlerted, StatusFinished, stopBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// FinishEvents marks live events FINISHED once past their stop time.
func (r *Repository) FinishEvents(ctx context.Context, stopBefore time.Time) (int64, error) {
	query := `
		UPDATE pm_parking_event
		SET status = $1
		WHERE status IN ($2, $3)
		  AND parking_stop_time_utc <= $4
	`
	result, err := r.db.Exec(ctx, query,
		StatusFinished, StatusOnGoing, StatusAlerted, stopBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// InsertToken records a freshly granted upstream token.
func (r *Repository) InsertToken(ctx context.Context, token *APIToken) error {
	query := `INSERT INTO pm_api_token (token, expires) VALUES ($1, $2)`
	_, err := r.db.Exec(ctx, query, token.Token, token.Expires)
	return err
}

// DeleteExpiredTokens removes rows at or past the cutoff.
func (r *Repository) DeleteExpiredTokens(ctx context.Context, expiresBefore time.Time) (int64, error) {
	query := `DELETE FROM pm_api_token WHERE expires <= $1`
	result, err := r.db.Exec(ctx, query, expiresBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// PurgePriceObjects deletes cached price documents older than the cutoff.
func (r *Repository) PurgePriceObjects(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.mongo.Collection(priceObjectsCollection).DeleteMany(ctx,
		bson.M{"created_on": bson.M{"$lt": olderThan}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// PurgeEventHistory deletes parking event history older than the cutoff.
func (r *Repository) PurgeEventHistory(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.mongo.Collection(eventHistoryCollection).DeleteMany(ctx,
		bson.M{"created_on": bson.M{"$lt": olderThan}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
