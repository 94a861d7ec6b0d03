package microsurvey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/movesmart/maas-backend/internal/ledger"
)

// ErrDuplicateReward marks a reward credit that hit the (user_id, survey_id)
// uniqueness constraint: the bonus was paid before.
var ErrDuplicateReward = errors.New("microsurvey: reward already granted")

// Store is the persistence boundary for actor snapshots and rewards.
type Store interface {
	GetSurvey(ctx context.Context, surveyID int64) (*Survey, error)
	// GetActorState returns nil when the user has no active survey.
	GetActorState(ctx context.Context, userID int64) (*Snapshot, error)
	SaveActorState(ctx context.Context, snap *Snapshot) error
	DeleteActorState(ctx context.Context, userID int64) error
	// DueActorUserIDs returns users whose scheduled nudge is at or before
	// the cutoff. Used to refire timers lost to eviction or restart.
	DueActorUserIDs(ctx context.Context, cutoff time.Time) ([]int64, error)
	// InsertQuestionLog records an accepted answer. Written before the
	// snapshot is acknowledged.
	InsertQuestionLog(ctx context.Context, userID, surveyID int64, question int, answer string) error
	// CandidateUserIDs returns enabled users with no survey in flight and no
	// prior reward for this survey. Used for action-based trigger selection.
	CandidateUserIDs(ctx context.Context, surveyID int64, limit int) ([]int64, error)
	// CompleteWithReward credits the completion bonus and deletes the actor
	// row in a single transaction. Returns ErrDuplicateReward when the
	// (user_id, survey_id) constraint fires; the row is still deleted.
	CompleteWithReward(ctx context.Context, snap *Snapshot, points float64) error
}

// Repository implements Store on postgres.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new microsurvey repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetSurvey(ctx context.Context, surveyID int64) (*Survey, error) {
	query := `SELECT id, title, points, form_url FROM survey WHERE id = $1`

	s := &Survey{}
	err := r.db.QueryRow(ctx, query, surveyID).Scan(&s.ID, &s.Title, &s.Points, &s.FormURL)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repository) GetActorState(ctx context.Context, userID int64) (*Snapshot, error) {
	query := `SELECT state_json FROM survey_actor_state WHERE user_id = $1`

	var stateJSON []byte
	err := r.db.QueryRow(ctx, query, userID).Scan(&stateJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(stateJSON, snap); err != nil {
		return nil, fmt.Errorf("corrupt actor snapshot for user %d: %w", userID, err)
	}
	return snap, nil
}

func (r *Repository) SaveActorState(ctx context.Context, snap *Snapshot) error {
	stateJSON, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO survey_actor_state (user_id, state_json, survey_id, next_push_at, updated_on)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET state_json = EXCLUDED.state_json,
		    survey_id = EXCLUDED.survey_id,
		    next_push_at = EXCLUDED.next_push_at,
		    updated_on = NOW()
	`
	_, err = r.db.Exec(ctx, query, snap.UserID, stateJSON, snap.SurveyID, snap.NextPushAt)
	return err
}

func (r *Repository) DeleteActorState(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM survey_actor_state WHERE user_id = $1`, userID)
	return err
}

func (r *Repository) DueActorUserIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	query := `
		SELECT user_id FROM survey_actor_state
		WHERE next_push_at IS NOT NULL AND next_push_at <= $1
	`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) CandidateUserIDs(ctx context.Context, surveyID int64, limit int) ([]int64, error) {
	query := `
		SELECT u.id FROM auth_user u
		WHERE u.disabled = false
		  AND NOT EXISTS (SELECT 1 FROM survey_actor_state s WHERE s.user_id = u.id)
		  AND NOT EXISTS (
			SELECT 1 FROM points_transaction pt
			WHERE pt.user_id = u.id AND pt.survey_id = $1
		  )
		ORDER BY u.id
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, surveyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) InsertQuestionLog(ctx context.Context, userID, surveyID int64, question int, answer string) error {
	query := `
		INSERT INTO survey_question_log (user_id, survey_id, question, answer, created_on)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.db.Exec(ctx, query, userID, surveyID, question, answer)
	return err
}

func (r *Repository) CompleteWithReward(ctx context.Context, snap *Snapshot, points float64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// DO NOTHING keeps the transaction usable when the uniqueness
	// constraint fires, so the state row still gets deleted below.
	insert := `
		INSERT INTO points_transaction (user_id, activity_type, delta, note, survey_id, created_on)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, survey_id) DO NOTHING
	`
	note := fmt.Sprintf("microsurvey %d reward", snap.SurveyID)
	tag, err := tx.Exec(ctx, insert,
		snap.UserID, ledger.ActivityIncentive, points, note, snap.SurveyID, time.Now().UTC())
	if err != nil {
		return err
	}
	duplicate := tag.RowsAffected() == 0

	if !duplicate {
		// The user may not have a wallet row yet; create it so the credit
		// always lands and the balance stays equal to the transaction sum.
		ensure := `
			INSERT INTO coin_wallet (user_id, balance, auto_refill, below_balance, created_on)
			VALUES ($1, 0, false, 0, NOW())
			ON CONFLICT (user_id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, ensure, snap.UserID); err != nil {
			return err
		}

		balance := `
			UPDATE coin_wallet SET balance = balance + $1, modified_on = NOW()
			WHERE user_id = $2
		`
		if _, err := tx.Exec(ctx, balance, points, snap.UserID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM survey_actor_state WHERE user_id = $1`, snap.UserID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if duplicate {
		return ErrDuplicateReward
	}
	return nil
}
