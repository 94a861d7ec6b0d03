package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned for missing users or tokens.
var ErrNotFound = errors.New("not found")

// Store is the auth persistence boundary.
type Store interface {
	GetUser(ctx context.Context, userID int64) (*AuthUser, error)
	IsBlocked(ctx context.Context, userID int64) (bool, error)
	GetToken(ctx context.Context, token string) (*AuthUserToken, error)
	InsertToken(ctx context.Context, t *AuthUserToken) error
	DisableToken(ctx context.Context, tokenID int64) error
}

// Repository implements Store on a postgres pool.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new auth repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetUser(ctx context.Context, userID int64) (*AuthUser, error) {
	query := `SELECT id, COALESCE(email, ''), disabled, created_on FROM auth_user WHERE id = $1`

	u := &AuthUser{}
	err := r.db.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Email, &u.Disabled, &u.CreatedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM block_user
			WHERE user_id = $1 AND is_deleted = 'F'
		)
	`
	var blocked bool
	err := r.db.QueryRow(ctx, query, userID).Scan(&blocked)
	return blocked, err
}

func (r *Repository) GetToken(ctx context.Context, token string) (*AuthUserToken, error) {
	query := `
		SELECT id, user_id, token, disabled, expires_on, created_on
		FROM auth_user_token
		WHERE token = $1
	`

	t := &AuthUserToken{}
	err := r.db.QueryRow(ctx, query, token).Scan(
		&t.ID, &t.UserID, &t.Token, &t.Disabled, &t.ExpiresOn, &t.CreatedOn,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repository) InsertToken(ctx context.Context, t *AuthUserToken) error {
	query := `
		INSERT INTO auth_user_token (user_id, token, disabled, expires_on, created_on)
		VALUES ($1, $2, false, $3, $4)
		RETURNING id
	`
	if t.CreatedOn.IsZero() {
		t.CreatedOn = time.Now()
	}
	return r.db.QueryRow(ctx, query, t.UserID, t.Token, t.ExpiresOn, t.CreatedOn).Scan(&t.ID)
}

func (r *Repository) DisableToken(ctx context.Context, tokenID int64) error {
	query := `UPDATE auth_user_token SET disabled = true WHERE id = $1`
	_, err := r.db.Exec(ctx, query, tokenID)
	return err
}
