package notification

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// notificationWindow is how long a notification stays readable in-app.
const notificationWindow = 7 * 24 * time.Hour

// Store is the notification persistence boundary.
type Store interface {
	// CreateNotification inserts the Notification, NotificationMsg and one
	// NotificationUser row per recipient inside a single transaction.
	CreateNotification(ctx context.Context, n *Notification, msg *NotificationMsg, userIDs []int64) ([]*NotificationUser, error)
	MarkDispatched(ctx context.Context, notificationUserID int64) error
	DeviceTokens(ctx context.Context, userID int64) ([]string, error)
}

// Repository implements Store on a postgres pool.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new notification repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateNotification inserts the full notification tree atomically and
// returns the recipient rows with their generated ids.
func (r *Repository) CreateNotification(ctx context.Context, n *Notification, msg *NotificationMsg, userIDs []int64) ([]*NotificationUser, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	insertNotification := `
		INSERT INTO notification (msg_data, started_on, ended_on, silent, notification_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err = tx.QueryRow(ctx, insertNotification,
		n.MsgData, n.StartedOn, n.EndedOn, n.Silent, n.NotificationType,
	).Scan(&n.ID)
	if err != nil {
		return nil, err
	}

	insertMsg := `
		INSERT INTO notification_msg (notification_id, msg_title, msg_body, lang)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	msg.NotificationID = n.ID
	err = tx.QueryRow(ctx, insertMsg, msg.NotificationID, msg.MsgTitle, msg.MsgBody, msg.Lang).Scan(&msg.ID)
	if err != nil {
		return nil, err
	}

	insertUser := `
		INSERT INTO notification_user (notification_msg_id, user_id, send_status)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	recipients := make([]*NotificationUser, 0, len(userIDs))
	for _, userID := range userIDs {
		nu := &NotificationUser{
			NotificationMsgID: msg.ID,
			UserID:            userID,
			SendStatus:        SendStatusQueued,
		}
		if err := tx.QueryRow(ctx, insertUser, nu.NotificationMsgID, nu.UserID, nu.SendStatus).Scan(&nu.ID); err != nil {
			return nil, err
		}
		recipients = append(recipients, nu)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return recipients, nil
}

// MarkDispatched transitions a recipient row to send_status=2.
func (r *Repository) MarkDispatched(ctx context.Context, notificationUserID int64) error {
	query := `UPDATE notification_user SET send_status = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, SendStatusDispatched, notificationUserID)
	return err
}

// DeviceTokens returns the user's registered push tokens.
func (r *Repository) DeviceTokens(ctx context.Context, userID int64) ([]string, error) {
	query := `
		SELECT device_token FROM user_device
		WHERE user_id = $1 AND device_token IS NOT NULL AND device_token <> ''
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
