package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx exposes the ledger operations that must run under one database
// transaction. The wallet row stays locked for the duration.
type Tx interface {
	WalletForUpdate(ctx context.Context, userID int64) (*Wallet, error)
	UpdateBalance(ctx context.Context, userID int64, balance float64) error
	InsertTransaction(ctx context.Context, pt *PointsTransaction) (int64, error)
	InsertSystemTransaction(ctx context.Context, st *SystemCoinsTransaction) (int64, error)
	SetRefTransaction(ctx context.Context, transactionID, refTransactionID int64) error
	RefillPlan(ctx context.Context, planID int64) (*RefillPlan, error)
	DailyRefillSpend(ctx context.Context, userID int64, since time.Time) (float64, error)
	SetAutoRefill(ctx context.Context, userID int64, enabled bool) error

	InsertEscrowAccount(ctx context.Context, ea *EscrowAccount) (int64, error)
	InsertEscrowDetail(ctx context.Context, ed *EscrowDetail) (int64, error)
	CloseEscrowDetails(ctx context.Context, userID, reservationID int64) (int64, error)
	CloseEscrowAccount(ctx context.Context, userID, reservationID int64) error
}

// Store is the ledger persistence boundary.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	IsBlocked(ctx context.Context, userID int64) (bool, error)
	Balance(ctx context.Context, userID int64) (float64, error)
	History(ctx context.Context, userID int64, limit, offset int) ([]*PointsTransaction, error)
	ReapPendingTransactions(ctx context.Context, cutoff time.Time) (int64, error)
}

// ErrRefillPlanNotFound is returned when a wallet references a missing plan.
var ErrRefillPlanNotFound = errors.New("refill plan not found")

// Repository implements Store on a postgres pool.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new ledger repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// RunInTx executes fn inside a single database transaction.
func (r *Repository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&repoTx{tx: pgtx}); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

// IsBlocked reports whether the user is coin-suspended.
func (r *Repository) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM block_user
			WHERE user_id = $1 AND is_deleted = 'F' AND block_type = 1
		)
	`
	var blocked bool
	err := r.db.QueryRow(ctx, query, userID).Scan(&blocked)
	return blocked, err
}

// Balance returns the current wallet balance; missing wallets read as 0.
func (r *Repository) Balance(ctx context.Context, userID int64) (float64, error) {
	query := `SELECT balance FROM coin_wallet WHERE user_id = $1`

	var balance float64
	err := r.db.QueryRow(ctx, query, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// History returns the user's ledger entries, newest first.
func (r *Repository) History(ctx context.Context, userID int64, limit, offset int) ([]*PointsTransaction, error) {
	query := `
		SELECT id, user_id, activity_type, delta, note, ref_transaction_id, created_on
		FROM points_transaction
		WHERE user_id = $1
		ORDER BY created_on DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*PointsTransaction
	for rows.Next() {
		pt := &PointsTransaction{}
		var note *string
		err := rows.Scan(&pt.ID, &pt.UserID, &pt.ActivityType, &pt.Delta, &note, &pt.RefTransactionID, &pt.CreatedOn)
		if err != nil {
			return nil, err
		}
		if note != nil {
			pt.Note = *note
		}
		entries = append(entries, pt)
	}

	return entries, rows.Err()
}

// ReapPendingTransactions converts pending escrow entries (activity 9/10)
// older than the cutoff to settled carpool fees (activity 8), skipping
// blocked users.
func (r *Repository) ReapPendingTransactions(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE points_transaction pt
		SET activity_type = 8
		WHERE pt.activity_type IN (9, 10)
		  AND pt.created_on <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM block_user b
			WHERE b.user_id = pt.user_id AND b.is_deleted = 'F' AND b.block_type = 1
		  )
	`

	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// repoTx implements Tx over a pgx transaction.
type repoTx struct {
	tx pgx.Tx
}

// WalletForUpdate row-locks the wallet, creating it with balance 0 when
// missing.
func (t *repoTx) WalletForUpdate(ctx context.Context, userID int64) (*Wallet, error) {
	insert := `
		INSERT INTO coin_wallet (user_id, balance, auto_refill, below_balance, created_on)
		VALUES ($1, 0, false, 0, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := t.tx.Exec(ctx, insert, userID); err != nil {
		return nil, err
	}

	query := `
		SELECT user_id, balance, auto_refill, refill_plan_id, below_balance,
		       stripe_customer_id, created_on, modified_on
		FROM coin_wallet
		WHERE user_id = $1
		FOR UPDATE
	`

	w := &Wallet{}
	err := t.tx.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.Balance, &w.AutoRefill, &w.RefillPlanID, &w.BelowBalance,
		&w.StripeCustomerID, &w.CreatedOn, &w.ModifiedOn,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateBalance writes the new wallet balance.
func (t *repoTx) UpdateBalance(ctx context.Context, userID int64, balance float64) error {
	query := `
		UPDATE coin_wallet
		SET balance = $1, modified_on = NOW()
		WHERE user_id = $2
	`
	_, err := t.tx.Exec(ctx, query, balance, userID)
	return err
}

// InsertTransaction appends a ledger entry and returns its id.
func (t *repoTx) InsertTransaction(ctx context.Context, pt *PointsTransaction) (int64, error) {
	query := `
		INSERT INTO points_transaction (user_id, activity_type, delta, note, ref_transaction_id, created_on)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		pt.UserID, pt.ActivityType, pt.Delta, pt.Note, pt.RefTransactionID,
	).Scan(&id)
	return id, err
}

// InsertSystemTransaction records fund movement between system accounts.
func (t *repoTx) InsertSystemTransaction(ctx context.Context, st *SystemCoinsTransaction) (int64, error) {
	query := `
		INSERT INTO system_coins_transaction (from_account, to_account, activity_type, amount, ref_transaction_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		st.FromAccount, st.ToAccount, st.ActivityType, st.Amount, st.RefTransactionID,
	).Scan(&id)
	return id, err
}

// SetRefTransaction cross-links two ledger entries.
func (t *repoTx) SetRefTransaction(ctx context.Context, transactionID, refTransactionID int64) error {
	query := `UPDATE points_transaction SET ref_transaction_id = $1 WHERE id = $2`
	_, err := t.tx.Exec(ctx, query, refTransactionID, transactionID)
	return err
}

// RefillPlan loads the wallet's refill plan.
func (t *repoTx) RefillPlan(ctx context.Context, planID int64) (*RefillPlan, error) {
	query := `SELECT id, points, price FROM refill_plan WHERE id = $1`

	p := &RefillPlan{}
	err := t.tx.QueryRow(ctx, query, planID).Scan(&p.ID, &p.Points, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRefillPlanNotFound
	}
	return p, err
}

// DailyRefillSpend sums the USD price of auto-refill credits since the
// given time.
func (t *repoTx) DailyRefillSpend(ctx context.Context, userID int64, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(rp.price), 0)
		FROM points_transaction pt
		JOIN coin_wallet w ON w.user_id = pt.user_id
		JOIN refill_plan rp ON rp.id = w.refill_plan_id
		WHERE pt.user_id = $1
		  AND pt.activity_type = 10
		  AND pt.note = 'auto-refill'
		  AND pt.created_on >= $2
	`

	var spend float64
	err := t.tx.QueryRow(ctx, query, userID, since).Scan(&spend)
	return spend, err
}

// SetAutoRefill toggles the wallet's auto-refill flag.
func (t *repoTx) SetAutoRefill(ctx context.Context, userID int64, enabled bool) error {
	query := `
		UPDATE coin_wallet
		SET auto_refill = $1, modified_on = NOW()
		WHERE user_id = $2
	`
	_, err := t.tx.Exec(ctx, query, enabled, userID)
	return err
}

// InsertEscrowAccount opens an escrow account for a reservation.
func (t *repoTx) InsertEscrowAccount(ctx context.Context, ea *EscrowAccount) (int64, error) {
	query := `
		INSERT INTO escrow_account (user_id, reservation_id, offer_id, trip_id, status, created_on)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		ea.UserID, ea.ReservationID, ea.OfferID, ea.TripID, EscrowOpen,
	).Scan(&id)
	return id, err
}

// InsertEscrowDetail records one fund movement within an escrow account.
func (t *repoTx) InsertEscrowDetail(ctx context.Context, ed *EscrowDetail) (int64, error) {
	query := `
		INSERT INTO escrow_detail (escrow_id, activity_type, fund, offer_id, transaction_id, created_on)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		ed.EscrowID, ed.ActivityType, ed.Fund, ed.OfferID, ed.TransactionID,
	).Scan(&id)
	return id, err
}

// CloseEscrowDetails rewrites pending escrow entries (activity 9/10) for the
// user's reservation to settled carpool fees (activity 8).
func (t *repoTx) CloseEscrowDetails(ctx context.Context, userID, reservationID int64) (int64, error) {
	query := `
		UPDATE escrow_detail ed
		SET activity_type = 8
		FROM escrow_account ea
		WHERE ed.escrow_id = ea.id
		  AND ea.user_id = $1
		  AND ea.reservation_id = $2
		  AND ed.activity_type IN (9, 10)
	`

	result, err := t.tx.Exec(ctx, query, userID, reservationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CloseEscrowAccount marks the reservation's escrow account closed.
func (t *repoTx) CloseEscrowAccount(ctx context.Context, userID, reservationID int64) error {
	query := `
		UPDATE escrow_account
		SET status = $1
		WHERE user_id = $2 AND reservation_id = $3
	`
	_, err := t.tx.Exec(ctx, query, EscrowClosed, userID, reservationID)
	return err
}
