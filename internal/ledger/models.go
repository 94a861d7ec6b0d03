package ledger

import "time"

// System account ids used by the escrow sub-ledger.
const (
	AccountBudget int64 = 2000
	AccountEscrow int64 = 2001
)

// Escrow account status values.
const (
	EscrowOpen   = 1
	EscrowClosed = 2
)

// Wallet is the per-user points balance row.
type Wallet struct {
	UserID           int64      `json:"user_id"`
	Balance          float64    `json:"balance"`
	AutoRefill       bool       `json:"auto_refill"`
	RefillPlanID     *int64     `json:"refill_plan_id,omitempty"`
	BelowBalance     float64    `json:"below_balance"`
	StripeCustomerID *string    `json:"-"`
	CreatedOn        time.Time  `json:"created_on"`
	ModifiedOn       *time.Time `json:"modified_on,omitempty"`
}

// PointsTransaction is one append-only ledger entry.
type PointsTransaction struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	ActivityType     int       `json:"activity_type"`
	Delta            float64   `json:"delta"`
	Note             string    `json:"note,omitempty"`
	RefTransactionID *int64    `json:"ref_transaction_id,omitempty"`
	CreatedOn        time.Time `json:"created_on"`
}

// SystemCoinsTransaction records fund movement between system accounts
// (budget, escrow) and users.
type SystemCoinsTransaction struct {
	ID               int64   `json:"id"`
	FromAccount      int64   `json:"from_account"`
	ToAccount        int64   `json:"to_account"`
	ActivityType     int     `json:"activity_type"`
	Amount           float64 `json:"amount"`
	RefTransactionID *int64  `json:"ref_transaction_id,omitempty"`
}

// RefillPlan defines the points credited and USD price of one auto-refill.
type RefillPlan struct {
	ID     int64   `json:"id"`
	Points float64 `json:"points"`
	Price  float64 `json:"price"`
}

// EscrowAccount holds funds for one carpool reservation until completion.
type EscrowAccount struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	ReservationID int64     `json:"reservation_id"`
	OfferID       *int64    `json:"offer_id,omitempty"`
	TripID        *int64    `json:"trip_id,omitempty"`
	Status        int       `json:"status"`
	CreatedOn     time.Time `json:"created_on"`
}

// EscrowDetail is one movement within an escrow account.
type EscrowDetail struct {
	ID            int64     `json:"id"`
	EscrowID      int64     `json:"escrow_id"`
	ActivityType  int       `json:"activity_type"`
	Fund          float64   `json:"fund"`
	OfferID       *int64    `json:"offer_id,omitempty"`
	TransactionID *int64    `json:"transaction_id,omitempty"`
	CreatedOn     time.Time `json:"created_on"`
}

// TransactResult is returned from a successful ledger operation.
type TransactResult struct {
	TransactionID int64   `json:"transaction_id"`
	NewBalance    float64 `json:"new_balance"`
}

// TransactRequest is the wallet mutation request body.
type TransactRequest struct {
	ActivityType int     `json:"activity_type" binding:"required"`
	Delta        float64 `json:"delta" binding:"required"`
	Note         string  `json:"note"`
}

// BalanceResponse is the cached wallet read model.
type BalanceResponse struct {
	UserID  int64   `json:"user_id"`
	Balance float64 `json:"balance"`
}
