package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/cache"
	"github.com/movesmart/maas-backend/pkg/common"
	"github.com/movesmart/maas-backend/pkg/logger"
)

const refillNote = "auto-refill"

// Service implements wallet transactions and the escrow sub-ledger.
type Service struct {
	store         Store
	cache         *cache.Manager
	payments      PaymentClient
	dailyLimitUSD float64
}

// NewService creates a new ledger service. cache may be nil (reads go to the
// database), payments may be nil (auto-refill fails with payment-not-set).
func NewService(store Store, cacheManager *cache.Manager, payments PaymentClient, dailyLimitUSD float64) *Service {
	return &Service{
		store:         store,
		cache:         cacheManager,
		payments:      payments,
		dailyLimitUSD: dailyLimitUSD,
	}
}

// Transact applies a signed delta to the user's wallet under one database
// transaction. When the balance would go negative and auto-refill is enabled,
// a refill credit is applied first.
func (s *Service) Transact(ctx context.Context, userID int64, activityType int, delta float64, note string) (*TransactResult, error) {
	if !ValidateSign(activityType, delta) {
		return nil, common.NewActivityFundMismatchError(
			fmt.Sprintf("delta %v does not match activity type %d", delta, activityType))
	}

	if delta < 0 {
		blocked, err := s.store.IsBlocked(ctx, userID)
		if err != nil {
			return nil, common.NewInternalError("failed to check block status", err)
		}
		if blocked {
			return nil, common.NewUserCoinSuspendedError()
		}
	}

	var result TransactResult
	// Set when the daily refill limit trips: the original debit still
	// commits (wallet goes negative) and the error is surfaced afterwards.
	var limitErr *common.AppError

	err := s.store.RunInTx(ctx, func(tx Tx) error {
		wallet, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		newBalance := wallet.Balance + delta
		var refillCreditID int64

		if newBalance < 0 {
			refilled, creditID, refillErr := s.tryAutoRefill(ctx, tx, wallet, newBalance)
			if refillErr != nil {
				if appErr, ok := refillErr.(*common.AppError); ok && appErr.ErrorCode == common.CodeCoinPurchaseDailyLimit {
					limitErr = appErr
					// fall through: apply the original debit and commit
				} else {
					return refillErr
				}
			} else {
				newBalance += refilled
				refillCreditID = creditID
			}
		}

		id, err := tx.InsertTransaction(ctx, &PointsTransaction{
			UserID:       userID,
			ActivityType: activityType,
			Delta:        delta,
			Note:         note,
		})
		if err != nil {
			return err
		}

		// Cross-link the refill credit to the debit that triggered it.
		if refillCreditID != 0 {
			if err := tx.SetRefTransaction(ctx, refillCreditID, id); err != nil {
				return err
			}
		}

		if err := tx.UpdateBalance(ctx, userID, newBalance); err != nil {
			return err
		}

		result = TransactResult{TransactionID: id, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		if _, ok := err.(*common.AppError); ok {
			return nil, err
		}
		return nil, common.NewInternalError("wallet transaction failed", err)
	}

	s.invalidateWallet(ctx, userID)

	if limitErr != nil {
		return nil, limitErr
	}
	return &result, nil
}

// tryAutoRefill runs inside the wallet transaction. It returns the credited
// points and the credit's transaction id on success, or a coded error
// describing why the refill cannot happen. A daily-limit error also disables
// auto-refill on the wallet.
func (s *Service) tryAutoRefill(ctx context.Context, tx Tx, wallet *Wallet, newBalance float64) (float64, int64, error) {
	if !wallet.AutoRefill || wallet.RefillPlanID == nil {
		return 0, 0, common.NewInsufficientFundsError()
	}

	plan, err := tx.RefillPlan(ctx, *wallet.RefillPlanID)
	if err != nil {
		return 0, 0, common.NewInsufficientFundsError()
	}
	if newBalance < -plan.Points {
		return 0, 0, common.NewInsufficientFundsError()
	}

	since := time.Now().Add(-24 * time.Hour)
	spent, err := tx.DailyRefillSpend(ctx, wallet.UserID, since)
	if err != nil {
		return 0, 0, err
	}
	if spent+plan.Price > s.dailyLimitUSD {
		if err := tx.SetAutoRefill(ctx, wallet.UserID, false); err != nil {
			return 0, 0, err
		}
		logger.Get().Warn("auto-refill daily limit reached, disabling",
			zap.Int64("user_id", wallet.UserID),
			zap.Float64("spent_usd", spent),
			zap.Float64("limit_usd", s.dailyLimitUSD),
		)
		return 0, 0, common.NewCoinPurchaseDailyLimitError()
	}

	if wallet.StripeCustomerID == nil || *wallet.StripeCustomerID == "" {
		return 0, 0, common.NewCoinPurchasePaymentNotSetError()
	}
	if s.payments == nil {
		return 0, 0, common.NewCoinPurchasePaymentNotSetError()
	}

	// Charge failure aborts the whole transaction, rolling back the debit.
	if err := s.payments.ChargeRefill(ctx, *wallet.StripeCustomerID, plan.Price, refillNote); err != nil {
		return 0, 0, err
	}

	creditID, err := tx.InsertTransaction(ctx, &PointsTransaction{
		UserID:       wallet.UserID,
		ActivityType: ActivityFromEscrow,
		Delta:        plan.Points,
		Note:         refillNote,
	})
	if err != nil {
		return 0, 0, err
	}

	if _, err := tx.InsertSystemTransaction(ctx, &SystemCoinsTransaction{
		FromAccount:      AccountBudget,
		ToAccount:        wallet.UserID,
		ActivityType:     ActivityFromEscrow,
		Amount:           plan.Points,
		RefTransactionID: &creditID,
	}); err != nil {
		return 0, 0, err
	}

	logger.Get().Info("wallet auto-refilled",
		zap.Int64("user_id", wallet.UserID),
		zap.Float64("points", plan.Points),
		zap.Float64("price_usd", plan.Price),
	)
	return plan.Points, creditID, nil
}

// AddEscrow opens an escrow account for a carpool reservation.
func (s *Service) AddEscrow(ctx context.Context, userID, reservationID int64, offerID, tripID *int64) (int64, error) {
	var id int64
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		var txErr error
		id, txErr = tx.InsertEscrowAccount(ctx, &EscrowAccount{
			UserID:        userID,
			ReservationID: reservationID,
			OfferID:       offerID,
			TripID:        tripID,
		})
		return txErr
	})
	if err != nil {
		return 0, common.NewInternalError("failed to open escrow", err)
	}
	return id, nil
}

// AddEscrowDetail records one escrow fund movement and its paired wallet
// transaction. Increase activities move funds from the wallet into escrow,
// everything else releases funds back.
func (s *Service) AddEscrowDetail(ctx context.Context, userID, escrowID int64, activity int, fund float64, offerID *int64) error {
	amount := fund
	if amount < 0 {
		amount = -amount
	}

	walletActivity := ActivityFromEscrow
	delta := amount
	toAccount := userID
	fromAccount := AccountEscrow
	if EscrowIncreases(activity) {
		walletActivity = ActivityIntoEscrow
		delta = -amount
		fromAccount = userID
		toAccount = AccountEscrow
	}

	err := s.store.RunInTx(ctx, func(tx Tx) error {
		wallet, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		ptID, err := tx.InsertTransaction(ctx, &PointsTransaction{
			UserID:       userID,
			ActivityType: walletActivity,
			Delta:        delta,
			Note:         "escrow",
		})
		if err != nil {
			return err
		}

		if _, err := tx.InsertEscrowDetail(ctx, &EscrowDetail{
			EscrowID:      escrowID,
			ActivityType:  walletActivity,
			Fund:          delta,
			OfferID:       offerID,
			TransactionID: &ptID,
		}); err != nil {
			return err
		}

		if _, err := tx.InsertSystemTransaction(ctx, &SystemCoinsTransaction{
			FromAccount:      fromAccount,
			ToAccount:        toAccount,
			ActivityType:     walletActivity,
			Amount:           amount,
			RefTransactionID: &ptID,
		}); err != nil {
			return err
		}

		return tx.UpdateBalance(ctx, userID, wallet.Balance+delta)
	})
	if err != nil {
		return common.NewInternalError("failed to record escrow detail", err)
	}

	s.invalidateWallet(ctx, userID)
	return nil
}

// CloseEscrow settles every pending escrow movement (activity 9/10) for the
// user's reservation as a carpool fee and closes the account.
func (s *Service) CloseEscrow(ctx context.Context, userID, reservationID int64) error {
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		settled, err := tx.CloseEscrowDetails(ctx, userID, reservationID)
		if err != nil {
			return err
		}
		if err := tx.CloseEscrowAccount(ctx, userID, reservationID); err != nil {
			return err
		}

		logger.Get().Info("escrow closed",
			zap.Int64("user_id", userID),
			zap.Int64("reservation_id", reservationID),
			zap.Int64("settled_details", settled),
		)
		return nil
	})
	if err != nil {
		return common.NewInternalError("failed to close escrow", err)
	}
	return nil
}

// Balance returns the user's wallet balance, served from cache when warm.
// Missing wallets read as zero.
func (s *Service) Balance(ctx context.Context, userID int64) (*BalanceResponse, error) {
	if s.cache == nil {
		balance, err := s.store.Balance(ctx, userID)
		if err != nil {
			return nil, common.NewInternalError("failed to read balance", err)
		}
		return &BalanceResponse{UserID: userID, Balance: balance}, nil
	}

	var resp BalanceResponse
	err := s.cache.GetOrSet(ctx, cache.Keys.Wallet(userID), cache.TTL.Short(), &resp, func() (interface{}, error) {
		balance, err := s.store.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &BalanceResponse{UserID: userID, Balance: balance}, nil
	})
	if err != nil {
		return nil, common.NewInternalError("failed to read balance", err)
	}
	return &resp, nil
}

// History returns the user's ledger entries, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit, offset int) ([]*PointsTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.store.History(ctx, userID, limit, offset)
	if err != nil {
		return nil, common.NewInternalError("failed to read points history", err)
	}
	return entries, nil
}

// ClearOldPendingPt settles escrow transactions (activity 9/10) older than
// 24 hours for non-blocked users. Runs from the scheduler.
func (s *Service) ClearOldPendingPt(ctx context.Context) error {
	cutoff := time.Now().Add(-24 * time.Hour)

	settled, err := s.store.ReapPendingTransactions(ctx, cutoff)
	if err != nil {
		logger.Get().Error("pending transaction reaper failed", zap.Error(err))
		return err
	}
	if settled > 0 {
		logger.Get().Info("settled old pending transactions", zap.Int64("count", settled))
	}
	return nil
}

func (s *Service) invalidateWallet(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.Keys.Wallet(userID)); err != nil {
		logger.Get().Warn("failed to invalidate wallet cache",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}
