package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAddEscrow(t *testing.T) {
	store := newMockStore()
	store.tx.On("InsertEscrowAccount", mock.MatchedBy(func(_ context.Context) bool { return true }),
		mock.MatchedBy(func(ea *EscrowAccount) bool {
			return ea.UserID == 1 && ea.ReservationID == 55
		})).Return(int64(9), nil)

	svc := NewService(store, nil, nil, 100)
	id, err := svc.AddEscrow(context.Background(), 1, 55, i64Ptr(7), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.True(t, store.committed)
}

func TestAddEscrowDetail_IncreaseDebitsWallet(t *testing.T) {
	store := newMockStore()
	store.tx.On("WalletForUpdate", mock.Anything, int64(1)).
		Return(&Wallet{UserID: 1, Balance: 50}, nil)
	store.tx.On("InsertTransaction", mock.Anything, mock.MatchedBy(func(pt *PointsTransaction) bool {
		return pt.ActivityType == ActivityIntoEscrow && pt.Delta == -12
	})).Return(int64(70), nil)
	store.tx.On("InsertEscrowDetail", mock.Anything, mock.MatchedBy(func(ed *EscrowDetail) bool {
		return ed.EscrowID == 9 && ed.ActivityType == ActivityIntoEscrow &&
			ed.Fund == -12 && ed.TransactionID != nil && *ed.TransactionID == 70
	})).Return(int64(80), nil)
	store.tx.On("InsertSystemTransaction", mock.Anything, mock.MatchedBy(func(st *SystemCoinsTransaction) bool {
		return st.FromAccount == 1 && st.ToAccount == AccountEscrow && st.Amount == 12
	})).Return(int64(90), nil)
	store.tx.On("UpdateBalance", mock.Anything, int64(1), 38.0).Return(nil)

	svc := NewService(store, nil, nil, 100)
	// Activity 3 is in the increase set
	err := svc.AddEscrowDetail(context.Background(), 1, 9, 3, 12, nil)
	require.NoError(t, err)
	store.tx.AssertExpectations(t)
}

func TestAddEscrowDetail_DecreaseCreditsWallet(t *testing.T) {
	store := newMockStore()
	store.tx.On("WalletForUpdate", mock.Anything, int64(1)).
		Return(&Wallet{UserID: 1, Balance: 50}, nil)
	store.tx.On("InsertTransaction", mock.Anything, mock.MatchedBy(func(pt *PointsTransaction) bool {
		return pt.ActivityType == ActivityFromEscrow && pt.Delta == 12
	})).Return(int64(70), nil)
	store.tx.On("InsertEscrowDetail", mock.Anything, mock.MatchedBy(func(ed *EscrowDetail) bool {
		return ed.ActivityType == ActivityFromEscrow && ed.Fund == 12
	})).Return(int64(80), nil)
	store.tx.On("InsertSystemTransaction", mock.Anything, mock.MatchedBy(func(st *SystemCoinsTransaction) bool {
		return st.FromAccount == AccountEscrow && st.ToAccount == 1
	})).Return(int64(90), nil)
	store.tx.On("UpdateBalance", mock.Anything, int64(1), 62.0).Return(nil)

	svc := NewService(store, nil, nil, 100)
	// Activity 8 is outside the increase set, so funds release to the user.
	// Sign of the incoming fund does not matter.
	err := svc.AddEscrowDetail(context.Background(), 1, 9, 8, -12, nil)
	require.NoError(t, err)
	store.tx.AssertExpectations(t)
}

func TestCloseEscrow(t *testing.T) {
	store := newMockStore()
	store.tx.On("CloseEscrowDetails", mock.Anything, int64(1), int64(55)).Return(int64(2), nil)
	store.tx.On("CloseEscrowAccount", mock.Anything, int64(1), int64(55)).Return(nil)

	svc := NewService(store, nil, nil, 100)
	require.NoError(t, svc.CloseEscrow(context.Background(), 1, 55))
	assert.True(t, store.committed)
	store.tx.AssertExpectations(t)
}

func TestEscrowActivityPartition(t *testing.T) {
	for _, a := range []int{1, 2, 3, 4, 5, 12, 24} {
		assert.True(t, EscrowIncreases(a), "activity %d should increase escrow", a)
	}
	for _, a := range []int{6, 8, 9, 10, 11, 39} {
		assert.False(t, EscrowIncreases(a), "activity %d should not increase escrow", a)
	}
}
