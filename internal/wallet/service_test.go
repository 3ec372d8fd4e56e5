package wallet

import (
	"errors"
	"testing"

	"github.com/billhaven/billhaven-backend/internal/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditIsIdempotent(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore())
	userID := uuid.NewString()

	first, err := svc.Credit(userID, 10000, ledger.EntryDeposit, "dep1", "")
	require.NoError(t, err)

	// replay returns the original entry, no double credit
	second, err := svc.Credit(userID, 10000, ledger.EntryDeposit, "dep1", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balance, _ := svc.BalanceOf(userID)
	assert.Equal(t, int64(10000), balance)
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore())
	_, err := svc.Credit(uuid.NewString(), 0, ledger.EntryDeposit, "x", "")
	assert.Error(t, err)
	_, err = svc.Credit(uuid.NewString(), -50, ledger.EntryDeposit, "y", "")
	assert.Error(t, err)
}

func TestDebitSurfacesDuplicates(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore())
	userID := uuid.NewString()

	_, err := svc.Credit(userID, 10000, ledger.EntryDeposit, "dep1", "")
	require.NoError(t, err)

	_, err = svc.Debit(userID, 3000, ledger.EntryBillPayment, "pay1", "")
	require.NoError(t, err)

	entry, err := svc.Debit(userID, 3000, ledger.EntryBillPayment, "pay1", "")
	assert.ErrorIs(t, err, ledger.ErrDuplicateReference)
	require.NotNil(t, entry)

	balance, _ := svc.BalanceOf(userID)
	assert.Equal(t, int64(7000), balance)
}

func TestDebitInsufficientFunds(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore())
	userID := uuid.NewString()

	_, err := svc.Credit(userID, 2000, ledger.EntryDeposit, "dep1", "")
	require.NoError(t, err)

	_, err = svc.Debit(userID, 2001, ledger.EntryBillPayment, "pay1", "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	balance, _ := svc.BalanceOf(userID)
	assert.Equal(t, int64(2000), balance)
}

func TestPurchaseRefundRestoresBalance(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore())
	userID := uuid.NewString()

	_, err := svc.Credit(userID, 10000, ledger.EntryDeposit, "dep1", "")
	require.NoError(t, err)

	_, err = svc.Debit(userID, 3000, ledger.EntryBillPayment, "pay1", "")
	require.NoError(t, err)

	balance, _ := svc.BalanceOf(userID)
	assert.Equal(t, int64(7000), balance)

	_, err = svc.Credit(userID, 3000, ledger.EntryRefund, "refund-pay1", "")
	require.NoError(t, err)

	balance, _ = svc.BalanceOf(userID)
	assert.Equal(t, int64(10000), balance)

	// refund retry is a no-op
	_, err = svc.Credit(userID, 3000, ledger.EntryRefund, "refund-pay1", "")
	require.NoError(t, err)
	balance, _ = svc.BalanceOf(userID)
	assert.Equal(t, int64(10000), balance)
}

func TestTransfer(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore())
	alice := uuid.NewString()
	bob := uuid.NewString()

	_, err := svc.Credit(alice, 5000, ledger.EntryDeposit, "dep-a", "")
	require.NoError(t, err)

	result, err := svc.Transfer(alice, bob, 5000, "trf1", "rent")
	require.NoError(t, err)
	assert.Equal(t, int64(-5000), result.DebitEntry.Amount)
	assert.Equal(t, int64(5000), result.CreditEntry.Amount)

	aliceBal, _ := svc.BalanceOf(alice)
	bobBal, _ := svc.BalanceOf(bob)
	assert.Equal(t, int64(0), aliceBal)
	assert.Equal(t, int64(5000), bobBal)
}

func TestTransferToSelfRejected(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore())
	u := uuid.NewString()
	_, err := svc.Transfer(u, u, 1000, "trf1", "")
	assert.Error(t, err)
}

func TestTransferInsufficientFunds(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore())
	alice := uuid.NewString()
	bob := uuid.NewString()

	_, err := svc.Transfer(alice, bob, 1000, "trf1", "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	bobBal, _ := svc.BalanceOf(bob)
	assert.Equal(t, int64(0), bobBal)
}

// creditFailStore forces the credit leg of a transfer to fail so the
// compensation path can be exercised.
type creditFailStore struct {
	ledger.Store
	failUser string
}

func (s *creditFailStore) ApplyEntry(userID string, amount int64, entryType ledger.EntryType, reference, metadata string) (*ledger.Entry, error) {
	if userID == s.failUser && amount > 0 {
		return nil, errors.New("simulated store failure")
	}
	return s.Store.ApplyEntry(userID, amount, entryType, reference, metadata)
}

func TestTransferCompensatesSenderWhenCreditFails(t *testing.T) {
	mem := ledger.NewMemoryStore()
	bob := uuid.NewString()
	svc := NewService(&creditFailStore{Store: mem, failUser: bob})
	alice := uuid.NewString()

	_, err := svc.Credit(alice, 5000, ledger.EntryDeposit, "dep-a", "")
	require.NoError(t, err)

	_, err = svc.Transfer(alice, bob, 5000, "trf1", "")
	require.Error(t, err)

	aliceBal, _ := svc.BalanceOf(alice)
	bobBal, _ := svc.BalanceOf(bob)
	assert.Equal(t, int64(5000), aliceBal, "sender must be made whole")
	assert.Equal(t, int64(0), bobBal)

	// compensation entry exists under the derived reference
	assert.True(t, svc.EntryExists("trf1-compensation"))
}

func TestEntryExists(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore())
	userID := uuid.NewString()

	assert.False(t, svc.EntryExists("dep1"))
	_, err := svc.Credit(userID, 1000, ledger.EntryDeposit, "dep1", "")
	require.NoError(t, err)
	assert.True(t, svc.EntryExists("dep1"))
}
