package ledger

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceProvisionsWallet(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.NewString()

	balance, err := store.Balance(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	w, err := store.WalletByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, "NGN", w.Currency)
	assert.True(t, w.Active)
	assert.Len(t, w.WalletNumber, 10)
}

func TestApplyEntryCreditAndDebit(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.NewString()

	entry, err := store.ApplyEntry(userID, 10000, EntryDeposit, "dep1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), entry.BalanceAfter)
	assert.Equal(t, EntryCompleted, entry.Status)

	entry, err = store.ApplyEntry(userID, -3000, EntryBillPayment, "pay1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(7000), entry.BalanceAfter)

	balance, err := store.Balance(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), balance)
}

func TestApplyEntryRejectsZeroAmount(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.ApplyEntry(uuid.NewString(), 0, EntryDeposit, "zero", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestApplyEntryDuplicateReference(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.NewString()

	first, err := store.ApplyEntry(userID, 5000, EntryDeposit, "dup", "")
	require.NoError(t, err)

	second, err := store.ApplyEntry(userID, 5000, EntryDeposit, "dup", "")
	assert.ErrorIs(t, err, ErrDuplicateReference)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	// balance must not have moved twice
	balance, err := store.Balance(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
}

func TestInsufficientFundsBoundary(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.NewString()

	_, err := store.ApplyEntry(userID, 5000, EntryDeposit, "seed", "")
	require.NoError(t, err)

	// one kobo over the balance fails and leaves balance unchanged
	_, err = store.ApplyEntry(userID, -5001, EntryBillPayment, "over", "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	var ife *InsufficientFundsError
	require.True(t, errors.As(err, &ife))
	assert.Equal(t, int64(5001), ife.Required)
	assert.Equal(t, int64(5000), ife.Available)

	balance, _ := store.Balance(userID)
	assert.Equal(t, int64(5000), balance)

	// debiting the exact balance succeeds and leaves zero
	entry, err := store.ApplyEntry(userID, -5000, EntryBillPayment, "exact", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.BalanceAfter)
}

func TestInsufficientFundsReportsCurrentBalance(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.NewString()

	_, err := store.ApplyEntry(userID, 10000, EntryDeposit, "dep1", "")
	require.NoError(t, err)
	_, err = store.ApplyEntry(userID, -9000, EntryBillPayment, "pay1", "")
	require.NoError(t, err)

	// the error must carry the balance that rejected the debit, not an
	// earlier read
	_, err = store.ApplyEntry(userID, -5000, EntryBillPayment, "pay2", "")
	var ife *InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, int64(5000), ife.Required)
	assert.Equal(t, int64(1000), ife.Available)
}

func TestConcurrentDebitsSameReference(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.NewString()

	_, err := store.ApplyEntry(userID, 100000, EntryDeposit, "seed", "")
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyEntry(userID, -1000, EntryBillPayment, "pay1", "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, duplicates int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrDuplicateReference):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, duplicates)

	balance, _ := store.Balance(userID)
	assert.Equal(t, int64(99000), balance)
}

func TestConcurrentDebitsNoOverdraft(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.NewString()

	_, err := store.ApplyEntry(userID, 5000, EntryDeposit, "seed", "")
	require.NoError(t, err)

	// ten concurrent 1000-kobo debits against a 5000 balance: exactly five win
	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.ApplyEntry(userID, -1000, EntryBillPayment, fmt.Sprintf("spend-%d", n), "")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var successes, rejected int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInsufficientFunds):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 5, successes)
	assert.Equal(t, 5, rejected)

	balance, _ := store.Balance(userID)
	assert.Equal(t, int64(0), balance)
}

func TestBalanceMatchesEntrySum(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.NewString()

	store.ApplyEntry(userID, 10000, EntryDeposit, "d1", "")
	store.ApplyEntry(userID, -3000, EntryBillPayment, "p1", "")
	store.ApplyEntry(userID, 3000, EntryRefund, "refund-p1", "")
	store.ApplyEntry(userID, -2500, EntryGiftCard, "g1", "")
	store.ApplyEntry(userID, 700, EntryVirtualAccountCredit, "va1", "")

	balance, err := store.Balance(userID)
	require.NoError(t, err)

	sum, err := store.SumEntries(userID)
	require.NoError(t, err)

	assert.Equal(t, sum, balance)
	assert.Equal(t, int64(8200), balance)
}

func TestEntriesForUserPagination(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.NewString()

	for i := 0; i < 5; i++ {
		_, err := store.ApplyEntry(userID, 100, EntryDeposit, fmt.Sprintf("d-%d", i), "")
		require.NoError(t, err)
	}

	page, err := store.EntriesForUser(userID, 3, 0)
	require.NoError(t, err)
	assert.Len(t, page, 3)

	page, err = store.EntriesForUser(userID, 3, 3)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	count, err := store.CountEntries(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}
