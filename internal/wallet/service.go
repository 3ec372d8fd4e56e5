package wallet

import (
	"errors"
	"fmt"

	"github.com/billhaven/billhaven-backend/internal/ledger"
	"github.com/billhaven/billhaven-backend/pkg/logger"
)

// Service is the only component callers use to move money. It wraps the
// ledger store's atomic ApplyEntry with the credit/debit/transfer contract.
type Service struct {
	store ledger.Store
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

func (s *Service) BalanceOf(userID string) (int64, error) {
	return s.store.Balance(userID)
}

// Credit adds amount kobo to the user's wallet. Replays with the same
// reference return the original entry without crediting again.
func (s *Service) Credit(userID string, amount int64, entryType ledger.EntryType, reference, metadata string) (*ledger.Entry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	entry, err := s.store.ApplyEntry(userID, amount, entryType, reference, metadata)
	if errors.Is(err, ledger.ErrDuplicateReference) {
		logger.Info("Credit already applied", logger.Fields{
			logger.ReferenceKey: reference,
			logger.UserIdKey:    userID,
		})
		return entry, nil
	}
	return entry, err
}

// Debit removes amount kobo from the user's wallet. A duplicate reference is
// surfaced as ledger.ErrDuplicateReference so callers can tell a replay from
// a fresh debit; the existing entry is returned alongside it.
func (s *Service) Debit(userID string, amount int64, entryType ledger.EntryType, reference, metadata string) (*ledger.Entry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	return s.store.ApplyEntry(userID, -amount, entryType, reference, metadata)
}

type TransferResult struct {
	DebitEntry  *ledger.Entry `json:"debit_entry"`
	CreditEntry *ledger.Entry `json:"credit_entry"`
}

// Transfer moves amount from one user to another. The reference names the
// logical transfer; the two entries use derived references so both fit under
// the global uniqueness constraint. If the credit leg fails after the debit
// succeeded, the sender is made whole with a compensation credit.
func (s *Service) Transfer(fromUserID, toUserID string, amount int64, reference, description string) (*TransferResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	if fromUserID == toUserID {
		return nil, fmt.Errorf("cannot transfer to self")
	}

	debitRef := reference + "-debit"
	creditRef := reference + "-credit"

	debitEntry, err := s.store.ApplyEntry(fromUserID, -amount, ledger.EntryTransferOut, debitRef, description)
	if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		return nil, err
	}
	// A duplicate debit means this transfer already ran at least as far as
	// the debit; fall through so an interrupted credit leg is resumed.

	creditEntry, err := s.Credit(toUserID, amount, ledger.EntryTransferIn, creditRef, description)
	if err != nil {
		logger.Error("Transfer credit leg failed, compensating sender", logger.Fields{
			logger.ReferenceKey: reference,
			"error":             err.Error(),
		})
		if _, compErr := s.Credit(fromUserID, amount, ledger.EntryRefund, reference+"-compensation", description); compErr != nil {
			logger.Error("CRITICAL: transfer compensation failed, sender remains debited", logger.Fields{
				logger.ReferenceKey: reference,
				"error":             compErr.Error(),
			})
			return nil, fmt.Errorf("transfer failed and compensation failed: %w", compErr)
		}
		return nil, fmt.Errorf("transfer failed, sender refunded: %w", err)
	}

	return &TransferResult{DebitEntry: debitEntry, CreditEntry: creditEntry}, nil
}

func (s *Service) History(userID string, limit, offset int) ([]ledger.Entry, int64, error) {
	entries, err := s.store.EntriesForUser(userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.store.CountEntries(userID)
	if err != nil {
		return nil, 0, err
	}
	return entries, count, nil
}

// EntryExists reports whether a ledger entry with the given reference has
// been committed. This is the single source of truth for "already credited".
func (s *Service) EntryExists(reference string) bool {
	_, err := s.store.EntryByReference(reference)
	return err == nil
}

func (s *Service) Store() ledger.Store {
	return s.store
}
