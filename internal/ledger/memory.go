package ledger

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu      sync.Mutex
	wallets map[string]*Wallet
	entries map[string]*Entry // keyed by reference
}

// NewMemoryStore creates a concurrency-safe in-memory ledger store used by
// unit tests and local development.
func NewMemoryStore() Store {
	return &memoryStore{
		wallets: make(map[string]*Wallet),
		entries: make(map[string]*Entry),
	}
}

func (s *memoryStore) Balance(userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.ensureWalletLocked(userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (s *memoryStore) ApplyEntry(userID string, amount int64, entryType EntryType, reference string, metadata string) (*Entry, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if reference == "" {
		return nil, fmt.Errorf("reference is required")
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[reference]; ok {
		dup := *existing
		return &dup, ErrDuplicateReference
	}

	w, err := s.ensureWalletLocked(userID)
	if err != nil {
		return nil, err
	}

	if amount < 0 && w.Balance+amount < 0 {
		return nil, &InsufficientFundsError{Required: -amount, Available: w.Balance}
	}

	w.Balance += amount
	w.UpdatedAt = time.Now()

	entry := &Entry{
		ID:           uuid.New(),
		UserID:       uid,
		Type:         entryType,
		Amount:       amount,
		Reference:    reference,
		Status:       EntryCompleted,
		BalanceAfter: w.Balance,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}
	s.entries[reference] = entry

	applied := *entry
	return &applied, nil
}

func (s *memoryStore) WalletByUserID(userID string) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("wallet for user %s not found", userID)
	}
	cp := *w
	return &cp, nil
}

func (s *memoryStore) WalletByNumber(number string) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.WalletNumber == number {
			cp := *w
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("wallet %s not found", number)
}

func (s *memoryStore) SetPin(userID string, pinHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet for user %s not found", userID)
	}
	w.PinHash = pinHash
	return nil
}

func (s *memoryStore) EntryByReference(reference string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[reference]
	if !ok {
		return nil, fmt.Errorf("entry %s not found", reference)
	}
	cp := *e
	return &cp, nil
}

func (s *memoryStore) EntriesForUser(userID string, limit, offset int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	for _, e := range s.entries {
		if e.UserID.String() == userID {
			entries = append(entries, *e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if offset >= len(entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end], nil
}

func (s *memoryStore) CountEntries(userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, e := range s.entries {
		if e.UserID.String() == userID {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) SumEntries(userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, e := range s.entries {
		if e.UserID.String() == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (s *memoryStore) ensureWalletLocked(userID string) (*Wallet, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	w, ok := s.wallets[userID]
	if !ok {
		w = &Wallet{
			ID:           uuid.New(),
			UserID:       uid,
			WalletNumber: fmt.Sprintf("%010d", rand.Int63n(10000000000)),
			Balance:      0,
			Currency:     "NGN",
			Active:       true,
			CreatedAt:    time.Now(),
		}
		s.wallets[userID] = w
	}
	return w, nil
}
