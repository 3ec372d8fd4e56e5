package ledger

// Store is the single chokepoint for wallet balance mutations. Every write
// goes through ApplyEntry; nothing else may touch the balance column.
type Store interface {
	// Balance returns the current balance, provisioning a zero-balance wallet
	// if the user has none yet.
	Balance(userID string) (int64, error)

	// ApplyEntry atomically checks reference uniqueness, applies the signed
	// amount to the balance (rejecting debits that would go negative) and
	// inserts the entry. On ErrDuplicateReference the existing entry is
	// returned alongside the error.
	ApplyEntry(userID string, amount int64, entryType EntryType, reference string, metadata string) (*Entry, error)

	WalletByUserID(userID string) (*Wallet, error)
	WalletByNumber(number string) (*Wallet, error)
	SetPin(userID string, pinHash string) error

	EntryByReference(reference string) (*Entry, error)
	EntriesForUser(userID string, limit, offset int) ([]Entry, error)
	CountEntries(userID string) (int64, error)

	// SumEntries returns the sum of all entry amounts for a user, used by
	// audit checks against the wallet balance.
	SumEntries(userID string) (int64, error)
}
