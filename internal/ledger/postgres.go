package ledger

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns the Postgres-backed ledger store. The gorm config must
// have TranslateError enabled so unique violations surface as
// gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Balance(userID string) (int64, error) {
	w, err := s.ensureWallet(s.db, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (s *gormStore) ApplyEntry(userID string, amount int64, entryType EntryType, reference string, metadata string) (*Entry, error) {
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

	var applied Entry
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ensureWallet(tx, userID); err != nil {
			return err
		}

		// Fast-path duplicate check. The unique index on reference is the
		// real guard; this avoids burning a balance update on replays.
		var existing Entry
		if err := tx.Where("reference = ?", reference).First(&existing).Error; err == nil {
			applied = existing
			return ErrDuplicateReference
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if amount < 0 {
			res := tx.Model(&Wallet{}).
				Where("user_id = ? AND balance >= ?", uid, -amount).
				UpdateColumn("balance", gorm.Expr("balance + ?", amount))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// re-read so the error reports the balance that rejected the
				// debit, not the one from the top of the transaction
				var current Wallet
				if err := tx.Where("user_id = ?", uid).First(&current).Error; err != nil {
					return err
				}
				return &InsufficientFundsError{Required: -amount, Available: current.Balance}
			}
		} else {
			if err := tx.Model(&Wallet{}).
				Where("user_id = ?", uid).
				UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
				return err
			}
		}

		var updated Wallet
		if err := tx.Where("user_id = ?", uid).First(&updated).Error; err != nil {
			return err
		}

		entry := Entry{
			UserID:       uid,
			Type:         entryType,
			Amount:       amount,
			Reference:    reference,
			Status:       EntryCompleted,
			BalanceAfter: updated.Balance,
			Metadata:     metadata,
		}
		if err := tx.Create(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost the race to another writer with the same reference.
				// The rollback undoes our balance update.
				return ErrDuplicateReference
			}
			return err
		}

		applied = entry
		return nil
	})

	if errors.Is(txErr, ErrDuplicateReference) {
		if applied.ID == uuid.Nil {
			var existing Entry
			if err := s.db.Where("reference = ?", reference).First(&existing).Error; err != nil {
				return nil, fmt.Errorf("duplicate reference %s but entry not readable: %w", reference, err)
			}
			applied = existing
		}
		return &applied, ErrDuplicateReference
	}
	if txErr != nil {
		return nil, txErr
	}
	return &applied, nil
}

func (s *gormStore) WalletByUserID(userID string) (*Wallet, error) {
	var w Wallet
	if err := s.db.Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *gormStore) WalletByNumber(number string) (*Wallet, error) {
	var w Wallet
	if err := s.db.Where("wallet_number = ?", number).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *gormStore) SetPin(userID string, pinHash string) error {
	return s.db.Model(&Wallet{}).
		Where("user_id = ?", userID).
		Update("pin_hash", pinHash).Error
}

func (s *gormStore) EntryByReference(reference string) (*Entry, error) {
	var e Entry
	if err := s.db.Where("reference = ?", reference).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *gormStore) EntriesForUser(userID string, limit, offset int) ([]Entry, error) {
	var entries []Entry
	err := s.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}

func (s *gormStore) CountEntries(userID string) (int64, error) {
	var count int64
	err := s.db.Model(&Entry{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (s *gormStore) SumEntries(userID string) (int64, error) {
	var sum int64
	err := s.db.Model(&Entry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (s *gormStore) ensureWallet(db *gorm.DB, userID string) (*Wallet, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	var w Wallet
	err = db.Where("user_id = ?", uid).First(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	w = Wallet{
		UserID:       uid,
		WalletNumber: generateWalletNumber(),
		Balance:      0,
		Currency:     "NGN",
		Active:       true,
	}
	if err := db.Create(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// concurrent provisioning, re-read the winner
			var won Wallet
			if err := db.Where("user_id = ?", uid).First(&won).Error; err != nil {
				return nil, err
			}
			return &won, nil
		}
		return nil, err
	}
	return &w, nil
}

func generateWalletNumber() string {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return fmt.Sprintf("%010d", r.Int63n(10000000000))
}
