package ledger

import (
	"time"

	"github.com/google/uuid"
)

type Wallet struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	WalletNumber string    `gorm:"uniqueIndex;not null" json:"wallet_number"`
	Balance      int64     `gorm:"not null;default:0" json:"balance"`
	Currency     string    `gorm:"not null;default:NGN" json:"currency"`
	PinHash      string    `json:"-"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type EntryType string

const (
	EntryDeposit              EntryType = "DEPOSIT"
	EntryBillPayment          EntryType = "BILL_PAYMENT"
	EntryGiftCard             EntryType = "GIFT_CARD"
	EntryRefund               EntryType = "REFUND"
	EntryTransferOut          EntryType = "TRANSFER_OUT"
	EntryTransferIn           EntryType = "TRANSFER_IN"
	EntryVirtualAccountCredit EntryType = "VIRTUAL_ACCOUNT_CREDIT"
)

type EntryStatus string

const (
	EntryCompleted EntryStatus = "COMPLETED"
	EntryFailed    EntryStatus = "FAILED"
)

// Entry is one immutable balance mutation. Amount is signed kobo: positive
// for credits, negative for debits. Reference is the idempotency key for the
// logical operation that produced it.
type Entry struct {
	ID           uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID       uuid.UUID   `gorm:"type:uuid;index;not null" json:"user_id"`
	Type         EntryType   `gorm:"not null" json:"type"`
	Amount       int64       `gorm:"not null" json:"amount"`
	Reference    string      `gorm:"uniqueIndex;not null" json:"reference"`
	Status       EntryStatus `gorm:"not null" json:"status"`
	BalanceAfter int64       `gorm:"not null" json:"balance_after"`
	Metadata     string      `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
