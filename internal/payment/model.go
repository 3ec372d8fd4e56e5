package payment

import (
	"time"

	"github.com/google/uuid"
)

const (
	GatewayPaystack = "paystack"
	GatewayMonnify  = "monnify"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Payment is one inbound funding attempt through a gateway checkout. Whether
// the wallet was credited is derived solely from the existence of a ledger
// entry with this reference; Status is informational and set after the fact.
type Payment struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Reference  string    `gorm:"uniqueIndex;not null" json:"reference"`
	Gateway    string    `gorm:"not null" json:"gateway"`
	GatewayRef string    `json:"gateway_ref,omitempty"`
	Amount     int64     `gorm:"not null" json:"amount"`
	Channel    string    `json:"channel,omitempty"`
	Status     Status    `gorm:"not null" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// VirtualAccount is a dedicated bank account number whose inbound transfers
// credit the owning user's wallet.
type VirtualAccount struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	AccountNumber string    `gorm:"uniqueIndex;not null" json:"account_number"`
	BankName      string    `gorm:"not null" json:"bank_name"`
	Provider      string    `gorm:"not null" json:"provider"`
	CreatedAt     time.Time `json:"created_at"`
}
