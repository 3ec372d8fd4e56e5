package purchase

import (
	"time"

	"github.com/google/uuid"
)

type Product string

const (
	ProductAirtime     Product = "AIRTIME"
	ProductData        Product = "DATA"
	ProductTV          Product = "TV"
	ProductElectricity Product = "ELECTRICITY"
	ProductInsurance   Product = "INSURANCE"
	ProductSMS         Product = "SMS"
	ProductGiftCard    Product = "GIFT_CARD"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Record is one purchase attempt, paired 1:1 with the debit ledger entry
// sharing its reference. A failed record with the Refunded flag set has a
// paired refund entry under "refund-<reference>".
type Record struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Reference    string    `gorm:"uniqueIndex;not null" json:"reference"`
	Product      Product   `gorm:"not null" json:"product"`
	ServiceID    string    `gorm:"not null" json:"service_id"`
	CustomerRef  string    `gorm:"not null" json:"customer_ref"`
	Amount       int64     `gorm:"not null" json:"amount"`
	Status       Status    `gorm:"not null;index" json:"status"`
	ProviderRef  string    `json:"provider_ref,omitempty"`
	ResponseData string    `gorm:"type:text" json:"-"`
	CardDetails  string    `gorm:"type:text" json:"card_details,omitempty"`
	FailReason   string    `json:"fail_reason,omitempty"`
	Refunded     bool      `gorm:"not null;default:false" json:"refunded"`
	Attempts     int       `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
