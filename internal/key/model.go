package key

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type APIKey struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null" json:"user_id"`
	Key         string         `gorm:"uniqueIndex;not null" json:"key"`
	MaskedKey   string         `json:"masked_key"`
	Permissions pq.StringArray `gorm:"type:text[]" json:"permissions"`
	Name        string         `json:"name"`
	ExpiresAt   time.Time      `json:"expires_at"`
	IsRevoked   bool           `gorm:"default:false" json:"is_revoked"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Permission string

const (
	// PermissionRead covers balance, history and status lookups.
	PermissionRead Permission = "READ"
	// PermissionFund covers deposits and virtual account creation.
	PermissionFund Permission = "FUND"
	// PermissionPurchase covers bill payments and gift card orders.
	PermissionPurchase Permission = "PURCHASE"
	// PermissionTransfer covers wallet-to-wallet transfers.
	PermissionTransfer Permission = "TRANSFER"
)

var AllowedPermissions = []Permission{
	PermissionRead,
	PermissionFund,
	PermissionPurchase,
	PermissionTransfer,
}

// HasPermission reports whether the key grants the given permission.
func (k *APIKey) HasPermission(perm Permission) bool {
	for _, p := range k.Permissions {
		if Permission(p) == perm {
			return true
		}
	}
	return false
}

// IsActive reports whether the key is usable right now.
func (k *APIKey) IsActive() bool {
	return !k.IsRevoked && time.Now().Before(k.ExpiresAt)
}
