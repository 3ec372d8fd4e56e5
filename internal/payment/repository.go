package payment

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	CreatePayment(p *Payment) error
	PaymentByReference(reference string) (*Payment, error)
	SetPaymentStatus(reference string, status Status, gatewayRef, channel string) error

	CreateVirtualAccount(va *VirtualAccount) error
	VirtualAccountByNumber(accountNumber string) (*VirtualAccount, error)
	VirtualAccountForUser(userID string) (*VirtualAccount, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePayment(p *Payment) error {
	return r.db.Create(p).Error
}

func (r *repository) PaymentByReference(reference string) (*Payment, error) {
	var p Payment
	if err := r.db.Where("reference = ?", reference).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) SetPaymentStatus(reference string, status Status, gatewayRef, channel string) error {
	updates := map[string]interface{}{"status": status}
	if gatewayRef != "" {
		updates["gateway_ref"] = gatewayRef
	}
	if channel != "" {
		updates["channel"] = channel
	}
	return r.db.Model(&Payment{}).
		Where("reference = ?", reference).
		Updates(updates).Error
}

func (r *repository) CreateVirtualAccount(va *VirtualAccount) error {
	return r.db.Create(va).Error
}

func (r *repository) VirtualAccountByNumber(accountNumber string) (*VirtualAccount, error) {
	var va VirtualAccount
	if err := r.db.Where("account_number = ?", accountNumber).First(&va).Error; err != nil {
		return nil, err
	}
	return &va, nil
}

func (r *repository) VirtualAccountForUser(userID string) (*VirtualAccount, error) {
	var va VirtualAccount
	if err := r.db.Where("user_id = ?", userID).First(&va).Error; err != nil {
		return nil, err
	}
	return &va, nil
}

type memoryRepository struct {
	mu       sync.Mutex
	payments map[string]*Payment
	accounts map[string]*VirtualAccount
}

// NewMemoryRepository creates an in-memory payment repository for unit tests
// and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		payments: make(map[string]*Payment),
		accounts: make(map[string]*VirtualAccount),
	}
}

func (r *memoryRepository) CreatePayment(p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[p.Reference]; exists {
		return fmt.Errorf("payment %s already exists", p.Reference)
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.payments[p.Reference] = &cp
	return nil
}

func (r *memoryRepository) PaymentByReference(reference string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[reference]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", reference)
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepository) SetPaymentStatus(reference string, status Status, gatewayRef, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[reference]
	if !ok {
		return fmt.Errorf("payment %s not found", reference)
	}
	p.Status = status
	if gatewayRef != "" {
		p.GatewayRef = gatewayRef
	}
	if channel != "" {
		p.Channel = channel
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepository) CreateVirtualAccount(va *VirtualAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[va.AccountNumber]; exists {
		return fmt.Errorf("virtual account %s already exists", va.AccountNumber)
	}
	va.CreatedAt = time.Now()
	cp := *va
	r.accounts[va.AccountNumber] = &cp
	return nil
}

func (r *memoryRepository) VirtualAccountByNumber(accountNumber string) (*VirtualAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	va, ok := r.accounts[accountNumber]
	if !ok {
		return nil, fmt.Errorf("virtual account %s not found", accountNumber)
	}
	cp := *va
	return &cp, nil
}

func (r *memoryRepository) VirtualAccountForUser(userID string) (*VirtualAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, va := range r.accounts {
		if va.UserID.String() == userID {
			cp := *va
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("virtual account for user %s not found", userID)
}
