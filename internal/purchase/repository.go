package purchase

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(rec *Record) error
	ByReference(reference string) (*Record, error)
	ForUser(userID string, limit, offset int) ([]Record, error)
	CountForUser(userID string) (int64, error)

	MarkProcessing(reference string) error
	Complete(reference, providerRef, responseData string) error
	Fail(reference, reason string, refunded bool) error
	SetCardDetails(reference, details string) error

	// StaleProcessing returns processing records last touched before the
	// cutoff, bumping their attempt counter.
	StaleProcessing(cutoff time.Time, limit int) ([]Record, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(rec *Record) error {
	return r.db.Create(rec).Error
}

func (r *repository) ByReference(reference string) (*Record, error) {
	var rec Record
	if err := r.db.Where("reference = ?", reference).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repository) ForUser(userID string, limit, offset int) ([]Record, error) {
	var recs []Record
	err := r.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	return recs, err
}

func (r *repository) CountForUser(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&Record{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *repository) MarkProcessing(reference string) error {
	return r.db.Model(&Record{}).
		Where("reference = ?", reference).
		Update("status", StatusProcessing).Error
}

func (r *repository) Complete(reference, providerRef, responseData string) error {
	return r.db.Model(&Record{}).
		Where("reference = ?", reference).
		Updates(map[string]interface{}{
			"status":        StatusCompleted,
			"provider_ref":  providerRef,
			"response_data": responseData,
		}).Error
}

func (r *repository) Fail(reference, reason string, refunded bool) error {
	return r.db.Model(&Record{}).
		Where("reference = ?", reference).
		Updates(map[string]interface{}{
			"status":      StatusFailed,
			"fail_reason": reason,
			"refunded":    refunded,
		}).Error
}

func (r *repository) SetCardDetails(reference, details string) error {
	return r.db.Model(&Record{}).
		Where("reference = ?", reference).
		Update("card_details", details).Error
}

func (r *repository) StaleProcessing(cutoff time.Time, limit int) ([]Record, error) {
	var recs []Record
	err := r.db.Where("status = ? AND updated_at < ?", StatusProcessing, cutoff).
		Order("updated_at asc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(recs))
	for _, rec := range recs {
		refs = append(refs, rec.Reference)
	}
	if len(refs) > 0 {
		if err := r.db.Model(&Record{}).
			Where("reference IN ?", refs).
			UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			return nil, err
		}
	}
	return recs, nil
}

type memoryRepository struct {
	mu      sync.Mutex
	records map[string]*Record // keyed by reference
}

// NewMemoryRepository creates an in-memory purchase repository for unit tests
// and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]*Record)}
}

func (r *memoryRepository) Create(rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.Reference]; exists {
		return fmt.Errorf("record %s already exists", rec.Reference)
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	cp := *rec
	r.records[rec.Reference] = &cp
	return nil
}

func (r *memoryRepository) ByReference(reference string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[reference]
	if !ok {
		return nil, fmt.Errorf("record %s not found", reference)
	}
	cp := *rec
	return &cp, nil
}

func (r *memoryRepository) ForUser(userID string, limit, offset int) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recs []Record
	for _, rec := range r.records {
		if rec.UserID.String() == userID {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	if offset >= len(recs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(recs) {
		end = len(recs)
	}
	return recs[offset:end], nil
}

func (r *memoryRepository) CountForUser(userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, rec := range r.records {
		if rec.UserID.String() == userID {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepository) MarkProcessing(reference string) error {
	return r.update(reference, func(rec *Record) {
		rec.Status = StatusProcessing
	})
}

func (r *memoryRepository) Complete(reference, providerRef, responseData string) error {
	return r.update(reference, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.ProviderRef = providerRef
		rec.ResponseData = responseData
	})
}

func (r *memoryRepository) Fail(reference, reason string, refunded bool) error {
	return r.update(reference, func(rec *Record) {
		rec.Status = StatusFailed
		rec.FailReason = reason
		rec.Refunded = refunded
	})
}

func (r *memoryRepository) SetCardDetails(reference, details string) error {
	return r.update(reference, func(rec *Record) {
		rec.CardDetails = details
	})
}

func (r *memoryRepository) StaleProcessing(cutoff time.Time, limit int) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recs []Record
	for _, rec := range r.records {
		if rec.Status == StatusProcessing && rec.UpdatedAt.Before(cutoff) {
			rec.Attempts++
			recs = append(recs, *rec)
			if len(recs) >= limit {
				break
			}
		}
	}
	return recs, nil
}

func (r *memoryRepository) update(reference string, fn func(*Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[reference]
	if !ok {
		return fmt.Errorf("record %s not found", reference)
	}
	fn(rec)
	rec.UpdatedAt = time.Now()
	return nil
}
