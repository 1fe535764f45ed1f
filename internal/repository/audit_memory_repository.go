package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/employee-records-api/internal/models"
)

const defaultAuditCapacity = 1000

// AuditMemoryRepository keeps the most recent audit entries in a bounded buffer.
type AuditMemoryRepository struct {
	mu       sync.RWMutex
	entries  []models.AuditLog
	capacity int
}

// NewAuditMemoryRepository constructs the repository. Non-positive capacity uses the default.
func NewAuditMemoryRepository(capacity int) *AuditMemoryRepository {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &AuditMemoryRepository{capacity: capacity}
}

// CreateAuditLog appends an entry, evicting the oldest once full.
func (r *AuditMemoryRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	entry := *log
	if log.NewValues != nil {
		entry.NewValues = append([]byte(nil), log.NewValues...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if overflow := len(r.entries) - r.capacity; overflow > 0 {
		r.entries = append(r.entries[:0:0], r.entries[overflow:]...)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (r *AuditMemoryRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.AuditLog, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.Resource != "" && entry.Resource != filter.Resource {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
