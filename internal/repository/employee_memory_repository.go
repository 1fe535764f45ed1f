package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/employee-records-api/internal/models"
	"github.com/noah-isme/employee-records-api/internal/search"
)

// EmployeeMemoryRepository keeps employee records in insertion order in process memory.
type EmployeeMemoryRepository struct {
	mu      sync.RWMutex
	records []models.Employee
	ids     map[string]int
	logins  map[string]struct{}
	now     func() time.Time
}

// NewEmployeeMemoryRepository constructs an empty store.
func NewEmployeeMemoryRepository() *EmployeeMemoryRepository {
	return &EmployeeMemoryRepository{
		ids:    make(map[string]int),
		logins: make(map[string]struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *EmployeeMemoryRepository) stamp() time.Time {
	return r.now().Truncate(time.Microsecond)
}

// Create appends a copy of employee, stamping both timestamps.
func (r *EmployeeMemoryRepository) Create(ctx context.Context, employee *models.Employee) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[employee.ID]; ok {
		return fmt.Errorf("create employee %s: %w", employee.ID, ErrDuplicateKey)
	}
	if _, ok := r.logins[employee.LoginID]; ok {
		return fmt.Errorf("create employee login %s: %w", employee.LoginID, ErrDuplicateKey)
	}

	now := r.stamp()
	employee.CreatedAt = now
	employee.UpdatedAt = now

	r.ids[employee.ID] = len(r.records)
	r.logins[employee.LoginID] = struct{}{}
	r.records = append(r.records, employee.Clone())
	return nil
}

// Update replaces the mutable fields of an existing record in place.
// Identifier, login and creation time always come from the stored record.
func (r *EmployeeMemoryRepository) Update(ctx context.Context, employee *models.Employee) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.ids[employee.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored := r.records[idx]

	now := r.stamp()
	if !now.After(stored.UpdatedAt) {
		now = stored.UpdatedAt.Add(time.Microsecond)
	}
	employee.LoginID = stored.LoginID
	employee.CreatedAt = stored.CreatedAt
	employee.UpdatedAt = now

	r.records[idx] = employee.Clone()
	return nil
}

// Delete removes the record with id.
func (r *EmployeeMemoryRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.ids[id]
	if !ok {
		return sql.ErrNoRows
	}
	removed := r.records[idx]
	r.records = append(r.records[:idx], r.records[idx+1:]...)
	delete(r.ids, id)
	delete(r.logins, removed.LoginID)
	for i := idx; i < len(r.records); i++ {
		r.ids[r.records[i].ID] = i
	}
	return nil
}

// FindByID returns a copy of the record with id.
func (r *EmployeeMemoryRepository) FindByID(ctx context.Context, id string) (*models.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.ids[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	rec := r.records[idx].Clone()
	return &rec, nil
}

// Search filters and pages a snapshot of the collection.
func (r *EmployeeMemoryRepository) Search(ctx context.Context, filter models.EmployeeFilter) ([]models.Employee, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	page, total := search.Apply(r.snapshot(), filter)
	return page, total, nil
}

// ListIdentifiers returns every stored identifier in insertion order.
func (r *EmployeeMemoryRepository) ListIdentifiers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.records))
	for i, rec := range r.records {
		ids[i] = rec.ID
	}
	return ids, nil
}

// LoginExists reports whether login is already assigned.
func (r *EmployeeMemoryRepository) LoginExists(ctx context.Context, login string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.logins[login]
	return ok, nil
}

// Count returns the number of stored records.
func (r *EmployeeMemoryRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

func (r *EmployeeMemoryRepository) snapshot() []models.Employee {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Employee, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Clone()
	}
	return out
}
