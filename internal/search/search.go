// Package search filters and paginates employee records held in memory.
package search

import (
	"strings"
	"time"

	"github.com/noah-isme/employee-records-api/internal/models"
)

// Page size bounds used when the caller configures none.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Normalize clamps page and limit into range and trims text predicates.
func Normalize(filter models.EmployeeFilter, defaultLimit, maxLimit int) models.EmployeeFilter {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	filter.ID = strings.TrimSpace(filter.ID)
	filter.FirstName = strings.TrimSpace(filter.FirstName)
	filter.LastName = strings.TrimSpace(filter.LastName)
	filter.LoginID = strings.TrimSpace(filter.LoginID)
	if filter.DOBStart != nil {
		start := models.TruncateDate(*filter.DOBStart)
		filter.DOBStart = &start
	}
	if filter.DOBEnd != nil {
		end := models.TruncateDate(*filter.DOBEnd)
		filter.DOBEnd = &end
	}
	return filter
}

// Apply returns the requested page of records matching every predicate in filter,
// together with the number of matches before paging. Input order is preserved.
// A non-positive limit returns every match.
func Apply(records []models.Employee, filter models.EmployeeFilter) ([]models.Employee, int) {
	m := newMatcher(filter)
	matched := make([]models.Employee, 0, len(records))
	for _, rec := range records {
		if m.match(rec) {
			matched = append(matched, rec)
		}
	}
	total := len(matched)
	if filter.Limit <= 0 {
		return matched, total
	}
	start, end := Window(filter.Page, filter.Limit, total)
	return matched[start:end], total
}

// Window returns the slice bounds of page within total items.
func Window(page, limit, total int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return 0, total
	}
	start := (page - 1) * limit
	if start >= total || start < 0 {
		return total, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

// Matches reports whether a single record satisfies filter.
func Matches(rec models.Employee, filter models.EmployeeFilter) bool {
	return newMatcher(filter).match(rec)
}

type matcher struct {
	id, first, last, login string
	department             models.Department
	dobStart, dobEnd       *time.Time
}

func newMatcher(filter models.EmployeeFilter) matcher {
	return matcher{
		id:         strings.ToLower(filter.ID),
		first:      strings.ToLower(filter.FirstName),
		last:       strings.ToLower(filter.LastName),
		login:      strings.ToLower(filter.LoginID),
		department: filter.Department,
		dobStart:   filter.DOBStart,
		dobEnd:     filter.DOBEnd,
	}
}

func (m matcher) match(rec models.Employee) bool {
	if !contains(rec.ID, m.id) || !contains(rec.FirstName, m.first) ||
		!contains(rec.LastName, m.last) || !contains(rec.LoginID, m.login) {
		return false
	}
	if m.department != "" && rec.Department != m.department {
		return false
	}
	if m.dobStart != nil || m.dobEnd != nil {
		dob := models.TruncateDate(rec.DateOfBirth)
		if m.dobStart != nil && dob.Before(models.TruncateDate(*m.dobStart)) {
			return false
		}
		if m.dobEnd != nil && dob.After(models.TruncateDate(*m.dobEnd)) {
			return false
		}
	}
	return true
}

// contains matches needle (already lower-cased) case-insensitively; an empty needle matches.
func contains(value, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), needle)
}
