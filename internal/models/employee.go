package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical wire format for calendar dates.
const DateLayout = "2006-01-02"

// Department is the closed set of organisational units.
type Department string

const (
	DepartmentEngineering Department = "Engineering"
	DepartmentSupport     Department = "Support"
	DepartmentHR          Department = "HR"
	DepartmentFinance     Department = "Finance"
)

// Departments lists every valid department in display order.
var Departments = []Department{DepartmentEngineering, DepartmentSupport, DepartmentHR, DepartmentFinance}

// Valid reports whether d is one of the enumerated departments.
func (d Department) Valid() bool {
	for _, candidate := range Departments {
		if d == candidate {
			return true
		}
	}
	return false
}

// Document references a stored identity document.
type Document struct {
	Key        string    `json:"-"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	URL        string    `json:"url,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Static reports whether the document points at an external URL rather than a stored blob.
func (d *Document) Static() bool {
	return d != nil && d.Key == "" && d.URL != ""
}

// Employee is a single employee record.
type Employee struct {
	ID               string          `json:"id"`
	FirstName        string          `json:"first_name"`
	MiddleName       string          `json:"middle_name,omitempty"`
	LastName         string          `json:"last_name"`
	LoginID          string          `json:"login_id"`
	DateOfBirth      time.Time       `json:"date_of_birth"`
	Department       Department      `json:"department"`
	Salary           decimal.Decimal `json:"salary"`
	PermanentAddress string          `json:"permanent_address"`
	CurrentAddress   string          `json:"current_address"`
	Document         *Document       `json:"document,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// FullName joins the name parts, skipping an empty middle name.
func (e Employee) FullName() string {
	parts := []string{e.FirstName, e.MiddleName, e.LastName}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// Clone returns a deep copy so callers never share the document pointer.
func (e Employee) Clone() Employee {
	if e.Document != nil {
		doc := *e.Document
		e.Document = &doc
	}
	return e
}

// EmployeeFilter captures search predicates and the requested page window.
type EmployeeFilter struct {
	ID         string
	FirstName  string
	LastName   string
	LoginID    string
	Department Department
	DOBStart   *time.Time
	DOBEnd     *time.Time
	Page       int
	Limit      int
}

// BulkDeleteResult reports the outcome of deleting one identifier.
type BulkDeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// TruncateDate drops the time-of-day component, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts the canonical layout and the "02-Jan-2006" display layout.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(DateLayout, raw)
	if err == nil {
		return t, nil
	}
	if alt, altErr := time.Parse("02-Jan-2006", raw); altErr == nil {
		return alt, nil
	}
	return time.Time{}, err
}
