package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/employee-records-api/internal/models"
)

// CreateEmployeeRequest carries the fields submitted when adding an employee.
// The identity document travels separately as a multipart file.
type CreateEmployeeRequest struct {
	FirstName        string            `form:"first_name" json:"first_name" validate:"required,max=100"`
	MiddleName       string            `form:"middle_name" json:"middle_name" validate:"max=100"`
	LastName         string            `form:"last_name" json:"last_name" validate:"required,max=100"`
	DateOfBirth      string            `form:"date_of_birth" json:"date_of_birth" validate:"required"`
	Department       models.Department `form:"department" json:"department" validate:"required,oneof=Engineering Support HR Finance"`
	Salary           decimal.Decimal   `form:"salary" json:"salary" validate:"required,gt=0"`
	PermanentAddress string            `form:"permanent_address" json:"permanent_address" validate:"required,max=500"`
	CurrentAddress   string            `form:"current_address" json:"current_address" validate:"required,max=500"`
	// SameAddress copies the permanent address into the current address.
	SameAddress bool `form:"same_address" json:"same_address"`
}

// Normalize trims text fields and applies the same-address shortcut.
func (r *CreateEmployeeRequest) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.MiddleName = strings.TrimSpace(r.MiddleName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.DateOfBirth = strings.TrimSpace(r.DateOfBirth)
	r.Department = models.Department(strings.TrimSpace(string(r.Department)))
	r.PermanentAddress = strings.TrimSpace(r.PermanentAddress)
	r.CurrentAddress = strings.TrimSpace(r.CurrentAddress)
	if r.SameAddress {
		r.CurrentAddress = r.PermanentAddress
	}
}

// UpdateEmployeeRequest carries a partial update. Nil fields are left unchanged.
// Identifier and login handle are not part of the payload and cannot be changed.
type UpdateEmployeeRequest struct {
	FirstName        *string            `form:"first_name" json:"first_name"`
	MiddleName       *string            `form:"middle_name" json:"middle_name"`
	LastName         *string            `form:"last_name" json:"last_name"`
	DateOfBirth      *string            `form:"date_of_birth" json:"date_of_birth"`
	Department       *models.Department `form:"department" json:"department"`
	Salary           *decimal.Decimal   `form:"salary" json:"salary"`
	PermanentAddress *string            `form:"permanent_address" json:"permanent_address"`
	CurrentAddress   *string            `form:"current_address" json:"current_address"`
	SameAddress      bool               `form:"same_address" json:"same_address"`
}

// Apply overlays the provided fields onto a full request built from the stored record.
func (u UpdateEmployeeRequest) Apply(base CreateEmployeeRequest) CreateEmployeeRequest {
	if u.FirstName != nil {
		base.FirstName = *u.FirstName
	}
	if u.MiddleName != nil {
		base.MiddleName = *u.MiddleName
	}
	if u.LastName != nil {
		base.LastName = *u.LastName
	}
	if u.DateOfBirth != nil {
		base.DateOfBirth = *u.DateOfBirth
	}
	if u.Department != nil {
		base.Department = *u.Department
	}
	if u.Salary != nil {
		base.Salary = *u.Salary
	}
	if u.PermanentAddress != nil {
		base.PermanentAddress = *u.PermanentAddress
	}
	if u.CurrentAddress != nil {
		base.CurrentAddress = *u.CurrentAddress
	}
	base.SameAddress = u.SameAddress
	return base
}

// Fields lists the JSON names of the provided fields.
func (u UpdateEmployeeRequest) Fields() []string {
	fields := make([]string, 0, 9)
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(u.FirstName != nil, "first_name")
	add(u.MiddleName != nil, "middle_name")
	add(u.LastName != nil, "last_name")
	add(u.DateOfBirth != nil, "date_of_birth")
	add(u.Department != nil, "department")
	add(u.Salary != nil, "salary")
	add(u.PermanentAddress != nil, "permanent_address")
	add(u.CurrentAddress != nil || u.SameAddress, "current_address")
	return fields
}

// BulkDeleteRequest lists identifiers to delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

// BulkDeleteResponse summarises a bulk delete.
type BulkDeleteResponse struct {
	Results []models.BulkDeleteResult `json:"results"`
	Deleted int                       `json:"deleted"`
	Failed  int                       `json:"failed"`
}

// DocumentLinkResponse exposes a retrievable link for an identity document.
type DocumentLinkResponse struct {
	models.Document
	EmployeeID string     `json:"employee_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
