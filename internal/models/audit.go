package models

import (
	"encoding/json"
	"time"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLoginFailed    = "LOGIN_FAILED"
	AuditActionLogout         = "LOGOUT"
	AuditActionEmployeeCreate = "EMPLOYEE_CREATE"
	AuditActionEmployeeUpdate = "EMPLOYEE_UPDATE"
	AuditActionEmployeeDelete = "EMPLOYEE_DELETE"
	AuditActionEmployeeExport = "EMPLOYEE_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor,omitempty"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id,omitempty"`
	NewValues  json.RawMessage `json:"new_values,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	Action   string
	Resource string
	Limit    int
}
