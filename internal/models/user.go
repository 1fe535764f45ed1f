package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleUser  UserRole = "USER"
)

// RoleFor maps the admin flag onto a role.
func RoleFor(isAdmin bool) UserRole {
	if isAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// User is a login known to the credential store.
type User struct {
	Username     string
	PasswordHash string
	IsAdmin      bool
}

// Principal describes the authenticated identity. It never carries a password.
type Principal struct {
	Username string   `json:"username"`
	IsAdmin  bool     `json:"is_admin"`
	Role     UserRole `json:"role"`
}

// Pagination describes a page window over a filtered result set.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}
