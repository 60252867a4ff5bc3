package models

import "time"

// Role represents the available account roles.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// AccountStatus is the lifecycle state of an account. Accounts are never
// hard-deleted; suspension is the only mechanism that blocks login.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
)

// Account is the authenticable record paired one-to-one with a role profile.
type Account struct {
	ID                 string        `db:"id" json:"id"`
	Email              string        `db:"email" json:"email"`
	PasswordHash       string        `db:"password_hash" json:"-"`
	Role               Role          `db:"role" json:"role"`
	Status             AccountStatus `db:"status" json:"status"`
	MustChangePassword bool          `db:"must_change_password" json:"must_change_password"`
	LastLogin          *time.Time    `db:"last_login" json:"last_login,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// Active reports whether the account may log in.
func (a *Account) Active() bool {
	return a != nil && a.Status == AccountActive
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
