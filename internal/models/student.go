package models

import "time"

// Student is the learner profile linked to an account and a career.
type Student struct {
	ID        string     `db:"id" json:"id"`
	AccountID string     `db:"account_id" json:"account_id"`
	CareerID  string     `db:"career_id" json:"career_id"`
	DNI       string     `db:"dni" json:"dni"`
	Name      string     `db:"name" json:"name"`
	Surname   string     `db:"surname" json:"surname"`
	Address   *string    `db:"address" json:"address,omitempty"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Phone     *string    `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentDetail joins the student profile with account and career context.
type StudentDetail struct {
	Student
	Email         string        `db:"email" json:"email"`
	AccountStatus AccountStatus `db:"account_status" json:"account_status"`
	CareerName    string        `db:"career_name" json:"career_name"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	CareerID      string
	Search        string
	AccountStatus AccountStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
