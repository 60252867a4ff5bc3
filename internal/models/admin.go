package models

import "time"

// Admin is the administrative profile linked to an account.
type Admin struct {
	ID         string     `db:"id" json:"id"`
	AccountID  string     `db:"account_id" json:"account_id"`
	DNI        string     `db:"dni" json:"dni"`
	Name       string     `db:"name" json:"name"`
	Surname    string     `db:"surname" json:"surname"`
	Department *string    `db:"department" json:"department,omitempty"`
	HireDate   time.Time  `db:"hire_date" json:"hire_date"`
	Address    *string    `db:"address" json:"address,omitempty"`
	BirthDate  *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Phone      *string    `db:"phone" json:"phone,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// AdminDetail joins the admin profile with account context.
type AdminDetail struct {
	Admin
	Email         string        `db:"email" json:"email"`
	AccountStatus AccountStatus `db:"account_status" json:"account_status"`
}

// AdminFilter captures filtering options for listing admins.
type AdminFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
