package models

import "time"

// Subject represents a course offered within one or more careers.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	TeacherID   *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	Quota       int       `db:"quota" json:"quota"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectDetail enriches a subject with the assigned teacher and live seat usage.
type SubjectDetail struct {
	Subject
	TeacherName       *string `db:"teacher_name" json:"teacher_name,omitempty"`
	ActiveEnrollments int     `db:"active_enrollments" json:"active_enrollments"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	CareerID  string
	TeacherID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
