package models

import "time"

// CareerStatus is the lifecycle state of a career. New careers start as
// drafts and must be explicitly activated once subjects are attached.
type CareerStatus string

const (
	CareerDraft    CareerStatus = "DRAFT"
	CareerActive   CareerStatus = "ACTIVE"
	CareerArchived CareerStatus = "ARCHIVED"
)

// Career represents a degree program owning a set of subjects.
type Career struct {
	ID          string       `db:"id" json:"id"`
	Name        string       `db:"name" json:"name"`
	Description *string      `db:"description" json:"description,omitempty"`
	Status      CareerStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// CareerDetail enriches a career with dependent counts.
type CareerDetail struct {
	Career
	SubjectCount int `db:"subject_count" json:"subject_count"`
	StudentCount int `db:"student_count" json:"student_count"`
}

// CareerFilter captures supported filters for listing careers.
type CareerFilter struct {
	Status    CareerStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
