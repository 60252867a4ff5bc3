package models

import (
	"fmt"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Only ACTIVE occupies a seat.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusRegular   EnrollmentStatus = "REGULAR"
	EnrollmentStatusApproved  EnrollmentStatus = "APPROVED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
	EnrollmentStatusAbsent    EnrollmentStatus = "ABSENT"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// Valid reports whether the status is one of the known values.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusRegular, EnrollmentStatusApproved,
		EnrollmentStatusFailed, EnrollmentStatusAbsent, EnrollmentStatusWithdrawn:
		return true
	}
	return false
}

// Withdrawable reports whether a student may drop an enrollment in this status.
func (s EnrollmentStatus) Withdrawable() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusRegular
}

// Enrollment captures a student's registration to a subject. Rows are never
// deleted; dropping transitions the status to WITHDRAWN.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SubjectID  string           `db:"subject_id" json:"subject_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Semester   string           `db:"semester" json:"semester"`
	Grade      *float64         `db:"grade" json:"grade,omitempty"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentDetail enriches Enrollment with student and subject context.
type EnrollmentDetail struct {
	Enrollment
	StudentName    string `db:"student_name" json:"student_name"`
	StudentSurname string `db:"student_surname" json:"student_surname"`
	StudentDNI     string `db:"student_dni" json:"student_dni"`
	SubjectName    string `db:"subject_name" json:"subject_name"`
	CareerName     string `db:"career_name" json:"career_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	CareerID   string
	SubjectID  string
	StudentID  string
	StudentDNI string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// AvailableSubject annotates a subject open for enrollment with live seat usage.
type AvailableSubject struct {
	Subject
	ActiveEnrollments int `db:"active_enrollments" json:"active_enrollments"`
}

// SemesterAt derives the academic semester label for a point in time.
// January through June map to the first semester, July through December to
// the second, yielding labels like "2026-1".
func SemesterAt(t time.Time) string {
	half := 1
	if t.Month() > time.June {
		half = 2
	}
	return fmt.Sprintf("%d-%d", t.Year(), half)
}
