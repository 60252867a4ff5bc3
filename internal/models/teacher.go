package models

import "time"

// AcademicDegree enumerates recognised teacher degrees.
type AcademicDegree string

const (
	DegreeGraduate AcademicDegree = "GRADUATE"
	DegreeEngineer AcademicDegree = "ENGINEER"
	DegreeMaster   AcademicDegree = "MASTER"
	DegreeDoctor   AcademicDegree = "DOCTOR"
	DegreeTeacher  AcademicDegree = "TEACHER"
)

// Teacher is the instructor profile linked to an account.
type Teacher struct {
	ID             string         `db:"id" json:"id"`
	AccountID      string         `db:"account_id" json:"account_id"`
	DNI            string         `db:"dni" json:"dni"`
	Name           string         `db:"name" json:"name"`
	Surname        string         `db:"surname" json:"surname"`
	AcademicDegree AcademicDegree `db:"academic_degree" json:"academic_degree"`
	HireDate       time.Time      `db:"hire_date" json:"hire_date"`
	Address        *string        `db:"address" json:"address,omitempty"`
	BirthDate      *time.Time     `db:"birth_date" json:"birth_date,omitempty"`
	Phone          *string        `db:"phone" json:"phone,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherDetail joins the teacher profile with account context.
type TeacherDetail struct {
	Teacher
	Email         string        `db:"email" json:"email"`
	AccountStatus AccountStatus `db:"account_status" json:"account_status"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search        string
	AccountStatus AccountStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
