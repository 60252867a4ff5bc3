package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sga-platform/sga-api/internal/models"
)

// Sentinel errors surfaced by the transactional enrollment insert so the
// service can map them to user-facing failures.
var (
	ErrQuotaExceeded       = errors.New("subject quota exceeded")
	ErrDuplicateEnrollment = errors.New("enrollment already exists for student and subject")
	ErrSubjectMissing      = errors.New("subject does not exist")
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

// EnrollmentRepository handles persistence of the enrollment ledger.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentDetailColumns = `e.id, e.student_id, e.subject_id, e.status, e.semester, e.grade, e.enrolled_at,
        s.name AS student_name, s.surname AS student_surname, s.dni AS student_dni,
        sub.name AS subject_name, c.name AS career_name`

const enrollmentDetailBase = `FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN subjects sub ON sub.id = e.subject_id
JOIN careers c ON c.id = s.career_id`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CareerID != "" {
		conditions = append(conditions, fmt.Sprintf("s.career_id = $%d", len(args)+1))
		args = append(args, filter.CareerID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("e.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.StudentDNI != "" {
		conditions = append(conditions, fmt.Sprintf("s.dni = $%d", len(args)+1))
		args = append(args, filter.StudentDNI)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.surname",
		"subject_name": "sub.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		enrollmentDetailColumns, enrollmentDetailBase+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", enrollmentDetailBase+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, subject_id, status, semester, grade, enrolled_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1", enrollmentDetailColumns, enrollmentDetailBase)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists checks whether any enrollment row, regardless of status, exists for
// the (student, subject) pair.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND subject_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create inserts a new ledger row, guarding the subject quota inside one
// transaction. The subject row is locked before the recount so two
// concurrent attempts at the last open seat serialise; the unique
// constraint on (student_id, subject_id) backs the duplicate check under
// the same race.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var quota int
	const lockQuery = `SELECT quota FROM subjects WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &quota, lockQuery, enrollment.SubjectID); err != nil {
		if err == sql.ErrNoRows {
			return ErrSubjectMissing
		}
		return fmt.Errorf("lock subject: %w", err)
	}

	var active int
	const countQuery = `SELECT COUNT(*) FROM enrollments WHERE subject_id = $1 AND status = $2`
	if err = tx.GetContext(ctx, &active, countQuery, enrollment.SubjectID, models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("count active enrollments: %w", err)
	}
	if active >= quota {
		return ErrQuotaExceeded
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	if enrollment.Semester == "" {
		enrollment.Semester = models.SemesterAt(enrollment.EnrolledAt)
	}
	const insertQuery = `INSERT INTO enrollments (id, student_id, subject_id, status, semester, grade, enrolled_at)
        VALUES (:id, :student_id, :subject_id, :status, :semester, :grade, :enrolled_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("create enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// UpdateStatus transitions an enrollment and optionally records a grade.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, grade *float64) error {
	const query = `UPDATE enrollments SET status = $2, grade = COALESCE($3, grade) WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, grade); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// ListCurrentByStudent returns the student's active and regular enrollments
// with subject context, ordered by subject name.
func (r *EnrollmentRepository) ListCurrentByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s
        WHERE e.student_id = $1 AND e.status IN ($2, $3)
        ORDER BY sub.name ASC`, enrollmentDetailColumns, enrollmentDetailBase)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusActive, models.EnrollmentStatusRegular); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListBySubject returns the full roster for a subject ordered by surname.
func (r *EnrollmentRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s
        WHERE e.subject_id = $1
        ORDER BY s.surname ASC, s.name ASC`, enrollmentDetailColumns, enrollmentDetailBase)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, subjectID); err != nil {
		return nil, fmt.Errorf("list subject roster: %w", err)
	}
	return enrollments, nil
}
