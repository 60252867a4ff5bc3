package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sga-platform/sga-api/internal/models"
)

// SubjectRepository manages persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

const subjectDetailColumns = `sub.id, sub.name, sub.teacher_id, sub.quota, sub.description, sub.created_at, sub.updated_at,
        CASE WHEN t.id IS NULL THEN NULL ELSE t.surname || ', ' || t.name END AS teacher_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.subject_id = sub.id AND e.status = 'ACTIVE') AS active_enrollments`

// List returns subjects filtered by the provided criteria.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	base := `FROM subjects sub LEFT JOIN teachers t ON t.id = sub.teacher_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.CareerID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM career_subjects cs WHERE cs.subject_id = sub.id AND cs.career_id = $%d)", len(args)+1))
		args = append(args, filter.CareerID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("sub.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(sub.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"name":       "sub.name",
		"quota":      "sub.quota",
		"created_at": "sub.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "sub.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", subjectDetailColumns, base, column, order, size, offset)

	var subjects []models.SubjectDetail
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// FindByID returns a subject with teacher and seat-usage context.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM subjects sub LEFT JOIN teachers t ON t.id = sub.teacher_id WHERE sub.id = $1`, subjectDetailColumns)
	var detail models.SubjectDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// NameInUse checks case-insensitive name uniqueness, optionally excluding a row.
func (r *SubjectRepository) NameInUse(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM subjects WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check subject name: %w", err)
	}
	return true, nil
}

// Create inserts a new subject record.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, name, teacher_id, quota, description, created_at, updated_at)
        VALUES (:id, :name, :teacher_id, :quota, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update modifies an existing subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET name = :name, teacher_id = :teacher_id, quota = :quota, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// HasEnrollments reports whether any enrollment row references the subject.
func (r *SubjectRepository) HasEnrollments(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE subject_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check subject history: %w", err)
	}
	return true, nil
}

// Delete removes the subject together with its career associations in one
// transaction. Callers must have verified the subject has no enrollment
// history first.
func (r *SubjectRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin subject delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM career_subjects WHERE subject_id = $1`, id); err != nil {
		return fmt.Errorf("delete subject associations: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit subject delete: %w", err)
	}
	return nil
}

// ListAvailableForStudent returns the subjects of a career the student has no
// enrollment for, annotated with active seat usage and ordered by name.
func (r *SubjectRepository) ListAvailableForStudent(ctx context.Context, careerID, studentID string) ([]models.AvailableSubject, error) {
	const query = `SELECT sub.id, sub.name, sub.teacher_id, sub.quota, sub.description, sub.created_at, sub.updated_at,
        (SELECT COUNT(*) FROM enrollments e WHERE e.subject_id = sub.id AND e.status = 'ACTIVE') AS active_enrollments
        FROM subjects sub
        JOIN career_subjects cs ON cs.subject_id = sub.id AND cs.career_id = $1
        WHERE NOT EXISTS (SELECT 1 FROM enrollments e WHERE e.subject_id = sub.id AND e.student_id = $2)
        ORDER BY sub.name ASC`
	var subjects []models.AvailableSubject
	if err := r.db.SelectContext(ctx, &subjects, query, careerID, studentID); err != nil {
		return nil, fmt.Errorf("list available subjects: %w", err)
	}
	return subjects, nil
}
