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

// CareerRepository handles persistence of careers and their subject set.
type CareerRepository struct {
	db *sqlx.DB
}

// NewCareerRepository constructs the repository.
func NewCareerRepository(db *sqlx.DB) *CareerRepository {
	return &CareerRepository{db: db}
}

const careerDetailColumns = `c.id, c.name, c.description, c.status, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM career_subjects cs WHERE cs.career_id = c.id) AS subject_count,
        (SELECT COUNT(*) FROM students s WHERE s.career_id = c.id) AS student_count`

// List returns careers filtered by the provided criteria.
func (r *CareerRepository) List(ctx context.Context, filter models.CareerFilter) ([]models.CareerDetail, int, error) {
	base := `FROM careers c`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(c.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"name":       "c.name",
		"created_at": "c.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "c.name"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", careerDetailColumns, base, column, order, size, offset)

	var careers []models.CareerDetail
	if err := r.db.SelectContext(ctx, &careers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list careers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count careers: %w", err)
	}
	return careers, total, nil
}

// FindByID returns a career with dependent counts.
func (r *CareerRepository) FindByID(ctx context.Context, id string) (*models.CareerDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM careers c WHERE c.id = $1`, careerDetailColumns)
	var detail models.CareerDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// NameInUse checks case-insensitive name uniqueness, optionally excluding a row.
func (r *CareerRepository) NameInUse(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM careers WHERE LOWER(name) = LOWER($1)"
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
		return false, fmt.Errorf("check career name: %w", err)
	}
	return true, nil
}

// Create inserts a new career record.
func (r *CareerRepository) Create(ctx context.Context, career *models.Career) error {
	if career.ID == "" {
		career.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	career.CreatedAt = now
	career.UpdatedAt = now
	if career.Status == "" {
		career.Status = models.CareerDraft
	}
	const query = `INSERT INTO careers (id, name, description, status, created_at, updated_at)
        VALUES (:id, :name, :description, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, career); err != nil {
		return fmt.Errorf("create career: %w", err)
	}
	return nil
}

// Update modifies an existing career.
func (r *CareerRepository) Update(ctx context.Context, career *models.Career) error {
	career.UpdatedAt = time.Now().UTC()
	const query = `UPDATE careers SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, career); err != nil {
		return fmt.Errorf("update career: %w", err)
	}
	return nil
}

// SetStatus transitions the career lifecycle state.
func (r *CareerRepository) SetStatus(ctx context.Context, id string, status models.CareerStatus) error {
	const query = `UPDATE careers SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set career status: %w", err)
	}
	return nil
}

// Delete removes a career row. Callers must have verified it has no
// dependents; the students foreign key still protects at the database level.
func (r *CareerRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM careers WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete career: %w", err)
	}
	return nil
}

// AttachSubject adds a subject to the career's curriculum.
func (r *CareerRepository) AttachSubject(ctx context.Context, careerID, subjectID string) error {
	const query = `INSERT INTO career_subjects (career_id, subject_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, careerID, subjectID); err != nil {
		return fmt.Errorf("attach subject: %w", err)
	}
	return nil
}

// DetachSubject removes a subject from the career's curriculum.
func (r *CareerRepository) DetachSubject(ctx context.Context, careerID, subjectID string) error {
	const query = `DELETE FROM career_subjects WHERE career_id = $1 AND subject_id = $2`
	if _, err := r.db.ExecContext(ctx, query, careerID, subjectID); err != nil {
		return fmt.Errorf("detach subject: %w", err)
	}
	return nil
}

// SubjectBelongs reports whether a subject is part of the career's curriculum.
func (r *CareerRepository) SubjectBelongs(ctx context.Context, careerID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM career_subjects WHERE career_id = $1 AND subject_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, careerID, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check curriculum membership: %w", err)
	}
	return true, nil
}
