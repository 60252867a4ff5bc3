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

// TeacherRepository manages persistence for teacher profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

const teacherDetailColumns = `t.id, t.account_id, t.dni, t.name, t.surname, t.academic_degree, t.hire_date, t.address, t.birth_date, t.phone, t.created_at, t.updated_at,
        a.email, a.status AS account_status`

// List returns teachers matching the provided filters.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherDetail, int, error) {
	base := `FROM teachers t JOIN accounts a ON a.id = t.account_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.AccountStatus != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.AccountStatus)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(t.name) LIKE $%d OR LOWER(t.surname) LIKE $%d OR t.dni LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"surname":   "t.surname",
		"hire_date": "t.hire_date",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "t.hire_date"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", teacherDetailColumns, base, column, order, size, offset)

	var teachers []models.TeacherDetail
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID fetches a teacher detail by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.TeacherDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers t JOIN accounts a ON a.id = t.account_id WHERE t.id = $1`, teacherDetailColumns)
	var detail models.TeacherDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateWithAccount inserts the account and teacher profile in one transaction.
func (r *TeacherRepository) CreateWithAccount(ctx context.Context, account *models.Account, teacher *models.Teacher) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin teacher provisioning: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = now
	account.UpdatedAt = now
	const accountQuery = `INSERT INTO accounts (id, email, password_hash, role, status, must_change_password, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :role, :status, :must_change_password, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, accountQuery, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	teacher.AccountID = account.ID
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	const teacherQuery = `INSERT INTO teachers (id, account_id, dni, name, surname, academic_degree, hire_date, address, birth_date, phone, created_at, updated_at)
        VALUES (:id, :account_id, :dni, :name, :surname, :academic_degree, :hire_date, :address, :birth_date, :phone, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, teacherQuery, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit teacher provisioning: %w", err)
	}
	return nil
}

// UpdateWithAccount modifies the teacher profile and its account email atomically.
func (r *TeacherRepository) UpdateWithAccount(ctx context.Context, teacher *models.Teacher, email string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin teacher update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	teacher.UpdatedAt = now
	const teacherQuery = `UPDATE teachers SET dni = :dni, name = :name, surname = :surname, academic_degree = :academic_degree, hire_date = :hire_date, address = :address, birth_date = :birth_date, phone = :phone, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, teacherQuery, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}

	const accountQuery = `UPDATE accounts SET email = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, accountQuery, teacher.AccountID, email, now); err != nil {
		return fmt.Errorf("update teacher account: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit teacher update: %w", err)
	}
	return nil
}

// Exists reports whether a teacher row exists for the given ID.
func (r *TeacherRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM teachers WHERE id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher: %w", err)
	}
	return true, nil
}
