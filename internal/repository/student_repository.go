package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sga-platform/sga-api/internal/models"
)

// StudentRepository manages persistence for student profiles and their
// paired accounts.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailColumns = `s.id, s.account_id, s.career_id, s.dni, s.name, s.surname, s.address, s.birth_date, s.phone, s.created_at, s.updated_at,
        a.email, a.status AS account_status, c.name AS career_name`

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s
JOIN accounts a ON a.id = s.account_id
JOIN careers c ON c.id = s.career_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.CareerID != "" {
		conditions = append(conditions, fmt.Sprintf("s.career_id = $%d", len(args)+1))
		args = append(args, filter.CareerID)
	}
	if filter.AccountStatus != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.AccountStatus)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) LIKE $%d OR LOWER(s.surname) LIKE $%d OR s.dni LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"surname":    "s.surname",
		"dni":        "s.dni",
		"created_at": "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "s.created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentDetailColumns, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM students s
        JOIN accounts a ON a.id = s.account_id
        JOIN careers c ON c.id = s.career_id
        WHERE s.id = $1`, studentDetailColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByAccountID resolves the student profile behind an account, if any.
func (r *StudentRepository) FindByAccountID(ctx context.Context, accountID string) (*models.Student, error) {
	const query = `SELECT id, account_id, career_id, dni, name, surname, address, birth_date, phone, created_at, updated_at FROM students WHERE account_id = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, accountID); err != nil {
		return nil, err
	}
	return &student, nil
}

// CreateWithAccount inserts the account and the student profile in a single
// transaction so neither row exists without the other.
func (r *StudentRepository) CreateWithAccount(ctx context.Context, account *models.Account, student *models.Student) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student provisioning: %w", err)
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

	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.AccountID = account.ID
	student.CreatedAt = now
	student.UpdatedAt = now
	const studentQuery = `INSERT INTO students (id, account_id, career_id, dni, name, surname, address, birth_date, phone, created_at, updated_at)
        VALUES (:id, :account_id, :career_id, :dni, :name, :surname, :address, :birth_date, :phone, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, studentQuery, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit student provisioning: %w", err)
	}
	return nil
}

// UpdateWithAccount modifies the student profile and its account email atomically.
func (r *StudentRepository) UpdateWithAccount(ctx context.Context, student *models.Student, email string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	student.UpdatedAt = now
	const studentQuery = `UPDATE students SET career_id = :career_id, dni = :dni, name = :name, surname = :surname, address = :address, birth_date = :birth_date, phone = :phone, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, studentQuery, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}

	const accountQuery = `UPDATE accounts SET email = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, accountQuery, student.AccountID, email, now); err != nil {
		return fmt.Errorf("update student account: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit student update: %w", err)
	}
	return nil
}
