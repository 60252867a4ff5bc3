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

// AdminRepository manages persistence for administrator profiles.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository constructs an AdminRepository.
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

const adminDetailColumns = `ad.id, ad.account_id, ad.dni, ad.name, ad.surname, ad.department, ad.hire_date, ad.address, ad.birth_date, ad.phone, ad.created_at, ad.updated_at,
        a.email, a.status AS account_status`

// List returns admins matching the provided filters.
func (r *AdminRepository) List(ctx context.Context, filter models.AdminFilter) ([]models.AdminDetail, int, error) {
	base := `FROM admins ad JOIN accounts a ON a.id = ad.account_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(ad.name) LIKE $%d OR LOWER(ad.surname) LIKE $%d OR ad.dni LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"surname":   "ad.surname",
		"hire_date": "ad.hire_date",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "ad.hire_date"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", adminDetailColumns, base, column, order, size, offset)

	var admins []models.AdminDetail
	if err := r.db.SelectContext(ctx, &admins, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list admins: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count admins: %w", err)
	}
	return admins, total, nil
}

// FindByID fetches an admin detail by ID.
func (r *AdminRepository) FindByID(ctx context.Context, id string) (*models.AdminDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM admins ad JOIN accounts a ON a.id = ad.account_id WHERE ad.id = $1`, adminDetailColumns)
	var detail models.AdminDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateWithAccount inserts the account and admin profile in one transaction.
func (r *AdminRepository) CreateWithAccount(ctx context.Context, account *models.Account, admin *models.Admin) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admin provisioning: %w", err)
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

	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	admin.AccountID = account.ID
	admin.CreatedAt = now
	admin.UpdatedAt = now
	const adminQuery = `INSERT INTO admins (id, account_id, dni, name, surname, department, hire_date, address, birth_date, phone, created_at, updated_at)
        VALUES (:id, :account_id, :dni, :name, :surname, :department, :hire_date, :address, :birth_date, :phone, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, adminQuery, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit admin provisioning: %w", err)
	}
	return nil
}

// UpdateWithAccount modifies the admin profile and its account email atomically.
func (r *AdminRepository) UpdateWithAccount(ctx context.Context, admin *models.Admin, email string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admin update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	admin.UpdatedAt = now
	const adminQuery = `UPDATE admins SET dni = :dni, name = :name, surname = :surname, department = :department, hire_date = :hire_date, address = :address, birth_date = :birth_date, phone = :phone, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, adminQuery, admin); err != nil {
		return fmt.Errorf("update admin: %w", err)
	}

	const accountQuery = `UPDATE accounts SET email = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, accountQuery, admin.AccountID, email, now); err != nil {
		return fmt.Errorf("update admin account: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit admin update: %w", err)
	}
	return nil
}
