package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sga-platform/sga-api/internal/models"
)

// AccountRepository provides database access for authenticable accounts and
// the identity checks that span the three profile tables.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByEmail returns an account by email address.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	const query = `SELECT id, email, password_hash, role, status, must_change_password, last_login, created_at, updated_at FROM accounts WHERE email = $1 LIMIT 1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return &account, nil
}

// FindByID returns an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	const query = `SELECT id, email, password_hash, role, status, must_change_password, last_login, created_at, updated_at FROM accounts WHERE id = $1 LIMIT 1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return &account, nil
}

// EmailInUse checks whether an email is taken, optionally excluding an account.
func (r *AccountRepository) EmailInUse(ctx context.Context, email string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM accounts WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

// DNIInUse checks whether a national ID is used by any profile regardless of
// role. Each role lives in its own table, so the check is a UNION instead of
// a database constraint. excludeRole/excludeID skip the caller's own row on
// updates.
func (r *AccountRepository) DNIInUse(ctx context.Context, dni string, excludeRole models.Role, excludeID string) (bool, error) {
	query := `SELECT 1 FROM (
        SELECT id, dni, 'STUDENT' AS role FROM students
        UNION ALL
        SELECT id, dni, 'TEACHER' AS role FROM teachers
        UNION ALL
        SELECT id, dni, 'ADMIN' AS role FROM admins
    ) profiles WHERE profiles.dni = $1`
	args := []interface{}{dni}
	if excludeRole != "" && excludeID != "" {
		query += " AND NOT (profiles.role = $2 AND profiles.id = $3)"
		args = append(args, string(excludeRole), excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check dni: %w", err)
	}
	return true, nil
}

// UpdatePassword stores a new password hash and clears the forced-change flag.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE accounts SET password_hash = $2, must_change_password = FALSE, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for an account.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE accounts SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// SetStatus flips the account lifecycle state. This is the sole mechanism for
// suspending or restoring login access; account rows are never deleted.
func (r *AccountRepository) SetStatus(ctx context.Context, id string, status models.AccountStatus) error {
	const query = `UPDATE accounts SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set account status: %w", err)
	}
	return nil
}
