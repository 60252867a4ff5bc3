package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sga-platform/sga-api/internal/models"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
)

type mockAccountAuthRepo struct {
	accounts       map[string]*models.Account
	lastLoginCalls int
	updatedHash    string
}

func (m *mockAccountAuthRepo) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	for _, account := range m.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountAuthRepo) FindByID(_ context.Context, id string) (*models.Account, error) {
	if account, ok := m.accounts[id]; ok {
		return account, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountAuthRepo) UpdateLastLogin(_ context.Context, _ string, _ time.Time) error {
	m.lastLoginCalls++
	return nil
}

func (m *mockAccountAuthRepo) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	m.updatedHash = passwordHash
	if account, ok := m.accounts[id]; ok {
		account.PasswordHash = passwordHash
		account.MustChangePassword = false
	}
	return nil
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestAuthService(t *testing.T) (*AuthService, *mockAccountAuthRepo) {
	t.Helper()
	repo := &mockAccountAuthRepo{accounts: map[string]*models.Account{
		"acc-1": {
			ID:           "acc-1",
			Email:        "ana@example.edu",
			PasswordHash: hashPassword(t, "30111222"),
			Role:         models.RoleStudent,
			Status:       models.AccountActive,

			MustChangePassword: true,
		},
		"acc-2": {
			ID:           "acc-2",
			Email:        "blocked@example.edu",
			PasswordHash: hashPassword(t, "secret99"),
			Role:         models.RoleTeacher,
			Status:       models.AccountSuspended,
		},
	}}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "sga-api",
	})
	return svc, repo
}

func TestAuthServiceLogin(t *testing.T) {
	svc, repo := newTestAuthService(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ana@example.edu",
		Password: "30111222",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	assert.True(t, resp.MustChangePassword)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "acc-1", resp.Account.ID)
	assert.Equal(t, models.RoleStudent, resp.Account.Role)
	assert.Equal(t, 1, repo.lastLoginCalls)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _ := newTestAuthService(t)

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.edu", Password: "whatever1"})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.edu", Password: "nope-nope"})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	})

	t.Run("suspended account", func(t *testing.T) {
		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "blocked@example.edu", Password: "secret99"})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrSuspendedAccount.Code, appErrors.FromError(err).Code)
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: ""})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, repo := newTestAuthService(t)

	err := svc.ChangePassword(context.Background(), "acc-1", models.ChangePasswordRequest{
		OldPassword: "30111222",
		NewPassword: "brand-new-pass",
	})
	require.NoError(t, err)
	require.NotEmpty(t, repo.updatedHash)
	assert.False(t, repo.accounts["acc-1"].MustChangePassword)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.updatedHash), []byte("brand-new-pass")))
}

func TestAuthServiceChangePasswordOldMismatch(t *testing.T) {
	svc, _ := newTestAuthService(t)

	err := svc.ChangePassword(context.Background(), "acc-1", models.ChangePasswordRequest{
		OldPassword: "wrong-old",
		NewPassword: "brand-new-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc, _ := newTestAuthService(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ana@example.edu",
		Password: "30111222",
	})
	require.NoError(t, err)

	other := NewAuthService(nil, nil, nil, AuthConfig{AccessTokenSecret: "another-secret", AccessTokenExpiry: time.Hour})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
