package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sga-platform/sga-api/internal/models"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
)

type mockTeacherRepo struct {
	teachers       map[string]*models.TeacherDetail
	createdAccount *models.Account
	createdTeacher *models.Teacher
}

func (m *mockTeacherRepo) List(_ context.Context, _ models.TeacherFilter) ([]models.TeacherDetail, int, error) {
	var out []models.TeacherDetail
	for _, teacher := range m.teachers {
		out = append(out, *teacher)
	}
	return out, len(out), nil
}

func (m *mockTeacherRepo) FindByID(_ context.Context, id string) (*models.TeacherDetail, error) {
	if teacher, ok := m.teachers[id]; ok {
		return teacher, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherRepo) CreateWithAccount(_ context.Context, account *models.Account, teacher *models.Teacher) error {
	m.createdAccount = account
	m.createdTeacher = teacher
	return nil
}

func (m *mockTeacherRepo) UpdateWithAccount(_ context.Context, _ *models.Teacher, _ string) error {
	return nil
}

func newTestTeacherService(now time.Time) (*TeacherService, *mockTeacherRepo, *mockAccountUniqueness) {
	repo := &mockTeacherRepo{teachers: map[string]*models.TeacherDetail{}}
	accounts := &mockAccountUniqueness{usedDNIs: map[string]bool{}, usedEmails: map[string]bool{}}
	svc := NewTeacherService(repo, accounts, nil, nil)
	svc.now = func() time.Time { return now }
	return svc, repo, accounts
}

func validTeacherRequest(now time.Time) CreateTeacherRequest {
	return CreateTeacherRequest{
		Email:          "pedro@example.edu",
		DNI:            "22333444",
		Name:           "Pedro",
		Surname:        "Lopez",
		AcademicDegree: models.DegreeEngineer,
		HireDate:       now.AddDate(-2, 0, 0),
	}
}

func TestTeacherServiceCreate(t *testing.T) {
	now := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	svc, repo, _ := newTestTeacherService(now)

	teacher, err := svc.Create(context.Background(), validTeacherRequest(now))
	require.NoError(t, err)
	require.NotEmpty(t, teacher.ID)
	assert.Equal(t, models.DegreeEngineer, teacher.AcademicDegree)

	require.NotNil(t, repo.createdAccount)
	assert.Equal(t, models.RoleTeacher, repo.createdAccount.Role)
	assert.True(t, repo.createdAccount.MustChangePassword)
}

func TestTeacherServiceCreateRejections(t *testing.T) {
	now := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

	t.Run("future hire date", func(t *testing.T) {
		svc, _, _ := newTestTeacherService(now)
		req := validTeacherRequest(now)
		req.HireDate = now.AddDate(0, 1, 0)
		_, err := svc.Create(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})

	t.Run("unknown degree", func(t *testing.T) {
		svc, _, _ := newTestTeacherService(now)
		req := validTeacherRequest(now)
		req.AcademicDegree = "POSTDOC"
		_, err := svc.Create(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})

	t.Run("dni used by another role", func(t *testing.T) {
		svc, _, accounts := newTestTeacherService(now)
		accounts.usedDNIs["22333444"] = true
		_, err := svc.Create(context.Background(), validTeacherRequest(now))
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrDuplicateDNI.Code, appErrors.FromError(err).Code)
	})
}

func TestTeacherServiceSetAccountStatus(t *testing.T) {
	now := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	svc, repo, accounts := newTestTeacherService(now)
	repo.teachers["tch-1"] = &models.TeacherDetail{
		Teacher: models.Teacher{ID: "tch-1", AccountID: "acc-9"},
	}

	require.NoError(t, svc.SetAccountStatus(context.Background(), "tch-1", models.AccountSuspended))
	assert.Equal(t, models.AccountSuspended, accounts.statusUpdates["acc-9"])

	err := svc.SetAccountStatus(context.Background(), "ghost", models.AccountActive)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
