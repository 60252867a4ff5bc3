package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sga-platform/sga-api/internal/models"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
)

type mockStudentRepo struct {
	students       map[string]*models.StudentDetail
	createdAccount *models.Account
	createdStudent *models.Student
	updated        *models.Student
	updatedEmail   string
}

func (m *mockStudentRepo) List(_ context.Context, _ models.StudentFilter) ([]models.StudentDetail, int, error) {
	var out []models.StudentDetail
	for _, s := range m.students {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(_ context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) CreateWithAccount(_ context.Context, account *models.Account, student *models.Student) error {
	m.createdAccount = account
	m.createdStudent = student
	return nil
}

func (m *mockStudentRepo) UpdateWithAccount(_ context.Context, student *models.Student, email string) error {
	m.updated = student
	m.updatedEmail = email
	return nil
}

type mockAccountUniqueness struct {
	usedDNIs      map[string]bool
	usedEmails    map[string]bool
	statusUpdates map[string]models.AccountStatus
}

func (m *mockAccountUniqueness) EmailInUse(_ context.Context, email string, _ string) (bool, error) {
	return m.usedEmails[email], nil
}

func (m *mockAccountUniqueness) DNIInUse(_ context.Context, dni string, _ models.Role, _ string) (bool, error) {
	return m.usedDNIs[dni], nil
}

func (m *mockAccountUniqueness) SetStatus(_ context.Context, id string, status models.AccountStatus) error {
	if m.statusUpdates == nil {
		m.statusUpdates = map[string]models.AccountStatus{}
	}
	m.statusUpdates[id] = status
	return nil
}

type mockCareerFinder struct {
	careers map[string]*models.CareerDetail
}

func (m *mockCareerFinder) FindByID(_ context.Context, id string) (*models.CareerDetail, error) {
	if c, ok := m.careers[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func newTestStudentService() (*StudentService, *mockStudentRepo, *mockAccountUniqueness) {
	repo := &mockStudentRepo{students: map[string]*models.StudentDetail{}}
	accounts := &mockAccountUniqueness{usedDNIs: map[string]bool{}, usedEmails: map[string]bool{}}
	careers := &mockCareerFinder{careers: map[string]*models.CareerDetail{
		"career-1": {Career: models.Career{ID: "career-1", Name: "Systems Engineering"}},
	}}
	return NewStudentService(repo, accounts, careers, nil, nil), repo, accounts
}

func validStudentRequest() CreateStudentRequest {
	return CreateStudentRequest{
		Email:    "ana@example.edu",
		DNI:      "30111222",
		Name:     "Ana",
		Surname:  "Gomez",
		CareerID: "career-1",
	}
}

func TestStudentServiceCreate(t *testing.T) {
	svc, repo, _ := newTestStudentService()

	student, err := svc.Create(context.Background(), validStudentRequest())
	require.NoError(t, err)
	require.NotEmpty(t, student.ID)
	assert.Equal(t, "career-1", student.CareerID)

	require.NotNil(t, repo.createdAccount)
	assert.Equal(t, models.RoleStudent, repo.createdAccount.Role)
	assert.Equal(t, models.AccountActive, repo.createdAccount.Status)
	assert.True(t, repo.createdAccount.MustChangePassword)
	assert.Equal(t, repo.createdAccount.ID, student.AccountID)
	// the DNI doubles as the initial credential
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.createdAccount.PasswordHash), []byte("30111222")))
}

func TestStudentServiceCreateRejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*CreateStudentRequest)
		seed     func(*mockAccountUniqueness)
		wantCode string
	}{
		{
			name:     "malformed dni",
			mutate:   func(r *CreateStudentRequest) { r.DNI = "12-345" },
			wantCode: appErrors.ErrValidation.Code,
		},
		{
			name:     "dni too short",
			mutate:   func(r *CreateStudentRequest) { r.DNI = "123456" },
			wantCode: appErrors.ErrValidation.Code,
		},
		{
			name:     "duplicate dni",
			seed:     func(a *mockAccountUniqueness) { a.usedDNIs["30111222"] = true },
			wantCode: appErrors.ErrDuplicateDNI.Code,
		},
		{
			name:     "duplicate email",
			seed:     func(a *mockAccountUniqueness) { a.usedEmails["ana@example.edu"] = true },
			wantCode: appErrors.ErrDuplicateEmail.Code,
		},
		{
			name:     "unknown career",
			mutate:   func(r *CreateStudentRequest) { r.CareerID = "missing" },
			wantCode: appErrors.ErrNotFound.Code,
		},
		{
			name:     "missing surname",
			mutate:   func(r *CreateStudentRequest) { r.Surname = "" },
			wantCode: appErrors.ErrValidation.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, accounts := newTestStudentService()
			if tt.seed != nil {
				tt.seed(accounts)
			}
			req := validStudentRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			_, err := svc.Create(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, appErrors.FromError(err).Code)
		})
	}
}

func TestStudentServiceUpdate(t *testing.T) {
	svc, repo, _ := newTestStudentService()
	repo.students["stu-1"] = &models.StudentDetail{
		Student: models.Student{ID: "stu-1", AccountID: "acc-1", CareerID: "career-1", DNI: "30111222"},
	}

	req := UpdateStudentRequest{
		Email:    "ana.gomez@example.edu",
		DNI:      "30111222",
		Name:     "Ana",
		Surname:  "Gomez",
		CareerID: "career-1",
	}
	student, err := svc.Update(context.Background(), "stu-1", req)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", student.ID)
	assert.Equal(t, "acc-1", student.AccountID)
	assert.Equal(t, "ana.gomez@example.edu", repo.updatedEmail)
}

func TestStudentServiceUpdateNotFound(t *testing.T) {
	svc, _, _ := newTestStudentService()

	_, err := svc.Update(context.Background(), "ghost", UpdateStudentRequest{
		Email: "x@example.edu", DNI: "30111222", Name: "X", Surname: "Y", CareerID: "career-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceSetAccountStatus(t *testing.T) {
	svc, repo, accounts := newTestStudentService()
	repo.students["stu-1"] = &models.StudentDetail{
		Student: models.Student{ID: "stu-1", AccountID: "acc-1", CareerID: "career-1"},
	}

	require.NoError(t, svc.SetAccountStatus(context.Background(), "stu-1", models.AccountSuspended))
	assert.Equal(t, models.AccountSuspended, accounts.statusUpdates["acc-1"])

	err := svc.SetAccountStatus(context.Background(), "stu-1", "DELETED")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
