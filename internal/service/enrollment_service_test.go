package service

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sga-platform/sga-api/internal/models"
	"github.com/sga-platform/sga-api/internal/repository"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
)

// mockEnrollmentRepo mimics the transactional contract of the real
// repository: inside one lock it checks the unique (student, subject) pair,
// recounts active rows against the quota and inserts.
type mockEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[string]models.Enrollment
	quotas      map[string]int
	nextID      int
}

func newMockEnrollmentRepo(quotas map[string]int) *mockEnrollmentRepo {
	return &mockEnrollmentRepo{enrollments: make(map[string]models.Enrollment), quotas: quotas}
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, studentID, subjectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existsLocked(studentID, subjectID), nil
}

func (m *mockEnrollmentRepo) existsLocked(studentID, subjectID string) bool {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.SubjectID == subjectID {
			return true
		}
	}
	return false
}

func (m *mockEnrollmentRepo) activeLocked(subjectID string) int {
	count := 0
	for _, e := range m.enrollments {
		if e.SubjectID == subjectID && e.Status == models.EnrollmentStatusActive {
			count++
		}
	}
	return count
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quota, ok := m.quotas[enrollment.SubjectID]
	if !ok {
		return repository.ErrSubjectMissing
	}
	if m.existsLocked(enrollment.StudentID, enrollment.SubjectID) {
		return repository.ErrDuplicateEnrollment
	}
	if m.activeLocked(enrollment.SubjectID) >= quota {
		return repository.ErrQuotaExceeded
	}
	if enrollment.ID == "" {
		m.nextID++
		enrollment.ID = "enr-" + strconv.Itoa(m.nextID)
	}
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, grade *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.enrollments[id]
	e.Status = status
	if grade != nil {
		e.Grade = grade
	}
	m.enrollments[id] = e
	return nil
}

func (m *mockEnrollmentRepo) ListCurrentByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if e.StudentID == studentID && (e.Status == models.EnrollmentStatusActive || e.Status == models.EnrollmentStatusRegular) {
			list = append(list, models.EnrollmentDetail{Enrollment: e})
		}
	}
	return list, nil
}

func (m *mockEnrollmentRepo) ListBySubject(ctx context.Context, subjectID string) ([]models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if e.SubjectID == subjectID {
			list = append(list, models.EnrollmentDetail{
				Enrollment:     e,
				StudentName:    "Ana",
				StudentSurname: "Gomez",
				StudentDNI:     "30111222",
				SubjectName:    "Algebra",
			})
		}
	}
	return list, nil
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByAccountID(ctx context.Context, accountID string) (*models.Student, error) {
	if s, ok := m.students[accountID]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockSubjectReader struct {
	subjects  map[string]*models.SubjectDetail
	available []models.AvailableSubject
}

func (m *mockSubjectReader) FindByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	if s, ok := m.subjects[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubjectReader) ListAvailableForStudent(ctx context.Context, careerID, studentID string) ([]models.AvailableSubject, error) {
	return m.available, nil
}

type mockCareerReader struct {
	curriculum map[string]map[string]bool
}

func (m *mockCareerReader) SubjectBelongs(ctx context.Context, careerID, subjectID string) (bool, error) {
	return m.curriculum[careerID][subjectID], nil
}

func studentClaims(accountID string) *models.JWTClaims {
	return &models.JWTClaims{AccountID: accountID, Role: models.RoleStudent}
}

func newTestEnrollmentService(repo *mockEnrollmentRepo, students *mockStudentReader, subjects *mockSubjectReader, careers *mockCareerReader) *EnrollmentService {
	return NewEnrollmentService(repo, students, subjects, careers, nil, nil, validator.New(), zap.NewNop())
}

func fixtureReaders() (*mockStudentReader, *mockSubjectReader, *mockCareerReader) {
	students := &mockStudentReader{students: map[string]*models.Student{
		"acc-1": {ID: "s1", AccountID: "acc-1", CareerID: "career-1"},
		"acc-2": {ID: "s2", AccountID: "acc-2", CareerID: "career-1"},
	}}
	subjects := &mockSubjectReader{subjects: map[string]*models.SubjectDetail{
		"sub-1": {Subject: models.Subject{ID: "sub-1", Name: "Algebra", Quota: 1}},
		"sub-2": {Subject: models.Subject{ID: "sub-2", Name: "Physics", Quota: 30}},
	}}
	careers := &mockCareerReader{curriculum: map[string]map[string]bool{
		"career-1": {"sub-1": true, "sub-2": true},
	}}
	return students, subjects, careers
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	students, subjects, careers := fixtureReaders()
	repo := newMockEnrollmentRepo(map[string]int{"sub-1": 1, "sub-2": 30})
	svc := newTestEnrollmentService(repo, students, subjects, careers)

	enrollment, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-2")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, "s1", enrollment.StudentID)
	assert.Equal(t, models.SemesterAt(enrollment.EnrolledAt), enrollment.Semester)
}

func TestEnrollmentServiceEnrollValidationOrder(t *testing.T) {
	students, subjects, careers := fixtureReaders()
	repo := newMockEnrollmentRepo(map[string]int{"sub-1": 1, "sub-2": 30})
	svc := newTestEnrollmentService(repo, students, subjects, careers)

	t.Run("non-student caller", func(t *testing.T) {
		_, err := svc.Enroll(context.Background(), &models.JWTClaims{AccountID: "acc-t", Role: models.RoleTeacher}, "sub-1")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotAStudent.Code, appErrors.FromError(err).Code)
	})

	t.Run("account without profile", func(t *testing.T) {
		_, err := svc.Enroll(context.Background(), studentClaims("acc-unknown"), "sub-1")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotAStudent.Code, appErrors.FromError(err).Code)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-missing")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	})

	t.Run("subject outside curriculum", func(t *testing.T) {
		subjects.subjects["sub-other"] = &models.SubjectDetail{Subject: models.Subject{ID: "sub-other", Quota: 10}}
		_, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-other")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotInCurriculum.Code, appErrors.FromError(err).Code)
	})

	t.Run("withdrawn enrollment still blocks", func(t *testing.T) {
		repo.enrollments["old"] = models.Enrollment{ID: "old", StudentID: "s1", SubjectID: "sub-2", Status: models.EnrollmentStatusWithdrawn}
		_, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-2")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErrors.FromError(err).Code)
		delete(repo.enrollments, "old")
	})

	t.Run("quota full", func(t *testing.T) {
		repo.enrollments["taken"] = models.Enrollment{ID: "taken", StudentID: "s9", SubjectID: "sub-1", Status: models.EnrollmentStatusActive}
		_, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-1")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrQuotaFull.Code, appErrors.FromError(err).Code)
	})
}

func TestEnrollmentServiceQuotaNeverExceededUnderConcurrency(t *testing.T) {
	const attempts = 50
	const quota = 3

	students := &mockStudentReader{students: map[string]*models.Student{}}
	careers := &mockCareerReader{curriculum: map[string]map[string]bool{"career-1": {"sub-1": true}}}
	subjects := &mockSubjectReader{subjects: map[string]*models.SubjectDetail{
		"sub-1": {Subject: models.Subject{ID: "sub-1", Quota: quota}},
	}}
	for i := 0; i < attempts; i++ {
		acc := "acc-" + strings.Repeat("x", i+1)
		students.students[acc] = &models.Student{ID: "s-" + acc, AccountID: acc, CareerID: "career-1"}
	}
	repo := newMockEnrollmentRepo(map[string]int{"sub-1": quota})
	svc := newTestEnrollmentService(repo, students, subjects, careers)

	var wg sync.WaitGroup
	for acc := range students.students {
		wg.Add(1)
		go func(acc string) {
			defer wg.Done()
			_, _ = svc.Enroll(context.Background(), studentClaims(acc), "sub-1")
		}(acc)
	}
	wg.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, quota, repo.activeLocked("sub-1"))
}

func TestEnrollmentServiceWithdraw(t *testing.T) {
	students, subjects, careers := fixtureReaders()
	repo := newMockEnrollmentRepo(map[string]int{"sub-1": 1})
	svc := newTestEnrollmentService(repo, students, subjects, careers)

	first, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-1")
	require.NoError(t, err)

	// The single seat is taken so the second student is rejected.
	_, err = svc.Enroll(context.Background(), studentClaims("acc-2"), "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrQuotaFull.Code, appErrors.FromError(err).Code)

	t.Run("other students cannot withdraw it", func(t *testing.T) {
		err := svc.Withdraw(context.Background(), studentClaims("acc-2"), first.ID)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	})

	require.NoError(t, svc.Withdraw(context.Background(), studentClaims("acc-1"), first.ID))

	t.Run("withdrawal frees the seat", func(t *testing.T) {
		_, err := svc.Enroll(context.Background(), studentClaims("acc-2"), "sub-1")
		require.NoError(t, err)
	})

	t.Run("terminal enrollments cannot be withdrawn again", func(t *testing.T) {
		err := svc.Withdraw(context.Background(), studentClaims("acc-1"), first.ID)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	})
}

func TestEnrollmentServiceSetStatus(t *testing.T) {
	students, subjects, careers := fixtureReaders()
	repo := newMockEnrollmentRepo(map[string]int{"sub-2": 30})
	svc := newTestEnrollmentService(repo, students, subjects, careers)

	enrollment, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-2")
	require.NoError(t, err)

	grade := 8.5
	updated, err := svc.SetStatus(context.Background(), enrollment.ID, SetEnrollmentStatusRequest{
		Status: models.EnrollmentStatusApproved,
		Grade:  &grade,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, updated.Status)
	require.NotNil(t, updated.Grade)
	assert.InDelta(t, 8.5, *updated.Grade, 0.001)

	t.Run("grade above scale is rejected", func(t *testing.T) {
		bad := 10.5
		_, err := svc.SetStatus(context.Background(), enrollment.ID, SetEnrollmentStatusRequest{
			Status: models.EnrollmentStatusApproved,
			Grade:  &bad,
		})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})

	t.Run("withdrawn rows cannot receive outcomes", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(context.Background(), enrollment.ID, models.EnrollmentStatusWithdrawn, nil))
		_, err := svc.SetStatus(context.Background(), enrollment.ID, SetEnrollmentStatusRequest{Status: models.EnrollmentStatusRegular})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	})
}

func TestEnrollmentServiceMyEnrollments(t *testing.T) {
	students, subjects, careers := fixtureReaders()
	repo := newMockEnrollmentRepo(map[string]int{"sub-1": 5, "sub-2": 5})
	svc := newTestEnrollmentService(repo, students, subjects, careers)

	_, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-1")
	require.NoError(t, err)
	second, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-2")
	require.NoError(t, err)
	require.NoError(t, svc.Withdraw(context.Background(), studentClaims("acc-1"), second.ID))

	mine, err := svc.MyEnrollments(context.Background(), studentClaims("acc-1"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "sub-1", mine[0].SubjectID)
}

func TestEnrollmentServiceExportRoster(t *testing.T) {
	students, subjects, careers := fixtureReaders()
	repo := newMockEnrollmentRepo(map[string]int{"sub-1": 5})
	svc := newTestEnrollmentService(repo, students, subjects, careers)

	_, err := svc.Enroll(context.Background(), studentClaims("acc-1"), "sub-1")
	require.NoError(t, err)

	payload, contentType, err := svc.ExportRoster(context.Background(), "sub-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "DNI")
	assert.Contains(t, lines[1], "30111222")

	_, _, err = svc.ExportRoster(context.Background(), "sub-1", "xls")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSemesterDerivation(t *testing.T) {
	assert.Equal(t, "2026-1", models.SemesterAt(time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-1", models.SemesterAt(time.Date(2026, time.June, 30, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, "2026-2", models.SemesterAt(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-2", models.SemesterAt(time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)))
}
