package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sga-platform/sga-api/internal/models"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
)

type mockSubjectRepo struct {
	subjects    map[string]*models.SubjectDetail
	usedNames   map[string]string
	withHistory map[string]bool
	deleted     []string
}

func newMockSubjectRepo() *mockSubjectRepo {
	return &mockSubjectRepo{
		subjects:    map[string]*models.SubjectDetail{},
		usedNames:   map[string]string{},
		withHistory: map[string]bool{},
	}
}

func (m *mockSubjectRepo) List(_ context.Context, _ models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	var out []models.SubjectDetail
	for _, s := range m.subjects {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockSubjectRepo) FindByID(_ context.Context, id string) (*models.SubjectDetail, error) {
	if s, ok := m.subjects[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubjectRepo) NameInUse(_ context.Context, name string, excludeID string) (bool, error) {
	owner, ok := m.usedNames[strings.ToLower(name)]
	return ok && owner != excludeID, nil
}

func (m *mockSubjectRepo) Create(_ context.Context, subject *models.Subject) error {
	m.subjects[subject.ID] = &models.SubjectDetail{Subject: *subject}
	m.usedNames[strings.ToLower(subject.Name)] = subject.ID
	return nil
}

func (m *mockSubjectRepo) Update(_ context.Context, subject *models.Subject) error {
	m.subjects[subject.ID] = &models.SubjectDetail{Subject: *subject}
	return nil
}

func (m *mockSubjectRepo) HasEnrollments(_ context.Context, id string) (bool, error) {
	return m.withHistory[id], nil
}

func (m *mockSubjectRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.subjects, id)
	return nil
}

type mockTeacherExists struct {
	known map[string]bool
}

func (m *mockTeacherExists) Exists(_ context.Context, id string) (bool, error) {
	return m.known[id], nil
}

func newTestSubjectService() (*SubjectService, *mockSubjectRepo, *fakeCacheRepo) {
	repo := newMockSubjectRepo()
	teachers := &mockTeacherExists{known: map[string]bool{"tch-1": true}}
	cacheRepo := newFakeCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	return NewSubjectService(repo, teachers, cache, nil, nil), repo, cacheRepo
}

func strPtr(s string) *string { return &s }

func TestSubjectServiceCreate(t *testing.T) {
	svc, _, _ := newTestSubjectService()

	subject, err := svc.Create(context.Background(), CreateSubjectRequest{
		Name:      "Algebra",
		TeacherID: strPtr("tch-1"),
		Quota:     30,
	})
	require.NoError(t, err)
	require.NotEmpty(t, subject.ID)
	assert.Equal(t, 30, subject.Quota)
}

func TestSubjectServiceCreateRejections(t *testing.T) {
	t.Run("non positive quota", func(t *testing.T) {
		svc, _, _ := newTestSubjectService()
		_, err := svc.Create(context.Background(), CreateSubjectRequest{Name: "Algebra", Quota: 0})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})

	t.Run("duplicate name", func(t *testing.T) {
		svc, _, _ := newTestSubjectService()
		_, err := svc.Create(context.Background(), CreateSubjectRequest{Name: "Algebra", Quota: 30})
		require.NoError(t, err)
		_, err = svc.Create(context.Background(), CreateSubjectRequest{Name: "algebra", Quota: 30})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	})

	t.Run("unknown teacher", func(t *testing.T) {
		svc, _, _ := newTestSubjectService()
		_, err := svc.Create(context.Background(), CreateSubjectRequest{
			Name:      "Algebra",
			TeacherID: strPtr("ghost"),
			Quota:     30,
		})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	})
}

func TestSubjectServiceUpdateInvalidatesCatalog(t *testing.T) {
	svc, repo, cacheRepo := newTestSubjectService()
	repo.subjects["sub-1"] = &models.SubjectDetail{
		Subject: models.Subject{ID: "sub-1", Name: "Algebra", Quota: 30},
	}
	cacheRepo.entries["catalog:available:career:career-1:student:stu-1"] = []byte("cached")
	cacheRepo.entries["catalog:available:career:career-2:student:stu-2"] = []byte("cached")

	subject, err := svc.Update(context.Background(), "sub-1", UpdateSubjectRequest{Name: "Algebra I", Quota: 25})
	require.NoError(t, err)
	assert.Equal(t, 25, subject.Quota)
	assert.Empty(t, cacheRepo.entries)
}

func TestSubjectServiceDeleteWithHistory(t *testing.T) {
	svc, repo, _ := newTestSubjectService()
	repo.subjects["sub-1"] = &models.SubjectDetail{
		Subject: models.Subject{ID: "sub-1", Name: "Algebra", Quota: 30},
	}
	repo.withHistory["sub-1"] = true

	err := svc.Delete(context.Background(), "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrHasHistory.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestSubjectServiceDeleteWithoutHistory(t *testing.T) {
	svc, repo, _ := newTestSubjectService()
	repo.subjects["sub-1"] = &models.SubjectDetail{
		Subject: models.Subject{ID: "sub-1", Name: "Algebra", Quota: 30},
	}

	require.NoError(t, svc.Delete(context.Background(), "sub-1"))
	assert.Equal(t, []string{"sub-1"}, repo.deleted)
}
