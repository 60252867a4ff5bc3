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

type mockCareerRepo struct {
	careers   map[string]*models.CareerDetail
	usedNames map[string]string
	statuses  map[string]models.CareerStatus
	deleted   []string
	attached  [][2]string
	detached  [][2]string
}

func newMockCareerRepo() *mockCareerRepo {
	return &mockCareerRepo{
		careers:   map[string]*models.CareerDetail{},
		usedNames: map[string]string{},
		statuses:  map[string]models.CareerStatus{},
	}
}

func (m *mockCareerRepo) List(_ context.Context, _ models.CareerFilter) ([]models.CareerDetail, int, error) {
	var out []models.CareerDetail
	for _, c := range m.careers {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockCareerRepo) FindByID(_ context.Context, id string) (*models.CareerDetail, error) {
	if c, ok := m.careers[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCareerRepo) NameInUse(_ context.Context, name string, excludeID string) (bool, error) {
	owner, ok := m.usedNames[strings.ToLower(name)]
	return ok && owner != excludeID, nil
}

func (m *mockCareerRepo) Create(_ context.Context, career *models.Career) error {
	m.careers[career.ID] = &models.CareerDetail{Career: *career}
	m.usedNames[strings.ToLower(career.Name)] = career.ID
	return nil
}

func (m *mockCareerRepo) Update(_ context.Context, career *models.Career) error {
	m.careers[career.ID] = &models.CareerDetail{Career: *career}
	return nil
}

func (m *mockCareerRepo) SetStatus(_ context.Context, id string, status models.CareerStatus) error {
	m.statuses[id] = status
	return nil
}

func (m *mockCareerRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.careers, id)
	return nil
}

func (m *mockCareerRepo) AttachSubject(_ context.Context, careerID, subjectID string) error {
	m.attached = append(m.attached, [2]string{careerID, subjectID})
	return nil
}

func (m *mockCareerRepo) DetachSubject(_ context.Context, careerID, subjectID string) error {
	m.detached = append(m.detached, [2]string{careerID, subjectID})
	return nil
}

type mockSubjectFinder struct {
	subjects map[string]*models.SubjectDetail
}

func (m *mockSubjectFinder) FindByID(_ context.Context, id string) (*models.SubjectDetail, error) {
	if s, ok := m.subjects[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

// fakeCacheRepo is an in-memory CacheRepository used to observe invalidation.
type fakeCacheRepo struct {
	entries map[string][]byte
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{entries: map[string][]byte{}}
}

func (f *fakeCacheRepo) Get(_ context.Context, key string, _ interface{}) error {
	if _, ok := f.entries[key]; !ok {
		return appErrors.ErrCacheMiss
	}
	return nil
}

func (f *fakeCacheRepo) Set(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	f.entries[key] = []byte("cached")
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range f.entries {
		if strings.HasPrefix(key, prefix) {
			delete(f.entries, key)
		}
	}
	return nil
}

func newTestCareerService() (*CareerService, *mockCareerRepo, *fakeCacheRepo) {
	repo := newMockCareerRepo()
	subjects := &mockSubjectFinder{subjects: map[string]*models.SubjectDetail{
		"sub-1": {Subject: models.Subject{ID: "sub-1", Name: "Algebra", Quota: 30}},
	}}
	cacheRepo := newFakeCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	return NewCareerService(repo, subjects, cache, nil, nil), repo, cacheRepo
}

func TestCareerServiceCreate(t *testing.T) {
	svc, _, _ := newTestCareerService()

	career, err := svc.Create(context.Background(), CreateCareerRequest{Name: "Systems Engineering"})
	require.NoError(t, err)
	require.NotEmpty(t, career.ID)
	assert.Equal(t, models.CareerDraft, career.Status)

	_, err = svc.Create(context.Background(), CreateCareerRequest{Name: "Systems Engineering"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCareerServiceActivate(t *testing.T) {
	svc, repo, _ := newTestCareerService()
	repo.careers["career-1"] = &models.CareerDetail{
		Career: models.Career{ID: "career-1", Name: "Law", Status: models.CareerDraft},
	}

	require.NoError(t, svc.Activate(context.Background(), "career-1"))
	assert.Equal(t, models.CareerActive, repo.statuses["career-1"])

	// already active, no second transition
	repo.careers["career-1"].Status = models.CareerActive
	delete(repo.statuses, "career-1")
	require.NoError(t, svc.Activate(context.Background(), "career-1"))
	_, transitioned := repo.statuses["career-1"]
	assert.False(t, transitioned)
}

func TestCareerServiceArchiveWithDependents(t *testing.T) {
	svc, repo, _ := newTestCareerService()
	repo.careers["career-1"] = &models.CareerDetail{
		Career:       models.Career{ID: "career-1", Name: "Law", Status: models.CareerActive},
		SubjectCount: 3,
		StudentCount: 12,
	}

	err := svc.Archive(context.Background(), "career-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrHasDependents.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), "career-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrHasDependents.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestCareerServiceDeleteEmptyCareer(t *testing.T) {
	svc, repo, _ := newTestCareerService()
	repo.careers["career-1"] = &models.CareerDetail{
		Career: models.Career{ID: "career-1", Name: "Law", Status: models.CareerDraft},
	}

	require.NoError(t, svc.Delete(context.Background(), "career-1"))
	assert.Equal(t, []string{"career-1"}, repo.deleted)
}

func TestCareerServiceAttachSubjectInvalidatesCatalog(t *testing.T) {
	svc, repo, cacheRepo := newTestCareerService()
	repo.careers["career-1"] = &models.CareerDetail{
		Career: models.Career{ID: "career-1", Name: "Law", Status: models.CareerActive},
	}
	cacheRepo.entries["catalog:available:career:career-1:student:stu-1"] = []byte("cached")
	cacheRepo.entries["catalog:available:career:career-2:student:stu-2"] = []byte("cached")

	require.NoError(t, svc.AttachSubject(context.Background(), "career-1", "sub-1"))
	assert.Equal(t, [][2]string{{"career-1", "sub-1"}}, repo.attached)
	assert.NotContains(t, cacheRepo.entries, "catalog:available:career:career-1:student:stu-1")
	assert.Contains(t, cacheRepo.entries, "catalog:available:career:career-2:student:stu-2")
}

func TestCareerServiceAttachSubjectUnknownSubject(t *testing.T) {
	svc, repo, _ := newTestCareerService()
	repo.careers["career-1"] = &models.CareerDetail{
		Career: models.Career{ID: "career-1", Name: "Law", Status: models.CareerActive},
	}

	err := svc.AttachSubject(context.Background(), "career-1", "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
