package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sga-platform/sga-api/internal/models"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	NameInUse(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	HasEnrollments(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type subjectTeacherRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// CreateSubjectRequest holds payload for creating subjects.
type CreateSubjectRequest struct {
	Name        string  `json:"name" validate:"required"`
	TeacherID   *string `json:"teacher_id"`
	Quota       int     `json:"quota" validate:"required,gt=0"`
	Description *string `json:"description"`
}

// UpdateSubjectRequest holds payload for updating subjects.
type UpdateSubjectRequest struct {
	Name        string  `json:"name" validate:"required"`
	TeacherID   *string `json:"teacher_id"`
	Quota       int     `json:"quota" validate:"required,gt=0"`
	Description *string `json:"description"`
}

// SubjectService handles subject catalog use-cases.
type SubjectService struct {
	repo      subjectRepository
	teachers  subjectTeacherRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs the subject service.
func NewSubjectService(repo subjectRepository, teachers subjectTeacherRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, teachers: teachers, cache: cache, validator: validate, logger: logger}
}

// List returns subjects and pagination metadata.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return subjects, pagination, nil
}

// Get returns a subject with teacher context and live seat usage.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.SubjectDetail, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create registers a new subject.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	taken, err := s.repo.NameInUse(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate subject name")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject name already in use")
	}
	if err := s.checkTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}
	subject := &models.Subject{
		ID:          uuid.NewString(),
		Name:        req.Name,
		TeacherID:   req.TeacherID,
		Quota:       req.Quota,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// Update modifies an existing subject. Quota changes only affect future
// enrollment attempts; existing active enrollments are never revoked.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	taken, err := s.repo.NameInUse(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate subject name")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject name already in use")
	}
	if err := s.checkTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}
	subject := &models.Subject{
		ID:          detail.ID,
		Name:        req.Name,
		TeacherID:   req.TeacherID,
		Quota:       req.Quota,
		Description: req.Description,
	}
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	s.invalidateCatalog(ctx)
	return subject, nil
}

// Delete removes a subject. Subjects with any enrollment history, in any
// status, cannot be deleted; the ledger is permanent.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	hasHistory, err := s.repo.HasEnrollments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment history")
	}
	if hasHistory {
		return appErrors.Clone(appErrors.ErrHasHistory, "subject has enrollment history")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.invalidateCatalog(ctx)
	return nil
}

func (s *SubjectService) checkTeacher(ctx context.Context, teacherID *string) error {
	if teacherID == nil || *teacherID == "" {
		return nil
	}
	exists, err := s.teachers.Exists(ctx, *teacherID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate teacher")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return nil
}

// invalidateCatalog drops every career's cached available-subjects list.
// Subject-level changes can affect any career the subject belongs to.
func (s *SubjectService) invalidateCatalog(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, availableSubjectsKeyPrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}
