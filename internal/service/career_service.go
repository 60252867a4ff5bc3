package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sga-platform/sga-api/internal/models"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
)

// Cache key layout for the catalog of subjects open to a career's students.
const availableSubjectsKeyPrefix = "catalog:available:career:"

func availableSubjectsKey(careerID string) string {
	return availableSubjectsKeyPrefix + careerID
}

type careerRepository interface {
	List(ctx context.Context, filter models.CareerFilter) ([]models.CareerDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CareerDetail, error)
	NameInUse(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, career *models.Career) error
	Update(ctx context.Context, career *models.Career) error
	SetStatus(ctx context.Context, id string, status models.CareerStatus) error
	Delete(ctx context.Context, id string) error
	AttachSubject(ctx context.Context, careerID, subjectID string) error
	DetachSubject(ctx context.Context, careerID, subjectID string) error
}

type careerSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.SubjectDetail, error)
}

// CreateCareerRequest holds payload for creating careers.
type CreateCareerRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

// UpdateCareerRequest holds payload for updating careers.
type UpdateCareerRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

// CareerService handles career catalog use-cases.
type CareerService struct {
	repo      careerRepository
	subjects  careerSubjectRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCareerService constructs the career service.
func NewCareerService(repo careerRepository, subjects careerSubjectRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CareerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CareerService{repo: repo, subjects: subjects, cache: cache, validator: validate, logger: logger}
}

// List returns careers and pagination metadata.
func (s *CareerService) List(ctx context.Context, filter models.CareerFilter) ([]models.CareerDetail, *models.Pagination, error) {
	careers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list careers")
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
	return careers, pagination, nil
}

// Get returns a career with dependent counts.
func (s *CareerService) Get(ctx context.Context, id string) (*models.CareerDetail, error) {
	career, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}
	return career, nil
}

// Create registers a new career in DRAFT state.
func (s *CareerService) Create(ctx context.Context, req CreateCareerRequest) (*models.Career, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid career payload")
	}
	taken, err := s.repo.NameInUse(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate career name")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "career name already in use")
	}
	career := &models.Career{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Status:      models.CareerDraft,
	}
	if err := s.repo.Create(ctx, career); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create career")
	}
	return career, nil
}

// Update modifies career name and description.
func (s *CareerService) Update(ctx context.Context, id string, req UpdateCareerRequest) (*models.Career, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid career payload")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}
	taken, err := s.repo.NameInUse(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate career name")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "career name already in use")
	}
	career := &models.Career{
		ID:          detail.ID,
		Name:        req.Name,
		Description: req.Description,
		Status:      detail.Status,
	}
	if err := s.repo.Update(ctx, career); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update career")
	}
	return career, nil
}

// Activate transitions a career to ACTIVE, opening it for student assignment.
func (s *CareerService) Activate(ctx context.Context, id string) error {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}
	if detail.Status == models.CareerActive {
		return nil
	}
	if err := s.repo.SetStatus(ctx, id, models.CareerActive); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate career")
	}
	return nil
}

// Archive retires a career. Careers with attached subjects or enrolled
// students cannot be archived.
func (s *CareerService) Archive(ctx context.Context, id string) error {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}
	if detail.SubjectCount > 0 || detail.StudentCount > 0 {
		return appErrors.Clone(appErrors.ErrHasDependents,
			fmt.Sprintf("career has %d subjects and %d students attached", detail.SubjectCount, detail.StudentCount))
	}
	if err := s.repo.SetStatus(ctx, id, models.CareerArchived); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive career")
	}
	return nil
}

// Delete removes a career permanently. The same dependent guard as Archive
// applies.
func (s *CareerService) Delete(ctx context.Context, id string) error {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}
	if detail.SubjectCount > 0 || detail.StudentCount > 0 {
		return appErrors.Clone(appErrors.ErrHasDependents,
			fmt.Sprintf("career has %d subjects and %d students attached", detail.SubjectCount, detail.StudentCount))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete career")
	}
	return nil
}

// AttachSubject adds a subject to the career's curriculum.
func (s *CareerService) AttachSubject(ctx context.Context, careerID, subjectID string) error {
	if _, err := s.repo.FindByID(ctx, careerID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}
	if _, err := s.subjects.FindByID(ctx, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.repo.AttachSubject(ctx, careerID, subjectID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach subject")
	}
	s.invalidateCatalog(ctx, careerID)
	return nil
}

// DetachSubject removes a subject from the career's curriculum.
func (s *CareerService) DetachSubject(ctx context.Context, careerID, subjectID string) error {
	if _, err := s.repo.FindByID(ctx, careerID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}
	if err := s.repo.DetachSubject(ctx, careerID, subjectID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to detach subject")
	}
	s.invalidateCatalog(ctx, careerID)
	return nil
}

func (s *CareerService) invalidateCatalog(ctx context.Context, careerID string) {
	if err := s.cache.Invalidate(ctx, availableSubjectsKey(careerID)+"*"); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.String("career_id", careerID), zap.Error(err))
	}
}
