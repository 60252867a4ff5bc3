package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sga-platform/sga-api/internal/models"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.TeacherDetail, error)
	CreateWithAccount(ctx context.Context, account *models.Account, teacher *models.Teacher) error
	UpdateWithAccount(ctx context.Context, teacher *models.Teacher, email string) error
}

type teacherAccountRepository interface {
	EmailInUse(ctx context.Context, email string, excludeID string) (bool, error)
	DNIInUse(ctx context.Context, dni string, excludeRole models.Role, excludeID string) (bool, error)
	SetStatus(ctx context.Context, id string, status models.AccountStatus) error
}

// CreateTeacherRequest holds payload for provisioning a teacher.
type CreateTeacherRequest struct {
	Email          string                `json:"email" validate:"required,email"`
	DNI            string                `json:"dni" validate:"required"`
	Name           string                `json:"name" validate:"required"`
	Surname        string                `json:"surname" validate:"required"`
	AcademicDegree models.AcademicDegree `json:"academic_degree" validate:"required,oneof=GRADUATE ENGINEER MASTER DOCTOR TEACHER"`
	HireDate       time.Time             `json:"hire_date" validate:"required"`
	Address        *string               `json:"address"`
	BirthDate      *time.Time            `json:"birth_date"`
	Phone          *string               `json:"phone"`
}

// UpdateTeacherRequest holds payload for updating a teacher.
type UpdateTeacherRequest struct {
	Email          string                `json:"email" validate:"required,email"`
	DNI            string                `json:"dni" validate:"required"`
	Name           string                `json:"name" validate:"required"`
	Surname        string                `json:"surname" validate:"required"`
	AcademicDegree models.AcademicDegree `json:"academic_degree" validate:"required,oneof=GRADUATE ENGINEER MASTER DOCTOR TEACHER"`
	HireDate       time.Time             `json:"hire_date" validate:"required"`
	Address        *string               `json:"address"`
	BirthDate      *time.Time            `json:"birth_date"`
	Phone          *string               `json:"phone"`
}

// TeacherService handles teacher provisioning use-cases.
type TeacherService struct {
	repo      teacherRepository
	accounts  teacherAccountRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTeacherService constructs the teacher service.
func NewTeacherService(repo teacherRepository, accounts teacherAccountRepository, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, accounts: accounts, validator: validate, logger: logger, now: time.Now}
}

// List returns teachers and pagination metadata.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherDetail, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
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
	return teachers, pagination, nil
}

// Get returns detailed teacher information.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.TeacherDetail, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create provisions a teacher profile together with its account. Like
// students, teachers start with their DNI as password and must change it.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	if !dniPattern.MatchString(req.DNI) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dni must be 7 or 8 digits")
	}
	if req.HireDate.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hire date cannot be in the future")
	}

	if err := s.checkUniqueness(ctx, req.DNI, req.Email, "", ""); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.DNI), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash initial password")
	}

	account := &models.Account{
		ID:                 uuid.NewString(),
		Email:              req.Email,
		PasswordHash:       string(hash),
		Role:               models.RoleTeacher,
		Status:             models.AccountActive,
		MustChangePassword: true,
	}
	teacher := &models.Teacher{
		ID:             uuid.NewString(),
		AccountID:      account.ID,
		DNI:            req.DNI,
		Name:           req.Name,
		Surname:        req.Surname,
		AcademicDegree: req.AcademicDegree,
		HireDate:       req.HireDate,
		Address:        req.Address,
		BirthDate:      req.BirthDate,
		Phone:          req.Phone,
	}
	if err := s.repo.CreateWithAccount(ctx, account, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// Update modifies an existing teacher profile and its account email.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	if !dniPattern.MatchString(req.DNI) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dni must be 7 or 8 digits")
	}
	if req.HireDate.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hire date cannot be in the future")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if err := s.checkUniqueness(ctx, req.DNI, req.Email, detail.ID, detail.AccountID); err != nil {
		return nil, err
	}

	teacher := &models.Teacher{
		ID:             detail.ID,
		AccountID:      detail.AccountID,
		DNI:            req.DNI,
		Name:           req.Name,
		Surname:        req.Surname,
		AcademicDegree: req.AcademicDegree,
		HireDate:       req.HireDate,
		Address:        req.Address,
		BirthDate:      req.BirthDate,
		Phone:          req.Phone,
	}
	if err := s.repo.UpdateWithAccount(ctx, teacher, req.Email); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// SetAccountStatus toggles the paired account between ACTIVE and SUSPENDED.
func (s *TeacherService) SetAccountStatus(ctx context.Context, id string, status models.AccountStatus) error {
	if status != models.AccountActive && status != models.AccountSuspended {
		return appErrors.Clone(appErrors.ErrValidation, "unknown account status")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if err := s.accounts.SetStatus(ctx, detail.AccountID, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account status")
	}
	return nil
}

func (s *TeacherService) checkUniqueness(ctx context.Context, dni, email, excludeProfileID, excludeAccountID string) error {
	var excludeRole models.Role
	if excludeProfileID != "" {
		excludeRole = models.RoleTeacher
	}
	dniTaken, err := s.accounts.DNIInUse(ctx, dni, excludeRole, excludeProfileID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate dni")
	}
	if dniTaken {
		return appErrors.Clone(appErrors.ErrDuplicateDNI, "dni already registered")
	}
	emailTaken, err := s.accounts.EmailInUse(ctx, email, excludeAccountID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if emailTaken {
		return appErrors.Clone(appErrors.ErrDuplicateEmail, "email already registered")
	}
	return nil
}
