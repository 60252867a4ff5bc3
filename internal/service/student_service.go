package service

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sga-platform/sga-api/internal/models"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
)

// dniPattern matches national identity numbers of 7 or 8 digits.
var dniPattern = regexp.MustCompile(`^[0-9]{7,8}$`)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	CreateWithAccount(ctx context.Context, account *models.Account, student *models.Student) error
	UpdateWithAccount(ctx context.Context, student *models.Student, email string) error
}

type studentAccountRepository interface {
	EmailInUse(ctx context.Context, email string, excludeID string) (bool, error)
	DNIInUse(ctx context.Context, dni string, excludeRole models.Role, excludeID string) (bool, error)
	SetStatus(ctx context.Context, id string, status models.AccountStatus) error
}

type studentCareerRepository interface {
	FindByID(ctx context.Context, id string) (*models.CareerDetail, error)
}

// CreateStudentRequest holds payload for provisioning a student.
type CreateStudentRequest struct {
	Email     string     `json:"email" validate:"required,email"`
	DNI       string     `json:"dni" validate:"required"`
	Name      string     `json:"name" validate:"required"`
	Surname   string     `json:"surname" validate:"required"`
	CareerID  string     `json:"career_id" validate:"required"`
	Address   *string    `json:"address"`
	BirthDate *time.Time `json:"birth_date"`
	Phone     *string    `json:"phone"`
}

// UpdateStudentRequest holds payload for updating a student.
type UpdateStudentRequest struct {
	Email     string     `json:"email" validate:"required,email"`
	DNI       string     `json:"dni" validate:"required"`
	Name      string     `json:"name" validate:"required"`
	Surname   string     `json:"surname" validate:"required"`
	CareerID  string     `json:"career_id" validate:"required"`
	Address   *string    `json:"address"`
	BirthDate *time.Time `json:"birth_date"`
	Phone     *string    `json:"phone"`
}

// StudentService handles student provisioning use-cases.
type StudentService struct {
	repo      studentRepository
	accounts  studentAccountRepository
	careers   studentCareerRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, accounts studentAccountRepository, careers studentCareerRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, accounts: accounts, careers: careers, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
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
	return students, pagination, nil
}

// Get returns detailed student information.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create provisions a student profile together with its account. The
// initial password is the DNI and the account is flagged to force a
// password change on first login.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if !dniPattern.MatchString(req.DNI) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dni must be 7 or 8 digits")
	}

	if err := s.checkUniqueness(ctx, req.DNI, req.Email, "", ""); err != nil {
		return nil, err
	}

	if _, err := s.careers.FindByID(ctx, req.CareerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.DNI), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash initial password")
	}

	account := &models.Account{
		ID:                 uuid.NewString(),
		Email:              req.Email,
		PasswordHash:       string(hash),
		Role:               models.RoleStudent,
		Status:             models.AccountActive,
		MustChangePassword: true,
	}
	student := &models.Student{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		CareerID:  req.CareerID,
		DNI:       req.DNI,
		Name:      req.Name,
		Surname:   req.Surname,
		Address:   req.Address,
		BirthDate: req.BirthDate,
		Phone:     req.Phone,
	}
	if err := s.repo.CreateWithAccount(ctx, account, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies an existing student profile and its account email.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if !dniPattern.MatchString(req.DNI) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dni must be 7 or 8 digits")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.checkUniqueness(ctx, req.DNI, req.Email, detail.ID, detail.AccountID); err != nil {
		return nil, err
	}

	if _, err := s.careers.FindByID(ctx, req.CareerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}

	student := &models.Student{
		ID:        detail.ID,
		AccountID: detail.AccountID,
		CareerID:  req.CareerID,
		DNI:       req.DNI,
		Name:      req.Name,
		Surname:   req.Surname,
		Address:   req.Address,
		BirthDate: req.BirthDate,
		Phone:     req.Phone,
	}
	if err := s.repo.UpdateWithAccount(ctx, student, req.Email); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// SetAccountStatus toggles the paired account between ACTIVE and SUSPENDED.
func (s *StudentService) SetAccountStatus(ctx context.Context, id string, status models.AccountStatus) error {
	if status != models.AccountActive && status != models.AccountSuspended {
		return appErrors.Clone(appErrors.ErrValidation, "unknown account status")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.accounts.SetStatus(ctx, detail.AccountID, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account status")
	}
	return nil
}

func (s *StudentService) checkUniqueness(ctx context.Context, dni, email, excludeProfileID, excludeAccountID string) error {
	var excludeRole models.Role
	if excludeProfileID != "" {
		excludeRole = models.RoleStudent
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
