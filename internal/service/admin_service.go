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

type adminRepository interface {
	List(ctx context.Context, filter models.AdminFilter) ([]models.AdminDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.AdminDetail, error)
	CreateWithAccount(ctx context.Context, account *models.Account, admin *models.Admin) error
	UpdateWithAccount(ctx context.Context, admin *models.Admin, email string) error
}

type adminAccountRepository interface {
	EmailInUse(ctx context.Context, email string, excludeID string) (bool, error)
	DNIInUse(ctx context.Context, dni string, excludeRole models.Role, excludeID string) (bool, error)
	SetStatus(ctx context.Context, id string, status models.AccountStatus) error
}

// CreateAdminRequest holds payload for provisioning an admin. Unlike
// students and teachers, admins choose their password up front.
type CreateAdminRequest struct {
	Email      string     `json:"email" validate:"required,email"`
	Password   string     `json:"password" validate:"required,min=6"`
	DNI        string     `json:"dni" validate:"required"`
	Name       string     `json:"name" validate:"required"`
	Surname    string     `json:"surname" validate:"required"`
	Department *string    `json:"department"`
	HireDate   time.Time  `json:"hire_date" validate:"required"`
	Address    *string    `json:"address"`
	BirthDate  *time.Time `json:"birth_date"`
	Phone      *string    `json:"phone"`
}

// UpdateAdminRequest holds payload for updating an admin.
type UpdateAdminRequest struct {
	Email      string     `json:"email" validate:"required,email"`
	DNI        string     `json:"dni" validate:"required"`
	Name       string     `json:"name" validate:"required"`
	Surname    string     `json:"surname" validate:"required"`
	Department *string    `json:"department"`
	HireDate   time.Time  `json:"hire_date" validate:"required"`
	Address    *string    `json:"address"`
	BirthDate  *time.Time `json:"birth_date"`
	Phone      *string    `json:"phone"`
}

// AdminService handles admin provisioning use-cases.
type AdminService struct {
	repo      adminRepository
	accounts  adminAccountRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAdminService constructs the admin service.
func NewAdminService(repo adminRepository, accounts adminAccountRepository, validate *validator.Validate, logger *zap.Logger) *AdminService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{repo: repo, accounts: accounts, validator: validate, logger: logger, now: time.Now}
}

// List returns admins and pagination metadata.
func (s *AdminService) List(ctx context.Context, filter models.AdminFilter) ([]models.AdminDetail, *models.Pagination, error) {
	admins, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admins")
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
	return admins, pagination, nil
}

// Get returns detailed admin information.
func (s *AdminService) Get(ctx context.Context, id string) (*models.AdminDetail, error) {
	admin, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admin not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin")
	}
	return admin, nil
}

// Create provisions an admin profile together with its account.
func (s *AdminService) Create(ctx context.Context, req CreateAdminRequest) (*models.Admin, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admin payload")
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

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	account := &models.Account{
		ID:                 uuid.NewString(),
		Email:              req.Email,
		PasswordHash:       string(hash),
		Role:               models.RoleAdmin,
		Status:             models.AccountActive,
		MustChangePassword: false,
	}
	admin := &models.Admin{
		ID:         uuid.NewString(),
		AccountID:  account.ID,
		DNI:        req.DNI,
		Name:       req.Name,
		Surname:    req.Surname,
		Department: req.Department,
		HireDate:   req.HireDate,
		Address:    req.Address,
		BirthDate:  req.BirthDate,
		Phone:      req.Phone,
	}
	if err := s.repo.CreateWithAccount(ctx, account, admin); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admin")
	}
	return admin, nil
}

// Update modifies an existing admin profile and its account email.
func (s *AdminService) Update(ctx context.Context, id string, req UpdateAdminRequest) (*models.Admin, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admin payload")
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
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admin not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin")
	}

	if err := s.checkUniqueness(ctx, req.DNI, req.Email, detail.ID, detail.AccountID); err != nil {
		return nil, err
	}

	admin := &models.Admin{
		ID:         detail.ID,
		AccountID:  detail.AccountID,
		DNI:        req.DNI,
		Name:       req.Name,
		Surname:    req.Surname,
		Department: req.Department,
		HireDate:   req.HireDate,
		Address:    req.Address,
		BirthDate:  req.BirthDate,
		Phone:      req.Phone,
	}
	if err := s.repo.UpdateWithAccount(ctx, admin, req.Email); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update admin")
	}
	return admin, nil
}

// SetAccountStatus toggles the paired account between ACTIVE and SUSPENDED.
func (s *AdminService) SetAccountStatus(ctx context.Context, id string, status models.AccountStatus) error {
	if status != models.AccountActive && status != models.AccountSuspended {
		return appErrors.Clone(appErrors.ErrValidation, "unknown account status")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "admin not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin")
	}
	if err := s.accounts.SetStatus(ctx, detail.AccountID, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account status")
	}
	return nil
}

func (s *AdminService) checkUniqueness(ctx context.Context, dni, email, excludeProfileID, excludeAccountID string) error {
	var excludeRole models.Role
	if excludeProfileID != "" {
		excludeRole = models.RoleAdmin
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
