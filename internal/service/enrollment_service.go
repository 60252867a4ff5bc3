package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sga-platform/sga-api/internal/models"
	"github.com/sga-platform/sga-api/internal/repository"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
	"github.com/sga-platform/sga-api/pkg/export"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Exists(ctx context.Context, studentID, subjectID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, grade *float64) error
	ListCurrentByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.EnrollmentDetail, error)
}

type enrollmentStudentRepository interface {
	FindByAccountID(ctx context.Context, accountID string) (*models.Student, error)
}

type enrollmentSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	ListAvailableForStudent(ctx context.Context, careerID, studentID string) ([]models.AvailableSubject, error)
}

type enrollmentCareerRepository interface {
	SubjectBelongs(ctx context.Context, careerID, subjectID string) (bool, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// SetEnrollmentStatusRequest records an academic outcome for an enrollment.
type SetEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=REGULAR APPROVED FAILED ABSENT"`
	Grade  *float64                `json:"grade" validate:"omitempty,gte=0,lte=10"`
}

// EnrollmentService implements the enrollment ledger use-cases.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  enrollmentStudentRepository
	subjects  enrollmentSubjectRepository
	careers   enrollmentCareerRepository
	cache     *CacheService
	metrics   *MetricsService
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, students enrollmentStudentRepository, subjects enrollmentSubjectRepository, careers enrollmentCareerRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		students:  students,
		subjects:  subjects,
		careers:   careers,
		cache:     cache,
		metrics:   metrics,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Enroll registers the calling student into a subject. Validation runs in a
// fixed order so the caller always sees the most specific failure: identity,
// subject existence, curriculum membership, enrollment history, quota. The
// duplicate and quota checks are re-verified inside the repository
// transaction, so concurrent attempts cannot oversubscribe a subject.
func (s *EnrollmentService) Enroll(ctx context.Context, claims *models.JWTClaims, subjectID string) (*models.Enrollment, error) {
	student, err := s.resolveStudent(ctx, claims)
	if err != nil {
		return nil, err
	}

	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	belongs, err := s.careers.SubjectBelongs(ctx, student.CareerID, subject.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check curriculum")
	}
	if !belongs {
		return nil, appErrors.Clone(appErrors.ErrNotInCurriculum, "subject is not part of the student's career")
	}

	enrolled, err := s.repo.Exists(ctx, student.ID, subject.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment history")
	}
	if enrolled {
		s.metrics.RecordEnrollmentAttempt("duplicate")
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "student already has an enrollment for this subject")
	}

	enrolledAt := s.now().UTC()
	enrollment := &models.Enrollment{
		StudentID:  student.ID,
		SubjectID:  subject.ID,
		Status:     models.EnrollmentStatusActive,
		Semester:   models.SemesterAt(enrolledAt),
		EnrolledAt: enrolledAt,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		switch {
		case errors.Is(err, repository.ErrQuotaExceeded):
			s.metrics.RecordEnrollmentAttempt("quota_full")
			return nil, appErrors.Clone(appErrors.ErrQuotaFull, "subject has no free seats")
		case errors.Is(err, repository.ErrDuplicateEnrollment):
			s.metrics.RecordEnrollmentAttempt("duplicate")
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "student already has an enrollment for this subject")
		case errors.Is(err, repository.ErrSubjectMissing):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.metrics.RecordEnrollmentAttempt("created")
	s.invalidateCatalog(ctx, student.CareerID)
	return enrollment, nil
}

// Withdraw drops an enrollment owned by the calling student. Only ACTIVE and
// REGULAR enrollments can be withdrawn; the row remains in the ledger and the
// seat is freed.
func (s *EnrollmentService) Withdraw(ctx context.Context, claims *models.JWTClaims, enrollmentID string) error {
	student, err := s.resolveStudent(ctx, claims)
	if err != nil {
		return err
	}

	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != student.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "enrollment does not belong to the caller")
	}
	if !enrollment.Status.Withdrawable() {
		return appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("enrollment in status %s cannot be withdrawn", enrollment.Status))
	}

	if err := s.repo.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusWithdrawn, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	s.invalidateCatalog(ctx, student.CareerID)
	return nil
}

// AvailableSubjects lists the subjects of the student's career the student
// has never enrolled into, annotated with live seat usage.
func (s *EnrollmentService) AvailableSubjects(ctx context.Context, claims *models.JWTClaims) ([]models.AvailableSubject, error) {
	student, err := s.resolveStudent(ctx, claims)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:student:%s", availableSubjectsKey(student.CareerID), student.ID)
	var cached []models.AvailableSubject
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	subjects, err := s.subjects.ListAvailableForStudent(ctx, student.CareerID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available subjects")
	}
	if err := s.cache.Set(ctx, key, subjects, 0); err != nil {
		s.logger.Warn("failed to cache available subjects", zap.String("career_id", student.CareerID), zap.Error(err))
	}
	return subjects, nil
}

// MyEnrollments returns the calling student's current (ACTIVE or REGULAR)
// enrollments.
func (s *EnrollmentService) MyEnrollments(ctx context.Context, claims *models.JWTClaims) ([]models.EnrollmentDetail, error) {
	student, err := s.resolveStudent(ctx, claims)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.repo.ListCurrentByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// List returns enrollments matching the filter, for administrative review.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// Get returns a single ledger row with student and subject context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// SetStatus records an academic outcome for an enrollment. Terminal
// outcomes free the subject seat since only ACTIVE rows count against the
// quota.
func (s *EnrollmentService) SetStatus(ctx context.Context, id string, req SetEnrollmentStatusRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "withdrawn enrollments cannot receive outcomes")
	}

	if err := s.repo.UpdateStatus(ctx, enrollment.ID, req.Status, req.Grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	enrollment.Status = req.Status
	if req.Grade != nil {
		enrollment.Grade = req.Grade
	}
	s.invalidateCatalog(ctx, "")
	return enrollment, nil
}

// Roster returns every ledger row for a subject ordered by student surname.
func (s *EnrollmentService) Roster(ctx context.Context, subjectID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.subjects.FindByID(ctx, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	roster, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return roster, nil
}

// ExportRoster renders a subject roster as CSV or PDF.
func (s *EnrollmentService) ExportRoster(ctx context.Context, subjectID, format string) ([]byte, string, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	roster, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := rosterDataset(roster)
	switch format {
	case "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, fmt.Sprintf("Roster: %s", subject.Name))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	}
	return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
}

func rosterDataset(roster []models.EnrollmentDetail) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"DNI", "Surname", "Name", "Status", "Semester", "Grade"},
	}
	for _, row := range roster {
		grade := ""
		if row.Grade != nil {
			grade = fmt.Sprintf("%.2f", *row.Grade)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"DNI":      row.StudentDNI,
			"Surname":  row.StudentSurname,
			"Name":     row.StudentName,
			"Status":   string(row.Status),
			"Semester": row.Semester,
			"Grade":    grade,
		})
	}
	return dataset
}

// resolveStudent maps the JWT claims to a student profile. Non-student
// callers and accounts with no profile get NOT_A_STUDENT.
func (s *EnrollmentService) resolveStudent(ctx context.Context, claims *models.JWTClaims) (*models.Student, error) {
	if claims == nil || claims.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotAStudent, "caller is not a student")
	}
	student, err := s.students.FindByAccountID(ctx, claims.AccountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotAStudent, "caller has no student profile")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return student, nil
}

// invalidateCatalog drops cached available-subject lists. An empty career ID
// clears every career since the affected careers are unknown.
func (s *EnrollmentService) invalidateCatalog(ctx context.Context, careerID string) {
	pattern := availableSubjectsKeyPrefix + "*"
	if careerID != "" {
		pattern = availableSubjectsKey(careerID) + "*"
	}
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}
