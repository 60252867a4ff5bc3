package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/sga-platform/sga-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT quota FROM subjects WHERE id = $1 FOR UPDATE")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"quota"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE subject_id = $1 AND status = $2")).
		WithArgs("sub-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "stu-1", SubjectID: "sub-1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.Equal(t, models.SemesterAt(enrollment.EnrolledAt), enrollment.Semester)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateQuotaFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT quota FROM subjects WHERE id = $1 FOR UPDATE")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"quota"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE subject_id = $1 AND status = $2")).
		WithArgs("sub-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", SubjectID: "sub-1"})
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT quota FROM subjects WHERE id = $1 FOR UPDATE")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"quota"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE subject_id = $1 AND status = $2")).
		WithArgs("sub-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", SubjectID: "sub-1"})
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateMissingSubject(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT quota FROM subjects WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"quota"}))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", SubjectID: "missing"})
	require.ErrorIs(t, err, ErrSubjectMissing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND subject_id = $2 LIMIT 1")).
		WithArgs("stu-1", "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "stu-1", "sub-1")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND subject_id = $2 LIMIT 1")).
		WithArgs("stu-1", "sub-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))

	exists, err = repo.Exists(context.Background(), "stu-1", "sub-2")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListCurrentByStudent(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "student_id", "subject_id", "status", "semester", "grade", "enrolled_at",
		"student_name", "student_surname", "student_dni", "subject_name", "career_name",
	}).AddRow("enr-1", "stu-1", "sub-1", models.EnrollmentStatusActive, "2026-2", nil, time.Now(),
		"Ana", "Gomez", "30111222", "Algebra", "Systems Engineering")

	mock.ExpectQuery("(?s)SELECT .+ FROM enrollments e").
		WithArgs("stu-1", models.EnrollmentStatusActive, models.EnrollmentStatusRegular).
		WillReturnRows(rows)

	enrollments, err := repo.ListCurrentByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, "Algebra", enrollments[0].SubjectName)
	require.NoError(t, mock.ExpectationsWereMet())
}
