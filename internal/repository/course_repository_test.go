package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records/internal/models"
)

var courseRowColumns = []string{"id", "name", "code", "description", "credits", "capacity", "teacher_id", "status", "start_date", "end_date", "schedule", "location", "created_at", "updated_at", "is_deleted", "deleted_at", "deleted_by"}

func TestCourseRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(courseRowColumns).
		AddRow("c1", "Algebra", "MATH-101", nil, 3, 30, "t1", "IN_PROGRESS", now, nil, nil, nil, now, now, false, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE TRUE AND teacher_id = $1 AND status = $2 ORDER BY code ASC LIMIT 10 OFFSET 10")).
		WithArgs("t1", "IN_PROGRESS").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE TRUE AND teacher_id = $1 AND status = $2")).
		WithArgs("t1", "IN_PROGRESS").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{
		TeacherID: "t1",
		Status:    models.CourseStatusInProgress,
		Mode:      models.DeletedModeInclude,
		Page:      2,
		PageSize:  10,
	})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, models.CourseStatusInProgress, courses[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCreateDuplicateCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").WillReturnError(&pq.Error{Code: "23505"})

	course := &models.Course{Name: "Algebra", Code: "MATH-101", Credits: 3, Capacity: 30, TeacherID: "t1", Status: models.CourseStatusNotStarted}
	course.ID = "c1"
	assert.ErrorIs(t, repo.Create(context.Background(), course), ErrDuplicate)
}

func TestCourseRepositoryTransitionCompareAndSet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	course := &models.Course{Status: models.CourseStatusNotStarted}
	course.ID = "c1"
	require.NoError(t, course.Apply(models.TransitionStart, now))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET status = $2, start_date = $3, end_date = $4, updated_at = $5")).
		WithArgs("c1", "IN_PROGRESS", sqlmock.AnyArg(), sqlmock.AnyArg(), now, pq.Array([]string{"NOT_STARTED"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Transition(context.Background(), course, models.TransitionStart.From))

	mock.ExpectExec(regexp.QuoteMeta("status = ANY($6)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Transition(context.Background(), course, models.TransitionStart.From)
	assert.ErrorIs(t, err, ErrTransitionRejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositorySoftDeleteRejectsActiveEnrollments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM courses WHERE id = $1 AND is_deleted = FALSE FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM student_courses WHERE course_id = $1 AND is_active = TRUE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.SoftDelete(context.Background(), "c1", "admin", time.Now())
	assert.ErrorIs(t, err, ErrCourseHasActiveEnrollment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	at := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM student_courses")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET is_deleted = TRUE")).
		WithArgs("c1", at, "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SoftDelete(context.Background(), "c1", "admin", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositorySoftDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.SoftDelete(context.Background(), "missing", "", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryRestoreNotDeleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET is_deleted = FALSE")).
		WithArgs("c1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Restore(context.Background(), "c1", at), ErrNotDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
