package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records/internal/models"
)

func TestAttendanceRepositoryUpsertKeepsStoredID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	created := now.Add(-time.Hour)
	day := models.AttendanceDay(now)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, course_id, date)")).
		WithArgs("a-new", "s1", "c1", day, false, nil, now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("a-existing", created))

	record := &models.Attendance{ID: "a-new", StudentID: "s1", CourseID: "c1", Date: day, Present: false, UpdatedAt: now}
	require.NoError(t, repo.Upsert(context.Background(), record))
	assert.Equal(t, "a-existing", record.ID)
	assert.Equal(t, created, record.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE present) AS present")).
		WithArgs("s1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "present"}).AddRow(5, 4))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND is_deleted = FALSE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "present"}).AddRow(9, 6))

	counts, err := repo.Counts(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceCounts{Total: 5, Present: 4}, counts)

	counts, err = repo.Counts(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, 9, counts.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	present := true
	from := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance WHERE is_deleted = FALSE AND course_id = $1 AND present = $2 AND date >= $3 ORDER BY date DESC")).
		WithArgs("c1", true, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "date", "present", "notes", "created_at", "updated_at", "is_deleted"}).
			AddRow("a1", "s1", "c1", from, true, nil, from, from, false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance WHERE is_deleted = FALSE")).
		WithArgs("c1", true, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{CourseID: "c1", Present: &present, DateFrom: &from})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
