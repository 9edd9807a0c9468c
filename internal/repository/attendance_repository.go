package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
)

const attendanceColumns = `id, student_id, course_id, date, present, notes, created_at, updated_at, is_deleted`

// AttendanceRepository persists per-day attendance marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert writes the mark for (student, course, date). Recording the same day
// again overwrites presence and notes; the stored id and created_at are
// copied back into record.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) error {
	const query = `INSERT INTO attendance (id, student_id, course_id, date, present, notes, created_at, updated_at, is_deleted)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7, FALSE)
        ON CONFLICT (student_id, course_id, date)
        DO UPDATE SET present = EXCLUDED.present, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at, is_deleted = FALSE
        RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, record.ID, record.StudentID, record.CourseID, record.Date, record.Present, record.Notes, record.UpdatedAt)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// Counts aggregates sessions for a student, optionally within one course.
func (r *AttendanceRepository) Counts(ctx context.Context, studentID, courseID string) (models.AttendanceCounts, error) {
	query := `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE present) AS present
        FROM attendance WHERE student_id = $1 AND is_deleted = FALSE`
	args := []interface{}{studentID}
	if courseID != "" {
		query += " AND course_id = $2"
		args = append(args, courseID)
	}
	var counts models.AttendanceCounts
	if err := r.db.GetContext(ctx, &counts, query, args...); err != nil {
		return models.AttendanceCounts{}, fmt.Errorf("count attendance: %w", err)
	}
	return counts, nil
}

// CourseCounts aggregates sessions for every student of a course.
func (r *AttendanceRepository) CourseCounts(ctx context.Context, courseID string) (models.AttendanceCounts, error) {
	const query = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE present) AS present
        FROM attendance WHERE course_id = $1 AND is_deleted = FALSE`
	var counts models.AttendanceCounts
	if err := r.db.GetContext(ctx, &counts, query, courseID); err != nil {
		return models.AttendanceCounts{}, fmt.Errorf("count course attendance: %w", err)
	}
	return counts, nil
}

// List returns attendance marks matching the filter with the total count.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	conditions := []string{"is_deleted = FALSE"}
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Present != nil {
		conditions = append(conditions, fmt.Sprintf("present = $%d", len(args)+1))
		args = append(args, *filter.Present)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, models.AttendanceDay(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, models.AttendanceDay(*filter.DateTo))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM attendance %s ORDER BY date DESC LIMIT %d OFFSET %d", attendanceColumns, where, size, offset)
	var records []models.Attendance
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM attendance "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance rows: %w", err)
	}
	return records, total, nil
}
