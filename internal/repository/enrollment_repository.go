package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
)

const enrollmentColumns = `id, student_id, course_id, enrolled_at, is_active, created_at, updated_at`

// EnrollmentRepository handles persistence for student_courses rows.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Enroll registers the student in the course as one transaction. The course
// row is locked first so the gate, the duplicate check and the capacity count
// all see a stable view; concurrent enrollments into the same course queue on
// the lock.
func (r *EnrollmentRepository) Enroll(ctx context.Context, params models.EnrollParams) (result *models.EnrollResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var course struct {
		Status   models.CourseStatus `db:"status"`
		Capacity int                 `db:"capacity"`
	}
	const lockQuery = `SELECT status, capacity FROM courses WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`
	if err = tx.GetContext(ctx, &course, lockQuery, params.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock course: %w", err)
	}

	if !statusIn(course.Status, params.AllowedStatuses) {
		err = ErrEnrollmentClosed
		return nil, err
	}

	var existing models.Enrollment
	hasRow := true
	pairQuery := fmt.Sprintf("SELECT %s FROM student_courses WHERE student_id = $1 AND course_id = $2 FOR UPDATE", enrollmentColumns)
	if err = tx.GetContext(ctx, &existing, pairQuery, params.StudentID, params.CourseID); err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("load enrollment: %w", err)
		}
		hasRow = false
		err = nil
	}
	if hasRow && existing.IsActive {
		err = ErrAlreadyEnrolled
		return nil, err
	}

	var active int
	if err = tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM student_courses WHERE course_id = $1 AND is_active = TRUE`, params.CourseID); err != nil {
		return nil, fmt.Errorf("count active enrollments: %w", err)
	}
	if active >= course.Capacity {
		err = ErrCourseFull
		return nil, err
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result = &models.EnrollResult{ActiveCount: active + 1}
	if hasRow {
		const reactivate = `UPDATE student_courses SET is_active = TRUE, enrolled_at = $2, updated_at = $2 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, reactivate, existing.ID, now); err != nil {
			return nil, fmt.Errorf("reactivate enrollment: %w", err)
		}
		existing.IsActive = true
		existing.EnrolledAt = now
		existing.UpdatedAt = now
		result.Enrollment = existing
		result.Reactivated = true
	} else {
		enrollment := models.Enrollment{
			ID:         uuid.NewString(),
			StudentID:  params.StudentID,
			CourseID:   params.CourseID,
			EnrolledAt: now,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		const insert = `INSERT INTO student_courses (id, student_id, course_id, enrolled_at, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, TRUE, $4, $4)`
		if _, err = tx.ExecContext(ctx, insert, enrollment.ID, enrollment.StudentID, enrollment.CourseID, now); err != nil {
			if isUniqueViolation(err) {
				err = ErrAlreadyEnrolled
				return nil, err
			}
			return nil, fmt.Errorf("insert enrollment: %w", err)
		}
		result.Enrollment = enrollment
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrollment: %w", err)
	}
	return result, nil
}

// Deactivate flips an active enrollment off. It reports whether a row changed.
func (r *EnrollmentRepository) Deactivate(ctx context.Context, courseID, studentID string, at time.Time) (bool, error) {
	const query = `UPDATE student_courses SET is_active = FALSE, updated_at = $3 WHERE course_id = $1 AND student_id = $2 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, courseID, studentID, at)
	if err != nil {
		return false, fmt.Errorf("deactivate enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate enrollment rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountActive returns the number of active enrollments in a course.
func (r *EnrollmentRepository) CountActive(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM student_courses WHERE course_id = $1 AND is_active = TRUE`, courseID); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// ListActiveByCourse returns the active roster of a course.
func (r *EnrollmentRepository) ListActiveByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.enrolled_at, e.is_active, e.created_at, e.updated_at,
        s.student_number, u.first_name, u.last_name
        FROM student_courses e
        JOIN students s ON s.id = e.student_id
        JOIN users u ON u.id = s.user_id
        WHERE e.course_id = $1 AND e.is_active = TRUE
        ORDER BY s.student_number ASC`
	var roster []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &roster, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return roster, nil
}

func statusIn(status models.CourseStatus, allowed []models.CourseStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
