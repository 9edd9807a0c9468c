package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/academic-records/internal/models"
)

const courseColumns = `id, name, code, description, credits, capacity, teacher_id, status, start_date, end_date, schedule, location,
        created_at, updated_at, is_deleted, deleted_at, deleted_by`

// CourseRepository handles persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses matching the filter with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	conditions := []string{softDeleteClause("", filter.Mode)}
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM courses %s ORDER BY code ASC LIMIT %d OFFSET %d", courseColumns, where, size, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM courses "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID fetches a course honouring the soft-delete mode.
func (r *CourseRepository) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1 AND %s", courseColumns, softDeleteClause("", mode))
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ExistsByCode checks whether a course code is taken, deleted courses included.
func (r *CourseRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM courses WHERE code = $1 LIMIT 1", code); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	const query = `INSERT INTO courses (id, name, code, description, credits, capacity, teacher_id, status, start_date, end_date, schedule, location, created_at, updated_at, is_deleted)
        VALUES (:id, :name, :code, :description, :credits, :capacity, :teacher_id, :status, :start_date, :end_date, :schedule, :location, :created_at, :updated_at, :is_deleted)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Transition persists a status change only while the stored status is still
// one of from. A concurrent writer that got there first yields ErrTransitionRejected.
func (r *CourseRepository) Transition(ctx context.Context, course *models.Course, from []models.CourseStatus) error {
	const query = `UPDATE courses SET status = $2, start_date = $3, end_date = $4, updated_at = $5
        WHERE id = $1 AND is_deleted = FALSE AND status = ANY($6)`
	res, err := r.db.ExecContext(ctx, query, course.ID, string(course.Status), course.StartDate, course.EndDate, course.UpdatedAt, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("transition course: %w", err)
	}
	if err := expectOneRow(res, "transition course"); err != nil {
		if err == sql.ErrNoRows {
			return ErrTransitionRejected
		}
		return err
	}
	return nil
}

// SoftDelete marks the course deleted under a row lock, refusing while any
// enrollment is active.
func (r *CourseRepository) SoftDelete(ctx context.Context, id, actorID string, at time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin course delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID string
	if err = tx.GetContext(ctx, &lockedID, `SELECT id FROM courses WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock course: %w", err)
	}

	var active int
	if err = tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM student_courses WHERE course_id = $1 AND is_active = TRUE`, id); err != nil {
		return fmt.Errorf("count active enrollments: %w", err)
	}
	if active > 0 {
		err = ErrCourseHasActiveEnrollment
		return err
	}

	const update = `UPDATE courses SET is_deleted = TRUE, deleted_at = $2, deleted_by = NULLIF($3, '')::uuid, updated_at = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, update, id, at, actorID); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit course delete: %w", err)
	}
	return nil
}

// Restore clears the deletion markers of a soft-deleted course.
func (r *CourseRepository) Restore(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE courses SET is_deleted = FALSE, deleted_at = NULL, deleted_by = NULL, updated_at = $2 WHERE id = $1 AND is_deleted = TRUE`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("restore course: %w", err)
	}
	if err := expectOneRow(res, "restore course"); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotDeleted
		}
		return err
	}
	return nil
}
