package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
)

const gradeColumns = `id, student_id, course_id, score, letter_grade, comment, grade_type, grade_date,
        created_at, updated_at, is_deleted, deleted_at, deleted_by`

// GradeRepository handles persistence for grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grades matching the filter with the total count.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	conditions := []string{softDeleteClause("", filter.Mode)}
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.GradeType != "" {
		conditions = append(conditions, fmt.Sprintf("grade_type = $%d", len(args)+1))
		args = append(args, string(filter.GradeType))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM grades %s ORDER BY grade_date DESC, created_at DESC LIMIT %d OFFSET %d", gradeColumns, where, size, offset)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM grades "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID fetches a grade honouring the soft-delete mode.
func (r *GradeRepository) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE id = $1 AND %s", gradeColumns, softDeleteClause("", mode))
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// CreateForActiveEnrollment inserts the grade only if the student is actively
// enrolled in the course at the moment of the write. Otherwise it returns
// ErrNotEnrolled and nothing is written.
func (r *GradeRepository) CreateForActiveEnrollment(ctx context.Context, grade *models.Grade) error {
	const query = `INSERT INTO grades (id, student_id, course_id, score, letter_grade, comment, grade_type, grade_date, created_at, updated_at, is_deleted)
        SELECT $1::uuid, $2::uuid, $3::uuid, $4::numeric, $5::varchar, $6::text, $7::varchar, $8::timestamptz, $9::timestamptz, $9::timestamptz, FALSE
        WHERE EXISTS (SELECT 1 FROM student_courses WHERE student_id = $2::uuid AND course_id = $3::uuid AND is_active = TRUE)`
	res, err := r.db.ExecContext(ctx, query,
		grade.ID, grade.StudentID, grade.CourseID, grade.Score, grade.LetterGrade, grade.Comment,
		string(grade.GradeType), grade.GradeDate, grade.CreatedAt)
	if err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create grade rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotEnrolled
	}
	return nil
}

// UpdateScore rewrites the score of a live grade. A nil comment keeps the stored one.
func (r *GradeRepository) UpdateScore(ctx context.Context, id string, score float64, letter string, comment *string, at time.Time) (*models.Grade, error) {
	query := fmt.Sprintf(`UPDATE grades SET score = $2, letter_grade = $3, comment = COALESCE($4, comment), updated_at = $5
        WHERE id = $1 AND is_deleted = FALSE RETURNING %s`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id, score, letter, comment, at); err != nil {
		return nil, err
	}
	return &grade, nil
}

// SoftDelete marks a live grade deleted and returns the updated row.
func (r *GradeRepository) SoftDelete(ctx context.Context, id, actorID string, at time.Time) (*models.Grade, error) {
	query := fmt.Sprintf(`UPDATE grades SET is_deleted = TRUE, deleted_at = $2, deleted_by = NULLIF($3, '')::uuid, updated_at = $2
        WHERE id = $1 AND is_deleted = FALSE RETURNING %s`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id, at, actorID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Restore clears the deletion markers of a soft-deleted grade.
func (r *GradeRepository) Restore(ctx context.Context, id string, at time.Time) (*models.Grade, error) {
	query := fmt.Sprintf(`UPDATE grades SET is_deleted = FALSE, deleted_at = NULL, deleted_by = NULL, updated_at = $2
        WHERE id = $1 AND is_deleted = TRUE RETURNING %s`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id, at); err != nil {
		return nil, err
	}
	return &grade, nil
}

// HardDelete removes the row regardless of its deletion state.
func (r *GradeRepository) HardDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("hard delete grade: %w", err)
	}
	return expectOneRow(res, "hard delete grade")
}

// ListGradeCredits returns the student's live grades with their course credits.
func (r *GradeRepository) ListGradeCredits(ctx context.Context, studentID string) ([]models.GradeCredit, error) {
	const query = `SELECT g.id AS grade_id, g.course_id, g.score, c.credits
        FROM grades g
        JOIN courses c ON c.id = g.course_id
        WHERE g.student_id = $1 AND g.is_deleted = FALSE
        ORDER BY g.course_id`
	var credits []models.GradeCredit
	if err := r.db.SelectContext(ctx, &credits, query, studentID); err != nil {
		return nil, fmt.Errorf("list grade credits: %w", err)
	}
	return credits, nil
}
