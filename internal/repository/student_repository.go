package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
)

const studentDetailColumns = `s.id, s.user_id, s.student_number, s.department, s.grade_level, s.class_name,
        s.created_at, s.updated_at, s.is_deleted, s.deleted_at, s.deleted_by,
        u.first_name, u.last_name, u.email`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s JOIN users u ON u.id = s.user_id"
	conditions := []string{softDeleteClause("s", filter.Mode)}
	var args []interface{}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("s.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.first_name || ' ' || u.last_name) LIKE $%d OR LOWER(s.student_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY s.student_number ASC LIMIT %d OFFSET %d", studentDetailColumns, base, size, offset)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail honouring the soft-delete mode.
func (r *StudentRepository) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.StudentDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM students s JOIN users u ON u.id = s.user_id WHERE s.id = $1 AND %s", studentDetailColumns, softDeleteClause("s", mode))
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByNumber checks whether a student number is taken, deleted rows included.
func (r *StudentRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM students WHERE student_number = $1 LIMIT 1", number); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student number: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	const query = `INSERT INTO students (id, user_id, student_number, department, grade_level, class_name, created_at, updated_at, is_deleted)
        VALUES (:id, :user_id, :student_number, :department, :grade_level, :class_name, :created_at, :updated_at, :is_deleted)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// SoftDelete marks an active student deleted.
func (r *StudentRepository) SoftDelete(ctx context.Context, id, actorID string, at time.Time) error {
	const query = `UPDATE students SET is_deleted = TRUE, deleted_at = $2, deleted_by = NULLIF($3, '')::uuid, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at, actorID)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return expectOneRow(res, "delete student")
}
