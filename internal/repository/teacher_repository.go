package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
)

const teacherDetailColumns = `t.id, t.user_id, t.employee_number, t.department, t.specialization, t.hire_date,
        t.created_at, t.updated_at, t.is_deleted, t.deleted_at, t.deleted_by,
        u.first_name, u.last_name, u.email`

// TeacherRepository handles persistence for teacher profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// FindByID fetches a teacher detail honouring the soft-delete mode.
func (r *TeacherRepository) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.TeacherDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers t JOIN users u ON u.id = t.user_id WHERE t.id = $1 AND %s", teacherDetailColumns, softDeleteClause("t", mode))
	var detail models.TeacherDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByEmployeeNumber checks whether an employee number is taken.
func (r *TeacherRepository) ExistsByEmployeeNumber(ctx context.Context, number string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM teachers WHERE employee_number = $1 LIMIT 1", number); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check employee number: %w", err)
	}
	return true, nil
}

// Create inserts a new teacher profile.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	const query = `INSERT INTO teachers (id, user_id, employee_number, department, specialization, hire_date, created_at, updated_at, is_deleted)
        VALUES (:id, :user_id, :employee_number, :department, :specialization, :hire_date, :created_at, :updated_at, :is_deleted)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// SoftDelete marks an active teacher deleted.
func (r *TeacherRepository) SoftDelete(ctx context.Context, id, actorID string, at time.Time) error {
	const query = `UPDATE teachers SET is_deleted = TRUE, deleted_at = $2, deleted_by = NULLIF($3, '')::uuid, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at, actorID)
	if err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	return expectOneRow(res, "delete teacher")
}
