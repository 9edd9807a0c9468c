package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
)

const userColumns = `id, first_name, last_name, email, password_hash, role, phone, date_of_birth, address,
        created_at, updated_at, is_deleted, deleted_at, deleted_by`

// UserRepository manages persistence for person records.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID fetches a user honouring the soft-delete mode.
func (r *UserRepository) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1 AND %s", userColumns, softDeleteClause("", mode))
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail looks up any user, deleted or not, since emails stay reserved.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(email)); err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (id, first_name, last_name, email, password_hash, role, phone, date_of_birth, address, created_at, updated_at, is_deleted)
        VALUES (:id, :first_name, :last_name, :email, :password_hash, :role, :phone, :date_of_birth, :address, :created_at, :updated_at, :is_deleted)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// SoftDelete marks an active user deleted.
func (r *UserRepository) SoftDelete(ctx context.Context, id, actorID string, at time.Time) error {
	const query = `UPDATE users SET is_deleted = TRUE, deleted_at = $2, deleted_by = NULLIF($3, '')::uuid, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at, actorID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOneRow(res, "delete user")
}
