package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/repository"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.StudentDetail, error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	SoftDelete(ctx context.Context, id, actorID string, at time.Time) error
}

type personLookup interface {
	FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.User, error)
}

// CreateStudentRequest holds payload for creating students.
type CreateStudentRequest struct {
	UserID        string  `json:"user_id" validate:"required"`
	StudentNumber string  `json:"student_number" validate:"required,max=50"`
	Department    *string `json:"department" validate:"omitempty,max=100"`
	GradeLevel    int     `json:"grade_level" validate:"gte=0"`
	ClassName     *string `json:"class_name" validate:"omitempty,max=100"`
}

// StudentService handles student profiles.
type StudentService struct {
	repo      studentRepository
	users     personLookup
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, users personLookup, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, users: users, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	if err := validateMode(filter.Mode); err != nil {
		return nil, nil, err
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list students")
	}
	return students, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns detailed student information.
func (s *StudentService) Get(ctx context.Context, id string, mode models.DeletedMode) (*models.StudentDetail, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id, mode)
	if err != nil {
		return nil, notFoundOrInternal(err, "student")
	}
	return student, nil
}

// Create attaches a student profile to an existing STUDENT person record.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, []models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	user, err := s.users.FindByID(ctx, req.UserID, models.DeletedModeActiveOnly)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "user")
	}
	if user.Role != models.RoleStudent {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "user does not have the STUDENT role")
	}

	exists, err := s.repo.ExistsByNumber(ctx, req.StudentNumber)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to validate student number")
	}
	if exists {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "student number already used")
	}

	now := s.now()
	student := &models.Student{
		UserID:        req.UserID,
		StudentNumber: req.StudentNumber,
		Department:    req.Department,
		GradeLevel:    req.GradeLevel,
		ClassName:     req.ClassName,
	}
	student.ID = uuid.NewString()
	student.Stamp(now)

	if err := s.repo.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "student number already used")
		}
		return nil, nil, appErrors.Internal(err, "failed to create student")
	}

	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("student_number", student.StudentNumber))
	return student, []models.Event{models.NewEvent(models.EventStudentCreated, student.ID, now, map[string]interface{}{
		"user_id":        student.UserID,
		"student_number": student.StudentNumber,
	})}, nil
}

// Delete soft-deletes a student profile.
func (s *StudentService) Delete(ctx context.Context, id, actorID string) error {
	if err := s.repo.SoftDelete(ctx, id, actorID, s.now()); err != nil {
		return notFoundOrInternal(err, "student")
	}
	s.logger.Info("student deleted", zap.String("student_id", id), zap.String("actor_id", actorID))
	return nil
}
