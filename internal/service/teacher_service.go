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

type teacherRepository interface {
	FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.TeacherDetail, error)
	ExistsByEmployeeNumber(ctx context.Context, number string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	SoftDelete(ctx context.Context, id, actorID string, at time.Time) error
}

// CreateTeacherRequest holds payload for creating teacher profiles.
type CreateTeacherRequest struct {
	UserID         string     `json:"user_id" validate:"required"`
	EmployeeNumber string     `json:"employee_number" validate:"required,max=50"`
	Department     *string    `json:"department" validate:"omitempty,max=100"`
	Specialization *string    `json:"specialization" validate:"omitempty,max=100"`
	HireDate       *time.Time `json:"hire_date"`
}

// TeacherService manages teacher profiles.
type TeacherService struct {
	repo      teacherRepository
	users     personLookup
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, users personLookup, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, users: users, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns a teacher profile honouring mode.
func (s *TeacherService) Get(ctx context.Context, id string, mode models.DeletedMode) (*models.TeacherDetail, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	teacher, err := s.repo.FindByID(ctx, id, mode)
	if err != nil {
		return nil, notFoundOrInternal(err, "teacher")
	}
	return teacher, nil
}

// Create attaches a teacher profile to an existing TEACHER person record.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, []models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	user, err := s.users.FindByID(ctx, req.UserID, models.DeletedModeActiveOnly)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "user")
	}
	if user.Role != models.RoleTeacher {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "user does not have the TEACHER role")
	}

	exists, err := s.repo.ExistsByEmployeeNumber(ctx, req.EmployeeNumber)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to validate employee number")
	}
	if exists {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "employee number already used")
	}

	now := s.now()
	teacher := &models.Teacher{
		UserID:         req.UserID,
		EmployeeNumber: req.EmployeeNumber,
		Department:     req.Department,
		Specialization: req.Specialization,
		HireDate:       req.HireDate,
	}
	teacher.ID = uuid.NewString()
	teacher.Stamp(now)

	if err := s.repo.Create(ctx, teacher); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "employee number already used")
		}
		return nil, nil, appErrors.Internal(err, "failed to create teacher")
	}

	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID))
	return teacher, []models.Event{models.NewEvent(models.EventTeacherCreated, teacher.ID, now, map[string]interface{}{
		"user_id":         teacher.UserID,
		"employee_number": teacher.EmployeeNumber,
	})}, nil
}

// Delete soft-deletes a teacher profile. Courses keep their teacher reference.
func (s *TeacherService) Delete(ctx context.Context, id, actorID string) error {
	if err := s.repo.SoftDelete(ctx, id, actorID, s.now()); err != nil {
		return notFoundOrInternal(err, "teacher")
	}
	s.logger.Info("teacher deleted", zap.String("teacher_id", id), zap.String("actor_id", actorID))
	return nil
}
