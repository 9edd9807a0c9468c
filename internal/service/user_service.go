package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/repository"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	SoftDelete(ctx context.Context, id, actorID string, at time.Time) error
}

// PasswordHasher turns a plaintext password into a storable hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher is the default PasswordHasher.
type BcryptHasher struct {
	Cost int
}

// Hash implements PasswordHasher.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare implements PasswordHasher.
func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// RegisterUserRequest represents payload for registering people.
type RegisterUserRequest struct {
	FirstName   string          `json:"first_name" validate:"required,max=100"`
	LastName    string          `json:"last_name" validate:"required,max=100"`
	Email       string          `json:"email" validate:"required,email"`
	Password    string          `json:"password" validate:"required,min=8"`
	Role        models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	Phone       *string         `json:"phone"`
	DateOfBirth *time.Time      `json:"date_of_birth"`
	Address     *string         `json:"address"`
}

// UserService handles person records.
type UserService struct {
	repo      userRepository
	hasher    PasswordHasher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, hasher PasswordHasher, validate *validator.Validate, logger *zap.Logger) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, hasher: hasher, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates a person record with a hashed password.
func (s *UserService) Register(ctx context.Context, req RegisterUserRequest) (*models.User, []models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	if existing, err := s.repo.FindByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.Internal(err, "failed to check email")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to hash password")
	}

	now := s.now()
	user, err := models.NewUser(models.NewUserParams{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Phone:        req.Phone,
		DateOfBirth:  req.DateOfBirth,
		Address:      req.Address,
	}, now)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, nil, appErrors.Internal(err, "failed to create user")
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, []models.Event{models.NewEvent(models.EventUserRegistered, user.ID, now, map[string]interface{}{
		"role": string(user.Role),
	})}, nil
}

// Get returns a person record honouring mode.
func (s *UserService) Get(ctx context.Context, id string, mode models.DeletedMode) (*models.User, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, id, mode)
	if err != nil {
		return nil, notFoundOrInternal(err, "user")
	}
	return user, nil
}

// Delete soft-deletes a person record.
func (s *UserService) Delete(ctx context.Context, id, actorID string) error {
	if err := s.repo.SoftDelete(ctx, id, actorID, s.now()); err != nil {
		return notFoundOrInternal(err, "user")
	}
	s.logger.Info("user deleted", zap.String("user_id", id), zap.String("actor_id", actorID))
	return nil
}
