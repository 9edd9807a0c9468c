package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/repository"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
	FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.Grade, error)
	CreateForActiveEnrollment(ctx context.Context, grade *models.Grade) error
	UpdateScore(ctx context.Context, id string, score float64, letter string, comment *string, at time.Time) (*models.Grade, error)
	SoftDelete(ctx context.Context, id, actorID string, at time.Time) (*models.Grade, error)
	Restore(ctx context.Context, id string, at time.Time) (*models.Grade, error)
	HardDelete(ctx context.Context, id string) error
}

// AssignGradeRequest holds payload for recording a grade.
type AssignGradeRequest struct {
	StudentID string           `json:"student_id" validate:"required"`
	CourseID  string           `json:"course_id" validate:"required"`
	Score     float64          `json:"score"`
	GradeType models.GradeType `json:"grade_type" validate:"omitempty,max=50"`
	Comment   *string          `json:"comment"`
	GradeDate *time.Time       `json:"grade_date"`
}

// GradeService manages grade records.
type GradeService struct {
	grades    gradeRepository
	students  studentLookup
	courses   courseLookup
	cache     *CacheService
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeService constructs the grade service.
func NewGradeService(grades gradeRepository, students studentLookup, courses courseLookup, cache *CacheService, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		grades:    grades,
		students:  students,
		courses:   courses,
		cache:     cache,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// normalizeScore rounds score to the stored NUMERIC(5,2) precision, then
// checks its range.
func normalizeScore(score float64) (float64, error) {
	score = round2(score)
	if !models.ValidScore(score) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "score must be between 0 and 100")
	}
	return score, nil
}

// Assign records a grade for an actively enrolled student.
func (s *GradeService) Assign(ctx context.Context, req AssignGradeRequest) (grade *models.Grade, events []models.Event, err error) {
	defer s.metrics.Track("grade.assign")(&err)

	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	score, err := normalizeScore(req.Score)
	if err != nil {
		return nil, nil, err
	}
	if _, err := resolveStudent(ctx, s.students, req.StudentID); err != nil {
		return nil, nil, err
	}
	if _, err := resolveCourse(ctx, s.courses, req.CourseID, models.DeletedModeActiveOnly); err != nil {
		return nil, nil, err
	}

	now := s.now()
	letter := models.LetterGrade(score)
	grade = &models.Grade{
		StudentID:   req.StudentID,
		CourseID:    req.CourseID,
		Score:       score,
		LetterGrade: &letter,
		Comment:     req.Comment,
		GradeType:   req.GradeType,
		GradeDate:   now,
	}
	if req.GradeDate != nil {
		grade.GradeDate = req.GradeDate.UTC()
	}
	grade.ID = uuid.NewString()
	grade.Stamp(now)

	if err := s.grades.CreateForActiveEnrollment(ctx, grade); err != nil {
		if errors.Is(err, repository.ErrNotEnrolled) {
			return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not actively enrolled in the course")
		}
		return nil, nil, appErrors.Internal(err, "failed to assign grade")
	}

	s.cache.Invalidate(ctx, GPACacheKey(grade.StudentID))
	s.logger.Debug("grade assigned", zap.String("grade_id", grade.ID), zap.String("student_id", grade.StudentID), zap.String("course_id", grade.CourseID))
	return grade, []models.Event{gradeEvent(models.EventGradeAssigned, grade, now)}, nil
}

// UpdateScore changes the score of a live grade and re-derives its letter.
func (s *GradeService) UpdateScore(ctx context.Context, id string, score float64, comment *string) (grade *models.Grade, events []models.Event, err error) {
	defer s.metrics.Track("grade.update")(&err)

	score, err = normalizeScore(score)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	grade, err = s.grades.UpdateScore(ctx, id, score, models.LetterGrade(score), comment, now)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "grade")
	}

	s.cache.Invalidate(ctx, GPACacheKey(grade.StudentID))
	return grade, []models.Event{gradeEvent(models.EventGradeUpdated, grade, now)}, nil
}

// Get returns a grade honouring mode.
func (s *GradeService) Get(ctx context.Context, id string, mode models.DeletedMode) (*models.Grade, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	grade, err := s.grades.FindByID(ctx, id, mode)
	if err != nil {
		return nil, notFoundOrInternal(err, "grade")
	}
	return grade, nil
}

// List returns grades and pagination metadata.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, *models.Pagination, error) {
	if err := validateMode(filter.Mode); err != nil {
		return nil, nil, err
	}
	grades, total, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list grades")
	}
	return grades, pagination(filter.Page, filter.PageSize, total), nil
}

// Delete soft-deletes a live grade.
func (s *GradeService) Delete(ctx context.Context, id, actorID string) (events []models.Event, err error) {
	defer s.metrics.Track("grade.delete")(&err)

	now := s.now()
	grade, err := s.grades.SoftDelete(ctx, id, actorID, now)
	if err != nil {
		return nil, notFoundOrInternal(err, "grade")
	}

	s.cache.Invalidate(ctx, GPACacheKey(grade.StudentID))
	s.logger.Info("grade deleted", zap.String("grade_id", id), zap.String("actor_id", actorID))
	event := gradeEvent(models.EventGradeDeleted, grade, now)
	event.Payload["deleted_by"] = actorID
	return []models.Event{event}, nil
}

// Restore reverses a soft delete.
func (s *GradeService) Restore(ctx context.Context, id string) (grade *models.Grade, events []models.Event, err error) {
	defer s.metrics.Track("grade.restore")(&err)

	current, err := s.grades.FindByID(ctx, id, models.DeletedModeInclude)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "grade")
	}
	if !current.IsDeleted {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "grade is not deleted")
	}

	now := s.now()
	grade, err = s.grades.Restore(ctx, id, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "grade is not deleted")
		}
		return nil, nil, appErrors.Internal(err, "failed to restore grade")
	}

	s.cache.Invalidate(ctx, GPACacheKey(grade.StudentID))
	s.logger.Info("grade restored", zap.String("grade_id", id))
	return grade, []models.Event{gradeEvent(models.EventGradeRestored, grade, now)}, nil
}

// HardDelete permanently removes a grade in any state.
func (s *GradeService) HardDelete(ctx context.Context, id string) (events []models.Event, err error) {
	defer s.metrics.Track("grade.hard_delete")(&err)

	grade, err := s.grades.FindByID(ctx, id, models.DeletedModeInclude)
	if err != nil {
		return nil, notFoundOrInternal(err, "grade")
	}
	if err := s.grades.HardDelete(ctx, id); err != nil {
		return nil, notFoundOrInternal(err, "grade")
	}

	now := s.now()
	s.cache.Invalidate(ctx, GPACacheKey(grade.StudentID))
	s.logger.Warn("grade permanently deleted", zap.String("grade_id", id))
	return []models.Event{gradeEvent(models.EventGradeHardDeleted, grade, now)}, nil
}

func gradeEvent(eventType models.EventType, grade *models.Grade, at time.Time) models.Event {
	payload := map[string]interface{}{
		"student_id": grade.StudentID,
		"course_id":  grade.CourseID,
		"score":      grade.Score,
		"passing":    models.IsPassing(grade.Score),
	}
	if grade.LetterGrade != nil {
		payload["letter_grade"] = *grade.LetterGrade
	}
	return models.NewEvent(eventType, grade.ID, at, payload)
}
