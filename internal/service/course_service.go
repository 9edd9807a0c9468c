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

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.Course, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Transition(ctx context.Context, course *models.Course, from []models.CourseStatus) error
	SoftDelete(ctx context.Context, id, actorID string, at time.Time) error
	Restore(ctx context.Context, id string, at time.Time) error
}

type enrollmentRepository interface {
	Enroll(ctx context.Context, params models.EnrollParams) (*models.EnrollResult, error)
	Deactivate(ctx context.Context, courseID, studentID string, at time.Time) (bool, error)
	CountActive(ctx context.Context, courseID string) (int, error)
	ListActiveByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

// CoursePolicy holds the tunable course rules.
type CoursePolicy struct {
	// RequireInProgress limits enrollment to courses that have started.
	RequireInProgress bool
}

// CreateCourseRequest holds payload for creating courses.
type CreateCourseRequest struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Code        string     `json:"code" validate:"required,max=50"`
	Description *string    `json:"description"`
	Credits     int        `json:"credits" validate:"gt=0"`
	Capacity    int        `json:"capacity" validate:"gte=1"`
	TeacherID   string     `json:"teacher_id" validate:"required"`
	Schedule    *string    `json:"schedule" validate:"omitempty,max=200"`
	Location    *string    `json:"location" validate:"omitempty,max=200"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

// CourseService owns the course lifecycle and enrollment rules.
type CourseService struct {
	courses     courseRepository
	enrollments enrollmentRepository
	teachers    teacherLookup
	students    studentLookup
	policy      CoursePolicy
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewCourseService constructs the course service.
func NewCourseService(courses courseRepository, enrollments enrollmentRepository, teachers teacherLookup, students studentLookup, policy CoursePolicy, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		courses:     courses,
		enrollments: enrollments,
		teachers:    teachers,
		students:    students,
		policy:      policy,
		validator:   validate,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a course in NOT_STARTED state.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (course *models.Course, events []models.Event, err error) {
	defer s.metrics.Track("course.create")(&err)

	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end date must not precede start date")
	}

	if _, err := s.teachers.FindByID(ctx, req.TeacherID, models.DeletedModeActiveOnly); err != nil {
		return nil, nil, notFoundOrInternal(err, "teacher")
	}

	exists, err := s.courses.ExistsByCode(ctx, req.Code)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to validate course code")
	}
	if exists {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "course code already used")
	}

	now := s.now()
	course = &models.Course{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Credits:     req.Credits,
		Capacity:    req.Capacity,
		TeacherID:   req.TeacherID,
		Status:      models.CourseStatusNotStarted,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Schedule:    req.Schedule,
		Location:    req.Location,
	}
	course.ID = uuid.NewString()
	course.Stamp(now)

	if err := s.courses.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "course code already used")
		}
		return nil, nil, appErrors.Internal(err, "failed to create course")
	}

	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	events = []models.Event{models.NewEvent(models.EventCourseCreated, course.ID, now, map[string]interface{}{
		"code":       course.Code,
		"teacher_id": course.TeacherID,
		"capacity":   course.Capacity,
	})}
	return course, events, nil
}

// Get returns a course honouring mode.
func (s *CourseService) Get(ctx context.Context, id string, mode models.DeletedMode) (*models.Course, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	return resolveCourse(ctx, s.courses, id, mode)
}

// List returns courses and pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if err := validateMode(filter.Mode); err != nil {
		return nil, nil, err
	}
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list courses")
	}
	return courses, pagination(filter.Page, filter.PageSize, total), nil
}

// TeacherCourses returns every live course taught by the teacher.
func (s *CourseService) TeacherCourses(ctx context.Context, teacherID string) ([]models.Course, error) {
	if _, err := s.teachers.FindByID(ctx, teacherID, models.DeletedModeInclude); err != nil {
		return nil, notFoundOrInternal(err, "teacher")
	}

	filter := models.CourseFilter{TeacherID: teacherID, Page: 1, PageSize: 100}
	var all []models.Course
	for {
		page, total, err := s.courses.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list teacher courses")
		}
		all = append(all, page...)
		if len(page) == 0 || len(all) >= total {
			return all, nil
		}
		filter.Page++
	}
}

// Start moves a course from NOT_STARTED to IN_PROGRESS.
func (s *CourseService) Start(ctx context.Context, id string) (*models.Course, []models.Event, error) {
	return s.transition(ctx, id, models.TransitionStart, models.EventCourseStarted)
}

// Complete moves a course from IN_PROGRESS to COMPLETED.
func (s *CourseService) Complete(ctx context.Context, id string) (*models.Course, []models.Event, error) {
	return s.transition(ctx, id, models.TransitionComplete, models.EventCourseCompleted)
}

// Cancel aborts a course that has not completed.
func (s *CourseService) Cancel(ctx context.Context, id string) (*models.Course, []models.Event, error) {
	return s.transition(ctx, id, models.TransitionCancel, models.EventCourseCancelled)
}

func (s *CourseService) transition(ctx context.Context, id string, t models.CourseTransition, eventType models.EventType) (course *models.Course, events []models.Event, err error) {
	defer s.metrics.Track("course." + t.Name)(&err)

	course, err = resolveCourse(ctx, s.courses, id, models.DeletedModeActiveOnly)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	previous := course.Status
	if err := course.Apply(t, now); err != nil {
		return nil, nil, err
	}

	if err := s.courses.Transition(ctx, course, t.From); err != nil {
		if errors.Is(err, repository.ErrTransitionRejected) {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "course status changed concurrently")
		}
		return nil, nil, appErrors.Internal(err, "failed to update course status")
	}

	payload := map[string]interface{}{
		"from":       string(previous),
		"to":         string(course.Status),
		"teacher_id": course.TeacherID,
	}
	if eventType == models.EventCourseStarted {
		if teacher, err := s.teachers.FindByID(ctx, course.TeacherID, models.DeletedModeInclude); err == nil {
			payload["teacher_name"] = teacher.DisplayName()
		} else {
			s.logger.Warn("teacher lookup for course event failed", zap.String("course_id", course.ID), zap.Error(err))
		}
	}

	s.logger.Info("course status changed", zap.String("course_id", course.ID), zap.String("from", string(previous)), zap.String("to", string(course.Status)))
	return course, []models.Event{models.NewEvent(eventType, course.ID, now, payload)}, nil
}

// Enroll registers the student in the course. Capacity, duplicate and gate
// checks run inside one transaction on the store.
func (s *CourseService) Enroll(ctx context.Context, courseID, studentID string) (enrollment *models.Enrollment, events []models.Event, err error) {
	defer s.metrics.Track("course.enroll")(&err)

	if _, err := resolveStudent(ctx, s.students, studentID); err != nil {
		return nil, nil, err
	}
	course, err := resolveCourse(ctx, s.courses, courseID, models.DeletedModeActiveOnly)
	if err != nil {
		return nil, nil, err
	}
	if !course.AcceptsEnrollment(s.policy.RequireInProgress) {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "course is not accepting enrollment")
	}

	now := s.now()
	result, err := s.enrollments.Enroll(ctx, models.EnrollParams{
		CourseID:        courseID,
		StudentID:       studentID,
		AllowedStatuses: models.EnrollableStatuses(s.policy.RequireInProgress),
		Now:             now,
	})
	if err != nil {
		return nil, nil, enrollError(err)
	}

	s.metrics.SetActiveEnrollments(courseID, result.ActiveCount)
	s.logger.Info("student enrolled",
		zap.String("course_id", courseID),
		zap.String("student_id", studentID),
		zap.Bool("reactivated", result.Reactivated),
		zap.Int("active", result.ActiveCount))

	events = []models.Event{models.NewEvent(models.EventStudentEnrolled, courseID, now, map[string]interface{}{
		"student_id":  studentID,
		"reactivated": result.Reactivated,
		"active":      result.ActiveCount,
		"capacity":    course.Capacity,
	})}
	return &result.Enrollment, events, nil
}

func enrollError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "course not found")
	case errors.Is(err, repository.ErrEnrollmentClosed):
		return appErrors.Clone(appErrors.ErrInvalidState, "course is not accepting enrollment")
	case errors.Is(err, repository.ErrAlreadyEnrolled):
		return appErrors.Clone(appErrors.ErrConflict, "student already enrolled")
	case errors.Is(err, repository.ErrCourseFull):
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "course is full")
	default:
		return appErrors.Internal(err, "failed to enroll student")
	}
}

// Unenroll deactivates the student's enrollment. It is a no-op when there is
// no active enrollment.
func (s *CourseService) Unenroll(ctx context.Context, courseID, studentID string) (events []models.Event, err error) {
	defer s.metrics.Track("course.unenroll")(&err)

	if courseID == "" || studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id and student id are required")
	}

	now := s.now()
	changed, err := s.enrollments.Deactivate(ctx, courseID, studentID, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to unenroll student")
	}
	if !changed {
		return nil, nil
	}

	if active, err := s.enrollments.CountActive(ctx, courseID); err != nil {
		s.logger.Warn("failed to refresh active enrollment gauge", zap.String("course_id", courseID), zap.Error(err))
	} else {
		s.metrics.SetActiveEnrollments(courseID, active)
	}

	s.logger.Info("student unenrolled", zap.String("course_id", courseID), zap.String("student_id", studentID))
	return []models.Event{models.NewEvent(models.EventStudentUnenrolled, courseID, now, map[string]interface{}{
		"student_id": studentID,
	})}, nil
}

// EnrolledCount returns the number of active enrollments.
func (s *CourseService) EnrolledCount(ctx context.Context, courseID string) (int, error) {
	if _, err := resolveCourse(ctx, s.courses, courseID, models.DeletedModeInclude); err != nil {
		return 0, err
	}
	count, err := s.enrollments.CountActive(ctx, courseID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count enrollments")
	}
	return count, nil
}

// EnrolledStudents returns the active roster.
func (s *CourseService) EnrolledStudents(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	if _, err := resolveCourse(ctx, s.courses, courseID, models.DeletedModeInclude); err != nil {
		return nil, err
	}
	roster, err := s.enrollments.ListActiveByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrolled students")
	}
	return roster, nil
}

// Delete soft-deletes a course without active enrollments.
func (s *CourseService) Delete(ctx context.Context, courseID, actorID string) (events []models.Event, err error) {
	defer s.metrics.Track("course.delete")(&err)

	now := s.now()
	if err := s.courses.SoftDelete(ctx, courseID, actorID, now); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		case errors.Is(err, repository.ErrCourseHasActiveEnrollment):
			return nil, appErrors.Clone(appErrors.ErrConflict, "course has active enrollments")
		default:
			return nil, appErrors.Internal(err, "failed to delete course")
		}
	}

	s.logger.Info("course deleted", zap.String("course_id", courseID), zap.String("actor_id", actorID))
	return []models.Event{models.NewEvent(models.EventCourseDeleted, courseID, now, map[string]interface{}{
		"deleted_by": actorID,
	})}, nil
}

// Restore reverses a soft delete.
func (s *CourseService) Restore(ctx context.Context, courseID string) (course *models.Course, events []models.Event, err error) {
	defer s.metrics.Track("course.restore")(&err)

	if _, err := resolveCourse(ctx, s.courses, courseID, models.DeletedModeInclude); err != nil {
		return nil, nil, err
	}

	now := s.now()
	if err := s.courses.Restore(ctx, courseID, now); err != nil {
		if errors.Is(err, repository.ErrNotDeleted) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "course is not deleted")
		}
		return nil, nil, appErrors.Internal(err, "failed to restore course")
	}

	course, err = resolveCourse(ctx, s.courses, courseID, models.DeletedModeActiveOnly)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("course restored", zap.String("course_id", courseID))
	return course, []models.Event{models.NewEvent(models.EventCourseRestored, courseID, now, nil)}, nil
}
