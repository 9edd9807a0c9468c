package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.Attendance) error
	Counts(ctx context.Context, studentID, courseID string) (models.AttendanceCounts, error)
	CourseCounts(ctx context.Context, courseID string) (models.AttendanceCounts, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
}

// RecordAttendanceRequest holds payload for marking attendance.
type RecordAttendanceRequest struct {
	StudentID string     `json:"student_id" validate:"required"`
	CourseID  string     `json:"course_id" validate:"required"`
	Date      *time.Time `json:"date"`
	Present   bool       `json:"present"`
	Notes     *string    `json:"notes" validate:"omitempty,max=500"`
}

// AttendanceService records attendance and derives attendance statistics.
type AttendanceService struct {
	attendance attendanceRepository
	students   studentLookup
	courses    courseLookup
	cache      *CacheService
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(attendance attendanceRepository, students studentLookup, courses courseLookup, cache *CacheService, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		attendance: attendance,
		students:   students,
		courses:    courses,
		cache:      cache,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Record stores the mark for the given day, overwriting an earlier mark for
// the same student, course and day.
func (s *AttendanceService) Record(ctx context.Context, req RecordAttendanceRequest) (record *models.Attendance, events []models.Event, err error) {
	defer s.metrics.Track("attendance.record")(&err)

	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if _, err := resolveStudent(ctx, s.students, req.StudentID); err != nil {
		return nil, nil, err
	}
	if _, err := resolveCourse(ctx, s.courses, req.CourseID, models.DeletedModeActiveOnly); err != nil {
		return nil, nil, err
	}

	now := s.now()
	day := models.AttendanceDay(now)
	if req.Date != nil {
		day = models.AttendanceDay(*req.Date)
	}

	record = &models.Attendance{
		ID:        uuid.NewString(),
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Date:      day,
		Present:   req.Present,
		Notes:     req.Notes,
		UpdatedAt: now,
	}
	if err := s.attendance.Upsert(ctx, record); err != nil {
		return nil, nil, appErrors.Internal(err, "failed to record attendance")
	}

	s.cache.Invalidate(ctx, StudentAttendanceCacheKey(req.StudentID, "*"), CourseAttendanceCacheKey(req.CourseID))
	events = []models.Event{models.NewEvent(models.EventAttendanceRecorded, record.ID, now, map[string]interface{}{
		"student_id": record.StudentID,
		"course_id":  record.CourseID,
		"date":       record.Date.Format("2006-01-02"),
		"present":    record.Present,
	})}
	return record, events, nil
}

// StatisticsFor summarises a student's attendance. An empty courseID covers
// every course.
func (s *AttendanceService) StatisticsFor(ctx context.Context, studentID, courseID string) (*models.AttendanceStatistics, error) {
	if _, err := resolveStudent(ctx, s.students, studentID); err != nil {
		return nil, err
	}

	key := StudentAttendanceCacheKey(studentID, courseID)
	var cached models.AttendanceStatistics
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	counts, err := s.attendance.Counts(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to aggregate attendance")
	}

	stats := attendanceStatistics(counts)
	stats.StudentID = studentID
	stats.CourseID = courseID
	s.cache.Set(ctx, key, stats)
	return &stats, nil
}

// CourseStatistics summarises attendance of every student in a course.
func (s *AttendanceService) CourseStatistics(ctx context.Context, courseID string) (*models.AttendanceStatistics, error) {
	if _, err := resolveCourse(ctx, s.courses, courseID, models.DeletedModeInclude); err != nil {
		return nil, err
	}

	key := CourseAttendanceCacheKey(courseID)
	var cached models.AttendanceStatistics
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	counts, err := s.attendance.CourseCounts(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to aggregate course attendance")
	}

	stats := attendanceStatistics(counts)
	stats.CourseID = courseID
	s.cache.Set(ctx, key, stats)
	return &stats, nil
}

// List returns attendance marks and pagination metadata.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error) {
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_to must not precede date_from")
	}
	records, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list attendance")
	}
	return records, pagination(filter.Page, filter.PageSize, total), nil
}

func attendanceStatistics(counts models.AttendanceCounts) models.AttendanceStatistics {
	stats := models.AttendanceStatistics{
		TotalSessions:   counts.Total,
		PresentSessions: counts.Present,
		AbsentSessions:  counts.Total - counts.Present,
	}
	if counts.Total > 0 {
		stats.Percentage = round2(float64(counts.Present) / float64(counts.Total) * 100)
	}
	return stats
}
