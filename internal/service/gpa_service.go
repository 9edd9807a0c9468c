package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

type gradeCreditReader interface {
	ListGradeCredits(ctx context.Context, studentID string) ([]models.GradeCredit, error)
}

// GPAService derives grade-point averages from live grades.
type GPAService struct {
	grades   gradeCreditReader
	students studentLookup
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewGPAService constructs the GPA service.
func NewGPAService(grades gradeCreditReader, students studentLookup, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *GPAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GPAService{grades: grades, students: students, cache: cache, metrics: metrics, logger: logger}
}

// CalculateGPA averages the grade points within each graded course, weights
// each course by its credits, and divides by the credits of the graded
// courses. A student without grades has a GPA of 0.
func (s *GPAService) CalculateGPA(ctx context.Context, studentID string) (summary *models.GPASummary, err error) {
	defer s.metrics.Track("gpa.calculate")(&err)

	if _, err := resolveStudent(ctx, s.students, studentID); err != nil {
		return nil, err
	}

	key := GPACacheKey(studentID)
	var cached models.GPASummary
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	start := time.Now()
	credits, err := s.grades.ListGradeCredits(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load grades")
	}

	result := computeGPA(credits)
	result.StudentID = studentID
	s.logger.Debug("gpa calculated",
		zap.String("student_id", studentID),
		zap.Float64("gpa", result.GPA),
		zap.Int("courses", result.GradedCourses),
		zap.Duration("took", time.Since(start)))

	s.cache.Set(ctx, key, result)
	return &result, nil
}

type courseGrades struct {
	points  float64
	count   int
	credits int
}

func computeGPA(grades []models.GradeCredit) models.GPASummary {
	byCourse := make(map[string]*courseGrades)
	order := make([]string, 0)
	for _, g := range grades {
		agg, ok := byCourse[g.CourseID]
		if !ok {
			agg = &courseGrades{credits: g.Credits}
			byCourse[g.CourseID] = agg
			order = append(order, g.CourseID)
		}
		agg.points += models.GradePoints(g.Score)
		agg.count++
	}

	var weighted float64
	var totalCredits int
	for _, courseID := range order {
		agg := byCourse[courseID]
		if agg.credits <= 0 {
			continue
		}
		weighted += agg.points / float64(agg.count) * float64(agg.credits)
		totalCredits += agg.credits
	}

	summary := models.GPASummary{GradedCourses: len(order), GradedCredits: totalCredits}
	if totalCredits > 0 {
		summary.GPA = round2(weighted / float64(totalCredits))
	}
	return summary
}
