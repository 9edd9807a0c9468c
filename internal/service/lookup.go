package service

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"github.com/noah-isme/academic-records/internal/models"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

type studentLookup interface {
	FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.StudentDetail, error)
}

type teacherLookup interface {
	FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.TeacherDetail, error)
}

type courseLookup interface {
	FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.Course, error)
}

// notFoundOrInternal maps sql.ErrNoRows to a not-found error and anything
// else to an internal one.
func notFoundOrInternal(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return appErrors.Internal(err, "failed to load "+entity)
}

func resolveStudent(ctx context.Context, students studentLookup, id string) (*models.StudentDetail, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	student, err := students.FindByID(ctx, id, models.DeletedModeActiveOnly)
	if err != nil {
		return nil, notFoundOrInternal(err, "student")
	}
	return student, nil
}

func resolveCourse(ctx context.Context, courses courseLookup, id string, mode models.DeletedMode) (*models.Course, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	course, err := courses.FindByID(ctx, id, mode)
	if err != nil {
		return nil, notFoundOrInternal(err, "course")
	}
	return course, nil
}

func validateMode(mode models.DeletedMode) error {
	if !mode.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported deleted mode")
	}
	return nil
}

func pagination(page, size, total int) *models.Pagination {
	page, size = models.NormalizePage(page, size)
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
