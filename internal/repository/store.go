package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/noah-isme/academic-records/internal/models"
)

// Sentinel outcomes reported by repositories. Services translate them into
// domain errors.
var (
	ErrDuplicate                 = errors.New("repository: duplicate key")
	ErrCourseFull                = errors.New("repository: course at capacity")
	ErrAlreadyEnrolled           = errors.New("repository: active enrollment exists")
	ErrEnrollmentClosed          = errors.New("repository: course not accepting enrollment")
	ErrCourseHasActiveEnrollment = errors.New("repository: course has active enrollments")
	ErrNotEnrolled               = errors.New("repository: no active enrollment")
	ErrTransitionRejected        = errors.New("repository: course status changed")
	ErrNotDeleted                = errors.New("repository: record is not deleted")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// softDeleteClause renders the filter for mode against the table alias.
func softDeleteClause(alias string, mode models.DeletedMode) string {
	column := "is_deleted"
	if alias != "" {
		column = alias + ".is_deleted"
	}
	switch mode {
	case models.DeletedModeInclude:
		return "TRUE"
	case models.DeletedModeOnly:
		return column + " = TRUE"
	default:
		return column + " = FALSE"
	}
}

// expectOneRow converts a zero-row write into sql.ErrNoRows.
func expectOneRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func statusStrings(statuses []models.CourseStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
