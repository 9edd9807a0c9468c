package models

import (
	"math"
	"time"
)

// GradeType labels the assessment a grade belongs to. Values outside the
// predefined set are accepted as free text; the empty value means unspecified.
type GradeType string

const (
	GradeTypeMidterm    GradeType = "MIDTERM"
	GradeTypeFinal      GradeType = "FINAL"
	GradeTypeAssignment GradeType = "ASSIGNMENT"
	GradeTypeQuiz       GradeType = "QUIZ"
)

const (
	MinScore     = 0.0
	MaxScore     = 100.0
	PassingScore = 60.0
)

// Grade is a scored assessment of a student in a course.
type Grade struct {
	AuditFields
	StudentID   string    `db:"student_id" json:"student_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Score       float64   `db:"score" json:"score"`
	LetterGrade *string   `db:"letter_grade" json:"letter_grade,omitempty"`
	Comment     *string   `db:"comment" json:"comment,omitempty"`
	GradeType   GradeType `db:"grade_type" json:"grade_type,omitempty"`
	GradeDate   time.Time `db:"grade_date" json:"grade_date"`
}

// GradeFilter allows querying of grade entries.
type GradeFilter struct {
	StudentID string
	CourseID  string
	GradeType GradeType
	Mode      DeletedMode
	Page      int
	PageSize  int
}

// ValidScore reports whether score lies in [0, 100].
func ValidScore(score float64) bool {
	return !math.IsNaN(score) && score >= MinScore && score <= MaxScore
}

// IsPassing reports whether score meets the passing mark.
func IsPassing(score float64) bool {
	return score >= PassingScore
}

var letterScale = []struct {
	min    float64
	letter string
}{
	{97, "A+"}, {93, "A"}, {90, "A-"},
	{87, "B+"}, {83, "B"}, {80, "B-"},
	{77, "C+"}, {73, "C"}, {70, "C-"},
	{67, "D+"}, {63, "D"}, {60, "D-"},
}

// LetterGrade maps a score onto the plus/minus scale.
func LetterGrade(score float64) string {
	for _, band := range letterScale {
		if score >= band.min {
			return band.letter
		}
	}
	return "F"
}

// GradePoints maps a score onto the 4.0 scale used for GPA.
func GradePoints(score float64) float64 {
	switch {
	case score >= 90:
		return 4.0
	case score >= 80:
		return 3.0
	case score >= 70:
		return 2.0
	case score >= 60:
		return 1.0
	default:
		return 0.0
	}
}

// GradeCredit is a non-deleted grade joined with its course's credit weight.
type GradeCredit struct {
	GradeID  string  `db:"grade_id"`
	CourseID string  `db:"course_id"`
	Score    float64 `db:"score"`
	Credits  int     `db:"credits"`
}

// GPASummary is the outcome of a GPA calculation.
type GPASummary struct {
	StudentID     string  `json:"student_id"`
	GPA           float64 `json:"gpa"`
	GradedCourses int     `json:"graded_courses"`
	GradedCredits int     `json:"graded_credits"`
}
