package models

import "time"

// Enrollment is a student's registration in a course (the student_courses row).
// A pair has at most one row; unenrolling flips IsActive instead of deleting it.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student info.
type EnrollmentDetail struct {
	Enrollment
	StudentNumber string `db:"student_number" json:"student_number"`
	FirstName     string `db:"first_name" json:"first_name"`
	LastName      string `db:"last_name" json:"last_name"`
}

// EnrollParams carries the inputs of the atomic enrollment write.
type EnrollParams struct {
	CourseID  string
	StudentID string
	// AllowedStatuses is the enrollment gate evaluated under the course lock.
	AllowedStatuses []CourseStatus
	Now             time.Time
}

// EnrollResult reports what the enrollment write did.
type EnrollResult struct {
	Enrollment  Enrollment
	Reactivated bool
	ActiveCount int
}
