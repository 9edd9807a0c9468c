package models

import "time"

// Attendance is one student's presence mark for one course day.
type Attendance struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Date      time.Time `db:"date" json:"date"`
	Present   bool      `db:"present" json:"present"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	IsDeleted bool      `db:"is_deleted" json:"-"`
}

// AttendanceFilter defines query filters.
type AttendanceFilter struct {
	StudentID string
	CourseID  string
	Present   *bool
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// AttendanceCounts is the raw aggregate read from the store.
type AttendanceCounts struct {
	Total   int `db:"total"`
	Present int `db:"present"`
}

// AttendanceStatistics summarises attendance for a student, optionally within one course.
type AttendanceStatistics struct {
	StudentID       string  `json:"student_id,omitempty"`
	CourseID        string  `json:"course_id,omitempty"`
	TotalSessions   int     `json:"total_sessions"`
	PresentSessions int     `json:"present_sessions"`
	AbsentSessions  int     `json:"absent_sessions"`
	Percentage      float64 `json:"percentage"`
}

// AttendanceDay truncates t to its UTC calendar day.
func AttendanceDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
