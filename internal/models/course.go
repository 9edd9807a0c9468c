package models

import (
	"fmt"
	"time"

	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

// CourseStatus is the lifecycle state of a course.
type CourseStatus string

const (
	CourseStatusNotStarted CourseStatus = "NOT_STARTED"
	CourseStatusInProgress CourseStatus = "IN_PROGRESS"
	CourseStatusCompleted  CourseStatus = "COMPLETED"
	CourseStatusCancelled  CourseStatus = "CANCELLED"
)

// Course is a unit of instruction owned by one teacher.
type Course struct {
	AuditFields
	Name        string       `db:"name" json:"name"`
	Code        string       `db:"code" json:"code"`
	Description *string      `db:"description" json:"description,omitempty"`
	Credits     int          `db:"credits" json:"credits"`
	Capacity    int          `db:"capacity" json:"capacity"`
	TeacherID   string       `db:"teacher_id" json:"teacher_id"`
	Status      CourseStatus `db:"status" json:"status"`
	StartDate   *time.Time   `db:"start_date" json:"start_date,omitempty"`
	EndDate     *time.Time   `db:"end_date" json:"end_date,omitempty"`
	Schedule    *string      `db:"schedule" json:"schedule,omitempty"`
	Location    *string      `db:"location" json:"location,omitempty"`
}

// CourseFilter scopes course listings.
type CourseFilter struct {
	TeacherID string
	Status    CourseStatus
	Search    string
	Mode      DeletedMode
	Page      int
	PageSize  int
}

// CourseTransition describes one edge of the course state machine.
type CourseTransition struct {
	Name     string
	From     []CourseStatus
	To       CourseStatus
	SetStart bool
	SetEnd   bool
}

var (
	// TransitionStart opens a course.
	TransitionStart = CourseTransition{Name: "start", From: []CourseStatus{CourseStatusNotStarted}, To: CourseStatusInProgress, SetStart: true}
	// TransitionComplete closes a running course.
	TransitionComplete = CourseTransition{Name: "complete", From: []CourseStatus{CourseStatusInProgress}, To: CourseStatusCompleted, SetEnd: true}
	// TransitionCancel aborts a course that has not completed.
	TransitionCancel = CourseTransition{Name: "cancel", From: []CourseStatus{CourseStatusNotStarted, CourseStatusInProgress}, To: CourseStatusCancelled, SetEnd: true}
)

// Allowed reports whether the transition may fire from status.
func (t CourseTransition) Allowed(status CourseStatus) bool {
	for _, from := range t.From {
		if from == status {
			return true
		}
	}
	return false
}

// Apply moves the course along t or returns an invalid-state error.
func (c *Course) Apply(t CourseTransition, now time.Time) error {
	if !t.Allowed(c.Status) {
		return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot %s a course that is %s", t.Name, c.Status))
	}
	c.Status = t.To
	if t.SetStart {
		c.StartDate = &now
	}
	if t.SetEnd {
		c.EndDate = &now
	}
	c.Touch(now)
	return nil
}

// EnrollableStatuses lists the states in which a course accepts students.
func EnrollableStatuses(requireInProgress bool) []CourseStatus {
	if requireInProgress {
		return []CourseStatus{CourseStatusInProgress}
	}
	return []CourseStatus{CourseStatusNotStarted, CourseStatusInProgress}
}

// AcceptsEnrollment applies the enrollment gate.
func (c Course) AcceptsEnrollment(requireInProgress bool) bool {
	for _, s := range EnrollableStatuses(requireInProgress) {
		if c.Status == s {
			return true
		}
	}
	return false
}
