package models

import "time"

// EventType names a domain event.
type EventType string

const (
	EventCourseCreated      EventType = "course.created"
	EventCourseStarted      EventType = "course.started"
	EventCourseCompleted    EventType = "course.completed"
	EventCourseCancelled    EventType = "course.cancelled"
	EventCourseDeleted      EventType = "course.deleted"
	EventCourseRestored     EventType = "course.restored"
	EventStudentEnrolled    EventType = "enrollment.student_enrolled"
	EventStudentUnenrolled  EventType = "enrollment.student_unenrolled"
	EventGradeAssigned      EventType = "grade.assigned"
	EventGradeUpdated       EventType = "grade.updated"
	EventGradeDeleted       EventType = "grade.deleted"
	EventGradeRestored      EventType = "grade.restored"
	EventGradeHardDeleted   EventType = "grade.hard_deleted"
	EventAttendanceRecorded EventType = "attendance.recorded"
	EventUserRegistered     EventType = "user.registered"
	EventStudentCreated     EventType = "student.created"
	EventTeacherCreated     EventType = "teacher.created"
)

// Event is an outbox entry returned by a mutating operation. Dispatch is the
// caller's responsibility.
type Event struct {
	Type        EventType              `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent builds an event for aggregateID.
func NewEvent(eventType EventType, aggregateID string, at time.Time, payload map[string]interface{}) Event {
	return Event{Type: eventType, AggregateID: aggregateID, OccurredAt: at, Payload: payload}
}
