package models

import "time"

// Teacher is an instructor profile linked to a person record.
type Teacher struct {
	AuditFields
	UserID         string     `db:"user_id" json:"user_id"`
	EmployeeNumber string     `db:"employee_number" json:"employee_number"`
	Department     *string    `db:"department" json:"department,omitempty"`
	Specialization *string    `db:"specialization" json:"specialization,omitempty"`
	HireDate       *time.Time `db:"hire_date" json:"hire_date,omitempty"`
}

// TeacherDetail enriches Teacher with person fields.
type TeacherDetail struct {
	Teacher
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Email     string `db:"email" json:"email"`
}

// DisplayName is the name shown in notifications.
func (t TeacherDetail) DisplayName() string {
	return User{FirstName: t.FirstName, LastName: t.LastName}.FullName()
}
