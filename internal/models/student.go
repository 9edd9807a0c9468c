package models

// Student is a learner profile linked to a person record.
type Student struct {
	AuditFields
	UserID        string  `db:"user_id" json:"user_id"`
	StudentNumber string  `db:"student_number" json:"student_number"`
	Department    *string `db:"department" json:"department,omitempty"`
	GradeLevel    int     `db:"grade_level" json:"grade_level"`
	ClassName     *string `db:"class_name" json:"class_name,omitempty"`
}

// StudentDetail enriches Student with person fields.
type StudentDetail struct {
	Student
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Email     string `db:"email" json:"email"`
}

// FullName joins first and last name.
func (s StudentDetail) FullName() string {
	return User{FirstName: s.FirstName, LastName: s.LastName}.FullName()
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	Department string
	Mode       DeletedMode
	Page       int
	PageSize   int
}
