package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/repository"
)

// memStore is a concurrency-safe in-memory store whose views satisfy the
// repository interfaces consumed by the services. Every method holds the
// mutex for its whole body, mirroring the row lock of the SQL store.
type memStore struct {
	mu          sync.Mutex
	users       map[string]models.User
	students    map[string]models.Student
	teachers    map[string]models.Teacher
	courses     map[string]models.Course
	enrollments map[string]*models.Enrollment
	grades      map[string]models.Grade
	attendance  map[string]models.Attendance
	failWith    error
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]models.User),
		students:    make(map[string]models.Student),
		teachers:    make(map[string]models.Teacher),
		courses:     make(map[string]models.Course),
		enrollments: make(map[string]*models.Enrollment),
		grades:      make(map[string]models.Grade),
		attendance:  make(map[string]models.Attendance),
	}
}

func modeMatches(deleted bool, mode models.DeletedMode) bool {
	switch mode {
	case models.DeletedModeInclude:
		return true
	case models.DeletedModeOnly:
		return deleted
	default:
		return !deleted
	}
}

func pageBounds(page, size, n int) (int, int) {
	page, size = models.NormalizePage(page, size)
	start := (page - 1) * size
	if start > n {
		start = n
	}
	end := start + size
	if end > n {
		end = n
	}
	return start, end
}

func pairKey(studentID, courseID string) string { return studentID + "|" + courseID }

// seeding helpers

func (m *memStore) addUser(first, last string, role models.UserRole) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{FirstName: first, LastName: last, Email: strings.ToLower(first) + "@example.com", PasswordHash: "hash", Role: role}
	u.ID = uuid.NewString()
	u.Stamp(time.Now())
	m.users[u.ID] = u
	return u
}

func (m *memStore) addStudent(first, last string) models.Student {
	u := m.addUser(first, last, models.RoleStudent)
	m.mu.Lock()
	defer m.mu.Unlock()
	s := models.Student{UserID: u.ID, StudentNumber: "S-" + u.ID[:8]}
	s.ID = uuid.NewString()
	s.Stamp(time.Now())
	m.students[s.ID] = s
	return s
}

func (m *memStore) addTeacher(first, last string) models.Teacher {
	u := m.addUser(first, last, models.RoleTeacher)
	m.mu.Lock()
	defer m.mu.Unlock()
	t := models.Teacher{UserID: u.ID, EmployeeNumber: "E-" + u.ID[:8]}
	t.ID = uuid.NewString()
	t.Stamp(time.Now())
	m.teachers[t.ID] = t
	return t
}

func (m *memStore) addCourse(teacherID string, status models.CourseStatus, credits, capacity int) models.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := models.Course{Name: "Course", Code: "C-" + uuid.NewString()[:8], Credits: credits, Capacity: capacity, TeacherID: teacherID, Status: status}
	c.ID = uuid.NewString()
	c.Stamp(time.Now())
	m.courses[c.ID] = c
	return c
}

func (m *memStore) activeCount(courseID string) int {
	count := 0
	for _, e := range m.enrollments {
		if e.CourseID == courseID && e.IsActive {
			count++
		}
	}
	return count
}

// users

type memUsers struct{ *memStore }

func (r memUsers) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !modeMatches(u.IsDeleted, mode) {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (r memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			u := u
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memUsers) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r memUsers) SoftDelete(ctx context.Context, id, actorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.IsDeleted {
		return sql.ErrNoRows
	}
	u.MarkDeleted(at, actorID)
	r.users[id] = u
	return nil
}

// students

type memStudents struct{ *memStore }

func (r memStudents) detail(s models.Student) models.StudentDetail {
	u := r.users[s.UserID]
	return models.StudentDetail{Student: s, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

func (r memStudents) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.StudentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	s, ok := r.students[id]
	if !ok || !modeMatches(s.IsDeleted, mode) {
		return nil, sql.ErrNoRows
	}
	d := r.detail(s)
	return &d, nil
}

func (r memStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.StudentDetail
	for _, s := range r.students {
		if modeMatches(s.IsDeleted, filter.Mode) {
			out = append(out, r.detail(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentNumber < out[j].StudentNumber })
	start, end := pageBounds(filter.Page, filter.PageSize, len(out))
	return out[start:end], len(out), nil
}

func (r memStudents) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.students {
		if s.StudentNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r memStudents) Create(ctx context.Context, student *models.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[student.ID] = *student
	return nil
}

func (r memStudents) SoftDelete(ctx context.Context, id, actorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok || s.IsDeleted {
		return sql.ErrNoRows
	}
	s.MarkDeleted(at, actorID)
	r.students[id] = s
	return nil
}

// teachers

type memTeachers struct{ *memStore }

func (r memTeachers) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.TeacherDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.teachers[id]
	if !ok || !modeMatches(t.IsDeleted, mode) {
		return nil, sql.ErrNoRows
	}
	u := r.users[t.UserID]
	return &models.TeacherDetail{Teacher: t, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}, nil
}

func (r memTeachers) ExistsByEmployeeNumber(ctx context.Context, number string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.teachers {
		if t.EmployeeNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r memTeachers) Create(ctx context.Context, teacher *models.Teacher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teachers[teacher.ID] = *teacher
	return nil
}

func (r memTeachers) SoftDelete(ctx context.Context, id, actorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.teachers[id]
	if !ok || t.IsDeleted {
		return sql.ErrNoRows
	}
	t.MarkDeleted(at, actorID)
	r.teachers[id] = t
	return nil
}

// courses

type memCourses struct{ *memStore }

func (r memCourses) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Course
	for _, c := range r.courses {
		if !modeMatches(c.IsDeleted, filter.Mode) {
			continue
		}
		if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	start, end := pageBounds(filter.Page, filter.PageSize, len(out))
	return out[start:end], len(out), nil
}

func (r memCourses) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[id]
	if !ok || !modeMatches(c.IsDeleted, mode) {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r memCourses) ExistsByCode(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.courses {
		if c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r memCourses) Create(ctx context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.courses {
		if c.Code == course.Code {
			return repository.ErrDuplicate
		}
	}
	r.courses[course.ID] = *course
	return nil
}

func (r memCourses) Transition(ctx context.Context, course *models.Course, from []models.CourseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.courses[course.ID]
	if !ok || stored.IsDeleted {
		return repository.ErrTransitionRejected
	}
	for _, s := range from {
		if stored.Status == s {
			r.courses[course.ID] = *course
			return nil
		}
	}
	return repository.ErrTransitionRejected
}

func (r memCourses) SoftDelete(ctx context.Context, id, actorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[id]
	if !ok || c.IsDeleted {
		return sql.ErrNoRows
	}
	if r.activeCount(id) > 0 {
		return repository.ErrCourseHasActiveEnrollment
	}
	c.MarkDeleted(at, actorID)
	r.courses[id] = c
	return nil
}

func (r memCourses) Restore(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	if !c.IsDeleted {
		return repository.ErrNotDeleted
	}
	c.ClearDeletion(at)
	r.courses[id] = c
	return nil
}

// enrollments

type memEnrollments struct{ *memStore }

func (r memEnrollments) Enroll(ctx context.Context, params models.EnrollParams) (*models.EnrollResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	course, ok := r.courses[params.CourseID]
	if !ok || course.IsDeleted {
		return nil, sql.ErrNoRows
	}
	allowed := false
	for _, s := range params.AllowedStatuses {
		if course.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return nil, repository.ErrEnrollmentClosed
	}
	existing, hasRow := r.enrollments[pairKey(params.StudentID, params.CourseID)]
	if hasRow && existing.IsActive {
		return nil, repository.ErrAlreadyEnrolled
	}
	active := r.activeCount(params.CourseID)
	if active >= course.Capacity {
		return nil, repository.ErrCourseFull
	}
	result := &models.EnrollResult{ActiveCount: active + 1}
	if hasRow {
		existing.IsActive = true
		existing.EnrolledAt = params.Now
		existing.UpdatedAt = params.Now
		result.Enrollment = *existing
		result.Reactivated = true
		return result, nil
	}
	e := &models.Enrollment{ID: uuid.NewString(), StudentID: params.StudentID, CourseID: params.CourseID, EnrolledAt: params.Now, IsActive: true, CreatedAt: params.Now, UpdatedAt: params.Now}
	r.enrollments[pairKey(params.StudentID, params.CourseID)] = e
	result.Enrollment = *e
	return result, nil
}

func (r memEnrollments) Deactivate(ctx context.Context, courseID, studentID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[pairKey(studentID, courseID)]
	if !ok || !e.IsActive {
		return false, nil
	}
	e.IsActive = false
	e.UpdatedAt = at
	return true, nil
}

func (r memEnrollments) CountActive(ctx context.Context, courseID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeCount(courseID), nil
}

func (r memEnrollments) ListActiveByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range r.enrollments {
		if e.CourseID != courseID || !e.IsActive {
			continue
		}
		s := r.students[e.StudentID]
		u := r.users[s.UserID]
		out = append(out, models.EnrollmentDetail{Enrollment: *e, StudentNumber: s.StudentNumber, FirstName: u.FirstName, LastName: u.LastName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentNumber < out[j].StudentNumber })
	return out, nil
}

// grades

type memGrades struct{ *memStore }

func (r memGrades) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Grade
	for _, g := range r.grades {
		if !modeMatches(g.IsDeleted, filter.Mode) {
			continue
		}
		if filter.StudentID != "" && g.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && g.CourseID != filter.CourseID {
			continue
		}
		if filter.GradeType != "" && g.GradeType != filter.GradeType {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GradeDate.After(out[j].GradeDate) })
	start, end := pageBounds(filter.Page, filter.PageSize, len(out))
	return out[start:end], len(out), nil
}

func (r memGrades) FindByID(ctx context.Context, id string, mode models.DeletedMode) (*models.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grades[id]
	if !ok || !modeMatches(g.IsDeleted, mode) {
		return nil, sql.ErrNoRows
	}
	return &g, nil
}

func (r memGrades) CreateForActiveEnrollment(ctx context.Context, grade *models.Grade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[pairKey(grade.StudentID, grade.CourseID)]
	if !ok || !e.IsActive {
		return repository.ErrNotEnrolled
	}
	r.grades[grade.ID] = *grade
	return nil
}

func (r memGrades) UpdateScore(ctx context.Context, id string, score float64, letter string, comment *string, at time.Time) (*models.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grades[id]
	if !ok || g.IsDeleted {
		return nil, sql.ErrNoRows
	}
	g.Score = score
	g.LetterGrade = &letter
	if comment != nil {
		g.Comment = comment
	}
	g.Touch(at)
	r.grades[id] = g
	return &g, nil
}

func (r memGrades) SoftDelete(ctx context.Context, id, actorID string, at time.Time) (*models.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grades[id]
	if !ok || g.IsDeleted {
		return nil, sql.ErrNoRows
	}
	g.MarkDeleted(at, actorID)
	r.grades[id] = g
	return &g, nil
}

func (r memGrades) Restore(ctx context.Context, id string, at time.Time) (*models.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grades[id]
	if !ok || !g.IsDeleted {
		return nil, sql.ErrNoRows
	}
	g.ClearDeletion(at)
	r.grades[id] = g
	return &g, nil
}

func (r memGrades) HardDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grades[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.grades, id)
	return nil
}

func (r memGrades) ListGradeCredits(ctx context.Context, studentID string) ([]models.GradeCredit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.GradeCredit
	for _, g := range r.grades {
		if g.StudentID != studentID || g.IsDeleted {
			continue
		}
		out = append(out, models.GradeCredit{GradeID: g.ID, CourseID: g.CourseID, Score: g.Score, Credits: r.courses[g.CourseID].Credits})
	}
	return out, nil
}

// attendance

type memAttendance struct{ *memStore }

func (r memAttendance) Upsert(ctx context.Context, record *models.Attendance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(record.StudentID, record.CourseID) + "|" + record.Date.Format("2006-01-02")
	if existing, ok := r.attendance[key]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = record.UpdatedAt
	}
	r.attendance[key] = *record
	return nil
}

func (r memAttendance) Counts(ctx context.Context, studentID, courseID string) (models.AttendanceCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts models.AttendanceCounts
	for _, a := range r.attendance {
		if a.StudentID != studentID || (courseID != "" && a.CourseID != courseID) || a.IsDeleted {
			continue
		}
		counts.Total++
		if a.Present {
			counts.Present++
		}
	}
	return counts, nil
}

func (r memAttendance) CourseCounts(ctx context.Context, courseID string) (models.AttendanceCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts models.AttendanceCounts
	for _, a := range r.attendance {
		if a.CourseID != courseID || a.IsDeleted {
			continue
		}
		counts.Total++
		if a.Present {
			counts.Present++
		}
	}
	return counts, nil
}

func (r memAttendance) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Attendance
	for _, a := range r.attendance {
		if filter.StudentID != "" && a.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && a.CourseID != filter.CourseID {
			continue
		}
		if filter.Present != nil && a.Present != *filter.Present {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	start, end := pageBounds(filter.Page, filter.PageSize, len(out))
	return out[start:end], len(out), nil
}
