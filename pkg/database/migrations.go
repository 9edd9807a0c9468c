package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migration is a forward-only schema step.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// Migrations lists the schema steps in application order.
var Migrations = []Migration{
	{Version: 1, Name: "people", Up: migration001People},
	{Version: 2, Name: "courses", Up: migration002Courses},
	{Version: 3, Name: "grades_attendance", Up: migration003GradesAttendance},
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const migration001People = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    first_name VARCHAR(100) NOT NULL,
    last_name VARCHAR(100) NOT NULL,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role VARCHAR(20) NOT NULL,
    phone VARCHAR(30),
    date_of_birth DATE,
    address TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ,
    deleted_by UUID,
    CONSTRAINT users_valid_role CHECK (role IN ('ADMIN', 'TEACHER', 'STUDENT'))
);

CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    student_number VARCHAR(50) NOT NULL UNIQUE,
    department VARCHAR(100),
    grade_level INTEGER NOT NULL DEFAULT 0,
    class_name VARCHAR(100),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ,
    deleted_by UUID
);

CREATE TABLE IF NOT EXISTS teachers (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    employee_number VARCHAR(50) NOT NULL UNIQUE,
    department VARCHAR(100),
    specialization VARCHAR(100),
    hire_date DATE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ,
    deleted_by UUID
);
`

const migration002Courses = `
CREATE TABLE IF NOT EXISTS courses (
    id UUID PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    code VARCHAR(50) NOT NULL UNIQUE,
    description TEXT,
    credits INTEGER NOT NULL,
    capacity INTEGER NOT NULL,
    teacher_id UUID NOT NULL REFERENCES teachers(id),
    status VARCHAR(20) NOT NULL DEFAULT 'NOT_STARTED',
    start_date TIMESTAMPTZ,
    end_date TIMESTAMPTZ,
    schedule VARCHAR(200),
    location VARCHAR(200),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ,
    deleted_by UUID,
    CONSTRAINT courses_positive_credits CHECK (credits > 0),
    CONSTRAINT courses_positive_capacity CHECK (capacity > 0),
    CONSTRAINT courses_valid_status CHECK (status IN ('NOT_STARTED', 'IN_PROGRESS', 'COMPLETED', 'CANCELLED'))
);

CREATE INDEX IF NOT EXISTS idx_courses_teacher_id ON courses(teacher_id);

CREATE TABLE IF NOT EXISTS student_courses (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id),
    course_id UUID NOT NULL REFERENCES courses(id),
    enrolled_at TIMESTAMPTZ NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CONSTRAINT student_courses_pair UNIQUE (student_id, course_id)
);

CREATE INDEX IF NOT EXISTS idx_student_courses_active ON student_courses(course_id) WHERE is_active;
`

const migration003GradesAttendance = `
CREATE TABLE IF NOT EXISTS grades (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id),
    course_id UUID NOT NULL REFERENCES courses(id),
    score NUMERIC(5,2) NOT NULL,
    letter_grade VARCHAR(3),
    comment TEXT,
    grade_type VARCHAR(50) NOT NULL DEFAULT '',
    grade_date TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ,
    deleted_by UUID,
    CONSTRAINT grades_score_range CHECK (score >= 0 AND score <= 100)
);

CREATE INDEX IF NOT EXISTS idx_grades_student ON grades(student_id) WHERE NOT is_deleted;

CREATE TABLE IF NOT EXISTS attendance (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id),
    course_id UUID NOT NULL REFERENCES courses(id),
    date DATE NOT NULL,
    present BOOLEAN NOT NULL,
    notes TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    CONSTRAINT attendance_one_per_day UNIQUE (student_id, course_id, date)
);
`

// Migrate applies every pending migration, each inside its own transaction.
// It returns the versions applied by this call.
func Migrate(ctx context.Context, db *sqlx.DB) ([]int, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	var applied []int
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func apply(ctx context.Context, db *sqlx.DB, m Migration) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %03d: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("apply migration %03d_%s: %w", m.Version, m.Name, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return fmt.Errorf("record migration %03d: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %03d: %w", m.Version, err)
	}
	return nil
}
