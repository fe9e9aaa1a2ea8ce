package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"qrattend/internal/model"
)

// CreateStudent stores a student profile. Email and roll number are unique.
func (r *Repository) CreateStudent(ctx context.Context, s model.Student) error {
	_, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		INSERT INTO students (uid, name, email, phone, department, roll_no, semester, section, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`), s.UID, s.Name, strings.ToLower(s.Email), s.Phone, s.Department, s.RollNo, s.Semester, s.Section, s.CreatedAt.UTC())
	return wrapWriteErr(err)
}

// GetStudent loads a student profile by uid.
func (r *Repository) GetStudent(ctx context.Context, uid string) (model.Student, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.rebind(`
		SELECT uid, name, email, phone, department, roll_no, semester, section, created_at
		FROM students WHERE uid = $1
	`), uid)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Student{}, fmt.Errorf("student %s: %w", uid, model.ErrNotFound)
	}
	return s, err
}

// ListStudents returns every student ordered by roll number.
func (r *Repository) ListStudents(ctx context.Context) ([]model.Student, error) {
	rows, err := r.db.Client.QueryContext(ctx, `
		SELECT uid, name, email, phone, department, roll_no, semester, section, created_at
		FROM students ORDER BY roll_no
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []model.Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CreateTeacher stores a teacher profile.
func (r *Repository) CreateTeacher(ctx context.Context, t model.Teacher) error {
	_, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		INSERT INTO teachers (uid, name, email, phone, department, subject, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`), t.UID, t.Name, strings.ToLower(t.Email), t.Phone, t.Department, t.Subject, t.CreatedAt.UTC())
	return wrapWriteErr(err)
}

// GetTeacher loads a teacher profile by uid.
func (r *Repository) GetTeacher(ctx context.Context, uid string) (model.Teacher, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.rebind(`
		SELECT uid, name, email, phone, department, subject, created_at
		FROM teachers WHERE uid = $1
	`), uid)
	t, err := scanTeacher(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Teacher{}, fmt.Errorf("teacher %s: %w", uid, model.ErrNotFound)
	}
	return t, err
}

// ListTeachers returns every teacher ordered by name.
func (r *Repository) ListTeachers(ctx context.Context) ([]model.Teacher, error) {
	rows, err := r.db.Client.QueryContext(ctx, `
		SELECT uid, name, email, phone, department, subject, created_at
		FROM teachers ORDER BY name, uid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []model.Teacher{}
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func scanStudent(row scanner) (model.Student, error) {
	var s model.Student
	if err := row.Scan(&s.UID, &s.Name, &s.Email, &s.Phone, &s.Department, &s.RollNo, &s.Semester, &s.Section, &s.CreatedAt); err != nil {
		return model.Student{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func scanTeacher(row scanner) (model.Teacher, error) {
	var t model.Teacher
	if err := row.Scan(&t.UID, &t.Name, &t.Email, &t.Phone, &t.Department, &t.Subject, &t.CreatedAt); err != nil {
		return model.Teacher{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}
