// Package roster provisions student and teacher accounts: an identity
// account first, then a profile keyed by the account's uid.
package roster

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"qrattend/internal/auth"
	"qrattend/internal/model"
)

// StudentRequest is the input for one new student.
type StudentRequest struct {
	Name       string `json:"name" binding:"required,max=128"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	RollNo     string `json:"roll_no" binding:"required,max=32"`
	Semester   int    `json:"semester" binding:"required,min=1,max=8"`
	Section    string `json:"section" binding:"required,oneof=A B C D"`
}

// TeacherRequest is the input for one new teacher.
type TeacherRequest struct {
	Name       string `json:"name" binding:"required,max=128"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Subject    string `json:"subject"`
}

// Profiles stores the profile documents.
type Profiles interface {
	CreateStudent(ctx context.Context, s model.Student) error
	ListStudents(ctx context.Context) ([]model.Student, error)
	CreateTeacher(ctx context.Context, t model.Teacher) error
	ListTeachers(ctx context.Context) ([]model.Teacher, error)
}

// Provisioner creates accounts through an identity provider and stores the
// matching profile.
type Provisioner struct {
	ids      auth.Provider
	profiles Profiles
	now      func() time.Time
}

// NewProvisioner creates a provisioner.
func NewProvisioner(ids auth.Provider, profiles Profiles) *Provisioner {
	return &Provisioner{ids: ids, profiles: profiles, now: time.Now}
}

// CreateStudent provisions one student. If the profile write fails after the
// account was created the account is left behind and logged.
func (p *Provisioner) CreateStudent(ctx context.Context, req StudentRequest) (model.Student, error) {
	req.RollNo = strings.ToUpper(strings.TrimSpace(req.RollNo))
	req.Section = strings.ToUpper(strings.TrimSpace(req.Section))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := model.Validate(req); err != nil {
		return model.Student{}, err
	}
	uid, err := p.ids.CreateUser(ctx, req.Email, req.Password, model.RoleStudent)
	if err != nil {
		return model.Student{}, fmt.Errorf("create account for %s: %w", req.Email, err)
	}
	st := model.Student{
		UID:        uid,
		Name:       strings.TrimSpace(req.Name),
		Email:      req.Email,
		Phone:      req.Phone,
		Department: req.Department,
		RollNo:     req.RollNo,
		Semester:   req.Semester,
		Section:    req.Section,
		CreatedAt:  p.now().UTC(),
	}
	if err := p.profiles.CreateStudent(ctx, st); err != nil {
		log.Printf("student account %s created without profile: %v", uid, err)
		return model.Student{}, fmt.Errorf("store student %s: %w", st.RollNo, err)
	}
	return st, nil
}

// CreateTeacher provisions one teacher.
func (p *Provisioner) CreateTeacher(ctx context.Context, req TeacherRequest) (model.Teacher, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := model.Validate(req); err != nil {
		return model.Teacher{}, err
	}
	uid, err := p.ids.CreateUser(ctx, req.Email, req.Password, model.RoleTeacher)
	if err != nil {
		return model.Teacher{}, fmt.Errorf("create account for %s: %w", req.Email, err)
	}
	t := model.Teacher{
		UID:        uid,
		Name:       strings.TrimSpace(req.Name),
		Email:      req.Email,
		Phone:      req.Phone,
		Department: req.Department,
		Subject:    req.Subject,
		CreatedAt:  p.now().UTC(),
	}
	if err := p.profiles.CreateTeacher(ctx, t); err != nil {
		log.Printf("teacher account %s created without profile: %v", uid, err)
		return model.Teacher{}, fmt.Errorf("store teacher %s: %w", t.Email, err)
	}
	return t, nil
}

// Students lists student profiles ordered by roll number.
func (p *Provisioner) Students(ctx context.Context) ([]model.Student, error) {
	return p.profiles.ListStudents(ctx)
}

// Teachers lists teacher profiles.
func (p *Provisioner) Teachers(ctx context.Context) ([]model.Teacher, error) {
	return p.profiles.ListTeachers(ctx)
}
