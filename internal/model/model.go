package model

import (
	"time"
)

// Role is the caller's kind of account.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// StatusPresent is the only attendance status the service writes.
const StatusPresent = "present"

// Sections lists the section labels a class can be split into.
var Sections = []string{"A", "B", "C", "D"}

// Point is a captured latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat" firestore:"lat" binding:"latitude"`
	Lng float64 `json:"lng" firestore:"lng" binding:"longitude"`
}

// Session is a time-boxed attendance window for one semester and section.
type Session struct {
	ID             string    `json:"id" firestore:"-"`
	TeacherID      string    `json:"teacher_id" firestore:"teacherUid" binding:"required"`
	TeacherName    string    `json:"teacher_name" firestore:"teacherName"`
	Department     string    `json:"department" firestore:"department"`
	Period         string    `json:"period" firestore:"period" binding:"required,max=64"`
	Topic          string    `json:"topic" firestore:"topic_covered" binding:"required,max=256"`
	Semester       int       `json:"semester" firestore:"semester" binding:"required,min=1,max=8"`
	Section        string    `json:"section" firestore:"section" binding:"required,oneof=A B C D"`
	GeofenceRadius float64   `json:"geofence_radius" firestore:"geofence_radius" binding:"required,gt=0"`
	Center         *Point    `json:"center,omitempty" firestore:"geofence_center" binding:"omitempty"`
	TimerMinutes   int       `json:"timer_minutes" firestore:"timer_minutes" binding:"required,gt=0,max=1440"`
	QRURL          string    `json:"qr_url,omitempty" firestore:"qr_url,omitempty"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
}

// StartedAt is the instant the session opened.
func (s Session) StartedAt() time.Time { return s.CreatedAt }

// DurationMinutes is how long the session stays open.
func (s Session) DurationMinutes() int { return s.TimerMinutes }

// AttendanceRecord is one student's check-in against one session.
// (SessionID, RollNo) identifies it.
type AttendanceRecord struct {
	SessionID string    `json:"session_id" firestore:"-" binding:"required"`
	StudentID string    `json:"student_id" firestore:"uid" binding:"required"`
	Name      string    `json:"name" firestore:"name" binding:"required"`
	RollNo    string    `json:"roll_no" firestore:"usn" binding:"required"`
	Status    string    `json:"status" firestore:"status" binding:"required,eq=present"`
	MarkedAt  time.Time `json:"marked_at" firestore:"timestamp"`
}

// Student is a student's profile. UID equals the identity account id.
type Student struct {
	UID        string    `json:"uid" firestore:"uid" binding:"required"`
	Name       string    `json:"name" firestore:"name" binding:"required,max=128"`
	Email      string    `json:"email" firestore:"email" binding:"required,email"`
	Phone      string    `json:"phone,omitempty" firestore:"phone"`
	Department string    `json:"department,omitempty" firestore:"department"`
	RollNo     string    `json:"roll_no" firestore:"usn" binding:"required,max=32"`
	Semester   int       `json:"semester" firestore:"semester" binding:"required,min=1,max=8"`
	Section    string    `json:"section" firestore:"section" binding:"required,oneof=A B C D"`
	CreatedAt  time.Time `json:"created_at" firestore:"createdAt"`
}

// Teacher is a teacher's profile. UID equals the identity account id.
type Teacher struct {
	UID        string    `json:"uid" firestore:"uid" binding:"required"`
	Name       string    `json:"name" firestore:"name" binding:"required,max=128"`
	Email      string    `json:"email" firestore:"email" binding:"required,email"`
	Phone      string    `json:"phone,omitempty" firestore:"phone"`
	Department string    `json:"department,omitempty" firestore:"department"`
	Subject    string    `json:"subject,omitempty" firestore:"subject"`
	CreatedAt  time.Time `json:"created_at" firestore:"createdAt"`
}

// Account is a local sign-in credential. Hosted identity providers keep
// their own and never produce one.
type Account struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email" binding:"required,email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role" binding:"required,oneof=admin teacher student"`
	CreatedAt    time.Time `json:"created_at"`
}
