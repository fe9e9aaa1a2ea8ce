package model

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Scope narrows which sessions a caller can see. The zero value matches
// every session.
type Scope struct {
	TeacherID string
	Semester  int
	Section   string
}

// Matches applies the scope to one session in memory.
func (s Scope) Matches(sess Session) bool {
	if s.TeacherID != "" && sess.TeacherID != s.TeacherID {
		return false
	}
	if s.Semester != 0 && sess.Semester != s.Semester {
		return false
	}
	if s.Section != "" && sess.Section != s.Section {
		return false
	}
	return true
}

// Identity is the authenticated caller as carried in an access token.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
