package attendance

import (
	"context"

	"qrattend/internal/model"
)

// Repository is what the service needs from a store. Both the SQL store and
// the Firestore store satisfy it.
type Repository interface {
	CreateSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, id string) (model.Session, error)
	ListSessions(ctx context.Context, scope model.Scope) ([]model.Session, error)

	// InsertAttendance is create-if-absent on (session, roll number). When a
	// record already exists it is returned unchanged with created=false.
	InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (stored model.AttendanceRecord, created bool, err error)
	ListAttendance(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error)

	GetStudent(ctx context.Context, uid string) (model.Student, error)
	GetTeacher(ctx context.Context, uid string) (model.Teacher, error)
}

// Publisher signals that sessions or attendance changed.
type Publisher interface {
	Publish(ctx context.Context) error
}

// Uploader stores a rendered QR image and returns its public URL.
type Uploader interface {
	UploadPNG(ctx context.Context, publicID string, png []byte) (string, error)
}
