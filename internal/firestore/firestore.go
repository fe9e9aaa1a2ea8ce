// Package firestore stores sessions, attendance and profiles in Cloud
// Firestore using the collection layout the web clients read:
//
//	sessions/{id}
//	sessions/{id}/attendance/{roll_no}
//	students/{uid}
//	teachers/{uid}
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	gcfs "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"qrattend/internal/model"
)

const (
	sessionsCol   = "sessions"
	attendanceCol = "attendance"
	studentsCol   = "students"
	teachersCol   = "teachers"
)

// NewApp initialises the Firebase app. An empty credsFile falls back to
// application default credentials.
func NewApp(ctx context.Context, projectID, credsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

// Repository is the Firestore counterpart of the SQL repository.
type Repository struct {
	client *gcfs.Client
}

// New opens a Firestore client from app.
func New(ctx context.Context, app *firebase.App) (*Repository, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore: %w", err)
	}
	return &Repository{client: client}, nil
}

// NewWithClient wraps an existing client, e.g. one pointed at the emulator.
func NewWithClient(client *gcfs.Client) *Repository {
	return &Repository{client: client}
}

// Close closes the client.
func (r *Repository) Close() error {
	return r.client.Close()
}

// Healthy reports whether a trivial read succeeds.
func (r *Repository) Healthy(ctx context.Context) bool {
	_, err := r.client.Collection(sessionsCol).Limit(1).Documents(ctx).GetAll()
	return err == nil
}

// CreateSession writes s under its id. An existing id is a duplicate.
func (r *Repository) CreateSession(ctx context.Context, s model.Session) error {
	_, err := r.client.Collection(sessionsCol).Doc(s.ID).Create(ctx, s)
	return wrapErr(err, "session "+s.ID)
}

// GetSession loads a session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (model.Session, error) {
	snap, err := r.client.Collection(sessionsCol).Doc(id).Get(ctx)
	if err != nil {
		return model.Session{}, wrapErr(err, "session "+id)
	}
	return decodeSession(snap)
}

// ListSessions returns sessions in scope, newest first. Ordering happens
// client side so scoped queries need no composite index.
func (r *Repository) ListSessions(ctx context.Context, scope model.Scope) ([]model.Session, error) {
	q := r.client.Collection(sessionsCol).Query
	if scope.TeacherID != "" {
		q = q.Where("teacherUid", "==", scope.TeacherID)
	}
	if scope.Semester != 0 {
		// Older clients stored the semester as a form string.
		q = q.Where("semester", "in", []any{scope.Semester, strconv.Itoa(scope.Semester)})
	}
	if scope.Section != "" {
		q = q.Where("section", "==", scope.Section)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	res := []model.Session{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		s, err := decodeSession(snap)
		if err != nil {
			log.Printf("skipping session document: %v", err)
			continue
		}
		res = append(res, s)
	}
	sortSessions(res)
	return res, nil
}

// InsertAttendance creates sessions/{id}/attendance/{roll_no} if absent. When
// the document exists the stored record is returned with created=false.
func (r *Repository) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, bool, error) {
	ref := r.attendanceRef(rec.SessionID).Doc(rec.RollNo)
	_, err := ref.Create(ctx, rec)
	if err == nil {
		return rec, true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return model.AttendanceRecord{}, false, fmt.Errorf("insert attendance: %w", err)
	}
	existing, err := r.GetAttendance(ctx, rec.SessionID, rec.RollNo)
	if err != nil {
		return model.AttendanceRecord{}, false, err
	}
	return existing, false, nil
}

// GetAttendance loads one student's record in a session.
func (r *Repository) GetAttendance(ctx context.Context, sessionID, rollNo string) (model.AttendanceRecord, error) {
	snap, err := r.attendanceRef(sessionID).Doc(rollNo).Get(ctx)
	if err != nil {
		return model.AttendanceRecord{}, wrapErr(err, "attendance "+sessionID+"/"+rollNo)
	}
	return decodeAttendance(sessionID, snap)
}

// ListAttendance returns a session's records ordered by marked time.
func (r *Repository) ListAttendance(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	iter := r.attendanceRef(sessionID).OrderBy("timestamp", gcfs.Asc).Documents(ctx)
	defer iter.Stop()

	res := []model.AttendanceRecord{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list attendance: %w", err)
		}
		rec, err := decodeAttendance(sessionID, snap)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// CreateStudent writes students/{uid}. Roll numbers are checked for
// uniqueness before the write; concurrent creates with the same roll number
// are not serialised.
func (r *Repository) CreateStudent(ctx context.Context, s model.Student) error {
	s.Email = strings.ToLower(s.Email)
	taken, err := r.client.Collection(studentsCol).Where("usn", "==", s.RollNo).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("check roll number: %w", err)
	}
	if len(taken) > 0 {
		return fmt.Errorf("%w: roll number %s", model.ErrDuplicate, s.RollNo)
	}
	_, err = r.client.Collection(studentsCol).Doc(s.UID).Create(ctx, s)
	return wrapErr(err, "student "+s.UID)
}

// GetStudent loads students/{uid}.
func (r *Repository) GetStudent(ctx context.Context, uid string) (model.Student, error) {
	snap, err := r.client.Collection(studentsCol).Doc(uid).Get(ctx)
	if err != nil {
		return model.Student{}, wrapErr(err, "student "+uid)
	}
	var s model.Student
	if err := snap.DataTo(&s); err != nil {
		return model.Student{}, fmt.Errorf("decode student %s: %w", uid, err)
	}
	s.UID = snap.Ref.ID
	return s, nil
}

// ListStudents returns every student ordered by roll number.
func (r *Repository) ListStudents(ctx context.Context) ([]model.Student, error) {
	docs, err := r.client.Collection(studentsCol).OrderBy("usn", gcfs.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	res := make([]model.Student, 0, len(docs))
	for _, snap := range docs {
		var s model.Student
		if err := snap.DataTo(&s); err != nil {
			return nil, fmt.Errorf("decode student %s: %w", snap.Ref.ID, err)
		}
		s.UID = snap.Ref.ID
		res = append(res, s)
	}
	return res, nil
}

// CreateTeacher writes teachers/{uid}.
func (r *Repository) CreateTeacher(ctx context.Context, t model.Teacher) error {
	t.Email = strings.ToLower(t.Email)
	_, err := r.client.Collection(teachersCol).Doc(t.UID).Create(ctx, t)
	return wrapErr(err, "teacher "+t.UID)
}

// GetTeacher loads teachers/{uid}.
func (r *Repository) GetTeacher(ctx context.Context, uid string) (model.Teacher, error) {
	snap, err := r.client.Collection(teachersCol).Doc(uid).Get(ctx)
	if err != nil {
		return model.Teacher{}, wrapErr(err, "teacher "+uid)
	}
	var t model.Teacher
	if err := snap.DataTo(&t); err != nil {
		return model.Teacher{}, fmt.Errorf("decode teacher %s: %w", uid, err)
	}
	t.UID = snap.Ref.ID
	return t, nil
}

// ListTeachers returns every teacher ordered by name.
func (r *Repository) ListTeachers(ctx context.Context) ([]model.Teacher, error) {
	docs, err := r.client.Collection(teachersCol).OrderBy("name", gcfs.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	res := make([]model.Teacher, 0, len(docs))
	for _, snap := range docs {
		var t model.Teacher
		if err := snap.DataTo(&t); err != nil {
			return nil, fmt.Errorf("decode teacher %s: %w", snap.Ref.ID, err)
		}
		t.UID = snap.Ref.ID
		res = append(res, t)
	}
	return res, nil
}

func (r *Repository) attendanceRef(sessionID string) *gcfs.CollectionRef {
	return r.client.Collection(sessionsCol).Doc(sessionID).Collection(attendanceCol)
}

func decodeAttendance(sessionID string, snap *gcfs.DocumentSnapshot) (model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	if err := snap.DataTo(&rec); err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("decode attendance %s: %w", snap.Ref.ID, err)
	}
	rec.SessionID = sessionID
	if rec.RollNo == "" {
		rec.RollNo = snap.Ref.ID
	}
	rec.MarkedAt = rec.MarkedAt.UTC()
	return rec, nil
}

// sortSessions orders newest first; sessions without a start sort last.
func sortSessions(list []model.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func wrapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", what, model.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}
