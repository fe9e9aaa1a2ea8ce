package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/metrics"
	"qrattend/internal/model"
	"qrattend/internal/qr"
	"qrattend/internal/window"
)

var (
	ErrSessionPending = errors.New("session has not started")
	ErrSessionExpired = errors.New("session is closed")
	ErrNotEnrolled    = errors.New("student is not enrolled in this session's class")
	ErrForbidden      = errors.New("not allowed")
)

// Board is the classified view of sessions returned to clients.
type Board = window.Board[model.Session]

// SessionInput is what a teacher submits to open a session.
type SessionInput struct {
	Period         string       `json:"period" binding:"required,max=64"`
	Topic          string       `json:"topic" binding:"required,max=256"`
	Semester       int          `json:"semester" binding:"required,min=1,max=8"`
	Section        string       `json:"section" binding:"required,oneof=A B C D"`
	GeofenceRadius float64      `json:"geofence_radius" binding:"required,gt=0"`
	Center         *model.Point `json:"center" binding:"omitempty"`
	TimerMinutes   int          `json:"timer_minutes" binding:"required,gt=0,max=1440"`
}

// Service runs the session lifecycle: opening sessions, listing them through
// the window evaluator and gating check-ins.
type Service struct {
	repo         Repository
	pub          Publisher
	uploader     Uploader
	historyLimit int
	now          func() time.Time
}

// NewService creates a service backed by a repository. historyLimit caps the
// expired bucket of a board; zero or less means 10.
func NewService(repo Repository, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Service{repo: repo, historyLimit: historyLimit, now: time.Now}
}

// WithPublisher sets where change signals go.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.pub = p
	return s
}

// WithUploader enables hosting of rendered QR images.
func (s *Service) WithUploader(u Uploader) *Service {
	s.uploader = u
	return s
}

// CreateSession opens a session owned by the calling teacher. The start time
// is the server clock.
func (s *Service) CreateSession(ctx context.Context, who model.Identity, in SessionInput) (model.Session, error) {
	if who.Role != model.RoleTeacher {
		return model.Session{}, fmt.Errorf("create session as %s: %w", who.Role, ErrForbidden)
	}
	sess := model.Session{
		ID:             uuid.NewString(),
		TeacherID:      who.UID,
		TeacherName:    who.Email,
		Period:         strings.TrimSpace(in.Period),
		Topic:          strings.TrimSpace(in.Topic),
		Semester:       in.Semester,
		Section:        strings.ToUpper(strings.TrimSpace(in.Section)),
		GeofenceRadius: in.GeofenceRadius,
		Center:         in.Center,
		TimerMinutes:   in.TimerMinutes,
		CreatedAt:      s.now().UTC(),
	}
	if t, err := s.repo.GetTeacher(ctx, who.UID); err == nil {
		sess.TeacherName = t.Name
		sess.Department = t.Department
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Session{}, err
	}
	if err := model.Validate(sess); err != nil {
		return model.Session{}, err
	}

	if s.uploader != nil {
		if png, err := qr.PNG(sess, qr.DefaultSize); err != nil {
			log.Printf("qr render failed for session %s: %v", sess.ID, err)
		} else if url, err := s.uploader.UploadPNG(ctx, sess.ID, png); err != nil {
			log.Printf("qr upload failed for session %s: %v", sess.ID, err)
		} else {
			sess.QRURL = url
		}
	}

	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionsCreated.Inc()
	s.publish(ctx)
	return sess, nil
}

// GetSession loads a session without any access check.
func (s *Service) GetSession(ctx context.Context, id string) (model.Session, error) {
	return s.repo.GetSession(ctx, id)
}

// ViewSession loads a session the caller is allowed to see.
func (s *Service) ViewSession(ctx context.Context, who model.Identity, id string) (model.Session, error) {
	scope, err := s.ScopeFor(ctx, who)
	if err != nil {
		return model.Session{}, err
	}
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if !scope.Matches(sess) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrForbidden)
	}
	return sess, nil
}

// ManageSession loads a session the caller owns. Admins own every session.
func (s *Service) ManageSession(ctx context.Context, who model.Identity, id string) (model.Session, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if who.Role == model.RoleAdmin || (who.Role == model.RoleTeacher && sess.TeacherID == who.UID) {
		return sess, nil
	}
	return model.Session{}, fmt.Errorf("session %s: %w", id, ErrForbidden)
}

// ScopeFor maps a caller to the sessions they can see: teachers their own,
// students their semester and section, admins everything.
func (s *Service) ScopeFor(ctx context.Context, who model.Identity) (model.Scope, error) {
	switch who.Role {
	case model.RoleAdmin:
		return model.Scope{}, nil
	case model.RoleTeacher:
		return model.Scope{TeacherID: who.UID}, nil
	case model.RoleStudent:
		st, err := s.repo.GetStudent(ctx, who.UID)
		if err != nil {
			return model.Scope{}, fmt.Errorf("student profile: %w", err)
		}
		return model.Scope{Semester: st.Semester, Section: st.Section}, nil
	}
	return model.Scope{}, fmt.Errorf("role %q: %w", who.Role, ErrForbidden)
}

// Board lists the caller's sessions partitioned at the current instant.
// query filters by topic, case-insensitively. The expired bucket keeps only
// the most recent sessions.
func (s *Service) Board(ctx context.Context, who model.Identity, query string) (Board, error) {
	scope, err := s.ScopeFor(ctx, who)
	if err != nil {
		return Board{}, err
	}
	sessions, err := s.repo.ListSessions(ctx, scope)
	if err != nil {
		return Board{}, fmt.Errorf("list sessions: %w", err)
	}
	return s.partition(FilterTopic(sessions, query)), nil
}

func (s *Service) partition(sessions []model.Session) Board {
	b := window.Partition(s.now(), sessions)
	if len(b.Expired) > s.historyLimit {
		b.Expired = b.Expired[:s.historyLimit]
	}
	return b
}

// Partition classifies an already loaded set of sessions the same way Board
// does.
func (s *Service) Partition(sessions []model.Session) Board {
	return s.partition(sessions)
}

// FilterTopic keeps sessions whose topic contains query, ignoring case. An
// empty query keeps everything.
func FilterTopic(sessions []model.Session, query string) []model.Session {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sessions
	}
	out := make([]model.Session, 0, len(sessions))
	for _, sess := range sessions {
		if strings.Contains(strings.ToLower(sess.Topic), q) {
			out = append(out, sess)
		}
	}
	return out
}

// CheckIn marks the calling student present. The window is evaluated
// against the server clock at the time of the write. Repeating a check-in
// returns the first record with created=false.
func (s *Service) CheckIn(ctx context.Context, who model.Identity, sessionID string) (model.AttendanceRecord, bool, error) {
	rec, created, err := s.checkIn(ctx, who, sessionID)
	metrics.CheckIns.WithLabelValues(outcome(created, err)).Inc()
	return rec, created, err
}

func (s *Service) checkIn(ctx context.Context, who model.Identity, sessionID string) (model.AttendanceRecord, bool, error) {
	if who.Role != model.RoleStudent {
		return model.AttendanceRecord{}, false, fmt.Errorf("check in as %s: %w", who.Role, ErrForbidden)
	}
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return model.AttendanceRecord{}, false, err
	}
	st, err := s.repo.GetStudent(ctx, who.UID)
	if errors.Is(err, model.ErrNotFound) {
		return model.AttendanceRecord{}, false, fmt.Errorf("no student profile for %s: %w", who.UID, ErrNotEnrolled)
	}
	if err != nil {
		return model.AttendanceRecord{}, false, err
	}

	now := s.now()
	w, err := window.Of(sess.StartedAt(), sess.DurationMinutes())
	if err != nil {
		// A session without a usable window never accepts writes.
		return model.AttendanceRecord{}, false, fmt.Errorf("session %s: %w: %w", sessionID, err, ErrSessionExpired)
	}
	switch w.State(now) {
	case window.Pending:
		return model.AttendanceRecord{}, false, fmt.Errorf("session %s: %w", sessionID, ErrSessionPending)
	case window.Expired:
		return model.AttendanceRecord{}, false, fmt.Errorf("session %s: %w", sessionID, ErrSessionExpired)
	}

	if st.Semester != sess.Semester || st.Section != sess.Section {
		return model.AttendanceRecord{}, false, fmt.Errorf("session %s is semester %d section %s: %w",
			sessionID, sess.Semester, sess.Section, ErrNotEnrolled)
	}

	rec := model.AttendanceRecord{
		SessionID: sess.ID,
		StudentID: st.UID,
		Name:      st.Name,
		RollNo:    st.RollNo,
		Status:    model.StatusPresent,
		MarkedAt:  now.UTC(),
	}
	if err := model.Validate(rec); err != nil {
		return model.AttendanceRecord{}, false, err
	}
	stored, created, err := s.repo.InsertAttendance(ctx, rec)
	if err != nil {
		return model.AttendanceRecord{}, false, fmt.Errorf("record attendance: %w", err)
	}
	if created {
		s.publish(ctx)
	}
	return stored, created, nil
}

// Records lists a session's attendance in marking order.
func (s *Service) Records(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	return s.repo.ListAttendance(ctx, sessionID)
}

// Marked reports whether the student with uid has a record in the session.
// Students see this instead of the full list.
func (s *Service) Marked(ctx context.Context, sessionID, uid string) (bool, error) {
	recs, err := s.repo.ListAttendance(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.StudentID == uid {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) publish(ctx context.Context) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx); err != nil {
		log.Printf("change notification failed: %v", err)
	}
}

func outcome(created bool, err error) string {
	switch {
	case err == nil && created:
		return "created"
	case err == nil:
		return "duplicate"
	case errors.Is(err, ErrSessionPending):
		return "pending"
	case errors.Is(err, ErrSessionExpired):
		return "expired"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	}
	return "error"
}
