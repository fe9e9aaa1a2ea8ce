package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"qrattend/internal/model"
)

// Repository persists sessions, attendance, profiles and accounts in SQL.
type Repository struct {
	db *DB
}

// NewRepository creates a repo.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, teacher_id, teacher_name, department, period, topic, semester, section,
	geofence_radius, center_lat, center_lng, timer_minutes, qr_url, created_at`

// CreateSession inserts a new session.
func (r *Repository) CreateSession(ctx context.Context, s model.Session) error {
	var lat, lng sql.NullFloat64
	if s.Center != nil {
		lat = sql.NullFloat64{Float64: s.Center.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: s.Center.Lng, Valid: true}
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`), s.ID, s.TeacherID, s.TeacherName, s.Department, s.Period, s.Topic, s.Semester, s.Section,
		s.GeofenceRadius, lat, lng, s.TimerMinutes, s.QRURL, nullTime(s.CreatedAt))
	return wrapWriteErr(err)
}

// GetSession returns a single session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (model.Session, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`), id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	return s, err
}

// ListSessions returns sessions in scope, newest first.
func (r *Repository) ListSessions(ctx context.Context, scope model.Scope) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	clauses := []string{}
	if scope.TeacherID != "" {
		args = append(args, scope.TeacherID)
		clauses = append(clauses, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if scope.Semester != 0 {
		args = append(args, scope.Semester)
		clauses = append(clauses, fmt.Sprintf("semester = $%d", len(args)))
	}
	if scope.Section != "" {
		args = append(args, scope.Section)
		clauses = append(clauses, fmt.Sprintf("section = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Client.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertAttendance writes rec unless (session, roll number) already has a
// record, in which case the stored record is returned with created=false.
func (r *Repository) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, bool, error) {
	res, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		INSERT INTO attendance (session_id, roll_no, student_id, name, status, marked_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id, roll_no) DO NOTHING
	`), rec.SessionID, rec.RollNo, rec.StudentID, rec.Name, rec.Status, rec.MarkedAt.UTC())
	if err != nil {
		return model.AttendanceRecord{}, false, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return rec, true, nil
	}
	existing, err := r.GetAttendance(ctx, rec.SessionID, rec.RollNo)
	if err != nil {
		return model.AttendanceRecord{}, false, err
	}
	return existing, false, nil
}

// GetAttendance returns the record for one roll number in a session.
func (r *Repository) GetAttendance(ctx context.Context, sessionID, rollNo string) (model.AttendanceRecord, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.rebind(`
		SELECT session_id, roll_no, student_id, name, status, marked_at
		FROM attendance WHERE session_id = $1 AND roll_no = $2
	`), sessionID, rollNo)
	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AttendanceRecord{}, fmt.Errorf("attendance %s/%s: %w", sessionID, rollNo, model.ErrNotFound)
	}
	return rec, err
}

// ListAttendance returns a session's records in the order they were marked.
func (r *Repository) ListAttendance(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.rebind(`
		SELECT session_id, roll_no, student_id, name, status, marked_at
		FROM attendance WHERE session_id = $1
		ORDER BY marked_at, roll_no
	`), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []model.AttendanceRecord{}
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.Session, error) {
	var (
		s        model.Session
		lat, lng sql.NullFloat64
		created  sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.TeacherID, &s.TeacherName, &s.Department, &s.Period, &s.Topic, &s.Semester, &s.Section,
		&s.GeofenceRadius, &lat, &lng, &s.TimerMinutes, &s.QRURL, &created); err != nil {
		return model.Session{}, err
	}
	if lat.Valid && lng.Valid {
		s.Center = &model.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if created.Valid {
		s.CreatedAt = created.Time.UTC()
	}
	return s, nil
}

func scanAttendance(row scanner) (model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	if err := row.Scan(&rec.SessionID, &rec.RollNo, &rec.StudentID, &rec.Name, &rec.Status, &rec.MarkedAt); err != nil {
		return model.AttendanceRecord{}, err
	}
	rec.MarkedAt = rec.MarkedAt.UTC()
	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// wrapWriteErr maps unique-constraint violations from either driver to
// model.ErrDuplicate.
func wrapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", model.ErrDuplicate, pgErr.ConstraintName)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", model.ErrDuplicate, liteErr)
	}
	return err
}
