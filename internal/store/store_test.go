package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/model"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return NewRepository(db)
}

func sampleSession(id string, created time.Time) model.Session {
	return model.Session{
		ID:             id,
		TeacherID:      "t-1",
		TeacherName:    "Ada",
		Period:         "P1",
		Topic:          "Graphs",
		Semester:       3,
		Section:        "B",
		GeofenceRadius: 50,
		TimerMinutes:   15,
		CreatedAt:      created,
	}
}

func TestRebind(t *testing.T) {
	lite := &DB{Driver: "sqlite3"}
	pg := &DB{Driver: "pgx"}
	q := "SELECT 1 WHERE a = $1 AND b = $2"
	assert.Equal(t, "SELECT 1 WHERE a = ? AND b = ?", lite.rebind(q))
	assert.Equal(t, q, pg.rebind(q))
}

func TestMigrateIsRepeatable(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.db.Migrate(context.Background()))
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	s := sampleSession("s-1", created)
	s.Center = &model.Point{Lat: 12.97, Lng: 77.59}
	require.NoError(t, repo.CreateSession(ctx, s))

	got, err := repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	assert.ErrorIs(t, repo.CreateSession(ctx, s), model.ErrDuplicate)

	_, err = repo.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListSessionsScopeAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	older := sampleSession("old", base)
	newer := sampleSession("new", base.Add(time.Hour))
	other := sampleSession("other", base.Add(2*time.Hour))
	other.TeacherID = "t-2"
	other.Section = "A"
	for _, s := range []model.Session{older, newer, other} {
		require.NoError(t, repo.CreateSession(ctx, s))
	}

	all, err := repo.ListSessions(ctx, model.Scope{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"other", "new", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})

	mine, err := repo.ListSessions(ctx, model.Scope{TeacherID: "t-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	class, err := repo.ListSessions(ctx, model.Scope{Semester: 3, Section: "A"})
	require.NoError(t, err)
	require.Len(t, class, 1)
	assert.Equal(t, "other", class[0].ID)
}

func TestSessionWithoutCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateSession(ctx, sampleSession("broken", time.Time{})))

	got, err := repo.GetSession(ctx, "broken")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.IsZero())
	assert.Nil(t, got.Center)
}

func TestInsertAttendanceKeepsFirstRecord(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateSession(ctx, sampleSession("s-1", time.Now().UTC())))

	first := model.AttendanceRecord{
		SessionID: "s-1", StudentID: "u-1", Name: "Lin", RollNo: "1RV21CS001",
		Status: model.StatusPresent, MarkedAt: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC),
	}
	got, created, err := repo.InsertAttendance(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first, got)

	second := first
	second.MarkedAt = first.MarkedAt.Add(time.Minute)
	second.Name = "Lin again"
	got, created, err = repo.InsertAttendance(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, got)

	recs, err := repo.ListAttendance(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []model.AttendanceRecord{first}, recs)
}

func TestListAttendanceOrderedByMarkedAt(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateSession(ctx, sampleSession("s-1", time.Now().UTC())))

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, roll := range []string{"C", "A", "B"} {
		_, _, err := repo.InsertAttendance(ctx, model.AttendanceRecord{
			SessionID: "s-1", StudentID: "u-" + roll, Name: roll, RollNo: roll,
			Status: model.StatusPresent, MarkedAt: at.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	recs, err := repo.ListAttendance(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "C", recs[0].RollNo)
	assert.Equal(t, "B", recs[2].RollNo)

	empty, err := repo.ListAttendance(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStudentsAndTeachers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, repo.CreateStudent(ctx, model.Student{
		UID: "u-2", Name: "Bo", Email: "Bo@Example.com", RollNo: "R2", Semester: 3, Section: "B", CreatedAt: now,
	}))
	require.NoError(t, repo.CreateStudent(ctx, model.Student{
		UID: "u-1", Name: "Al", Email: "al@example.com", RollNo: "R1", Semester: 3, Section: "B", CreatedAt: now,
	}))
	err := repo.CreateStudent(ctx, model.Student{
		UID: "u-3", Name: "Cy", Email: "cy@example.com", RollNo: "R1", Semester: 3, Section: "B", CreatedAt: now,
	})
	assert.ErrorIs(t, err, model.ErrDuplicate)

	students, err := repo.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "R1", students[0].RollNo)

	bo, err := repo.GetStudent(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, "bo@example.com", bo.Email)
	assert.Equal(t, now, bo.CreatedAt)

	_, err = repo.GetStudent(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, repo.CreateTeacher(ctx, model.Teacher{UID: "t-1", Name: "Ada", Email: "ada@example.com", Subject: "DSA", CreatedAt: now}))
	teacher, err := repo.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "DSA", teacher.Subject)

	teachers, err := repo.ListTeachers(ctx)
	require.NoError(t, err)
	assert.Len(t, teachers, 1)

	_, err = repo.GetTeacher(ctx, "t-9")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	acct := model.Account{UID: "a-1", Email: "Admin@Example.com", PasswordHash: "hash", Role: model.RoleAdmin, CreatedAt: time.Now()}
	require.NoError(t, repo.CreateAccount(ctx, acct))
	assert.ErrorIs(t, repo.CreateAccount(ctx, model.Account{UID: "a-2", Email: "admin@example.com", PasswordHash: "x", Role: model.RoleTeacher, CreatedAt: time.Now()}), model.ErrDuplicate)

	got, err := repo.AccountByEmail(ctx, "ADMIN@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.UID)
	assert.Equal(t, model.RoleAdmin, got.Role)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = repo.AccountByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestHealthy(t *testing.T) {
	repo := newTestRepo(t)
	assert.True(t, repo.db.Healthy(context.Background()))
	var nilDB *DB
	assert.False(t, nilDB.Healthy(context.Background()))
}
