package roster

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"qrattend/internal/auth"
	"qrattend/internal/model"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

type harness struct {
	prov *Provisioner
	ids  *auth.LocalProvider
	repo *store.Repository
}

func newHarness(t *testing.T) harness {
	t.Helper()
	db, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	repo := store.NewRepository(db)
	ids := auth.NewLocalProvider(repo, bcrypt.MinCost)
	return harness{prov: NewProvisioner(ids, repo), ids: ids, repo: repo}
}

func studentReq(roll string) StudentRequest {
	return StudentRequest{
		Name: "Student " + roll, Email: strings.ToLower(roll) + "@example.com", Password: "secret1",
		RollNo: roll, Semester: 3, Section: "b",
	}
}

func TestCreateStudentPairsAccountAndProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	st, err := h.prov.CreateStudent(ctx, studentReq("1rv21cs001"))
	require.NoError(t, err)
	assert.Equal(t, "1RV21CS001", st.RollNo)
	assert.Equal(t, "B", st.Section)

	id, err := h.ids.SignIn(ctx, auth.Credentials{Email: "1rv21cs001@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, st.UID, id.UID)
	assert.Equal(t, model.RoleStudent, id.Role)

	profile, err := h.repo.GetStudent(ctx, id.UID)
	require.NoError(t, err)
	assert.Equal(t, st.RollNo, profile.RollNo)

	_, err = h.prov.CreateStudent(ctx, studentReq("1RV21CS001"))
	assert.ErrorIs(t, err, model.ErrDuplicate)

	bad := studentReq("X")
	bad.Semester = 9
	_, err = h.prov.CreateStudent(ctx, bad)
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestCreateTeacher(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tc, err := h.prov.CreateTeacher(ctx, TeacherRequest{Name: "Ada", Email: "Ada@Example.com", Password: "secret1", Subject: "DSA"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", tc.Email)

	id, err := h.ids.SignIn(ctx, auth.Credentials{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleTeacher, id.Role)

	teachers, err := h.prov.Teachers(ctx)
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, tc.UID, teachers[0].UID)
}

func workbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseStudentsXLSX(t *testing.T) {
	buf := workbook(t, [][]string{
		{"USN", "Name", "Email", "Password", "Semester", "Section", "Phone"},
		{"1rv21cs001", "Lin", "Lin@Example.com", "secret1", "3", "b", "999"},
		{"1RV21CS002", "Mo", "mo@example.com", "secret1", "three", "B", ""},
		{"1RV21CS003", "Ana", "bad-email", "secret1", "3", "B", ""},
		{"", "", "", "", "", "", ""},
		{"1RV21CS001", "Lin Again", "lin2@example.com", "secret1", "3", "B", ""},
		{"1RV21CS004", "Raj", "raj@example.com", "secret1", "4", "C", ""},
	})

	reqs, bad, err := ParseStudentsXLSX(buf)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, StudentRequest{Name: "Lin", Email: "lin@example.com", Password: "secret1", Phone: "999",
		RollNo: "1RV21CS001", Semester: 3, Section: "B"}, reqs[0])
	assert.Equal(t, "1RV21CS004", reqs[1].RollNo)

	rows := make([]int, len(bad))
	for i, b := range bad {
		rows[i] = b.Row
	}
	assert.Equal(t, []int{3, 4, 6}, rows)
}

func TestParseStudentsXLSXRejectsBadWorkbooks(t *testing.T) {
	_, _, err := ParseStudentsXLSX(strings.NewReader("not a zip"))
	assert.ErrorIs(t, err, model.ErrInvalid)

	_, _, err = ParseStudentsXLSX(workbook(t, [][]string{{"Name", "Email"}}))
	assert.ErrorIs(t, err, model.ErrInvalid)
	assert.Contains(t, err.Error(), "roll_no")
}

func TestImportThroughQueue(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(8)
	n, err := Enqueue(ctx, q, []StudentRequest{studentReq("R1"), studentReq("R2"), studentReq("R1")})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewWorker(h.prov).Run(ctx, q)
	}()

	require.Eventually(t, func() bool {
		students, err := h.prov.Students(context.Background())
		return err == nil && len(students) == 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestWorkerHandle(t *testing.T) {
	h := newHarness(t)
	w := NewWorker(h.prov)
	ctx := context.Background()

	assert.NoError(t, w.Handle(ctx, queue.Message{Type: "something.else"}))
	assert.ErrorIs(t, w.Handle(ctx, queue.Message{Type: JobCreateStudent, Body: []byte("{")}), model.ErrInvalid)

	msg, err := queue.NewMessage(JobCreateStudent, studentReq("R9"))
	require.NoError(t, err)
	require.NoError(t, w.Handle(ctx, msg))
	assert.ErrorIs(t, w.Handle(ctx, msg), model.ErrDuplicate)
}
