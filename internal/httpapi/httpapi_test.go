package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/directory"
	"qrattend/internal/live"
	"qrattend/internal/model"
	"qrattend/internal/queue"
	"qrattend/internal/roster"
	"qrattend/internal/store"
)

type harness struct {
	router *gin.Engine
	repo   *store.Repository
	prov   *roster.Provisioner
	jobs   *queue.InMemory
}

func newHarness(t *testing.T) harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	repo := store.NewRepository(db)

	ids := auth.NewLocalProvider(repo, bcrypt.MinCost)
	created, err := auth.EnsureAdmin(context.Background(), ids, "admin@example.com", "admin-pass")
	require.NoError(t, err)
	require.True(t, created)

	svc := attendance.NewService(repo, 10)
	hub := live.NewHub(repo)
	prov := roster.NewProvisioner(ids, repo)
	jobs := queue.NewInMemory(16)

	h := &Handler{
		Sessions: svc,
		Tokens: &auth.Tokens{
			Issuer: "qrattend-test", Key: "test-key",
			AccessTTL: time.Minute, RefreshTTL: time.Hour,
			Registry: auth.NewMemoryRegistry(),
		},
		Identity:  ids,
		Profiles:  repo,
		Roster:    prov,
		Directory: directory.NewFile(filepath.Join(t.TempDir(), "teachers.json")),
		Jobs:      jobs,
		Live:      live.NewStreamer(hub, svc.Partition, time.Second, nil),
		Health:    map[string]HealthCheck{"db": db.Healthy},
	}
	r := gin.New()
	h.Register(r)
	return harness{router: r, repo: repo, prov: prov, jobs: jobs}
}

func (h harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

type loginResponse struct {
	Tokens auth.TokenPair `json:"tokens"`
	User   model.Identity `json:"user"`
}

func (h harness) login(t *testing.T, email, password string) loginResponse {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (h harness) teacher(t *testing.T, email string) string {
	t.Helper()
	_, err := h.prov.CreateTeacher(context.Background(), roster.TeacherRequest{
		Name: "Ada", Email: email, Password: "secret1", Department: "CSE", Subject: "DSA",
	})
	require.NoError(t, err)
	return h.login(t, email, "secret1").Tokens.AccessToken
}

func (h harness) student(t *testing.T, roll, section string) string {
	t.Helper()
	email := strings.ToLower(roll) + "@example.com"
	_, err := h.prov.CreateStudent(context.Background(), roster.StudentRequest{
		Name: "Student " + roll, Email: email, Password: "secret1", RollNo: roll, Semester: 3, Section: section,
	})
	require.NoError(t, err)
	return h.login(t, email, "secret1").Tokens.AccessToken
}

func sessionBody() gin.H {
	return gin.H{"period": "P1", "topic": "Graphs", "semester": 3, "section": "B", "geofence_radius": 50, "timer_minutes": 15}
}

func (h harness) createSession(t *testing.T, token string) model.Session {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/sessions", token, sessionBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess model.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	return sess
}

func TestLoginRefreshAndMe(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	out := h.login(t, "admin@example.com", "admin-pass")
	assert.Equal(t, model.RoleAdmin, out.User.Role)

	w = h.do(t, http.MethodGet, "/v1/me", out.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	w = h.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": out.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = h.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": out.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh tokens rotate once")

	w = h.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": out.Tokens.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodGet, "/v1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	teacher := h.teacher(t, "ada@example.com")
	student := h.student(t, "1RV21CS001", "B")

	w := h.do(t, http.MethodPost, "/v1/sessions", student, sessionBody())
	assert.Equal(t, http.StatusForbidden, w.Code)

	bad := sessionBody()
	bad["timer_minutes"] = 0
	w = h.do(t, http.MethodPost, "/v1/sessions", teacher, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sess := h.createSession(t, teacher)
	assert.Equal(t, "Ada", sess.TeacherName)
	assert.Equal(t, "CSE", sess.Department)

	w = h.do(t, http.MethodGet, "/v1/sessions", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var board attendance.Board
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	require.Len(t, board.Active, 1)
	assert.Equal(t, sess.ID, board.Active[0].Item.ID)

	w = h.do(t, http.MethodGet, "/v1/sessions?q=trees", student, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	assert.Empty(t, board.Active)

	path := "/v1/sessions/" + sess.ID
	w = h.do(t, http.MethodPost, path+"/checkins", student, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first struct {
		Record  model.AttendanceRecord `json:"record"`
		Created bool                   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.True(t, first.Created)
	assert.Equal(t, "1RV21CS001", first.Record.RollNo)

	w = h.do(t, http.MethodPost, path+"/checkins", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"created":false`)

	w = h.do(t, http.MethodGet, path, student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"marked":true`)

	w = h.do(t, http.MethodGet, path+"/attendance", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodGet, path+"/attendance", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Records []model.AttendanceRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Records, 1)

	w = h.do(t, http.MethodGet, path+"/attendance.csv", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attendance_P1_B_3.csv", downloadName(t, w))
	assert.True(t, strings.HasPrefix(w.Body.String(), "Name,Roll No,Status,Marked At\n"))

	w = h.do(t, http.MethodGet, path+"/attendance.xlsx", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	rows, err := f.GetRows("Attendance")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	w = h.do(t, http.MethodGet, path+"/qr.png", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	w = h.do(t, http.MethodGet, path+"/qr.png?size=99999", teacher, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(t, http.MethodGet, path+"/qr.png", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func downloadName(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	return params["filename"]
}

func TestExportNameWithQuotesInPeriod(t *testing.T) {
	h := newHarness(t)
	teacher := h.teacher(t, "ada@example.com")
	body := sessionBody()
	body["period"] = `Lab "A"; 2`
	w := h.do(t, http.MethodPost, "/v1/sessions", teacher, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess model.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))

	w = h.do(t, http.MethodGet, "/v1/sessions/"+sess.ID+"/attendance.csv", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attendance_Lab "A"; 2_B_3.csv`, downloadName(t, w))

	w = h.do(t, http.MethodGet, "/v1/sessions/"+sess.ID+"/attendance.xlsx", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attendance_Lab "A"; 2_B_3.xlsx`, downloadName(t, w))
}

func TestCheckInStatusCodes(t *testing.T) {
	h := newHarness(t)
	teacher := h.teacher(t, "ada@example.com")
	inB := h.student(t, "R1", "B")
	inC := h.student(t, "R2", "C")
	sess := h.createSession(t, teacher)

	old := model.Session{
		ID: "old", TeacherID: sess.TeacherID, Period: "P0", Topic: "Intro", Semester: 3, Section: "B",
		GeofenceRadius: 50, TimerMinutes: 15, CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, h.repo.CreateSession(context.Background(), old))

	cases := []struct {
		name  string
		token string
		id    string
		want  int
	}{
		{"expired", inB, "old", http.StatusConflict},
		{"other section", inC, sess.ID, http.StatusForbidden},
		{"unknown session", inB, "missing", http.StatusNotFound},
		{"teacher", teacher, sess.ID, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, "/v1/sessions/"+tc.id+"/checkins", tc.token, nil)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}

	w := h.do(t, http.MethodGet, "/v1/sessions/"+sess.ID, inC, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDirectory(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/teachers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = h.do(t, http.MethodPost, "/api/teachers", "", gin.H{"name": "Ada", "subject": "DSA", "email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var saved directory.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.NotZero(t, saved.ID)

	w = h.do(t, http.MethodGet, "/api/teachers", "", nil)
	var entries []directory.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Equal(t, []directory.Entry{saved}, entries)

	w = h.do(t, http.MethodPost, "/api/teachers", "", gin.H{"name": "Ada"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPeopleRoutes(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin@example.com", "admin-pass").Tokens.AccessToken
	teacher := h.teacher(t, "ada@example.com")

	w := h.do(t, http.MethodPost, "/v1/students", teacher, gin.H{
		"name": "Lin", "email": "lin@example.com", "password": "secret1",
		"roll_no": "R9", "semester": 3, "section": "B",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, "/v1/students", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"roll_no":"R9"`)

	w = h.do(t, http.MethodPost, "/v1/teachers", teacher, gin.H{"name": "Bo", "email": "bo@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPost, "/v1/teachers", admin, gin.H{"name": "Bo", "email": "bo@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = h.do(t, http.MethodPost, "/v1/teachers", admin, gin.H{"name": "Bo", "email": "bo@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodGet, "/v1/teachers", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Teachers []model.Teacher `json:"teachers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out.Teachers, 2)
}

func TestImportStudents(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin@example.com", "admin-pass").Tokens.AccessToken

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	for i, row := range [][]string{
		{"USN", "Name", "Email", "Password", "Semester", "Section"},
		{"R1", "Lin", "lin@example.com", "secret1", "3", "B"},
		{"R2", "Mo", "not-an-email", "secret1", "3", "B"},
	} {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, wb.SetSheetRow(sheet, cell, &r))
	}
	xlsx, err := wb.WriteToBuffer()
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "roster.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/students/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var out struct {
		Queued   int               `json:"queued"`
		Rejected []roster.RowError `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Queued)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, 3, out.Rejected[0].Row)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := h.jobs.Consume(ctx)
	require.NoError(t, err)
	msg := <-msgs
	assert.Equal(t, roster.JobCreateStudent, msg.Type)

	w = h.do(t, http.MethodPost, "/v1/students/import", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","db":true}`, w.Body.String())
}
