// Package httpapi exposes the attendance service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/directory"
	"qrattend/internal/live"
	"qrattend/internal/model"
	"qrattend/internal/queue"
	"qrattend/internal/roster"
)

// Profiles looks up the profile behind an identity.
type Profiles interface {
	GetStudent(ctx context.Context, uid string) (model.Student, error)
	GetTeacher(ctx context.Context, uid string) (model.Teacher, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler carries every dependency the routes need. cmd/api builds one and
// calls Register.
type Handler struct {
	Sessions  *attendance.Service
	Tokens    *auth.Tokens
	Identity  auth.Provider
	Profiles  Profiles
	Roster    *roster.Provisioner
	Directory *directory.File
	Jobs      queue.Queue
	Live      *live.Streamer
	Health    map[string]HealthCheck
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.healthz)

	r.GET("/api/teachers", h.listDirectory)
	r.POST("/api/teachers", h.addDirectory)

	r.POST("/v1/auth/login", h.login)
	r.POST("/v1/auth/refresh", h.refresh)

	v1 := r.Group("/v1", auth.RequireAuth(h.Tokens))
	v1.GET("/me", h.me)

	v1.POST("/sessions", auth.RequireRole(model.RoleTeacher), h.createSession)
	v1.GET("/sessions", h.listSessions)
	v1.GET("/sessions/:id", h.getSession)
	v1.GET("/sessions/:id/qr.png", h.sessionQR)
	v1.POST("/sessions/:id/checkins", auth.RequireRole(model.RoleStudent), h.checkIn)
	v1.GET("/sessions/:id/attendance", h.attendance)
	v1.GET("/sessions/:id/attendance.csv", h.exportCSV)
	v1.GET("/sessions/:id/attendance.xlsx", h.exportXLSX)
	v1.GET("/live/sessions", h.liveSessions)

	staff := v1.Group("", auth.RequireRole(model.RoleAdmin, model.RoleTeacher))
	staff.POST("/students", h.createStudent)
	staff.GET("/students", h.listStudents)

	admin := v1.Group("", auth.RequireRole(model.RoleAdmin))
	admin.POST("/students/import", h.importStudents)
	admin.POST("/teachers", h.createTeacher)
	admin.GET("/teachers", h.listTeachers)
}

func (h *Handler) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// caller returns the authenticated identity. RequireAuth guarantees one on
// every /v1 route it guards.
func caller(c *gin.Context) model.Identity {
	id, _ := auth.IdentityFrom(c)
	return id
}

// writeError maps service errors to status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrForbidden), errors.Is(err, attendance.ErrNotEnrolled):
		status = http.StatusForbidden
	case errors.Is(err, attendance.ErrSessionPending), errors.Is(err, attendance.ErrSessionExpired):
		status = http.StatusConflict
	case errors.Is(err, model.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, model.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongKind), errors.Is(err, auth.ErrRefreshReused):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrUnsupported):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
