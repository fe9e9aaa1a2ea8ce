package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/directory"
	"qrattend/internal/roster"
)

const maxImportBytes = 10 << 20

func (h *Handler) createStudent(c *gin.Context) {
	var req roster.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.Roster.CreateStudent(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) listStudents(c *gin.Context) {
	students, err := h.Roster.Students(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (h *Handler) importStudents(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	defer file.Close()

	reqs, rejected, err := roster.ParseStudentsXLSX(file)
	if err != nil {
		writeError(c, err)
		return
	}
	queued, err := roster.Enqueue(c.Request.Context(), h.Jobs, reqs)
	if err != nil {
		writeError(c, err)
		return
	}
	if rejected == nil {
		rejected = []roster.RowError{}
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": queued, "rejected": rejected})
}

func (h *Handler) createTeacher(c *gin.Context) {
	var req roster.TeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.Roster.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) listTeachers(c *gin.Context) {
	teachers, err := h.Roster.Teachers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": teachers})
}

func (h *Handler) listDirectory(c *gin.Context) {
	entries, err := h.Directory.List()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) addDirectory(c *gin.Context) {
	var e directory.Entry
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := h.Directory.Add(e)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}
