package httpapi

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/model"
	"qrattend/internal/qr"
)

const maxQRSize = 1024

func (h *Handler) createSession(c *gin.Context) {
	var in attendance.SessionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.Sessions.CreateSession(c.Request.Context(), caller(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) listSessions(c *gin.Context) {
	board, err := h.Sessions.Board(c.Request.Context(), caller(c), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *Handler) getSession(c *gin.Context) {
	who := caller(c)
	sess, err := h.Sessions.ViewSession(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	board := h.Sessions.Partition([]model.Session{sess})
	body := gin.H{"session": sess, "board": board}
	if who.Role == model.RoleStudent {
		marked, err := h.Sessions.Marked(c.Request.Context(), sess.ID, who.UID)
		if err != nil {
			writeError(c, err)
			return
		}
		body["marked"] = marked
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) sessionQR(c *gin.Context) {
	sess, err := h.Sessions.ManageSession(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	size := qr.DefaultSize
	if v := c.Query("size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxQRSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 1 and " + strconv.Itoa(maxQRSize)})
			return
		}
		size = parsed
	}
	png, err := qr.PNG(sess, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) checkIn(c *gin.Context) {
	rec, created, err := h.Sessions.CheckIn(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"record": rec, "created": created})
}

func (h *Handler) attendance(c *gin.Context) {
	ctx := c.Request.Context()
	sess, err := h.Sessions.ManageSession(ctx, caller(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	recs, err := h.Sessions.Records(ctx, sess.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "records": recs})
}

func (h *Handler) exportCSV(c *gin.Context) {
	sess, err := h.Sessions.ManageSession(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := h.Sessions.ExportCSV(c.Request.Context(), sess.ID, &buf); err != nil {
		writeError(c, err)
		return
	}
	attachment(c, attendance.ExportName(sess, "csv"))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) exportXLSX(c *gin.Context) {
	sess, err := h.Sessions.ManageSession(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := h.Sessions.ExportXLSX(c.Request.Context(), sess.ID, &buf); err != nil {
		writeError(c, err)
		return
	}
	attachment(c, attendance.ExportName(sess, "xlsx"))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handler) liveSessions(c *gin.Context) {
	scope, err := h.Sessions.ScopeFor(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	// Serve writes its own response, including upgrade failures.
	_ = h.Live.Serve(c.Writer, c.Request, scope)
}

// attachment marks the response as a download. The period label is free
// text, so the name goes through mime quoting.
func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}
