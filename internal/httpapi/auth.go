package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/auth"
	"qrattend/internal/model"
)

func (h *Handler) login(c *gin.Context) {
	var cred auth.Credentials
	if err := c.ShouldBindJSON(&cred); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.Identity.SignIn(c.Request.Context(), cred)
	if err != nil {
		writeError(c, err)
		return
	}
	pair, err := h.Tokens.Issue(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": pair, "user": id})
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pair, err := h.Tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": pair})
}

func (h *Handler) me(c *gin.Context) {
	who := caller(c)
	body := gin.H{"user": who}
	ctx := c.Request.Context()
	switch who.Role {
	case model.RoleStudent:
		st, err := h.Profiles.GetStudent(ctx, who.UID)
		if err != nil {
			writeError(c, err)
			return
		}
		body["profile"] = st
	case model.RoleTeacher:
		t, err := h.Profiles.GetTeacher(ctx, who.UID)
		if err != nil {
			writeError(c, err)
			return
		}
		body["profile"] = t
	}
	c.JSON(http.StatusOK, body)
}
