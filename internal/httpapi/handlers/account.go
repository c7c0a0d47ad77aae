package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/prompt-hub/internal/common"
	"github.com/suPer8Hu/prompt-hub/internal/submission"
)

func (h *Handler) MyPrompts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	p, err := h.device(c).MyPrompts(c.Request.Context(), page)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, p)
}

func (h *Handler) EditPrompt(c *gin.Context) {
	var patch submission.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	rec, err := h.device(c).EditPrompt(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"record": rec, "can_save": rec.CanSave()})
}

// SavePrompt writes the edited record. After a failed save the record keeps
// its error and stays dirty; GET /me/prompts shows both.
func (h *Handler) SavePrompt(c *gin.Context) {
	rec, err := h.device(c).SavePrompt(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"record": rec})
}

func (h *Handler) MyProfile(c *gin.Context) {
	d := h.device(c)
	st, err := d.MyProfile(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	email := ""
	if id := d.Session.Identity(); id != nil {
		email = id.Email
	}
	common.OK(c, gin.H{"profile": st, "email": email})
}

type displayNameReq struct {
	DisplayName string `json:"display_name"`
}

func (h *Handler) UpdateMyProfile(c *gin.Context) {
	var req displayNameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	st, err := h.device(c).SetDisplayName(c.Request.Context(), req.DisplayName)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"profile": st})
}
