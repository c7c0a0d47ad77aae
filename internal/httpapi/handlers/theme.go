package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/prompt-hub/internal/common"
	"github.com/suPer8Hu/prompt-hub/internal/theme"
)

func (h *Handler) Theme(c *gin.Context) {
	common.OK(c, h.device(c).Theme.Snapshot())
}

type setModeReq struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *Handler) SetThemeMode(c *gin.Context) {
	var req setModeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	m, ok := theme.ParseMode(req.Mode)
	if !ok {
		h.fail(c, theme.ErrInvalidMode)
		return
	}
	snap, err := h.device(c).Theme.SetMode(c.Request.Context(), m)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, snap)
}

func (h *Handler) ToggleTheme(c *gin.Context) {
	common.OK(c, h.device(c).Theme.Toggle(c.Request.Context()))
}

type systemThemeReq struct {
	Theme string `json:"theme" binding:"required"`
}

// SetSystemTheme records the theme the browser reports, e.g. from
// prefers-color-scheme.
func (h *Handler) SetSystemTheme(c *gin.Context) {
	var req systemThemeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	t, ok := theme.ParseTheme(req.Theme)
	if !ok {
		h.fail(c, theme.ErrInvalidTheme)
		return
	}
	snap, err := h.device(c).Theme.SetSystemTheme(t)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, snap)
}
