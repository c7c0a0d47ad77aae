package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/prompt-hub/internal/common"
)

func (h *Handler) Profile(c *gin.Context) {
	page, err := h.device(c).Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, page)
}
