package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/prompt-hub/internal/common"
	"github.com/suPer8Hu/prompt-hub/internal/listing"
	"github.com/suPer8Hu/prompt-hub/internal/models"
	"github.com/suPer8Hu/prompt-hub/internal/submission"
)

// Explore lists prompts for ?q= and ?category=, most voted first.
func (h *Handler) Explore(c *gin.Context) {
	query := c.Query("q")
	filter := c.DefaultQuery("category", listing.FilterAll)

	d := h.device(c)
	rows, err := d.Explore(c.Request.Context(), query, filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{
		"items":      rows,
		"query":      query,
		"category":   filter,
		"categories": append([]models.Category{listing.FilterAll}, models.Categories...),
		"can_vote":   d.ViewerID() != "",
	})
}

func (h *Handler) SubmitPrompt(c *gin.Context) {
	draft := submission.NewDraft()
	if err := c.ShouldBindJSON(&draft); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	p, err := h.device(c).Submit(c.Request.Context(), draft)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, p)
}

func (h *Handler) ToggleVote(c *gin.Context) {
	card, err := h.device(c).ToggleVote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, card)
}
