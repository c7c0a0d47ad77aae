package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/prompt-hub/internal/common"
	"github.com/suPer8Hu/prompt-hub/internal/session"
)

const confirmEmailMessage = "Check your email to confirm your account."

func (h *Handler) Session(c *gin.Context) {
	d := h.device(c)
	d.Refresh(c.Request.Context())
	common.OK(c, gin.H{
		"user":    d.Session.Identity(),
		"loading": d.Session.Loading(),
	})
}

type credentialsReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (r credentialsReq) valid() bool {
	return strings.TrimSpace(r.Email) != "" && r.Password != ""
}

func (h *Handler) SignIn(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if !req.valid() {
		common.Fail(c, http.StatusBadRequest, 10002, "email and password required")
		return
	}
	d := h.device(c)
	if err := d.Session.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"user": d.Session.Identity()})
}

func (h *Handler) SignUp(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if !req.valid() {
		common.Fail(c, http.StatusBadRequest, 10002, "email and password required")
		return
	}
	d := h.device(c)
	pending, err := d.Session.SignUp(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := gin.H{"pending": pending, "user": d.Session.Identity()}
	if pending {
		out["message"] = confirmEmailMessage
	}
	common.OK(c, out)
}

func (h *Handler) SignOut(c *gin.Context) {
	d := h.device(c)
	if err := d.Session.SignOut(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"user": nil})
}

// AuthEvents streams identity changes of the device as server-sent events:
// the current identity first, then one "session" event per change and a
// "ping" every heartbeat.
func (h *Handler) AuthEvents(c *gin.Context) {
	d := h.device(c)

	changes := make(chan *session.Identity, 8)
	unsub := d.Session.Subscribe(func(id *session.Identity) {
		select {
		case changes <- id:
		default:
			// a slow reader only needs the latest identity
			select {
			case <-changes:
			default:
			}
			select {
			case changes <- id:
			default:
			}
		}
	})
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\n", event)
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	writeJSON("session", gin.H{"user": d.Session.Identity()})

	ticker := time.NewTicker(h.Heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case id := <-changes:
			writeJSON("session", gin.H{"user": id})
		case <-ticker.C:
			writeJSON("ping", gin.H{"ts": time.Now().Unix()})
		case <-ctx.Done():
			return
		}
	}
}
