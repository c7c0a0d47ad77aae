package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/app"
	"github.com/suPer8Hu/prompt-hub/internal/common"
	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/httpapi/middleware"
	"github.com/suPer8Hu/prompt-hub/internal/listing"
	"github.com/suPer8Hu/prompt-hub/internal/profile"
	"github.com/suPer8Hu/prompt-hub/internal/submission"
	"github.com/suPer8Hu/prompt-hub/internal/theme"
	"github.com/suPer8Hu/prompt-hub/internal/vote"
)

const signInPath = "/signin"

type Handler struct {
	Devices *app.Registry
	Log     *zap.Logger

	// Heartbeat is the ping interval of event streams.
	Heartbeat time.Duration
}

func NewHandler(devices *app.Registry, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Devices: devices, Log: log, Heartbeat: 15 * time.Second}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) device(c *gin.Context) *app.Device {
	return h.Devices.Get(c.Request.Context(), c.GetString(middleware.DeviceIDKey))
}

// fail maps a domain error to the envelope. Backend failures keep their
// message so the client can show it next to the control that triggered it.
func (h *Handler) fail(c *gin.Context, err error) {
	var reqErr *gateway.RequestError
	switch {
	case errors.Is(err, app.ErrSignInRequired),
		errors.Is(err, vote.ErrSignInRequired),
		errors.Is(err, submission.ErrSignInRequired),
		errors.Is(err, gateway.ErrNoSession):
		common.FailWith(c, http.StatusUnauthorized, 40101, err.Error(), gin.H{"redirect": signInPath})
	case errors.Is(err, gateway.ErrInvalidCredentials):
		common.Fail(c, http.StatusUnauthorized, 40102, err.Error())
	case errors.Is(err, gateway.ErrForbidden):
		common.Fail(c, http.StatusForbidden, 40301, err.Error())
	case errors.Is(err, vote.ErrUnknownPrompt),
		errors.Is(err, submission.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "prompt not found")
	case errors.Is(err, profile.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40402, err.Error())
	case errors.Is(err, gateway.ErrUserExists):
		common.Fail(c, http.StatusConflict, 40901, err.Error())
	case errors.Is(err, vote.ErrInFlight),
		errors.Is(err, submission.ErrInFlight),
		errors.Is(err, submission.ErrSaving):
		common.Fail(c, http.StatusConflict, 40902, "request already in flight")
	case errors.Is(err, submission.ErrBlankTitle),
		errors.Is(err, submission.ErrBlankBody),
		errors.Is(err, submission.ErrBadCategory),
		errors.Is(err, submission.ErrNotSavable),
		errors.Is(err, listing.ErrBadFilter),
		errors.Is(err, theme.ErrInvalidMode),
		errors.Is(err, theme.ErrInvalidTheme),
		errors.As(err, &reqErr):
		common.Fail(c, http.StatusBadRequest, 10003, err.Error())
	case errors.Is(err, context.Canceled):
		c.Abort()
	default:
		h.Log.Error("backend request failed",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		common.Fail(c, http.StatusBadGateway, 50201, err.Error())
	}
}
