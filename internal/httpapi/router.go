package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/common"
	"github.com/suPer8Hu/prompt-hub/internal/config"
	"github.com/suPer8Hu/prompt-hub/internal/httpapi/handlers"
	"github.com/suPer8Hu/prompt-hub/internal/httpapi/middleware"
	"github.com/suPer8Hu/prompt-hub/internal/logging"
	"github.com/suPer8Hu/prompt-hub/internal/observability"
)

func NewRouter(h *handlers.Handler, cfg config.Config, metrics *observability.Collector, log *zap.Logger) *gin.Engine {
	log = logging.OrNop(log)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	if len(cfg.CORSOrigins) > 0 {
		// the device cookie must travel with cross-origin requests
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(middleware.Logger(log))
	if metrics != nil {
		r.Use(middleware.Metrics(metrics))
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	r.GET("/ping", h.Ping)

	// everything below belongs to a device
	dev := r.Group("/")
	dev.Use(middleware.Device(cfg.DeviceCookie, cfg.DeviceCookieSecure))

	// auth
	dev.GET("/auth/session", h.Session)
	dev.POST("/auth/signin", h.SignIn)
	dev.POST("/auth/signup", h.SignUp)
	dev.POST("/auth/signout", h.SignOut)
	dev.GET("/auth/events", h.AuthEvents)

	// theme
	dev.GET("/theme", h.Theme)
	dev.PUT("/theme", h.SetThemeMode)
	dev.POST("/theme/toggle", h.ToggleTheme)
	dev.PUT("/theme/system", h.SetSystemTheme)

	// explore
	dev.GET("/prompts", h.Explore)
	dev.POST("/prompts", h.SubmitPrompt)
	dev.POST("/prompts/:id/vote", h.ToggleVote)

	// account
	dev.GET("/me/prompts", h.MyPrompts)
	dev.PATCH("/me/prompts/:id", h.EditPrompt)
	dev.POST("/me/prompts/:id/save", h.SavePrompt)
	dev.GET("/me/profile", h.MyProfile)
	dev.PUT("/me/profile", h.UpdateMyProfile)

	dev.GET("/profiles/:id", h.Profile)
	return r
}
