package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/genstudio/server/internal/auth"
	"github.com/genstudio/server/internal/billing"
	"github.com/genstudio/server/internal/comfy"
	"github.com/genstudio/server/internal/config"
	"github.com/genstudio/server/internal/middleware"
	"github.com/genstudio/server/internal/service"
	"github.com/genstudio/server/internal/store"
)

// Handler bundles every HTTP endpoint with its collaborators.
type Handler struct {
	cfg       *config.Config
	generator *service.Generator
	uploads   *service.PendingUploads
	store     *store.Store
	billing   billing.Service
	users     auth.UserService
	engine    *comfy.Client
	rdb       *redis.Client
	startedAt time.Time
}

// New creates the handler set.
func New(
	cfg *config.Config,
	generator *service.Generator,
	uploads *service.PendingUploads,
	st *store.Store,
	billingSvc billing.Service,
	users auth.UserService,
	engine *comfy.Client,
	rdb *redis.Client,
) *Handler {
	return &Handler{
		cfg:       cfg,
		generator: generator,
		uploads:   uploads,
		store:     st,
		billing:   billingSvc,
		users:     users,
		engine:    engine,
		rdb:       rdb,
		startedAt: time.Now(),
	}
}

// RegisterRoutes wires all endpoints onto the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/outputs/:filename", h.DownloadOutput)
	// The verification mail links here.
	r.GET("/auth/verify", h.VerifyEmail)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(h.rdb, h.cfg.RateLimit, h.cfg.RateLimitWindow))
	api.GET("/health", h.Health)

	// Generation endpoints accept anonymous callers; a present key must
	// still be valid.
	gen := api.Group("", middleware.OptionalAPIKey(h.users))
	{
		gen.POST("/generate/:kind", h.Generate)
		gen.POST("/garment/upload", h.GarmentUpload)
		gen.POST("/garment/swap", h.GarmentSwap)
		gen.POST("/images/:id/rating", h.RateImage)
		gen.POST("/survey", h.SubmitSurvey)
	}

	api.GET("/gallery", h.Gallery)
	api.GET("/models", h.Models)
	api.GET("/prompt/presets", h.PromptPresets)
	api.POST("/prompt/expand", h.PromptExpand)

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/auth/verify", h.VerifyEmail)

	me := api.Group("", middleware.APIKeyAuth(h.users))
	{
		me.GET("/me", h.Me)
		me.GET("/me/images", h.MyImages)
		me.GET("/me/transactions", h.MyTransactions)
		me.POST("/me/apikey/reset", h.ResetAPIKey)
	}

	admin := api.Group("/admin", middleware.AdminTokenAuth(h.cfg.AdminToken))
	{
		admin.POST("/credits/grant", h.GrantCredits)
		admin.POST("/users/:id/status", h.SetUserStatus)
	}
}

// Health reports liveness plus engine reachability.
func (h *Handler) Health(c *gin.Context) {
	engineUp := true
	if _, err := h.engine.ObjectInfo(c.Request.Context()); err != nil {
		engineUp = false
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"engine_up": engineUp,
	})
}
