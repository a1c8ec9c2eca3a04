package routes

import (
	_ "embed"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/adminbjkai/img2/config"
	"github.com/adminbjkai/img2/controllers"
	"github.com/adminbjkai/img2/middleware"
	"github.com/adminbjkai/img2/storage"
	"github.com/adminbjkai/img2/utils"
)

//go:embed static/index.html
var indexHTML []byte

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Service *storage.Service
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	// Quota backs the per-IP daily upload cap; nil disables it.
	Quota  middleware.QuotaCounter
	Logger *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps Dependencies) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, true))
	} else {
		logger.Warn("gin access log disabled", zap.Error(err))
		r.Use(utils.Ginzap(logger, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(logger, true))
	}

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", utils.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", utils.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// The multipart body is bounded in the controller; stream big parts to disk.
	r.MaxMultipartMemory = 8 << 20

	images := controllers.NewImageController(deps.Service, cfg.PublicBaseURL, logger)

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	r.GET("/health", images.Health)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/upload",
		middleware.RateLimitMiddleware(cfg.RateLimitPerMinute),
		middleware.UploadQuota(deps.Quota, cfg.UploadsPerIPPerDay, logger),
		images.Upload,
	)
	r.GET("/i/:id", images.Serve)
	r.GET("/thumb/:id", images.Thumb)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "route not found")
	})

	return r
}
