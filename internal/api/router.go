package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgprompt/internal/api/handler"
	"github.com/timmy/imgprompt/internal/api/middleware"
	"github.com/timmy/imgprompt/internal/config"
	"github.com/timmy/imgprompt/internal/logger"
	"github.com/timmy/imgprompt/internal/ratelimit"
	"github.com/timmy/imgprompt/internal/service"
)

// multipartOverhead is the allowance for boundaries and part headers on top
// of the image size ceiling.
const multipartOverhead = 1 << 20

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Analyze *service.AnalyzeService
	// Archive is nil when the analysis archive is disabled.
	Archive  *service.ArchiveService
	RateRule ratelimit.Rule
	Version  string
	Logger   *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	maxBytes := deps.Analyze.MaxBytes()
	healthHandler := handler.NewHealthHandler(cfg.Server.Name, deps.Version, deps.Analyze.Configured, deps.RateRule)
	analyzeHandler := handler.NewAnalyzeHandler(deps.Analyze, maxBytes)

	var archive handler.ArchiveReader
	if deps.Archive != nil {
		archive = deps.Archive
	}
	analysisHandler := handler.NewAnalysisHandler(archive)

	r.GET("/health", healthHandler.Health)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/analyze", middleware.BodyLimit(maxBytes+multipartOverhead), analyzeHandler.Analyze)

		apiGroup.GET("/analyses", analysisHandler.ListAnalyses)
		apiGroup.GET("/analyses/:id", analysisHandler.GetAnalysis)
	}

	r.NoRoute(func(c *gin.Context) {
		handler.RespondError(c, http.StatusNotFound, "not found")
	})

	return r
}
