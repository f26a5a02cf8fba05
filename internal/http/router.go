package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/sitescout-backend/internal/http/handlers"
	httpMW "github.com/yungbote/sitescout-backend/internal/http/middleware"
	"github.com/yungbote/sitescout-backend/internal/observability"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware

	RunHandler      *httpH.RunHandler
	DistrictHandler *httpH.DistrictHandler
	SearchHandler   *httpH.SearchHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	r.Use(otelgin.Middleware("sitescout-backend"))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())
	r.Use(httpMW.Metrics(observability.Current()))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	// Prometheus text exposition
	if metrics := observability.Current(); metrics != nil {
		r.GET("/metrics", gin.WrapF(metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Reads (public)
		if cfg.RunHandler != nil {
			api.GET("/runs/crawl", cfg.RunHandler.ListCrawlRuns)
			api.GET("/runs/:id", cfg.RunHandler.GetRun)
		}
		if cfg.DistrictHandler != nil {
			api.GET("/districts/:id/score", cfg.DistrictHandler.GetScore)
			api.GET("/scores/top", cfg.DistrictHandler.TopScores)
		}
		if cfg.SearchHandler != nil {
			api.POST("/search", cfg.SearchHandler.Search)
		}
	}

	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireServiceToken())
		}

		// Run control
		if cfg.RunHandler != nil {
			protected.POST("/runs/crawl", cfg.RunHandler.StartCrawl)
			protected.POST("/runs/score", cfg.RunHandler.StartScore)
			protected.POST("/runs/embed", cfg.RunHandler.StartEmbed)
		}
		if cfg.DistrictHandler != nil {
			protected.POST("/districts/:id/score", cfg.DistrictHandler.Rescore)
		}
	}

	return r
}
