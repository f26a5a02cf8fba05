package app

import (
	"gorm.io/gorm"

	apphttp "github.com/yungbote/sitescout-backend/internal/http"
	httpH "github.com/yungbote/sitescout-backend/internal/http/handlers"
	httpMW "github.com/yungbote/sitescout-backend/internal/http/middleware"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Run      *httpH.RunHandler
	District *httpH.DistrictHandler
	Search   *httpH.SearchHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db),
		Run:      httpH.NewRunHandler(services.CrawlRun, services.Scoring, services.Embedding),
		District: httpH.NewDistrictHandler(services.Scoring),
		Search:   httpH.NewSearchHandler(services.Search),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *apphttp.Server {
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		AuthMiddleware:  middleware.Auth,
		RunHandler:      handlers.Run,
		DistrictHandler: handlers.District,
		SearchHandler:   handlers.Search,
		HealthHandler:   handlers.Health,
	}, ":"+cfg.Port)
}
