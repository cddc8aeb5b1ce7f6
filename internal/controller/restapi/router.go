package restapi

import (
	"github.com/agrovision/leaf-diagnosis/config"
	v1 "github.com/agrovision/leaf-diagnosis/internal/controller/restapi/v1"
	"github.com/agrovision/leaf-diagnosis/internal/usecase"
	"github.com/agrovision/leaf-diagnosis/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

// @title Leaf diagnosis service
// @version 1.0.0
// @host localhost:8080
// @BasePath /v1
func NewRouter(app *fiber.App, cfg *config.Config, diag usecase.DiagnosisUseCase, inf usecase.InferenceUseCase, an usecase.AnalyticsUseCase, l logger.Interface) {
	// Swagger
	if cfg.Swagger.Enabled {
		app.Get("/swagger/*", swagger.HandlerDefault)
	}

	// Routers
	apiV1Group := app.Group("/v1", v1.AuthMiddleware(cfg.Auth.JWTSecret))
	{
		v1.NewDiagnosisRoutes(apiV1Group, diag, inf, l)
		v1.NewAnalyticsRoutes(apiV1Group, an, l)
	}
}
