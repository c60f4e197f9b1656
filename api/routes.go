package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/mikklepp/trickle/api/handlers"
	"github.com/mikklepp/trickle/api/middleware"
	"github.com/mikklepp/trickle/internal/repository"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	// setup handlers
	apiHandlers := handlers.InitHandlers(s, repos)

	// Health check endpoint (no custom context needed)
	r.GET("/health", handlers.HealthCheck)

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-TRICKLE-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.UserIdMiddleware())
	api.Use(middleware.CustomContextMiddleware("trickle")) // Add custom context for all /v1/* endpoints
	api.Use(middleware.TracingMiddleware())                // Add tracing for all /v1/* endpoints
	{
		// Job endpoints
		jobs := api.Group("/jobs")
		{
			jobs.POST("", apiHandlers.Jobs.Submit())
			jobs.GET("/:id", apiHandlers.Jobs.Status())
			jobs.GET("/:id/events/summary", apiHandlers.Events.Summary())
			jobs.GET("/:id/events", apiHandlers.Events.Log())
		}

		// Provider webhook
		provider := api.Group("/provider")
		{
			provider.POST("/events", apiHandlers.Provider.Events())
		}
	}
}
