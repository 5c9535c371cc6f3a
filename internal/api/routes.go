package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/acoplu/borsa-aslani/internal/api/handlers"
	"github.com/acoplu/borsa-aslani/internal/logging"
	"github.com/acoplu/borsa-aslani/internal/metrics"
	"github.com/acoplu/borsa-aslani/internal/middleware"
	"github.com/acoplu/borsa-aslani/internal/services"
	"github.com/acoplu/borsa-aslani/internal/telemetry"
)

// Dependencies are the collaborators the routes are built from. DB, Redis,
// Prices and Scalers may be nil when the backend is disabled.
type Dependencies struct {
	Preparation *services.PreparationService
	Prices      handlers.PriceSource
	Scalers     handlers.ScalerRegistry
	DB          handlers.HealthChecker
	Redis       handlers.HealthChecker
	Metrics     *metrics.Recorder
	Logger      *logging.StandardLogger
	ServiceName string
	Version     string

	// AllowedOrigins enables CORS for the listed origins. Empty disables it.
	AllowedOrigins []string
}

func (d *Dependencies) setDefaults() {
	if d.Logger == nil {
		d.Logger = logging.NewStandardLogger("info", "production")
	}
	if d.ServiceName == "" {
		d.ServiceName = telemetry.ServiceName
	}
	if d.Version == "" {
		d.Version = telemetry.ServiceVersion
	}
}

// NewRouter builds a gin engine with the middleware chain and registers
// every route.
func NewRouter(deps Dependencies) *gin.Engine {
	deps.setDefaults()
	router := gin.New()
	router.Use(gin.Recovery())
	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  deps.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", middleware.RequestIDHeader},
			ExposeHeaders: []string{middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
	router.Use(otelgin.Middleware(deps.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestMetrics(deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger, "/health", "/metrics"))

	SetupRoutes(router, deps)
	return router
}

// SetupRoutes registers the health, metrics and /api/v1 routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	deps.setDefaults()
	logger := deps.Logger.Logger()

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.Version)
	datasetHandler := handlers.NewDatasetHandler(deps.Preparation, deps.Prices, logger)
	scalerHandler := handlers.NewScalerHandler(deps.Scalers, logger)
	priceHandler := handlers.NewPriceHandler(deps.Prices, logger)

	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Error: "route not found", Kind: "not_found"})
	})

	v1 := router.Group("/api/v1")
	{
		datasets := v1.Group("/datasets")
		{
			datasets.POST("/tree", datasetHandler.PrepareTree)
			datasets.POST("/sequence", datasetHandler.PrepareSequence)
			datasets.POST("/sequence/inference", datasetHandler.PrepareInference)
		}

		scalers := v1.Group("/scalers")
		{
			scalers.GET("", scalerHandler.ListScalers)
			scalers.GET("/:id", scalerHandler.GetScaler)
			scalers.DELETE("/:id", scalerHandler.DeleteScaler)
			scalers.POST("/:id/inverse", scalerHandler.Inverse)
		}

		prices := v1.Group("/prices")
		{
			prices.GET("", priceHandler.ListSymbols)
			prices.GET("/:symbol", priceHandler.GetPrices)
			prices.PUT("/:symbol", priceHandler.SavePrices)
		}

		v1.POST("/evaluate", scalerHandler.Evaluate)
	}
}
