// Package server assembles the services and the HTTP router.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"energybudget/internal/config"
	_ "energybudget/internal/docs" // Register swagger docs
	"energybudget/internal/handlers"
	"energybudget/internal/logger"
	"energybudget/internal/metrics"
	"energybudget/internal/middleware"
	"energybudget/internal/mlclient"
	"energybudget/internal/services"
	"energybudget/internal/validator"
)

// App is the assembled service.
type App struct {
	Router      *gin.Engine
	Realization services.RealizationServicer
}

// NewApp wires every service over db and builds the router. m may be nil,
// which also disables /metrics.
func NewApp(db *gorm.DB, cfg *config.Config, m *metrics.Metrics, clock services.Clock) *App {
	validator.Register()

	refs := services.NewReferenceReader(db)
	store := services.NewBudgetStore(db, m)
	masterData := services.NewMasterDataService(db)
	audit := services.NewAuditService(db)

	budgetService := services.NewBudgetService(services.NewAllocationValidator(refs), store, clock)
	realizationService := services.NewRealizationService(db, store, clock, m)

	var estimator services.PeriodBudgetEstimator
	if cfg.EstimatorURL != "" {
		estimator = mlclient.NewEstimatorClient(cfg.EstimatorURL, &http.Client{Timeout: cfg.EstimatorTimeout}, m)
	} else {
		estimator = services.NewHistoricalEstimator(db)
	}
	previewService := services.NewPreviewService(db, store, refs, masterData, estimator, m)

	// A nil Classifier interface disables classification; a typed nil would not.
	var classifier services.Classifier
	if cfg.ClassifierURL != "" {
		classifier = mlclient.NewClassifierClient(cfg.ClassifierURL, &http.Client{Timeout: cfg.EstimatorTimeout}, m)
	}
	classificationService := services.NewClassificationService(realizationService, classifier)

	h := Handlers{
		Budgets:     handlers.NewBudgetHandler(budgetService, realizationService, audit),
		Preview:     handlers.NewPreviewHandler(previewService),
		Realization: handlers.NewRealizationHandler(realizationService, classificationService, audit),
		MasterData:  handlers.NewMasterDataHandler(masterData),
	}
	opts := Options{
		PipelineAPIKey: cfg.PipelineAPIKey,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        m,
		Health:         pinger(db),
	}

	return &App{
		Router:      NewRouter(h, opts),
		Realization: realizationService,
	}
}

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Budgets     *handlers.BudgetHandler
	Preview     *handlers.PreviewHandler
	Realization *handlers.RealizationHandler
	MasterData  *handlers.MasterDataHandler
}

// Options configures the router.
type Options struct {
	// PipelineAPIKey guards /pipeline routes; empty answers them with 503.
	PipelineAPIKey string
	RequestTimeout time.Duration
	// Metrics enables request metrics and /metrics when non-nil.
	Metrics *metrics.Metrics
	// Health reports whether the store is reachable.
	Health func(ctx context.Context) error
}

// NewRouter builds the Gin engine with all routes and middleware.
func NewRouter(h Handlers, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging(opts.Metrics))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS())

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", healthHandler(opts.Health))

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(opts.RequestTimeout))

	// Master data routes
	v1.GET("/energy-types", h.MasterData.GetEnergyTypes)
	v1.GET("/energy-types/:id", h.MasterData.GetEnergyType)
	v1.GET("/meters", h.MasterData.GetMeters)

	// Budget routes
	budgets := v1.Group("/budgets")
	budgets.POST("", h.Budgets.CreateBudget)
	budgets.GET("", h.Budgets.GetBudgets)
	budgets.POST("/preview", h.Preview.PreviewBudget)
	budgets.GET("/:id", h.Budgets.GetBudget)
	budgets.PATCH("/:id", h.Budgets.UpdateBudget)
	budgets.DELETE("/:id", h.Budgets.DeleteBudget)
	budgets.GET("/:id/available-capacity", h.Preview.GetAvailableCapacity)
	budgets.GET("/:id/realization", h.Realization.GetRealization)
	budgets.POST("/:id/recalculate", h.Realization.Recalculate)
	budgets.GET("/:id/classification", h.Realization.GetClassification)

	// Pipeline routes (API key auth)
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(opts.PipelineAPIKey))
	pipeline.POST("/recalculate", h.Realization.RecalculateActive)

	return router
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Get().Warnw("health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func pinger(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
