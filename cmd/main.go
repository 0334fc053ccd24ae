package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"
	"github.com/redis/go-redis/v9"

	"adpilot/internal/ads"
	"adpilot/internal/config"
	"adpilot/internal/events"
	"adpilot/internal/handlers"
	"adpilot/internal/jobs"
	"adpilot/internal/jobs/background"
	"adpilot/internal/metrics"
	"adpilot/internal/middleware"
	"adpilot/internal/repositories"
	"adpilot/internal/services"
	"adpilot/pkg/database"
)

const version = "1.0.0"

func main() {
	// Database connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := database.NewPool(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// JWT configuration
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = random.String(32) // Generate random secret for development
		log.Printf("WARNING: Using generated JWT secret")
	}

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	// Ads platform gateway configuration
	adsClient := ads.NewHTTPClient(&ads.Config{
		Endpoint:       getenvOrDefault("ADS_API_ENDPOINT", "http://localhost:9100"),
		APIKey:         os.Getenv("ADS_API_KEY"),
		TimeoutSeconds: getenvInt("ADS_API_TIMEOUT_SECONDS", 30),
	})

	// Metrics collaborator configuration
	var metricsProvider metrics.Provider = metrics.NewHTTPProvider(&metrics.Config{
		Endpoint:       getenvOrDefault("METRICS_API_ENDPOINT", "http://localhost:9200"),
		APIKey:         os.Getenv("METRICS_API_KEY"),
		TimeoutSeconds: getenvInt("METRICS_API_TIMEOUT_SECONDS", 15),
	})
	metricsProvider = metrics.NewCachedProvider(metricsProvider, redisClient, 30*time.Minute)

	// MinIO configuration for audit exports
	minioEndpoint := getenvOrDefault("MINIO_ENDPOINT", "localhost:9000")
	minioAccessKey := getenvOrDefault("MINIO_ACCESS_KEY", "minioadmin")
	minioSecretKey := getenvOrDefault("MINIO_SECRET_KEY", "minioadmin")
	minioUseSSL := os.Getenv("MINIO_USE_SSL") == "true"

	// Policies
	guardrailPolicy := config.LoadGuardrailPolicy()
	rollbackPolicy := config.LoadRollbackPolicy()

	// Create repositories
	changesRepo := repositories.NewChangeRecordsRepo(pool)
	settingsRepo := repositories.NewCustomerSettingsRepo(pool)

	// Event feed
	publisher := events.NewRedisPublisher(redisClient)

	// Create services
	guardrails := services.NewGuardrailEngine(changesRepo, settingsRepo, guardrailPolicy)
	executor := services.NewExecutor(changesRepo, guardrails, adsClient, publisher)
	monitor := services.NewChangeMonitor(changesRepo, metricsProvider, rollbackPolicy)
	evaluator := services.NewRollbackTriggerEvaluator(changesRepo, rollbackPolicy)
	rollback := services.NewRollbackExecutor(changesRepo, adsClient, publisher)
	reconciliation := services.NewReconciliationService(changesRepo)

	exportSvc, err := services.NewExportService(minioEndpoint, minioAccessKey, minioSecretKey, minioUseSSL, changesRepo)
	if err != nil {
		log.Fatalf("Failed to initialize export service: %v", err)
	}

	// Background jobs
	monitorJob := jobs.NewRollbackMonitorJob(settingsRepo, monitor, evaluator, rollback, publisher)
	monitorJob.DryRun = os.Getenv("ROLLBACK_DRY_RUN") == "true"
	reconciliationJob := jobs.NewReconciliationJob(settingsRepo, reconciliation)

	scheduler := background.NewJobScheduler(monitorJob, reconciliationJob)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create handlers
	changesHandlers := handlers.NewChangesHandlers(changesRepo, exportSvc)
	executionHandlers := handlers.NewExecutionHandlers(executor)
	rollbackHandlers := handlers.NewRollbackHandlers(rollback, reconciliation)
	healthHandlers := handlers.NewHealthHandlers(pool, redisClient)

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)

	// API routes
	v1 := e.Group("/v1")
	v1.Use(versionMiddleware.VersionHeader("v1"))
	v1.Use(middleware.JWTMiddleware(jwtSecret))

	// Audit trail
	v1.GET("/customers/:customerId/changes", changesHandlers.ListChanges)
	v1.GET("/customers/:customerId/changes/summary", changesHandlers.GetSummary)
	v1.GET("/customers/:customerId/changes/:id", changesHandlers.GetChange)
	v1.POST("/customers/:customerId/changes/export", changesHandlers.ExportChanges)

	// Execution
	v1.POST("/executions", executionHandlers.Execute)

	// Rollback and reconciliation
	v1.POST("/customers/:customerId/changes/:id/rollback", rollbackHandlers.Rollback)
	v1.GET("/customers/:customerId/reconciliation", rollbackHandlers.ReconciliationReport)

	// Start server
	port := getenvInt("PORT", 8080)
	log.Printf("adpilot control loop v%s starting on port %d", version, port)
	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}

func getenvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
