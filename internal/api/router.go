package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hanlin/piaoju/internal/api/handler"
	"github.com/hanlin/piaoju/internal/api/middleware"
	"github.com/hanlin/piaoju/internal/config"
	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/repository"
	"github.com/hanlin/piaoju/internal/service"
)

// Deps collects everything the router needs.
type Deps struct {
	DB       *gorm.DB
	Jobs     *repository.JobRepository
	Ingest   *service.IngestService
	Invoices *service.InvoiceService
	Export   *service.ExportService
	Logger   *logger.Logger
	Config   *config.Config
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps) (*gin.Engine, error) {
	switch deps.Config.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  deps.Config.Server.CORS.AllowedOrigins,
		AllowAllOrigins: deps.Config.Server.CORS.AllowAllOrigins,
	}))

	uploadHandler, err := handler.NewUploadHandler(deps.Ingest, deps.Jobs, deps.Config.Ingest.UploadDir)
	if err != nil {
		return nil, err
	}
	invoiceHandler := handler.NewInvoiceHandler(deps.Invoices)
	downloadHandler := handler.NewDownloadHandler(deps.Invoices, deps.Export)
	adminHandler := handler.NewAdminHandler(deps.Invoices)
	healthHandler := handler.NewHealthHandler(deps.DB)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/upload", uploadHandler.Upload)
		v1.GET("/upload/status/:job_id", uploadHandler.Status)
		v1.GET("/jobs", uploadHandler.Jobs)

		v1.GET("/invoices", invoiceHandler.List)
		v1.PUT("/invoices/:id", invoiceHandler.Update)
		v1.DELETE("/invoices/:id", invoiceHandler.Delete)

		v1.GET("/download/:id", downloadHandler.Download)
		v1.POST("/download/zip", downloadHandler.DownloadZip)
		v1.GET("/export/xlsx", downloadHandler.ExportXLSX)

		v1.POST("/clear-all", adminHandler.ClearAll)
	}

	return r, nil
}
