package handlers

import (
	"fermentation_monitor/internal/logger"
	"fermentation_monitor/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Versioned API endpoints
	h.registerAPIRoutes(router)

	// Live state over WebSocket (HTTP upgrade), same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		h.registerDeviceRoutes(api)
		h.registerRunRoutes(api)
		h.registerAlertRoutes(api)
		h.registerMaintenanceRoutes(api)
	}
}

// registerDeviceRoutes groups the telemetry ingest endpoints posted by the
// fermentation controller and the floating hydrometer.
func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	device := api.Group("/device")
	{
		device.POST("/readings", h.postReading)
		device.POST("/controller-state", h.postControllerState)
		device.POST("/heartbeat", h.postHeartbeat)
		// Body is the firmware's compact state payload, any version.
		device.POST("/fermentation-state", h.postFermentationState)
		device.POST("/hydrometer", h.postHydrometer)
	}
}

func (h *Handler) registerRunRoutes(api *gin.RouterGroup) {
	runs := api.Group("/runs")
	{
		runs.POST("/", h.createRun)
		runs.GET("/:id", h.getRun)
		runs.POST("/:id/activate", h.activateRun)
		runs.POST("/:id/advance", h.advanceRun)
		runs.GET("/:id/dashboard", h.getDashboard)
	}
}

func (h *Handler) registerAlertRoutes(api *gin.RouterGroup) {
	alerts := api.Group("/alerts")
	{
		alerts.GET("/", h.listUnreadAlerts)
		alerts.POST("/:id/read", h.markAlertRead)
	}
}

func (h *Handler) registerMaintenanceRoutes(api *gin.RouterGroup) {
	maintenance := api.Group("/maintenance")
	{
		maintenance.POST("/cleanup", h.emergencyCleanup)
	}
}
