package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xxxsen/apisync/internal/middleware"
)

type RouterDeps struct {
	Trigger          *TriggerHandler
	Jobs             *JobHandler
	Files            *FileHandler
	AdminKeyHash     string
	TriggerRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	trigger := middleware.RateLimit(deps.TriggerRateLimit, deps.Trigger.Rejected)
	api.GET("/trigger/:token", trigger, deps.Trigger.Trigger)
	api.POST("/trigger/:token", trigger, deps.Trigger.Trigger)

	admin := api.Group("")
	admin.Use(middleware.AdminKey(deps.AdminKeyHash))
	admin.GET("/jobs", deps.Jobs.List)
	admin.POST("/jobs/import", deps.Jobs.Import)
	admin.GET("/jobs/:id", deps.Jobs.Get)
	admin.PUT("/jobs/:id", deps.Jobs.Save)
	admin.DELETE("/jobs/:id", deps.Jobs.Delete)
	admin.POST("/jobs/:id/run", deps.Jobs.Run)
	admin.POST("/jobs/:id/purge", deps.Jobs.Purge)
	admin.GET("/jobs/:id/token", deps.Jobs.Token)
	admin.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Files != nil {
		api.GET("/files/:key", deps.Files.Get)
		api.GET("/assets/:id", deps.Files.Asset)
	}
}
