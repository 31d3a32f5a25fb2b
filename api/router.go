package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediaconv/config"
	"mediaconv/logging"
	"mediaconv/task"
)

func SetupRouter(tm *task.Manager, info InfoFetcher, probe DurationProber, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), AccessLog(logging.WithComponent("http")))
	h := NewHandler(tm, info, probe, cfg)

	r.GET("/health", h.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/")
	authed.Use(AuthMiddleware(cfg))
	{
		authed.POST("/info", h.handleInfo)
		authed.POST("/upload", h.handleUpload)
		authed.POST("/start", h.handleStart)
		authed.GET("/status/:taskId", h.handleStatus)
		authed.GET("/tasks", h.handleListTasks)

		// File names are generated server side; a single path segment is all
		// a lookup may carry.
		authed.GET("/download-file/:filename", h.handleDownload)
		authed.GET("/uploads/:filename", h.handleUploads)
	}
	return r
}
