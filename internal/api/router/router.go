package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/mediaflow/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "mediaflow-api",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.DELETE("/:job_id", jobHandler.DeleteJob)
		}

		v1.GET("/stats", jobHandler.Stats)
		v1.GET("/events", jobHandler.StreamEvents)

		if deps.Batches != nil {
			batchHandler := handler.NewBatchHandler(deps)
			batches := v1.Group("/batches")
			{
				batches.POST("", batchHandler.CreateBatch)
				batches.POST("/progress", batchHandler.BatchProgress)
			}
		}

		if deps.System != nil {
			v1.GET("/system/check", handler.SystemCheck(deps.System))
		}

		if deps.Media != nil {
			mediaHandler := handler.NewMediaHandler(deps)
			media := v1.Group("/media")
			{
				media.GET("/:media_id", mediaHandler.GetMedia)
				media.GET("/:media_id/transcript", mediaHandler.GetTranscript)
			}
		}
	}

	return r
}
