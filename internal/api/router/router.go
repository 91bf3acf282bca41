package router

import (
	"github.com/cuongbtq/research-crew/internal/api/handler"
	"github.com/cuongbtq/research-crew/internal/workflow"
	"github.com/gin-gonic/gin"
)

// taskConfigPaths maps each crew to the path segment of its template config.
var taskConfigPaths = map[workflow.Kind]string{
	workflow.KindCompany:       "company-analyse",
	workflow.KindIndustry:      "industry-analyse",
	workflow.KindMacroeconomic: "macroeconomy-analyse",
	workflow.KindTrip:          "trip-analyse",
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	configHandler := handler.NewConfigHandler(deps)

	r.GET("/health", healthHandler.Check)

	api := r.Group("/api")
	{
		api.POST("/crew-analyse", jobHandler.SubmitAnalyse)
		api.POST("/crew-trip", jobHandler.SubmitTrip)
		api.GET("/crew/:job_id", jobHandler.GetStatus)
		api.GET("/job-results/:job_id", jobHandler.GetJobResult)
		api.GET("/jobs", jobHandler.ListJobs)

		cfg := api.Group("/config")
		{
			cfg.GET("/research-manager", configHandler.GetManager)
			cfg.PUT("/research-manager", configHandler.UpdateManager)
			cfg.GET("/research-agent", configHandler.GetAgent)
			cfg.PUT("/research-agent", configHandler.UpdateAgent)

			for kind, path := range taskConfigPaths {
				cfg.GET("/"+path, configHandler.GetTasks(kind))
				cfg.PUT("/"+path, configHandler.UpdateTasks(kind))
			}
		}

		// Legacy update routes kept for existing clients.
		api.PUT("/update-research-manager", configHandler.UpdateManager)
		api.PUT("/update-research-agent", configHandler.UpdateAgent)
		for kind, path := range taskConfigPaths {
			api.PUT("/update-"+path, configHandler.UpdateTasks(kind))
		}
	}

	return r
}
