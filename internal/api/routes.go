package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Credit ledger
		v1.POST("/results", handler.ApplyResult)
		v1.GET("/credits/:student_id", handler.GetCredits)

		// Score submissions
		submissions := v1.Group("/submissions")
		submissions.POST("/challenge", handler.SubmitChallenge)
		submissions.POST("/placement", handler.SubmitPlacement)
		submissions.POST("/tutorial", handler.SubmitTutorial)
		submissions.POST("/elm", handler.SubmitELM)
		submissions.POST("/unit-review", handler.SubmitUnitReview)

		// Retry queue
		v1.GET("/queue", handler.ListQueue)
		v1.GET("/queue/:student_key", handler.ListQueueForStudent)
		v1.POST("/queue/:student_key/replay", handler.ReplayStudent)

		// Bulk imports
		v1.POST("/imports", handler.TriggerImport)

		// Breaker
		v1.GET("/breaker", handler.GetBreaker)
		v1.POST("/breaker/open", handler.OpenBreaker)
		v1.POST("/breaker/reset", handler.ResetBreaker)
	}
}

// NewRouter builds an engine with the standard middleware chain.
func NewRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(RecoveryMiddleware())
	router.Use(CORSMiddleware())
	router.Use(LoggingMiddleware())

	SetupRoutes(router, handler)
	return router
}
