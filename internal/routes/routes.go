package routes

import (
	"os"

	"github.com/gin-gonic/gin"

	"github.com/qapilot/backend/internal/controllers"
	"github.com/qapilot/backend/internal/services"
)

// SetupRoutes constructs the pipeline services and registers all application
// routes.
func SetupRoutes(r *gin.Engine) *services.TestRunner {
	remote := services.NewRemoteClassifier("", "")
	analyzer := services.NewRequirementAnalyzer(
		remote,
		services.NewLocalClassifier("", ""),
		services.NewHeuristicClassifier(),
	)

	extractor := services.NewTextExtractor()
	synthesizer := services.NewTestSynthesizer(os.Getenv("APP_BASE_URL"))
	runner := services.NewTestRunner(os.Getenv("TEST_DIR"))
	history := services.NewHistoryStore()

	analysisController := controllers.NewAnalysisController(
		extractor, analyzer, synthesizer, runner, history, remote,
	)

	api := r.Group("/api")
	{
		api.POST("/upload", analysisController.Upload)
		api.POST("/run-tests", analysisController.RunTests)
		api.GET("/test-history", analysisController.History)
		api.GET("/server-status", analysisController.ServerStatus)
	}

	return runner
}
