package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qapilot/backend/internal/db"
	"github.com/qapilot/backend/internal/logger"
	"github.com/qapilot/backend/internal/models"
	"github.com/qapilot/backend/internal/services"
)

// MaxUploadSize is enforced before extraction.
const MaxUploadSize = 5 * 1024 * 1024

var allowedMIMETypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// Extractor converts an uploaded binary document into plain text.
type Extractor interface {
	Extract(filename string, data []byte) (string, error)
}

// AnalysisController owns the document-to-test pipeline endpoints.
type AnalysisController struct {
	extractor   Extractor
	analyzer    *services.RequirementAnalyzer
	synthesizer *services.TestSynthesizer
	runner      *services.TestRunner
	history     *services.HistoryStore
	remote      *services.RemoteClassifier
}

func NewAnalysisController(
	extractor Extractor,
	analyzer *services.RequirementAnalyzer,
	synthesizer *services.TestSynthesizer,
	runner *services.TestRunner,
	history *services.HistoryStore,
	remote *services.RemoteClassifier,
) *AnalysisController {
	return &AnalysisController{
		extractor:   extractor,
		analyzer:    analyzer,
		synthesizer: synthesizer,
		runner:      runner,
		history:     history,
		remote:      remote,
	}
}

type uploadRequirements struct {
	Features uploadFeatures    `json:"features"`
	Entities []services.Entity `json:"entities"`
}

type uploadFeatures struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// Upload accepts a requirements document, extracts its text, classifies it
// and synthesizes an executable test script. Format and size are gated before
// extraction; classification itself cannot fail.
func (ac *AnalysisController) Upload(c *gin.Context) {
	file, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	if file.Size > MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File exceeds the 5MB size limit"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	mime := file.Header.Get("Content-Type")
	if (ext != ".pdf" && ext != ".docx") || !allowedMIMETypes[mime] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF and DOCX files are supported"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed", "details": err.Error()})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed", "details": err.Error()})
		return
	}
	if int64(len(data)) > MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File exceeds the 5MB size limit"})
		return
	}

	text, err := ac.extractor.Extract(file.Filename, data)
	if err != nil {
		logger.WithDocument(file.Filename).Errorf("extraction failed: %v", err)
		if errors.Is(err, services.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF and DOCX files are supported"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed", "details": err.Error()})
		return
	}

	// Classification is detached from the request context: a dropped client
	// connection must not abort the tier chain mid-escalation. Every tier
	// carries its own bounded timeout.
	analysis := ac.analyzer.Analyze(context.Background(), text)
	script := ac.synthesizer.Synthesize(analysis)

	logger.WithDocument(file.Filename).Infof("analysis completed via %s tier with %d categories", analysis.Method, len(analysis.Categories))

	labels := make([]string, len(analysis.Categories))
	scores := make([]float64, len(analysis.Categories))
	for i, category := range analysis.Categories {
		labels[i] = category.Label
		scores[i] = category.Score
	}

	message := "Analysis complete!"
	if script.Status != services.ScriptStatusSuccess {
		message = "Analysis completed with warnings"
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"requirements": uploadRequirements{
			Features: uploadFeatures{Labels: labels, Scores: scores},
			Entities: analysis.Entities,
		},
		"testScript":     script.Script,
		"analysisStatus": script.Status,
	})
}

type runTestsRequest struct {
	TestScript   string `json:"testScript"`
	DocumentName string `json:"documentName"`
}

// RunTests executes a synthesized script in a sandboxed subprocess and
// records the completed run. Execution failures return 500 and write no
// history record; history itself is never on the critical path.
func (ac *AnalysisController) RunTests(c *gin.Context) {
	var req runTestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.TestScript) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No test script provided"})
		return
	}

	// Execution is detached from the request context: a started run goes to
	// completion or hits the runner's own timeout. A client disconnect must
	// not kill the subprocess mid-run.
	result, err := ac.runner.Run(context.Background(), req.TestScript, req.DocumentName)
	if err != nil {
		var execErr *services.ExecutionError
		details := err.Error()
		if errors.As(err, &execErr) {
			details = execErr.Detail
		}
		logger.WithRun(req.DocumentName).Errorf("test execution failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Test execution failed",
			"details": details,
		})
		return
	}

	ac.history.Record(&models.TestRun{
		DocumentName: req.DocumentName,
		Timestamp:    time.Now().UTC(),
		Summary:      result.Summary,
		Details:      result.Details,
	})

	c.JSON(http.StatusOK, result)
}

// History returns the most recent run records, newest first.
func (ac *AnalysisController) History(c *gin.Context) {
	runs, err := ac.history.Recent(c.Request.Context(), services.DefaultHistoryLimit)
	if err != nil {
		if errors.Is(err, services.ErrStorageUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":          "Database not ready",
				"details":        "Please wait for database connection",
				"databaseStatus": db.State(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// ServerStatus reports backend liveness and storage connectivity.
func (ac *AnalysisController) ServerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"backend":   true,
		"database":  db.Ready(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": gin.H{
			"remoteClassifier": ac.remote.Available(),
			"testEngine":       true,
		},
	})
}
