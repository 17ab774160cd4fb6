package handlers

import (
	"context"
	"net/http"
	"time"

	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	api "nanoqa-pipeline/models"

	"github.com/gin-gonic/gin"
)

// PipelineService is the pipeline surface the HTTP layer depends on.
type PipelineService interface {
	Process(ctx context.Context, question string, opts *models.ProcessOptions) *models.NaturalLanguageResult
	ProcessBatch(ctx context.Context, questions []string, opts *models.ProcessOptions) []*models.NaturalLanguageResult
	GetPipelineInfo() map[string]interface{}
	HealthCheck(ctx context.Context) map[string]interface{}
	GetStats() map[string]interface{}
}

type QuestionHandler struct {
	pipeline PipelineService
	logger   *logger.Logger
}

func NewQuestionHandler(pipeline PipelineService, log *logger.Logger) *QuestionHandler {
	return &QuestionHandler{
		pipeline: pipeline,
		logger:   log,
	}
}

// RegisterRoutes mounts the question API and the health probe.
func (handler *QuestionHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/questions", handler.AskQuestion)
		v1.POST("/questions/batch", handler.AskQuestionBatch)
		v1.GET("/pipeline/info", handler.GetPipelineInfo)
		v1.GET("/pipeline/stats", handler.GetStats)
	}
}

// AskQuestion runs one question through the pipeline. The pipeline never
// fails, so a well-formed request always gets a 200 with an answer, possibly
// a degraded one.
func (handler *QuestionHandler) AskQuestion(c *gin.Context) {
	var req api.AskQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.APIResponse{
			Success:   false,
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	result := handler.pipeline.Process(c.Request.Context(), req.Question, &models.ProcessOptions{
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		Preferences: req.Preferences,
		Debug:       req.Debug,
	})

	c.JSON(http.StatusOK, api.APIResponse{
		Success:   true,
		Data:      result,
		Timestamp: time.Now(),
	})
}

// AskQuestionBatch processes a batch of questions and returns one answer per
// question in input order.
func (handler *QuestionHandler) AskQuestionBatch(c *gin.Context) {
	var req api.BatchQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.APIResponse{
			Success:   false,
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	results := handler.pipeline.ProcessBatch(c.Request.Context(), req.Questions, &models.ProcessOptions{
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		Preferences: req.Preferences,
		Debug:       req.Debug,
	})

	c.JSON(http.StatusOK, api.APIResponse{
		Success: true,
		Data: gin.H{
			"results": results,
			"count":   len(results),
		},
		Timestamp: time.Now(),
	})
}

func (handler *QuestionHandler) GetPipelineInfo(c *gin.Context) {
	c.JSON(http.StatusOK, api.APIResponse{
		Success:   true,
		Data:      handler.pipeline.GetPipelineInfo(),
		Timestamp: time.Now(),
	})
}

func (handler *QuestionHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, api.APIResponse{
		Success:   true,
		Data:      handler.pipeline.GetStats(),
		Timestamp: time.Now(),
	})
}

// HealthCheck reports pipeline health. Anything other than a fully healthy
// status maps to 503 so load balancers stop routing here.
func (handler *QuestionHandler) HealthCheck(c *gin.Context) {
	health := handler.pipeline.HealthCheck(c.Request.Context())

	status := http.StatusOK
	if overall, ok := health["overall"].(string); ok && overall != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, health)
}
