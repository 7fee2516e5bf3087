package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chazu/tensile/pkg/colorize"
	"github.com/chazu/tensile/pkg/graph"
	"github.com/chazu/tensile/pkg/pipeline"
	"github.com/chazu/tensile/pkg/stress"
	"github.com/chazu/tensile/pkg/surrogate"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// generateRequest carries the prompt. Text is a pointer so that an empty
// prompt is accepted and only a missing field is rejected.
type generateRequest struct {
	Text *string `json:"text" binding:"required"`
}

type meshPayload struct {
	Vertices []float32 `json:"vertices"`
	Indices  []uint32  `json:"indices,omitempty"`
	Colors   []float32 `json:"colors"`
}

type generateResponse struct {
	Prediction pipeline.Summary `json:"prediction"`
	Message    string           `json:"message"`
	Mesh       meshPayload      `json:"mesh"`
}

type feedbackRequest struct {
	RunID    string `json:"run_id" binding:"required"`
	Feedback string `json:"feedback" binding:"required"`
	Prompt   string `json:"prompt"`
}

// NewRouter builds the HTTP API over a.
func NewRouter(a *App, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(log))
	r.Use(corsMiddleware())

	r.POST("/generate", a.handleGenerate)
	r.GET("/health", a.handleHealth)
	r.POST("/model/reload", a.handleReload)
	r.GET("/last", a.handleLast)
	r.POST("/feedback", a.handleFeedback)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry(), promhttp.HandlerOpts{})))
	return r
}

func (a *App) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON with a string \"text\" field"})
		return
	}

	res, err := a.Generate(c.Request.Context(), *req.Text)
	if err != nil {
		_ = c.Error(err)
		status, body := a.errorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, generateResponse{
		Prediction: res.Summary,
		Message:    message(res.Summary),
		Mesh: meshPayload{
			Vertices: res.Mesh.Vertices,
			Indices:  res.Mesh.Indices,
			Colors:   colorize.Flatten(res.Colors),
		},
	})
}

func message(s pipeline.Summary) string {
	if s.Degenerate {
		return "stress field is flat; colours are uniform"
	}
	return "stress predicted with the " + s.Strategy + " strategy"
}

// errorResponse maps pipeline failures to HTTP statuses.
func (a *App) errorResponse(err error) (int, gin.H) {
	body := gin.H{"error": err.Error()}
	switch {
	case errors.Is(err, graph.ErrInvalidGraph):
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, surrogate.ErrModelUnavailable):
		body["status"] = a.ModelStatus().State
		return http.StatusServiceUnavailable, body
	case errors.Is(err, stress.ErrShapeMismatch):
		return http.StatusBadGateway, body
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, body
	}
	return http.StatusInternalServerError, body
}

func (a *App) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"model":  a.ModelStatus(),
	})
}

func (a *App) handleReload(c *gin.Context) {
	// Detached from the request so the load outlives it; Close cancels it.
	if err := a.ReloadModel(context.Background()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reloading"})
}

func (a *App) handleLast(c *gin.Context) {
	res := a.Last()
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no successful run yet"})
		return
	}
	c.JSON(http.StatusOK, res.Summary)
}

func (a *App) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.Feedback(req.RunID, req.Feedback, req.Prompt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ----------------------------------------------------------------------------
// Middleware
// ----------------------------------------------------------------------------

// requestID propagates X-Request-ID, minting one when absent.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("client error", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// corsMiddleware lets browser clients on any origin call the API.
// Preflight requests are answered with 204.
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", requestIDHeader},
		ExposeHeaders:   []string{requestIDHeader},
		MaxAge:          12 * time.Hour,
	})
}
