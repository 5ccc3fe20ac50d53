package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/producer-tools/internal/api/middleware"
	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/service"
)

// ConvertHandler handles conversion job endpoints.
type ConvertHandler struct {
	converter *service.ConverterService
}

// NewConvertHandler creates a new convert handler.
// Parameters:
//   - converter: converter service instance.
//
// Returns:
//   - *ConvertHandler: initialized handler.
func NewConvertHandler(converter *service.ConverterService) *ConvertHandler {
	return &ConvertHandler{converter: converter}
}

// ConvertRequest is the body of POST /convert.
type ConvertRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

// StatusResponse is a job snapshot as returned to pollers.
type StatusResponse struct {
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	Format     string    `json:"format"`
	File       *string   `json:"file"`
	Error      *string   `json:"error"`
	ErrorClass string    `json:"error_class,omitempty"`
	Hint       string    `json:"hint,omitempty"`
	Title      string    `json:"title,omitempty"`
	BPM        *int      `json:"bpm,omitempty"`
	Key        *string   `json:"key,omitempty"`
	PublicURL  string    `json:"public_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewStatusResponse converts a job snapshot to its wire form.
func NewStatusResponse(j domain.Job) StatusResponse {
	resp := StatusResponse{
		TaskID:    j.ID,
		Status:    string(j.State),
		Progress:  j.Progress,
		Message:   j.Message,
		Format:    string(j.Format),
		Title:     j.Title,
		BPM:       j.Tempo,
		Key:       j.Key,
		PublicURL: j.PublicURL,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.Result != "" {
		name := filepath.Base(j.Result)
		resp.File = &name
	}
	if j.Error != nil {
		msg := j.Error.Message
		resp.Error = &msg
		resp.ErrorClass = string(j.Error.Class)
		resp.Hint = j.Error.Hint
	}
	return resp
}

// Convert handles POST /convert.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *ConvertHandler) Convert(c *gin.Context) {
	var req ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "No data provided",
		})
		return
	}

	id, err := h.converter.Submit(c.Request.Context(), service.SubmitRequest{
		URL:    req.URL,
		Format: req.Format,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":         strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": "),
				"valid_formats": domain.FormatNames(h.converter.Formats()),
			})
		case errors.Is(err, service.ErrShuttingDown):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			middleware.GetLogger(c).WithError(err).Error("Failed to submit conversion")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start conversion"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": id})
}

// Status handles GET /status/:task_id.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *ConvertHandler) Status(c *gin.Context) {
	id := c.Param("task_id")
	job, err := h.converter.Poll(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Task not found",
			"task_id": id,
		})
		return
	}
	c.JSON(http.StatusOK, NewStatusResponse(job))
}

// Download handles GET /download/:task_id.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes the artifact or a JSON error).
func (h *ConvertHandler) Download(c *gin.Context) {
	art, err := h.converter.FetchResult(c.Param("task_id"))
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	case errors.Is(err, service.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "File not ready yet"})
		return
	case errors.Is(err, service.ErrArtifactMissing):
		c.JSON(http.StatusGone, gin.H{"error": "File not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "application/octet-stream")
	c.FileAttachment(art.Path, art.Name)
}

// ListJobs handles GET /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *ConvertHandler) ListJobs(c *gin.Context) {
	jobs := h.converter.List()
	out := make([]StatusResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, NewStatusResponse(j))
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  out,
		"total": len(out),
	})
}
