package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/producer-tools/internal/api/middleware"
	"github.com/timmy/producer-tools/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryLister reads persisted job outcomes.
type HistoryLister interface {
	List(ctx context.Context, limit, offset int) ([]domain.ConversionRecord, error)
}

// HistoryHandler serves finished-job history.
type HistoryHandler struct {
	repo HistoryLister
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(repo HistoryLister) *HistoryHandler {
	return &HistoryHandler{repo: repo}
}

// List handles GET /api/v1/history.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *HistoryHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list history")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list history",
		})
		return
	}
	if records == nil {
		records = []domain.ConversionRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}
