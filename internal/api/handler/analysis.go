package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgprompt/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ArchiveReader reads archived analyses.
type ArchiveReader interface {
	Get(ctx context.Context, id string) (*domain.Analysis, error)
	List(ctx context.Context, limit, offset int) ([]domain.Analysis, int64, error)
}

// AnalysisHandler exposes the optional analysis archive.
type AnalysisHandler struct {
	archive ArchiveReader
}

// NewAnalysisHandler creates a new archive handler. A nil archive makes every
// route answer 404.
func NewAnalysisHandler(archive ArchiveReader) *AnalysisHandler {
	return &AnalysisHandler{archive: archive}
}

type ListAnalysesResponse struct {
	Success  bool              `json:"success"`
	Analyses []domain.Analysis `json:"analyses"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type AnalysisResponse struct {
	Success  bool             `json:"success"`
	Analysis *domain.Analysis `json:"analysis"`
}

// ListAnalyses handles GET /api/analyses.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	if h.archive == nil {
		RespondError(c, http.StatusNotFound, "analysis archive is disabled")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	items, total, err := h.archive.List(c.Request.Context(), limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	if items == nil {
		items = []domain.Analysis{}
	}

	c.JSON(http.StatusOK, ListAnalysesResponse{
		Success:  true,
		Analyses: items,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// GetAnalysis handles GET /api/analyses/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	if h.archive == nil {
		RespondError(c, http.StatusNotFound, "analysis archive is disabled")
		return
	}

	a, err := h.archive.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrAnalysisNotFound) {
		RespondError(c, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "failed to load analysis")
		return
	}

	c.JSON(http.StatusOK, AnalysisResponse{Success: true, Analysis: a})
}
