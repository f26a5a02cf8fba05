package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/sitescout-backend/internal/http/response"
	"github.com/yungbote/sitescout-backend/internal/services"
)

// RunHandler exposes the three run types. Crawl and embedding runs are
// queued and answered with 202; scoring recomputes inline and returns the
// finished summary.
type RunHandler struct {
	crawl     services.CrawlRunService
	scoring   services.ScoringService
	embedding services.EmbeddingRunService
}

func NewRunHandler(crawl services.CrawlRunService, scoring services.ScoringService, embedding services.EmbeddingRunService) *RunHandler {
	return &RunHandler{crawl: crawl, scoring: scoring, embedding: embedding}
}

type startCrawlReq struct {
	Notes string `json:"notes"`
}

// POST /api/runs/crawl
func (h *RunHandler) StartCrawl(c *gin.Context) {
	var req startCrawlReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	batch, err := h.crawl.StartRun(c.Request.Context(), req.Notes)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "start_crawl_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"run": batch})
}

// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	batch, err := h.crawl.GetRun(c.Request.Context(), runID)
	if err != nil {
		response.RespondDomainError(c, "run_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"run": batch})
}

// GET /api/runs/crawl
func (h *RunHandler) ListCrawlRuns(c *gin.Context) {
	limit := 20
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.crawl.ListRecentRuns(c.Request.Context(), limit)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "list_runs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"runs": runs})
}

// POST /api/runs/score
func (h *RunHandler) StartScore(c *gin.Context) {
	summary, err := h.scoring.ScoreAll(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "score_run_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"summary": summary})
}

// POST /api/runs/embed
func (h *RunHandler) StartEmbed(c *gin.Context) {
	runID, err := h.embedding.Start(c.Request.Context())
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrRunInProgress) {
			status = http.StatusConflict
		}
		response.RespondError(c, status, "start_embed_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"run_id": runID})
}
