package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/sitescout-backend/internal/http/response"
	"github.com/yungbote/sitescout-backend/internal/services"
)

type DistrictHandler struct {
	scoring services.ScoringService
}

func NewDistrictHandler(scoring services.ScoringService) *DistrictHandler {
	return &DistrictHandler{scoring: scoring}
}

// GET /api/districts/:id/score
func (h *DistrictHandler) GetScore(c *gin.Context) {
	districtID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_district_id", err)
		return
	}
	score, err := h.scoring.GetDistrictScore(c.Request.Context(), districtID)
	if err != nil {
		response.RespondDomainError(c, "score_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"score": score})
}

// POST /api/districts/:id/score
func (h *DistrictHandler) Rescore(c *gin.Context) {
	districtID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_district_id", err)
		return
	}
	score, err := h.scoring.ScoreDistrict(c.Request.Context(), districtID)
	if err != nil {
		response.RespondDomainError(c, "rescore_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"score": score})
}

// GET /api/scores/top
func (h *DistrictHandler) TopScores(c *gin.Context) {
	limit := 25
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	scores, err := h.scoring.ListTopScores(c.Request.Context(), limit)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "list_scores_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"scores": scores})
}
