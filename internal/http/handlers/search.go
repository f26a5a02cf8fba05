package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/sitescout-backend/internal/http/response"
	"github.com/yungbote/sitescout-backend/internal/services"
)

type SearchHandler struct {
	search services.SearchService
}

func NewSearchHandler(search services.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchReq struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	matches, err := h.search.Search(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "search_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"matches": matches})
}
