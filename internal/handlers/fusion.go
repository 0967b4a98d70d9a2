package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/astrofuse/astrofuse-backend/internal/services"
)

type FusionHandler struct {
	crossMatch services.CrossMatchService
	query      services.FusionQueryService
}

func NewFusionHandler(crossMatch services.CrossMatchService, query services.FusionQueryService) *FusionHandler {
	return &FusionHandler{crossMatch: crossMatch, query: query}
}

type runCrossMatchRequest struct {
	RadiusArcsec float64 `json:"radius_arcsec"`
}

// POST /api/fusion/cross-match
func (h *FusionHandler) RunCrossMatch(c *gin.Context) {
	var req runCrossMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	run, err := h.crossMatch.Run(c.Request.Context(), req.RadiusArcsec)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"run": gin.H{
		"run_id":          run.ID,
		"radius_arcsec":   run.RadiusArcsec,
		"status":          run.Status,
		"records_scanned": run.RecordsScanned,
		"records_skipped": run.RecordsSkipped,
		"groups_created":  run.GroupsCreated,
		"groups_merged":   run.GroupsMerged,
		"groups_split":    run.GroupsSplit,
		"large_groups":    run.LargeGroups,
		"duration_ms":     run.Duration().Milliseconds(),
	}})
}

// GET /api/fusion/stats
func (h *FusionHandler) GetStats(c *gin.Context) {
	stats, err := h.query.GetStats(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"stats": stats})
}

// GET /api/fusion/groups?min_size=&limit=&offset=
func (h *FusionHandler) ListGroups(c *gin.Context) {
	minSize := queryInt(c, "min_size", 1)
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)
	groups, err := h.query.ListGroups(c.Request.Context(), minSize, limit, offset)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"groups": groups, "count": len(groups)})
}

// GET /api/fusion/groups/:id
func (h *FusionHandler) GetGroup(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	group, members, err := h.query.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"group": group, "members": members})
}

// GET /api/fusion/runs/:id
func (h *FusionHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.query.GetRun(c.Request.Context(), runID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"run": run})
}

// GET /api/fusion/runs?limit=
func (h *FusionHandler) ListRuns(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	runs, err := h.query.ListRuns(c.Request.Context(), limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"runs": runs, "count": len(runs)})
}

func queryInt(c *gin.Context, key string, defaultVal int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal
	}
	return i
}
