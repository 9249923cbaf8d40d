// internal/handlers/status.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/retailradar/arbitrage-backend/internal/cache"
	"github.com/retailradar/arbitrage-backend/internal/services"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

type StatusHandler struct {
	pipeline      *services.PipelineService
	tiers         *services.TierService
	opportunities *services.OpportunityService
	cache         *cache.MultiLevelCache
}

func NewStatusHandler(pipeline *services.PipelineService, tiers *services.TierService, opportunities *services.OpportunityService, mlc *cache.MultiLevelCache) *StatusHandler {
	return &StatusHandler{
		pipeline:      pipeline,
		tiers:         tiers,
		opportunities: opportunities,
		cache:         mlc,
	}
}

// GET /status
func (h *StatusHandler) Status(c *gin.Context) {
	tierCounts, err := h.tiers.CountByTier()
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	activeOpportunities, err := h.opportunities.ActiveCount()
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	status := gin.H{
		"cycle_running":        h.pipeline.Running(),
		"tiers":                tierCounts,
		"active_opportunities": activeOpportunities,
		"cache":                h.cache.Stats(),
	}
	if lastCycle, ok := h.pipeline.LastCycle(); ok {
		status["last_cycle"] = lastCycle
	}

	utils.SuccessResponse(c, status)
}
