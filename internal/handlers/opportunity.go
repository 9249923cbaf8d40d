// internal/handlers/opportunity.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retailradar/arbitrage-backend/internal/services"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

type OpportunityHandler struct {
	opportunityService *services.OpportunityService
}

func NewOpportunityHandler(opportunityService *services.OpportunityService) *OpportunityHandler {
	return &OpportunityHandler{
		opportunityService: opportunityService,
	}
}

// GET /opportunities
func (h *OpportunityHandler) GetOpportunities(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	opportunities, total, err := h.opportunityService.List(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(opportunities, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /opportunities/:id
func (h *OpportunityHandler) GetOpportunity(c *gin.Context) {
	idStr := c.Param("id")
	if _, err := uuid.Parse(idStr); err != nil {
		utils.BadRequestResponse(c, "Invalid opportunity ID", nil)
		return
	}

	opportunity, err := h.opportunityService.GetByID(idStr)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if opportunity == nil {
		utils.NotFoundResponse(c, "Opportunity")
		return
	}

	utils.SuccessResponse(c, opportunity)
}
