// internal/handlers/entity.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/retailradar/arbitrage-backend/internal/services"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

type EntityHandler struct {
	entityService   *services.EntityService
	matchingService *services.MatchingService
}

func NewEntityHandler(entityService *services.EntityService, matchingService *services.MatchingService) *EntityHandler {
	return &EntityHandler{
		entityService:   entityService,
		matchingService: matchingService,
	}
}

// GET /entities/:id
func (h *EntityHandler) GetEntity(c *gin.Context) {
	entity, err := h.entityService.GetEntity(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrEntityNotFound) {
			utils.NotFoundResponse(c, "Entity")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	matches, err := h.matchingService.AcceptedMatches(entity.ID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"entity":  entity,
		"matches": matches,
	})
}
