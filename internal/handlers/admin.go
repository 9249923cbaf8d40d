// internal/handlers/admin.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/retailradar/arbitrage-backend/internal/models"
	"github.com/retailradar/arbitrage-backend/internal/services"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

type AdminHandler struct {
	pipeline      *services.PipelineService
	tierService   *services.TierService
	entityService *services.EntityService
}

func NewAdminHandler(pipeline *services.PipelineService, tierService *services.TierService, entityService *services.EntityService) *AdminHandler {
	return &AdminHandler{
		pipeline:      pipeline,
		tierService:   tierService,
		entityService: entityService,
	}
}

type TierOverrideRequest struct {
	Tier    string `json:"tier" validate:"required,tier"`
	Enabled *bool  `json:"enabled"`
}

type MigrateRequest struct {
	NewEntityID string `json:"new_entity_id" validate:"required,entity_id"`
	Reason      string `json:"reason" validate:"required"`
}

// POST /admin/cycle
func (h *AdminHandler) TriggerCycle(c *gin.Context) {
	if !h.pipeline.TriggerAsync() {
		utils.ConflictResponse(c, "A cycle is already running")
		return
	}

	operator, _ := utils.GetOperatorFromContext(c)
	logrus.WithField("operator", operator).Info("Manual cycle triggered")

	c.JSON(http.StatusAccepted, utils.APIResponse{
		Success: true,
		Data:    gin.H{"triggered": true},
	})
}

// PUT /admin/entities/:id/tier
func (h *AdminHandler) OverrideTier(c *gin.Context) {
	entityID := c.Param("id")

	var req TierOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	if _, err := h.entityService.GetEntity(entityID); err != nil {
		if errors.Is(err, services.ErrEntityNotFound) {
			utils.NotFoundResponse(c, "Entity")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	assignment, err := h.tierService.SetManualOverride(entityID, models.Tier(req.Tier), enabled)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	operator, _ := utils.GetOperatorFromContext(c)
	logrus.WithFields(logrus.Fields{
		"operator":  operator,
		"entity_id": entityID,
		"tier":      req.Tier,
		"enabled":   enabled,
	}).Info("Tier override applied")

	utils.SuccessResponse(c, assignment)
}

// POST /admin/entities/:id/migrate
func (h *AdminHandler) MigrateEntity(c *gin.Context) {
	oldID := c.Param("id")

	var req MigrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	migration, err := h.entityService.Migrate(oldID, req.NewEntityID, req.Reason)
	if err != nil {
		if errors.Is(err, services.ErrEntityNotFound) {
			utils.NotFoundResponse(c, "Entity")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	operator, _ := utils.GetOperatorFromContext(c)
	logrus.WithFields(logrus.Fields{
		"operator":      operator,
		"old_entity_id": oldID,
		"new_entity_id": req.NewEntityID,
	}).Info("Entity migration recorded")

	utils.CreatedResponse(c, migration)
}
