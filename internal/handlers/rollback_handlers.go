package handlers

import (
	"errors"
	"net/http"

	"adpilot/internal/models"
	"adpilot/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RollbackHandlers exposes manual rollback and the reconciliation report.
type RollbackHandlers struct {
	rollback       services.RollbackExecutor
	reconciliation services.ReconciliationService
}

func NewRollbackHandlers(rollback services.RollbackExecutor, reconciliation services.ReconciliationService) *RollbackHandlers {
	return &RollbackHandlers{
		rollback:       rollback,
		reconciliation: reconciliation,
	}
}

// RollbackRequest is a manual rollback submission.
type RollbackRequest struct {
	Reason string `json:"reason"`
	DryRun bool   `json:"dry_run"`
}

// Rollback reverses a single change by ID
func (h *RollbackHandlers) Rollback(c echo.Context) error {
	ctx := c.Request().Context()

	customerID := c.Param("customerId")
	changeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid change id")
	}

	req := &RollbackRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Reason == "" {
		req.Reason = "manual rollback"
	}

	original, err := h.rollback.PlanRollback(ctx, customerID, changeID)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			return echo.NewHTTPError(http.StatusConflict, validationErr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to plan rollback")
	}

	result, err := h.rollback.ExecuteRollback(ctx, original, req.Reason, req.DryRun)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to execute rollback")
	}

	if result.Success && !result.DryRun {
		reversal, err := h.rollback.LogRollback(ctx, result, req.Reason, original)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Rollback executed but could not be recorded")
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"result":      result,
			"reversal_id": reversal.ID,
		})
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]interface{}{"result": result})
}

// ReconciliationReport returns detected audit-log inconsistencies
func (h *RollbackHandlers) ReconciliationReport(c echo.Context) error {
	ctx := c.Request().Context()

	customerID := c.Param("customerId")
	found, err := h.reconciliation.Check(ctx, customerID)
	if err != nil {
		var stateErr *models.InconsistentStateError
		if !errors.As(err, &stateErr) {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to run reconciliation check")
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"inconsistencies": found,
		"count":           len(found),
	})
}
