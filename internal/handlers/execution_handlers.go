package handlers

import (
	"errors"
	"net/http"

	"adpilot/internal/models"
	"adpilot/internal/services"

	"github.com/labstack/echo/v4"
)

// ExecutionHandlers accepts recommendation batches from the rules
// collaborator and runs them through the guardrail-checked executor.
type ExecutionHandlers struct {
	executor services.Executor
}

func NewExecutionHandlers(executor services.Executor) *ExecutionHandlers {
	return &ExecutionHandlers{executor: executor}
}

// ExecutionRequest is one batch submission.
type ExecutionRequest struct {
	CustomerID      string                   `json:"customer_id"`
	DryRun          bool                     `json:"dry_run"`
	Recommendations []*models.Recommendation `json:"recommendations"`
}

// Execute runs a recommendation batch and returns the per-item results
func (h *ExecutionHandlers) Execute(c echo.Context) error {
	ctx := c.Request().Context()

	req := &ExecutionRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CustomerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "customer_id is required")
	}
	if len(req.Recommendations) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "recommendations are required")
	}

	summary, err := h.executor.Execute(ctx, req.CustomerID, req.Recommendations, req.DryRun)
	if err != nil {
		var persistErr *models.PersistenceError
		if errors.As(err, &persistErr) {
			// The batch aborted mid-run; already-executed items remain
			// valid and the caller retries the rest next run.
			return echo.NewHTTPError(http.StatusServiceUnavailable, "audit store unavailable, batch aborted")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to execute batch")
	}

	return c.JSON(http.StatusOK, summary)
}
