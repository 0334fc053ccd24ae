package handlers

import (
	"net/http"
	"strconv"
	"time"

	"adpilot/internal/common"
	"adpilot/internal/models"
	"adpilot/internal/repositories"
	"adpilot/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ChangesHandlers exposes the audit trail to the dashboard and reporting
// collaborators. Read-only: the audit log is written only by the executor
// and the rollback executor.
type ChangesHandlers struct {
	changesRepo repositories.ChangeRecordsRepository
	exportSvc   services.ExportService
}

func NewChangesHandlers(changesRepo repositories.ChangeRecordsRepository, exportSvc services.ExportService) *ChangesHandlers {
	return &ChangesHandlers{
		changesRepo: changesRepo,
		exportSvc:   exportSvc,
	}
}

// ListChanges retrieves change records with filtering and pagination
func (h *ChangesHandlers) ListChanges(c echo.Context) error {
	ctx := c.Request().Context()

	customerID := c.Param("customerId")
	if customerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "customer id is required")
	}

	filters := &models.ChangeRecordFilters{Limit: 50}
	if entityType := c.QueryParam("entity_type"); entityType != "" {
		et := models.EntityType(entityType)
		filters.EntityType = &et
	}
	if entityID := c.QueryParam("entity_id"); entityID != "" {
		filters.EntityID = &entityID
	}
	if campaignID := c.QueryParam("campaign_id"); campaignID != "" {
		filters.CampaignID = &campaignID
	}
	if lever := c.QueryParam("lever"); lever != "" {
		l := models.Lever(lever)
		filters.Lever = &l
	}
	if actionType := c.QueryParam("action_type"); actionType != "" {
		filters.ActionType = &actionType
	}
	if status := c.QueryParam("status"); status != "" {
		filters.Status = &status
	}
	if startDate := c.QueryParam("start_date"); startDate != "" {
		parsed, err := common.ParseDate(startDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid start_date")
		}
		filters.StartDate = &parsed
	}
	if endDate := c.QueryParam("end_date"); endDate != "" {
		parsed, err := common.ParseDate(endDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid end_date")
		}
		filters.EndDate = &parsed
	}
	if limit := c.QueryParam("limit"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil && parsed > 0 && parsed <= 1000 {
			filters.Limit = parsed
		}
	}
	if offset := c.QueryParam("offset"); offset != "" {
		if parsed, err := strconv.Atoi(offset); err == nil && parsed >= 0 {
			filters.Offset = parsed
		}
	}

	records, err := h.changesRepo.List(ctx, customerID, filters)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list changes")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"changes": records,
		"count":   len(records),
	})
}

// GetChange retrieves a single change record by ID
func (h *ChangesHandlers) GetChange(c echo.Context) error {
	ctx := c.Request().Context()

	customerID := c.Param("customerId")
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid change id")
	}

	record, err := h.changesRepo.GetByID(ctx, customerID, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get change")
	}
	if record == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Change not found")
	}
	return c.JSON(http.StatusOK, record)
}

// GetSummary returns aggregate change counts for a date range
func (h *ChangesHandlers) GetSummary(c echo.Context) error {
	ctx := c.Request().Context()

	customerID := c.Param("customerId")
	startDate, endDate, err := parseDateRange(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	summary, err := h.changesRepo.Summary(ctx, customerID, startDate, endDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to build summary")
	}
	return c.JSON(http.StatusOK, summary)
}

// ExportChanges writes an audit-trail snapshot to object storage and
// returns a presigned download URL.
func (h *ChangesHandlers) ExportChanges(c echo.Context) error {
	ctx := c.Request().Context()

	customerID := c.Param("customerId")
	startDate, endDate, err := parseDateRange(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	objectName, err := h.exportSvc.ExportChanges(ctx, customerID, startDate, endDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to export changes")
	}

	url, err := h.exportSvc.GetPresignedURL(objectName, 24*time.Hour)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create download URL")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"object_name":  objectName,
		"download_url": url,
	})
}

func parseDateRange(c echo.Context) (time.Time, time.Time, error) {
	endDate := time.Now().UTC()
	startDate := endDate.AddDate(0, 0, -30)

	if s := c.QueryParam("start_date"); s != "" {
		parsed, err := common.ParseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid start_date")
		}
		startDate = parsed
	}
	if s := c.QueryParam("end_date"); s != "" {
		parsed, err := common.ParseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid end_date")
		}
		endDate = parsed
	}
	return startDate, endDate, nil
}
