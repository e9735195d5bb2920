package reports

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/catalog"
)

// Handler handles HTTP requests for reporting operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers reporting routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/catalog", h.getCatalog)

	reports := router.Group("/reports")
	{
		reports.POST("", h.createReport)
		reports.POST("/validate", h.validateReport)
		reports.GET("", h.listReports)
		reports.GET("/:id", h.getReport)
		reports.PUT("/:id", h.updateReport)
		reports.DELETE("/:id", h.deleteReport)

		reports.POST("/:id/run", h.runReport)
		reports.POST("/:id/export", h.exportReport)

		reports.GET("/executions", h.listExecutions)
		reports.GET("/executions/:executionId", h.getExecution)
		reports.GET("/executions/:executionId/download", h.downloadExecution)

		reports.POST("/schedules", h.createSchedule)
		reports.GET("/schedules", h.listSchedules)
		reports.GET("/schedules/:scheduleId", h.getSchedule)
		reports.PUT("/schedules/:scheduleId", h.updateSchedule)
		reports.DELETE("/schedules/:scheduleId", h.deleteSchedule)
		reports.POST("/schedules/:scheduleId/toggle", h.toggleSchedule)
	}
}

// =====================================================
// Catalog
// =====================================================

// getCatalog handles GET /api/v1/catalog
func (h *Handler) getCatalog(c *gin.Context) {
	entities := catalog.Entities()
	out := make([]gin.H, len(entities))
	for i, e := range entities {
		out[i] = gin.H{
			"name":      e.Name,
			"fields":    e.Fields(),
			"relations": e.Relations(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"entities": out})
}

// =====================================================
// Report Definition Endpoints
// =====================================================

// createReport handles POST /api/v1/reports
func (h *Handler) createReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.CreateReport(c.Request.Context(), h.getUserID(c), &req)
	if err != nil {
		h.respondError(c, err, "Failed to create report")
		return
	}
	c.JSON(http.StatusCreated, report)
}

// validateReport handles POST /api/v1/reports/validate
func (h *Handler) validateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.service.ValidateReport(&req))
}

// listReports handles GET /api/v1/reports
func (h *Handler) listReports(c *gin.Context) {
	filters := &ReportListFilters{
		Page:     h.getIntParam(c, "page", 1),
		PageSize: h.getIntParam(c, "page_size", 20),
	}
	if entityType := c.Query("entity_type"); entityType != "" {
		et := EntityType(entityType)
		filters.EntityType = &et
	}
	if isPublic := c.Query("is_public"); isPublic != "" {
		v := isPublic == "true"
		filters.IsPublic = &v
	}
	if isSystem := c.Query("is_system"); isSystem != "" {
		v := isSystem == "true"
		filters.IsSystem = &v
	}
	if search := c.Query("search"); search != "" {
		filters.SearchTerm = &search
	}

	reports, total, err := h.service.ListReports(c.Request.Context(), filters)
	if err != nil {
		h.respondError(c, err, "Failed to list reports")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reports":   reports,
		"total":     total,
		"page":      filters.Page,
		"page_size": filters.PageSize,
	})
}

// getReport handles GET /api/v1/reports/:id
func (h *Handler) getReport(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("id"))
	if !ok {
		return
	}
	report, err := h.service.GetReport(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to get report")
		return
	}
	c.JSON(http.StatusOK, report)
}

// updateReport handles PUT /api/v1/reports/:id
func (h *Handler) updateReport(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("id"))
	if !ok {
		return
	}
	var req UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.UpdateReport(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err, "Failed to update report")
		return
	}
	c.JSON(http.StatusOK, report)
}

// deleteReport handles DELETE /api/v1/reports/:id
func (h *Handler) deleteReport(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("id"))
	if !ok {
		return
	}
	if err := h.service.DeleteReport(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to delete report")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "report deleted"})
}

// =====================================================
// Execution Endpoints
// =====================================================

// runReport handles POST /api/v1/reports/:id/run
func (h *Handler) runReport(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("id"))
	if !ok {
		return
	}
	var req RunReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.RunReport(c.Request.Context(), id, h.getUserID(c), &req)
	if err != nil {
		h.respondError(c, err, "Failed to run report")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// exportReport handles POST /api/v1/reports/:id/export
func (h *Handler) exportReport(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("id"))
	if !ok {
		return
	}
	var req ExportReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.ExportReport(c.Request.Context(), id, h.getUserID(c), &req)
	if err != nil {
		h.respondError(c, err, "Failed to export report")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// listExecutions handles GET /api/v1/reports/executions
func (h *Handler) listExecutions(c *gin.Context) {
	filters := &ExecutionListFilters{
		Page:     h.getIntParam(c, "page", 1),
		PageSize: h.getIntParam(c, "page_size", 20),
	}
	if reportID := c.Query("report_id"); reportID != "" {
		id, err := uuid.Parse(reportID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report_id"})
			return
		}
		filters.ReportID = &id
	}
	if scheduleID := c.Query("schedule_id"); scheduleID != "" {
		id, err := uuid.Parse(scheduleID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule_id"})
			return
		}
		filters.ScheduleID = &id
	}
	if status := c.Query("status"); status != "" {
		st := ExecutionStatus(status)
		filters.Status = &st
	}

	executions, total, err := h.service.ListExecutions(c.Request.Context(), filters)
	if err != nil {
		h.respondError(c, err, "Failed to list executions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"executions": executions,
		"total":      total,
		"page":       filters.Page,
		"page_size":  filters.PageSize,
	})
}

// getExecution handles GET /api/v1/reports/executions/:executionId
func (h *Handler) getExecution(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("executionId"))
	if !ok {
		return
	}
	execution, err := h.service.GetExecution(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to get execution")
		return
	}
	c.JSON(http.StatusOK, execution)
}

// downloadExecution handles GET /api/v1/reports/executions/:executionId/download
func (h *Handler) downloadExecution(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("executionId"))
	if !ok {
		return
	}
	fileName, data, err := h.service.DownloadExecution(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to download artifact")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Data(http.StatusOK, contentTypeFor(fileName), data)
}

// =====================================================
// Schedule Endpoints
// =====================================================

// createSchedule handles POST /api/v1/reports/schedules
func (h *Handler) createSchedule(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	schedule, err := h.service.CreateSchedule(c.Request.Context(), h.getUserID(c), &req)
	if err != nil {
		h.respondError(c, err, "Failed to create schedule")
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

// listSchedules handles GET /api/v1/reports/schedules
func (h *Handler) listSchedules(c *gin.Context) {
	filters := &ScheduleListFilters{
		Page:     h.getIntParam(c, "page", 1),
		PageSize: h.getIntParam(c, "page_size", 20),
	}
	if reportID := c.Query("report_id"); reportID != "" {
		id, err := uuid.Parse(reportID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report_id"})
			return
		}
		filters.ReportID = &id
	}
	if isActive := c.Query("is_active"); isActive != "" {
		v := isActive == "true"
		filters.IsActive = &v
	}

	schedules, total, err := h.service.ListSchedules(c.Request.Context(), filters)
	if err != nil {
		h.respondError(c, err, "Failed to list schedules")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schedules": schedules,
		"total":     total,
		"page":      filters.Page,
		"page_size": filters.PageSize,
	})
}

// getSchedule handles GET /api/v1/reports/schedules/:scheduleId
func (h *Handler) getSchedule(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("scheduleId"))
	if !ok {
		return
	}
	schedule, err := h.service.GetSchedule(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to get schedule")
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// updateSchedule handles PUT /api/v1/reports/schedules/:scheduleId
func (h *Handler) updateSchedule(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("scheduleId"))
	if !ok {
		return
	}
	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	schedule, err := h.service.UpdateSchedule(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err, "Failed to update schedule")
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// deleteSchedule handles DELETE /api/v1/reports/schedules/:scheduleId
func (h *Handler) deleteSchedule(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("scheduleId"))
	if !ok {
		return
	}
	if err := h.service.DeleteSchedule(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to delete schedule")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schedule deleted"})
}

// toggleSchedule handles POST /api/v1/reports/schedules/:scheduleId/toggle
func (h *Handler) toggleSchedule(c *gin.Context) {
	id, ok := h.parseUUID(c, c.Param("scheduleId"))
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	schedule, err := h.service.ToggleSchedule(c.Request.Context(), id, req.Active)
	if err != nil {
		h.respondError(c, err, "Failed to toggle schedule")
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// =====================================================
// Helpers
// =====================================================

// respondError maps definition problems to 400 and missing records to
// 404; everything else is a 500
func (h *Handler) respondError(c *gin.Context, err error, logMsg string) {
	var de *DefinitionError
	if errors.As(err, &de) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": de.Message,
			"code":  de.Code,
			"field": de.Field,
		})
		return
	}
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error(logMsg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *Handler) parseUUID(c *gin.Context, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// getUserID extracts the user ID set by the auth middleware
func (h *Handler) getUserID(c *gin.Context) *uuid.UUID {
	raw, exists := c.Get("user_id")
	if !exists {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func (h *Handler) getIntParam(c *gin.Context, name string, defaultValue int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}

func contentTypeFor(fileName string) string {
	switch {
	case strings.HasSuffix(fileName, ".csv"):
		return "text/csv"
	case strings.HasSuffix(fileName, ".json"):
		return "application/json"
	case strings.HasSuffix(fileName, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(fileName, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
