package ingest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/models"
	"github.com/mmdatafocus/barledger_backend/utils"
)

var validate = validator.New()

// UploadImportHandler ingests a CSV export supplied inline. The whole import
// runs synchronously; the run record is the audit trail either way.
func UploadImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, locationId, err := resolveTenant(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		var req UploadImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sourceSystem, ok := models.ParseSourceSystem(req.SourceSystem)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source system"})
			return
		}

		var tmpl Template
		switch {
		case req.CustomMap != nil:
			if err := validate.Struct(req.CustomMap); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			tmpl = TemplateFromCustomMap(sourceSystem, *req.CustomMap)
		default:
			tmpl, ok = LookupTemplate(req.Template)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown template"})
				return
			}
			tmpl.SourceSystem = sourceSystem
		}

		opts := ParseOptions{}
		if strings.TrimSpace(req.BusinessDate) != "" {
			bd, err := time.Parse("2006-01-02", strings.TrimSpace(req.BusinessDate))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "businessDate must be YYYY-MM-DD"})
				return
			}
			opts.BusinessDate = &bd
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		ctx = utils.SetLocationIdInContext(ctx, locationId)
		db := config.GetDB().WithContext(ctx)

		now := time.Now()
		run := models.ImportRun{
			BusinessId:   businessId,
			LocationId:   locationId,
			SourceSystem: sourceSystem,
			TemplateName: tmpl.Name,
			BusinessDate: opts.BusinessDate,
			Status:       models.ImportRunStatusRunning,
			TriggeredBy:  "upload",
			StartedAt:    &now,
		}
		if corrId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			run.CorrelationId = corrId
		}
		if err := db.Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		parsed := ParseCSV([]byte(req.CSV), tmpl, opts)
		for _, rowErr := range parsed.Errors {
			_ = models.CreateImportError(db, run.ID, businessId, rowErr.Row, rowErr.Field, rowErr.Message, nil)
		}

		stats, err := ImportSalesLines(ctx, db, businessId, locationId, parsed.Rows)
		if err != nil {
			_ = finalizeRunError(db, &run, nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		summary := ImportStats{
			RowsParsed:    len(parsed.Rows),
			RowsInserted:  stats.Inserted,
			RowsDuplicate: stats.Duplicates,
			RowErrors:     len(parsed.Errors),
		}
		if err := finalizeRun(db, &run, nil, summary); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":     run.ID,
			"stats":  summary,
			"errors": parsed.Errors,
		})
	}
}

// TriggerImportHandler queues a pull import against the location's POS
// connection.
func TriggerImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, locationId, err := resolveTenant(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		ctx = utils.SetLocationIdInContext(ctx, locationId)
		db := config.GetDB().WithContext(ctx)

		var conn models.POSConnection
		if err := db.Where("business_id = ? AND location_id = ? AND status = ?", businessId, locationId, "active").
			Take(&conn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusConflict, gin.H{"error": "no active pos connection for location"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		run := models.ImportRun{
			BusinessId:   businessId,
			LocationId:   locationId,
			ConnectionId: &conn.ID,
			SourceSystem: conn.SourceSystem,
			TemplateName: conn.TemplateName,
			Status:       models.ImportRunStatusQueued,
			TriggeredBy:  "manual",
		}
		if corrId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			run.CorrelationId = corrId
		}
		if err := db.Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := PublishImportRun(ctx, run.ID, businessId, locationId); err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "ingest", "TriggerImportHandler", "publish run", map[string]interface{}{"runId": run.ID}, err)
		}

		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

func ImportHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, locationId, err := resolveTenant(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)

		var runs []models.ImportRun
		if err := db.Where("business_id = ? AND location_id = ?", businessId, locationId).
			Order("id desc").
			Limit(limit).
			Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]ImportRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, ImportHistoryResponse{Items: items})
	}
}

func ImportRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _, err := resolveTenant(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)

		var run models.ImportRun
		if err := db.Where("id = ? AND business_id = ?", id, businessId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.ImportError
		if err := db.Where("import_run_id = ?", run.ID).Order("id").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]ImportErrorResponse, 0, len(errs))
		for _, e := range errs {
			items = append(items, ImportErrorResponse{ID: e.ID, Row: e.RowNumber, Field: e.Field, Message: e.Message})
		}
		c.JSON(http.StatusOK, ImportRunDetailResponse{
			ImportRunResponse: mapRunToResponse(run),
			Errors:            items,
		})
	}
}

func resolveTenant(c *gin.Context) (string, string, error) {
	businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(businessId) == "" {
		businessId = strings.TrimSpace(c.Query("business_id"))
	}
	if businessId == "" {
		return "", "", errors.New("business_id is required")
	}

	locationId, ok := utils.GetLocationIdFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(locationId) == "" {
		locationId = strings.TrimSpace(c.Query("location_id"))
	}
	if locationId == "" {
		return "", "", errors.New("location_id is required")
	}
	return businessId, locationId, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.ImportRun) ImportRunResponse {
	return ImportRunResponse{
		ID:            run.ID,
		Status:        string(run.Status),
		SourceSystem:  string(run.SourceSystem),
		TemplateName:  run.TemplateName,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RowsParsed:    run.RowsParsed,
		RowsInserted:  run.RowsInserted,
		RowsDuplicate: run.RowsDuplicate,
		RowErrorCount: run.RowErrorCount,
		TriggeredBy:   run.TriggeredBy,
	}
}
