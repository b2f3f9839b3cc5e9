package main

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/models"
	"github.com/mmdatafocus/barledger_backend/utils"
	"github.com/mmdatafocus/barledger_backend/workflow"
)

func tenantFromRequest(c *gin.Context) (string, string, error) {
	businessId := strings.TrimSpace(c.Query("business_id"))
	if businessId == "" {
		if v, ok := utils.GetBusinessIdFromContext(c.Request.Context()); ok {
			businessId = v
		}
	}
	if businessId == "" {
		return "", "", errors.New("business_id is required")
	}
	locationId := strings.TrimSpace(c.Query("location_id"))
	if locationId == "" {
		if v, ok := utils.GetLocationIdFromContext(c.Request.Context()); ok {
			locationId = v
		}
	}
	return businessId, locationId, nil
}

func parseWindow(c *gin.Context) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Query("from")))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Query("to")))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

// consumptionEventsHandler is the ledger read API: rows by
// (location, item, time range). There is no write counterpart; the engine
// and correction workflow are the only writers.
func consumptionEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, locationId, err := tenantFromRequest(c)
		if err != nil || locationId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id and location_id are required"})
			return
		}
		itemId, err := uuid.Parse(strings.TrimSpace(c.Query("item_id")))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item_id must be a uuid"})
			return
		}
		from, to, err := parseWindow(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "events.read")
		defer span.End()
		ctx = utils.SetBusinessIdInContext(ctx, businessId)
		db := config.GetDB().WithContext(ctx)

		events, err := models.GetEventsForItem(ctx, db, locationId, itemId, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": events})
	}
}

type correctEventRequest struct {
	QuantityDelta decimal.Decimal `json:"quantityDelta"`
	UOM           string          `json:"uom" binding:"required"`
	Reason        string          `json:"reason" binding:"required"`
}

func correctEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _, err := tenantFromRequest(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		eventId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
			return
		}
		var req correctEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)
		logger := config.GetLogger()

		reversalId, replacementId, err := workflow.CorrectEvent(ctx, db, logger, eventId, req.QuantityDelta, models.UOM(req.UOM), req.Reason)
		if err != nil {
			if errors.Is(err, workflow.ErrEventNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"reversalEventId":    reversalId,
			"replacementEventId": replacementId,
		})
	}
}

func depletionRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, locationId, err := tenantFromRequest(c)
		if err != nil || locationId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id and location_id are required"})
			return
		}
		from, to, err := parseWindow(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// async=true queues the run instead of blocking the request.
		if strings.EqualFold(c.Query("async"), "true") {
			err := workflow.PublishDepletionRun(c.Request.Context(), workflow.DepletionRunPayload{
				BusinessId: businessId,
				LocationId: locationId,
				FromTs:     from,
				ToTs:       to,
			})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"queued": true})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "depletion.run")
		defer span.End()
		ctx = utils.SetBusinessIdInContext(ctx, businessId)
		ctx = utils.SetLocationIdInContext(ctx, locationId)
		db := config.GetDB().WithContext(ctx)
		logger := config.GetLogger()

		stats, err := workflow.ProcessWindow(ctx, db, logger, locationId, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func onHandHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, locationId, err := tenantFromRequest(c)
		if err != nil || locationId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id and location_id are required"})
			return
		}

		asOf := time.Now()
		if v := strings.TrimSpace(c.Query("as_of")); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be RFC3339"})
				return
			}
			asOf = parsed
		}

		ctx, span := tracer.Start(c.Request.Context(), "onhand.read")
		defer span.End()
		ctx = utils.SetBusinessIdInContext(ctx, businessId)
		db := config.GetDB().WithContext(ctx)

		predictions, err := workflow.ExpectedOnHand(ctx, db, locationId, asOf)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": predictions})
	}
}

func varianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, locationId, err := tenantFromRequest(c)
		if err != nil || locationId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id and location_id are required"})
			return
		}
		from, to, err := parseWindow(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)

		rows, err := workflow.VarianceReport(ctx, db, locationId, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if strings.EqualFold(c.Query("format"), "xlsx") {
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", "attachment; filename=variance.xlsx")
			c.Status(http.StatusOK)
			if err := workflow.ExportVarianceXLSX(rows, c.Writer); err != nil {
				_ = c.Error(err)
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
	}
}

// alertPreviewHandler evaluates rules without dispatching; the scheduled
// sweep is what notifies.
func alertPreviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _, err := tenantFromRequest(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)

		alerts, err := workflow.EvaluateAlerts(ctx, db, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": alerts})
	}
}

func sessionCloseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _, err := tenantFromRequest(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sessionId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)
		logger := config.GetLogger()

		var closedBy *int
		if userId, ok := utils.GetUserIdFromContext(ctx); ok {
			closedBy = &userId
		}

		adjustments, err := workflow.CloseSession(ctx, db, logger, sessionId, closedBy)
		if err != nil {
			if errors.Is(err, workflow.ErrSessionAlreadyClosed) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		sessionHub.CloseSession(sessionId)
		c.JSON(http.StatusOK, gin.H{"adjustments": adjustments})
	}
}

// sessionStreamHandler streams session collaboration events over SSE until
// the client disconnects or the session closes.
func sessionStreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		events, cancel := sessionHub.Relay(sessionId).Subscribe()
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(event.Kind, event)
				return event.Kind != workflow.SessionEventClosed
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
