package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mmdatafocus/barledger_backend/models"
	"github.com/mmdatafocus/barledger_backend/utils"
)

var ErrSessionAlreadyClosed = errors.New("inventory session is already closed")

// CloseSession finalizes a counting session by reconciling each counted line
// against the ledger: for every observation the gap between counted quantity
// and the ledger sum becomes an inventory_count_adjustment event. Stock is
// never written directly; the ledger stays the single source of truth.
func CloseSession(ctx context.Context, db *gorm.DB, logger *logrus.Logger, sessionId uuid.UUID, closedBy *int) (int, error) {
	var session models.InventorySession
	if err := db.WithContext(ctx).Preload("Lines").Where("id = ?", sessionId).Take(&session).Error; err != nil {
		return 0, err
	}
	if session.IsClosed() {
		return 0, ErrSessionAlreadyClosed
	}

	adjustments := 0
	now := time.Now()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range session.Lines {
			line := &session.Lines[i]

			kegStartingOz := decimal.Zero
			if line.KegInstanceId != nil {
				var keg models.KegInstance
				if err := tx.Where("id = ?", *line.KegInstanceId).Take(&keg).Error; err == nil {
					kegStartingOz = keg.StartingOz
				}
			}
			counted, uom := line.CountedQuantity(kegStartingOz)
			if counted == nil {
				continue
			}

			onHand, err := models.SumDeltasForItem(ctx, tx, session.LocationId, line.InventoryItemId, now)
			if err != nil {
				return err
			}
			delta := counted.Sub(onHand)
			if delta.IsZero() {
				continue
			}

			event := models.ConsumptionEvent{
				BusinessId:      session.BusinessId,
				LocationId:      session.LocationId,
				InventoryItemId: line.InventoryItemId,
				EventType:       models.EventTypeInventoryCountAdjustment,
				SourceSystem:    models.SourceSystemManual,
				EventTs:         now,
				QuantityDelta:   delta,
				UOM:             uom,
				ConfidenceLevel: models.ConfidenceMeasured,
				KegInstanceId:   line.KegInstanceId,
				TapLineId:       line.TapLineId,
			}
			if corrId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
				event.CorrelationId = corrId
			}
			if err := tx.Create(&event).Error; err != nil {
				return err
			}
			adjustments++
		}

		return tx.Model(&session).Updates(map[string]interface{}{
			"ended_ts":  now,
			"closed_by": closedBy,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	logger.WithFields(logrus.Fields{
		"module":      "workflow",
		"sessionId":   session.ID,
		"adjustments": adjustments,
	}).Info("inventory session closed")
	return adjustments, nil
}
