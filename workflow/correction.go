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

var ErrEventNotFound = errors.New("consumption event not found")

// CorrectEvent changes history the only sanctioned way: append a reversal
// that exactly negates the original event, then append a replacement carrying
// the corrected value. The original row is never touched. Both new rows land
// in one transaction.
func CorrectEvent(ctx context.Context, db *gorm.DB, logger *logrus.Logger, originalEventId uuid.UUID, newQuantityDelta decimal.Decimal, newUOM models.UOM, reason string) (uuid.UUID, uuid.UUID, error) {
	original, err := models.GetConsumptionEventById(ctx, db, originalEventId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, uuid.Nil, ErrEventNotFound
		}
		return uuid.Nil, uuid.Nil, err
	}

	now := time.Now()
	reversal := models.ConsumptionEvent{
		BusinessId:        original.BusinessId,
		LocationId:        original.LocationId,
		InventoryItemId:   original.InventoryItemId,
		EventType:         original.EventType,
		SourceSystem:      models.SourceSystemManual,
		EventTs:           now,
		QuantityDelta:     original.QuantityDelta.Neg(),
		UOM:               original.UOM,
		ConfidenceLevel:   models.ConfidenceEstimated,
		ReceiptId:         original.ReceiptId,
		KegInstanceId:     original.KegInstanceId,
		TapLineId:         original.TapLineId,
		ReversalOfEventId: &original.ID,
		Notes:             utils.NewString(reason),
	}
	replacement := models.ConsumptionEvent{
		BusinessId:      original.BusinessId,
		LocationId:      original.LocationId,
		InventoryItemId: original.InventoryItemId,
		EventType:       original.EventType,
		SourceSystem:    models.SourceSystemManual,
		EventTs:         now,
		QuantityDelta:   newQuantityDelta,
		UOM:             newUOM,
		ConfidenceLevel: models.ConfidenceEstimated,
		ReceiptId:       original.ReceiptId,
		KegInstanceId:   original.KegInstanceId,
		TapLineId:       original.TapLineId,
		Notes:           utils.NewString(reason),
	}
	if corrId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		reversal.CorrelationId = corrId
		replacement.CorrelationId = corrId
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&reversal).Error; err != nil {
			return err
		}
		return tx.Create(&replacement).Error
	})
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	logger.WithFields(logrus.Fields{
		"module":        "workflow",
		"originalId":    original.ID,
		"reversalId":    reversal.ID,
		"replacementId": replacement.ID,
		"reason":        reason,
	}).Info("consumption event corrected")
	return reversal.ID, replacement.ID, nil
}
