package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mmdatafocus/barledger_backend/models"
)

const usageTrailingDays = 30

// NetChangeBreakdown splits post-count ledger movement by event type for the
// dashboard contract.
type NetChangeBreakdown struct {
	PosSale          decimal.Decimal `json:"posSale"`
	TapFlow          decimal.Decimal `json:"tapFlow"`
	Receiving        decimal.Decimal `json:"receiving"`
	Transfer         decimal.Decimal `json:"transfer"`
	ManualAdjustment decimal.Decimal `json:"manualAdjustment"`
}

func (b NetChangeBreakdown) Total() decimal.Decimal {
	return b.PosSale.Add(b.TapFlow).Add(b.Receiving).Add(b.Transfer).Add(b.ManualAdjustment)
}

// OnHandPrediction is the per-item read-API payload: predicted level,
// trustworthiness and stockout horizon.
type OnHandPrediction struct {
	InventoryItemId uuid.UUID             `json:"inventoryItemId"`
	ItemName        string                `json:"itemName"`
	CategoryName    string                `json:"categoryName"`
	UOM             models.UOM            `json:"uom"`
	CurrentOnHand   decimal.Decimal       `json:"currentOnHand"`
	LastCountQty    *decimal.Decimal      `json:"lastCountQty"`
	LastCountTs     *time.Time            `json:"lastCountTs"`
	NetChange       NetChangeBreakdown    `json:"netChangeSinceCount"`
	PredictedLevel  *decimal.Decimal      `json:"predictedLevel"`
	AvgDailyUsage   decimal.Decimal       `json:"avgDailyUsage"`
	DaysToStockout  *int                  `json:"daysToStockout"`
	Confidence      models.ConfidenceTier `json:"confidence"`
}

// ComputePrediction is the pure predictor core for one item. events must be
// the item's full ledger up to asOf, oldest first; last is nil when the item
// has never been counted.
//
// Net change since count sums events stamped after the count, excluding
// count adjustments (the count itself is the baseline). Correction pairs are
// stamped at correction time, so a post-count correction of pre-count history
// contributes exactly its net effect and corrected history is never double
// counted.
func ComputePrediction(asOf time.Time, events []*models.ConsumptionEvent, last *models.LatestCount) OnHandPrediction {
	p := OnHandPrediction{}

	for _, e := range events {
		if e == nil || e.EventTs.After(asOf) {
			continue
		}
		p.CurrentOnHand = p.CurrentOnHand.Add(e.QuantityDelta)
	}

	usageWindowStart := asOf.AddDate(0, 0, -usageTrailingDays)
	usageSum := decimal.Zero
	depletionSinceCount := false
	receivingSinceCount := decimal.Zero

	for _, e := range events {
		if e == nil || e.EventTs.After(asOf) {
			continue
		}

		// Trailing usage counts only genuine depletion: negative pos/tap
		// deltas that are not corrections. Void/refund mirrors are positive
		// and fall out naturally.
		if !e.EventTs.Before(usageWindowStart) && !e.IsReversal() && e.QuantityDelta.IsNegative() {
			if e.EventType == models.EventTypePosSale || e.EventType == models.EventTypeTapFlow {
				usageSum = usageSum.Add(e.QuantityDelta.Abs())
			}
		}

		if last == nil || !e.EventTs.After(last.CountedAt) {
			continue
		}
		switch e.EventType {
		case models.EventTypePosSale:
			p.NetChange.PosSale = p.NetChange.PosSale.Add(e.QuantityDelta)
			depletionSinceCount = depletionSinceCount || !e.QuantityDelta.IsZero()
		case models.EventTypeTapFlow:
			p.NetChange.TapFlow = p.NetChange.TapFlow.Add(e.QuantityDelta)
			depletionSinceCount = depletionSinceCount || !e.QuantityDelta.IsZero()
		case models.EventTypeReceiving:
			p.NetChange.Receiving = p.NetChange.Receiving.Add(e.QuantityDelta)
			receivingSinceCount = receivingSinceCount.Add(e.QuantityDelta)
		case models.EventTypeTransfer:
			p.NetChange.Transfer = p.NetChange.Transfer.Add(e.QuantityDelta)
		case models.EventTypeManualAdjustment:
			p.NetChange.ManualAdjustment = p.NetChange.ManualAdjustment.Add(e.QuantityDelta)
		case models.EventTypeInventoryCountAdjustment:
			// Already reflected in the count baseline.
		}
	}

	p.AvgDailyUsage = usageSum.Div(decimal.NewFromInt(usageTrailingDays))

	if last != nil {
		qty := last.Quantity
		ts := last.CountedAt
		p.LastCountQty = &qty
		p.LastCountTs = &ts
		predicted := last.Quantity.Add(p.NetChange.Total())
		p.PredictedLevel = &predicted
	}

	p.DaysToStockout = stockoutHorizon(p.PredictedLevel, p.AvgDailyUsage)
	p.Confidence = confidenceTier(asOf, p.PredictedLevel, last, depletionSinceCount, receivingSinceCount)
	return p
}

// stockoutHorizon: already out if the predicted level is at or below zero;
// otherwise whole days of cover, or nil when usage is zero (not computable).
func stockoutHorizon(predicted *decimal.Decimal, avgDailyUsage decimal.Decimal) *int {
	if predicted == nil {
		return nil
	}
	if !predicted.IsPositive() {
		zero := 0
		return &zero
	}
	if !avgDailyUsage.IsPositive() {
		return nil
	}
	days := int(predicted.Div(avgDailyUsage).IntPart())
	return &days
}

// confidenceTier classifies trustworthiness. A negative predicted level wins
// over everything: a physically impossible number means the count or the
// mapping data is wrong, no matter how fresh the count is.
func confidenceTier(asOf time.Time, predicted *decimal.Decimal, last *models.LatestCount, depletionSinceCount bool, receivingSinceCount decimal.Decimal) models.ConfidenceTier {
	if predicted == nil || last == nil {
		return models.ConfidenceTierLow
	}
	if predicted.IsNegative() {
		return models.ConfidenceTierLow
	}
	daysSinceCount := int(asOf.Sub(last.CountedAt).Hours() / 24)
	if daysSinceCount <= 3 && depletionSinceCount {
		return models.ConfidenceTierHigh
	}
	if daysSinceCount <= 7 {
		return models.ConfidenceTierMedium
	}
	if daysSinceCount <= 14 && receivingSinceCount.IsPositive() {
		return models.ConfidenceTierMedium
	}
	return models.ConfidenceTierLow
}

// ExpectedOnHand computes predictions for every active item at a location.
// Pure read; safe to run concurrently with depletion under eventually
// consistent expectations.
func ExpectedOnHand(ctx context.Context, db *gorm.DB, locationId string, asOf time.Time) ([]OnHandPrediction, error) {
	var items []models.InventoryItem
	if err := db.WithContext(ctx).
		Where("location_id = ? AND active = ?", locationId, true).
		Order("category_name, name").
		Find(&items).Error; err != nil {
		return nil, err
	}

	counts, err := models.GetLatestCounts(ctx, db, locationId, asOf)
	if err != nil {
		return nil, err
	}

	predictions := make([]OnHandPrediction, 0, len(items))
	for i := range items {
		item := &items[i]
		events, err := models.GetAllEventsForItem(ctx, db, locationId, item.ID, asOf)
		if err != nil {
			return nil, err
		}
		p := ComputePrediction(asOf, events, counts[item.ID])
		p.InventoryItemId = item.ID
		p.ItemName = item.Name
		p.CategoryName = item.CategoryName
		p.UOM = item.BaseUOM
		predictions = append(predictions, p)
	}
	return predictions, nil
}
