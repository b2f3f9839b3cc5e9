package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mmdatafocus/barledger_backend/models"
)

// VarianceRow compares what the ledger says should have been consumed against
// what physical counts say actually moved, for one item over a window.
type VarianceRow struct {
	InventoryItemId uuid.UUID        `json:"inventoryItemId"`
	ItemName        string           `json:"itemName"`
	CategoryName    string           `json:"categoryName"`
	UOM             models.UOM       `json:"uom"`
	Theoretical     decimal.Decimal  `json:"theoretical"`
	Actual          decimal.Decimal  `json:"actual"`
	Variance        decimal.Decimal  `json:"variance"`
	VariancePct     *decimal.Decimal `json:"variancePct"`
	UnitCost        *decimal.Decimal `json:"unitCost"`
	ValueImpact     *decimal.Decimal `json:"valueImpact"`
}

// ComputeVariance derives one item's variance from its window ledger rows.
// Theoretical usage is genuine pos/tap depletion; actual usage adds the count
// adjustments on top, so the difference is what walked out untracked.
func ComputeVariance(events []*models.ConsumptionEvent, unitCost *decimal.Decimal) (theoretical, actual, variance decimal.Decimal, variancePct, valueImpact *decimal.Decimal) {
	countAdj := decimal.Zero
	for _, e := range events {
		if e == nil {
			continue
		}
		switch e.EventType {
		case models.EventTypePosSale, models.EventTypeTapFlow:
			if !e.IsReversal() && e.QuantityDelta.IsNegative() {
				theoretical = theoretical.Add(e.QuantityDelta.Abs())
			}
		case models.EventTypeInventoryCountAdjustment:
			countAdj = countAdj.Add(e.QuantityDelta)
		}
	}

	// A negative count adjustment means the count found less than the ledger
	// predicted: real consumption exceeded theoretical.
	actual = theoretical.Sub(countAdj)
	variance = actual.Sub(theoretical)

	if theoretical.IsPositive() {
		pct := variance.Div(theoretical).Mul(decimal.NewFromInt(100))
		variancePct = &pct
	}
	if unitCost != nil {
		impact := variance.Mul(*unitCost)
		valueImpact = &impact
	}
	return
}

// VarianceReport builds the per-item variance rows for a location window.
// Pure read.
func VarianceReport(ctx context.Context, db *gorm.DB, locationId string, fromTs, toTs time.Time) ([]VarianceRow, error) {
	var items []models.InventoryItem
	if err := db.WithContext(ctx).
		Preload("PriceHistory").
		Where("location_id = ? AND active = ?", locationId, true).
		Order("category_name, name").
		Find(&items).Error; err != nil {
		return nil, err
	}

	rows := make([]VarianceRow, 0, len(items))
	for i := range items {
		item := &items[i]
		events, err := models.GetEventsForItem(ctx, db, locationId, item.ID, fromTs, toTs)
		if err != nil {
			return nil, err
		}
		unitCost := models.CurrentPrice(item.PriceHistory, toTs)
		theoretical, actual, variance, pct, impact := ComputeVariance(events, unitCost)
		rows = append(rows, VarianceRow{
			InventoryItemId: item.ID,
			ItemName:        item.Name,
			CategoryName:    item.CategoryName,
			UOM:             item.BaseUOM,
			Theoretical:     theoretical,
			Actual:          actual,
			Variance:        variance,
			VariancePct:     pct,
			UnitCost:        unitCost,
			ValueImpact:     impact,
		})
	}
	return rows, nil
}
