package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mmdatafocus/barledger_backend/models"
)

// Default thresholds when a rule is enabled without one. Meaning is rule
// specific, see models.AlertRuleSetting.
var (
	defaultVariancePct      = decimal.NewFromInt(10)
	defaultLowStockLevel    = decimal.NewFromInt(5)
	defaultStaleCountDays   = decimal.NewFromInt(7)
	defaultKegNearEmptyPct  = decimal.NewFromInt(10)
	defaultShrinkagePeriods = decimal.NewFromInt(3)
	reorderHorizonDays      = decimal.NewFromInt(3)
)

// EvaluateAlerts runs every enabled rule for every location of a business.
// Strictly side-effect-free: dispatch and 24h dedup belong to the caller.
func EvaluateAlerts(ctx context.Context, db *gorm.DB, businessId string) ([]models.AlertResult, error) {
	var locations []models.Location
	if err := db.WithContext(ctx).Where("business_id = ?", businessId).Find(&locations).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	var results []models.AlertResult
	for _, loc := range locations {
		cfg, err := loadAlertConfig(ctx, db, businessId, loc.ID.String())
		if err != nil {
			return nil, err
		}
		locResults, err := evaluateLocation(ctx, db, businessId, loc.ID.String(), cfg, now)
		if err != nil {
			return nil, err
		}
		results = append(results, locResults...)
	}
	return results, nil
}

func loadAlertConfig(ctx context.Context, db *gorm.DB, businessId, locationId string) (models.AlertRuleConfig, error) {
	var row models.LocationAlertConfig
	err := db.WithContext(ctx).
		Where("business_id = ? AND location_id = ?", businessId, locationId).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AlertRuleConfig{}, nil
		}
		return nil, err
	}
	return row.Rules(), nil
}

func evaluateLocation(ctx context.Context, db *gorm.DB, businessId, locationId string, cfg models.AlertRuleConfig, now time.Time) ([]models.AlertResult, error) {
	var results []models.AlertResult

	needsPredictions := cfg.IsEnabled(models.AlertRuleLowStock) ||
		cfg.IsEnabled(models.AlertRuleStaleCount) ||
		cfg.IsEnabled(models.AlertRuleParLevelReorder)

	var predictions []OnHandPrediction
	if needsPredictions {
		var err error
		predictions, err = ExpectedOnHand(ctx, db, locationId, now)
		if err != nil {
			return nil, err
		}
	}

	if cfg.IsEnabled(models.AlertRuleVariancePercent) {
		threshold := cfg.ThresholdOr(models.AlertRuleVariancePercent, defaultVariancePct)
		rows, err := VarianceReport(ctx, db, locationId, now.AddDate(0, 0, -7), now)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.VariancePct == nil || row.VariancePct.Abs().LessThan(threshold) {
				continue
			}
			itemId := row.InventoryItemId.String()
			results = append(results, models.AlertResult{
				Rule:            models.AlertRuleVariancePercent,
				LocationId:      locationId,
				InventoryItemId: &itemId,
				Value:           row.VariancePct,
				Threshold:       &threshold,
				Message:         fmt.Sprintf("%s variance %s%% exceeds %s%%", row.ItemName, row.VariancePct.StringFixed(1), threshold.StringFixed(0)),
				EvaluatedAt:     now,
			})
		}
	}

	if cfg.IsEnabled(models.AlertRuleLowStock) {
		threshold := cfg.ThresholdOr(models.AlertRuleLowStock, defaultLowStockLevel)
		for _, p := range predictions {
			level := p.CurrentOnHand
			if p.PredictedLevel != nil {
				level = *p.PredictedLevel
			}
			if level.GreaterThan(threshold) {
				continue
			}
			itemId := p.InventoryItemId.String()
			value := level
			results = append(results, models.AlertResult{
				Rule:            models.AlertRuleLowStock,
				LocationId:      locationId,
				InventoryItemId: &itemId,
				Value:           &value,
				Threshold:       &threshold,
				Message:         fmt.Sprintf("%s at %s %s, at or below %s", p.ItemName, level.StringFixed(1), p.UOM, threshold.StringFixed(1)),
				EvaluatedAt:     now,
			})
		}
	}

	if cfg.IsEnabled(models.AlertRuleStaleCount) {
		threshold := cfg.ThresholdOr(models.AlertRuleStaleCount, defaultStaleCountDays)
		maxAge := time.Duration(threshold.IntPart()) * 24 * time.Hour
		for _, p := range predictions {
			stale := p.LastCountTs == nil || now.Sub(*p.LastCountTs) > maxAge
			if !stale {
				continue
			}
			itemId := p.InventoryItemId.String()
			msg := fmt.Sprintf("%s has never been counted", p.ItemName)
			if p.LastCountTs != nil {
				msg = fmt.Sprintf("%s last counted %d days ago", p.ItemName, int(now.Sub(*p.LastCountTs).Hours()/24))
			}
			results = append(results, models.AlertResult{
				Rule:            models.AlertRuleStaleCount,
				LocationId:      locationId,
				InventoryItemId: &itemId,
				Threshold:       &threshold,
				Message:         msg,
				EvaluatedAt:     now,
			})
		}
	}

	if cfg.IsEnabled(models.AlertRuleKegNearEmpty) {
		threshold := cfg.ThresholdOr(models.AlertRuleKegNearEmpty, defaultKegNearEmptyPct)
		kegResults, err := evaluateKegsNearEmpty(ctx, db, locationId, threshold, now)
		if err != nil {
			return nil, err
		}
		results = append(results, kegResults...)
	}

	if cfg.IsEnabled(models.AlertRuleShrinkagePattern) {
		periods := int(cfg.ThresholdOr(models.AlertRuleShrinkagePattern, defaultShrinkagePeriods).IntPart())
		if periods < 2 {
			periods = 2
		}
		shrinkResults, err := evaluateShrinkagePattern(ctx, db, locationId, periods, now)
		if err != nil {
			return nil, err
		}
		results = append(results, shrinkResults...)
	}

	if cfg.IsEnabled(models.AlertRuleParLevelReorder) {
		for _, p := range predictions {
			par, ok := parLevelFor(ctx, db, p)
			if !ok {
				continue
			}
			level := p.CurrentOnHand
			if p.PredictedLevel != nil {
				level = *p.PredictedLevel
			}
			projected := level.Sub(p.AvgDailyUsage.Mul(reorderHorizonDays))
			if level.GreaterThan(par) && projected.GreaterThan(par) {
				continue
			}
			itemId := p.InventoryItemId.String()
			value := level
			results = append(results, models.AlertResult{
				Rule:            models.AlertRuleParLevelReorder,
				LocationId:      locationId,
				InventoryItemId: &itemId,
				Value:           &value,
				Threshold:       &par,
				Message:         fmt.Sprintf("%s at or projected below par level %s", p.ItemName, par.StringFixed(1)),
				EvaluatedAt:     now,
			})
		}
	}

	return results, nil
}

func evaluateKegsNearEmpty(ctx context.Context, db *gorm.DB, locationId string, thresholdPct decimal.Decimal, now time.Time) ([]models.AlertResult, error) {
	var kegs []models.KegInstance
	if err := db.WithContext(ctx).
		Where("location_id = ? AND status = ?", locationId, models.KegStatusInService).
		Find(&kegs).Error; err != nil {
		return nil, err
	}

	var results []models.AlertResult
	for i := range kegs {
		keg := &kegs[i]
		if !keg.StartingOz.IsPositive() {
			continue
		}
		var events []*models.ConsumptionEvent
		if err := db.WithContext(ctx).
			Where("keg_instance_id = ? AND event_ts <= ?", keg.ID, now).
			Order("event_ts").
			Find(&events).Error; err != nil {
			return nil, err
		}
		remaining := models.RemainingOz(keg.StartingOz, events, now)
		remainingPct := remaining.Div(keg.StartingOz).Mul(decimal.NewFromInt(100))
		if remainingPct.GreaterThan(thresholdPct) {
			continue
		}
		kegId := keg.ID.String()
		itemId := keg.InventoryItemId.String()
		results = append(results, models.AlertResult{
			Rule:            models.AlertRuleKegNearEmpty,
			LocationId:      locationId,
			InventoryItemId: &itemId,
			KegInstanceId:   &kegId,
			Value:           &remainingPct,
			Threshold:       &thresholdPct,
			Message:         fmt.Sprintf("keg at %s%% remaining (%s oz)", remainingPct.StringFixed(1), remaining.StringFixed(1)),
			EvaluatedAt:     now,
		})
	}
	return results, nil
}

// evaluateShrinkagePattern flags items whose last N count adjustments were
// all negative: one bad count is noise, a streak is a pattern.
func evaluateShrinkagePattern(ctx context.Context, db *gorm.DB, locationId string, periods int, now time.Time) ([]models.AlertResult, error) {
	var adjustments []*models.ConsumptionEvent
	if err := db.WithContext(ctx).
		Where("location_id = ? AND event_type = ? AND event_ts <= ?",
			locationId, models.EventTypeInventoryCountAdjustment, now).
		Order("event_ts DESC").
		Find(&adjustments).Error; err != nil {
		return nil, err
	}

	byItem := map[string][]*models.ConsumptionEvent{}
	for _, adj := range adjustments {
		key := adj.InventoryItemId.String()
		if len(byItem[key]) < periods {
			byItem[key] = append(byItem[key], adj)
		}
	}

	var results []models.AlertResult
	thresholdDec := decimal.NewFromInt(int64(periods))
	for itemKey, recent := range byItem {
		if len(recent) < periods {
			continue
		}
		allNegative := true
		total := decimal.Zero
		for _, adj := range recent {
			if !adj.QuantityDelta.IsNegative() {
				allNegative = false
				break
			}
			total = total.Add(adj.QuantityDelta)
		}
		if !allNegative {
			continue
		}
		itemId := itemKey
		results = append(results, models.AlertResult{
			Rule:            models.AlertRuleShrinkagePattern,
			LocationId:      locationId,
			InventoryItemId: &itemId,
			Value:           &total,
			Threshold:       &thresholdDec,
			Message:         fmt.Sprintf("negative variance across last %d counts (total %s)", periods, total.StringFixed(1)),
			EvaluatedAt:     now,
		})
	}
	return results, nil
}

func parLevelFor(ctx context.Context, db *gorm.DB, p OnHandPrediction) (decimal.Decimal, bool) {
	var item models.InventoryItem
	if err := db.WithContext(ctx).Select("par_level").Where("id = ?", p.InventoryItemId).Take(&item).Error; err != nil {
		return decimal.Zero, false
	}
	if item.ParLevel == nil || !item.ParLevel.IsPositive() {
		return decimal.Zero, false
	}
	return *item.ParLevel, true
}
