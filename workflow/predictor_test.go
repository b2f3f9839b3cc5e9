package workflow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmdatafocus/barledger_backend/models"
)

var predictorAsOf = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func ledgerEvent(eventType models.EventType, delta string, daysAgo int) *models.ConsumptionEvent {
	return &models.ConsumptionEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		QuantityDelta: decimal.RequireFromString(delta),
		EventTs:       predictorAsOf.AddDate(0, 0, -daysAgo),
	}
}

func countAt(qty string, daysAgo int) *models.LatestCount {
	return &models.LatestCount{
		CountedAt: predictorAsOf.AddDate(0, 0, -daysAgo),
		Quantity:  decimal.RequireFromString(qty),
		UOM:       models.UOMUnits,
	}
}

func TestComputePrediction_CurrentOnHandIsFullLedgerSum(t *testing.T) {
	events := []*models.ConsumptionEvent{
		ledgerEvent(models.EventTypeReceiving, "24", 20),
		ledgerEvent(models.EventTypePosSale, "-5", 10),
		ledgerEvent(models.EventTypePosSale, "-3", 2),
	}
	p := ComputePrediction(predictorAsOf, events, nil)
	if !p.CurrentOnHand.Equal(decimal.RequireFromString("16")) {
		t.Fatalf("expected 16, got %s", p.CurrentOnHand)
	}
	if p.PredictedLevel != nil {
		t.Fatalf("never-counted item has no predicted level")
	}
	if p.Confidence != models.ConfidenceTierLow {
		t.Fatalf("never-counted item is low confidence, got %s", p.Confidence)
	}
}

func TestComputePrediction_NetChangeExcludesCountAdjustments(t *testing.T) {
	events := []*models.ConsumptionEvent{
		ledgerEvent(models.EventTypePosSale, "-10", 8),
		// The count adjustment at the count is the baseline, not movement.
		ledgerEvent(models.EventTypeInventoryCountAdjustment, "-2", 5),
		ledgerEvent(models.EventTypePosSale, "-4", 3),
		ledgerEvent(models.EventTypeReceiving, "12", 2),
	}
	p := ComputePrediction(predictorAsOf, events, countAt("30", 5))

	if !p.NetChange.PosSale.Equal(decimal.RequireFromString("-4")) {
		t.Fatalf("pos sale net: %s", p.NetChange.PosSale)
	}
	if !p.NetChange.Receiving.Equal(decimal.RequireFromString("12")) {
		t.Fatalf("receiving net: %s", p.NetChange.Receiving)
	}
	if p.PredictedLevel == nil || !p.PredictedLevel.Equal(decimal.RequireFromString("38")) {
		t.Fatalf("predicted = 30 - 4 + 12 = 38, got %v", p.PredictedLevel)
	}
}

func TestComputePrediction_CorrectionPairNetsOut(t *testing.T) {
	original := ledgerEvent(models.EventTypePosSale, "-5", 2)
	reversal := ledgerEvent(models.EventTypePosSale, "5", 1)
	reversal.ReversalOfEventId = &original.ID
	replacement := ledgerEvent(models.EventTypePosSale, "-3", 1)

	p := ComputePrediction(predictorAsOf, []*models.ConsumptionEvent{original, reversal, replacement}, countAt("20", 4))
	if !p.NetChange.PosSale.Equal(decimal.RequireFromString("-3")) {
		t.Fatalf("correction pair must contribute only its net effect, got %s", p.NetChange.PosSale)
	}
	// Usage excludes both the reversal and its positive mirror.
	wantUsage := decimal.RequireFromString("8").Div(decimal.NewFromInt(30))
	if !p.AvgDailyUsage.Equal(wantUsage) {
		t.Fatalf("avg daily usage: got %s want %s", p.AvgDailyUsage, wantUsage)
	}
}

func TestComputePrediction_UsageWindowIsTrailing30Days(t *testing.T) {
	events := []*models.ConsumptionEvent{
		ledgerEvent(models.EventTypePosSale, "-100", 45),
		ledgerEvent(models.EventTypePosSale, "-30", 15),
		ledgerEvent(models.EventTypeReceiving, "60", 10),
	}
	p := ComputePrediction(predictorAsOf, events, nil)
	want := decimal.RequireFromString("30").Div(decimal.NewFromInt(30))
	if !p.AvgDailyUsage.Equal(want) {
		t.Fatalf("usage must ignore events older than 30d: got %s want %s", p.AvgDailyUsage, want)
	}
}

func TestStockoutHorizon(t *testing.T) {
	usage := decimal.RequireFromString("2")

	neg := decimal.RequireFromString("-0.01")
	if d := stockoutHorizon(&neg, usage); d == nil || *d != 0 {
		t.Fatalf("negative predicted level is already out: got %v", d)
	}
	zero := decimal.Zero
	if d := stockoutHorizon(&zero, usage); d == nil || *d != 0 {
		t.Fatalf("zero predicted level is already out: got %v", d)
	}
	seven := decimal.RequireFromString("7")
	if d := stockoutHorizon(&seven, usage); d == nil || *d != 3 {
		t.Fatalf("7 / 2 floors to 3 days, got %v", d)
	}
	if d := stockoutHorizon(&seven, decimal.Zero); d != nil {
		t.Fatalf("zero usage cannot predict a horizon, got %v", d)
	}
	if d := stockoutHorizon(nil, usage); d != nil {
		t.Fatalf("no predicted level means no horizon, got %v", d)
	}
}

func TestConfidenceTier_FreshCountWithDepletionIsHigh(t *testing.T) {
	events := []*models.ConsumptionEvent{
		ledgerEvent(models.EventTypePosSale, "-4", 1),
	}
	p := ComputePrediction(predictorAsOf, events, countAt("20", 3))
	if p.Confidence != models.ConfidenceTierHigh {
		t.Fatalf("count 3d ago with depletion since: want high, got %s", p.Confidence)
	}
}

func TestConfidenceTier_FreshCountWithoutDepletionIsMedium(t *testing.T) {
	p := ComputePrediction(predictorAsOf, nil, countAt("20", 2))
	if p.Confidence != models.ConfidenceTierMedium {
		t.Fatalf("fresh count but no depletion since: want medium, got %s", p.Confidence)
	}
}

func TestConfidenceTier_WeekOldCountIsMedium(t *testing.T) {
	p := ComputePrediction(predictorAsOf, nil, countAt("20", 7))
	if p.Confidence != models.ConfidenceTierMedium {
		t.Fatalf("7d old count: want medium, got %s", p.Confidence)
	}
}

func TestConfidenceTier_StaleCountWithReceivingIsMedium(t *testing.T) {
	events := []*models.ConsumptionEvent{
		ledgerEvent(models.EventTypeReceiving, "24", 4),
	}
	p := ComputePrediction(predictorAsOf, events, countAt("20", 10))
	if p.Confidence != models.ConfidenceTierMedium {
		t.Fatalf("10d old count with receiving since: want medium, got %s", p.Confidence)
	}
}

func TestConfidenceTier_StaleCountIsLow(t *testing.T) {
	p := ComputePrediction(predictorAsOf, nil, countAt("20", 20))
	if p.Confidence != models.ConfidenceTierLow {
		t.Fatalf("20d old count: want low, got %s", p.Confidence)
	}
}

func TestComputePrediction_EventAtCountInstantIsBaseline(t *testing.T) {
	// A delta stamped exactly at the count timestamp is part of the counted
	// baseline, not movement since the count.
	events := []*models.ConsumptionEvent{
		ledgerEvent(models.EventTypePosSale, "-6", 1),
		ledgerEvent(models.EventTypePosSale, "-2", 0),
	}
	p := ComputePrediction(predictorAsOf, events, countAt("20", 1))
	if !p.NetChange.PosSale.Equal(decimal.RequireFromString("-2")) {
		t.Fatalf("only strictly-after deltas count as movement, got %s", p.NetChange.PosSale)
	}
	if p.PredictedLevel == nil || !p.PredictedLevel.Equal(decimal.RequireFromString("18")) {
		t.Fatalf("predicted = 20 - 2 = 18, got %v", p.PredictedLevel)
	}
}

func TestConfidenceTier_NegativePredictedOverridesFreshness(t *testing.T) {
	// Depletion strictly after the count so it lands in the since-count window.
	events := []*models.ConsumptionEvent{
		ledgerEvent(models.EventTypePosSale, "-25", 0),
	}
	p := ComputePrediction(predictorAsOf, events, countAt("20", 1))
	if p.PredictedLevel == nil || !p.PredictedLevel.IsNegative() {
		t.Fatalf("setup error: predicted level should be negative, got %v", p.PredictedLevel)
	}
	if p.Confidence != models.ConfidenceTierLow {
		t.Fatalf("impossible predicted level must force low, got %s", p.Confidence)
	}
}
