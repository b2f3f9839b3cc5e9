package models_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmdatafocus/barledger_backend/models"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCountedQuantity_UnitCountWinsFirst(t *testing.T) {
	line := &models.InventorySessionLine{
		CountUnits: dec("12"),
		DerivedOz:  dec("99"),
	}
	qty, uom := line.CountedQuantity(decimal.Zero)
	if qty == nil || !qty.Equal(decimal.RequireFromString("12")) || uom != models.UOMUnits {
		t.Fatalf("unit count has priority: got %v %s", qty, uom)
	}
}

func TestCountedQuantity_PercentRemainingNeedsKegAndStartingOz(t *testing.T) {
	kegId := uuid.New()
	line := &models.InventorySessionLine{
		KegInstanceId:    &kegId,
		PercentRemaining: dec("25"),
	}

	qty, uom := line.CountedQuantity(decimal.RequireFromString("1984"))
	if qty == nil || !qty.Equal(decimal.RequireFromString("496")) || uom != models.UOMOz {
		t.Fatalf("25%% of a half barrel is 496 oz: got %v %s", qty, uom)
	}

	// Without the keg's starting volume the percent cannot be resolved.
	if qty, _ := line.CountedQuantity(decimal.Zero); qty != nil {
		t.Fatalf("percent without starting oz must not resolve, got %v", qty)
	}
}

func TestCountedQuantity_WeightFallbacks(t *testing.T) {
	line := &models.InventorySessionLine{
		GrossWeightGrams: dec("750"),
	}
	qty, uom := line.CountedQuantity(decimal.Zero)
	if qty == nil || uom != models.UOMGrams {
		t.Fatalf("gross weight is the last resort: got %v %s", qty, uom)
	}

	line.DerivedOz = dec("17.5")
	qty, uom = line.CountedQuantity(decimal.Zero)
	if qty == nil || !qty.Equal(decimal.RequireFromString("17.5")) || uom != models.UOMOz {
		t.Fatalf("derived oz outranks gross weight: got %v %s", qty, uom)
	}
}

func TestCountedQuantity_NoObservation(t *testing.T) {
	line := &models.InventorySessionLine{}
	if qty, _ := line.CountedQuantity(decimal.Zero); qty != nil {
		t.Fatalf("empty line resolves to nothing, got %v", qty)
	}
}

func TestRemainingOz_ReplaysLedgerAndClampsAtZero(t *testing.T) {
	asOf := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	pour := func(oz string, daysAgo int) *models.ConsumptionEvent {
		return &models.ConsumptionEvent{
			EventType:     models.EventTypeTapFlow,
			QuantityDelta: decimal.RequireFromString(oz),
			EventTs:       asOf.AddDate(0, 0, -daysAgo),
		}
	}

	events := []*models.ConsumptionEvent{
		pour("-500", 5),
		pour("-400", 3),
		pour("-200", 1),
		// A pour after asOf must not count.
		pour("-900", -1),
	}
	remaining := models.RemainingOz(decimal.RequireFromString("1984"), events, asOf)
	if !remaining.Equal(decimal.RequireFromString("884")) {
		t.Fatalf("remaining: %s", remaining)
	}

	remaining = models.RemainingOz(decimal.RequireFromString("900"), events, asOf)
	if !remaining.IsZero() {
		t.Fatalf("over-poured keg clamps at zero, got %s", remaining)
	}
}
