package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmdatafocus/barledger_backend/models"
	"github.com/mmdatafocus/barledger_backend/utils"
)

func saleLine(qty string, voided, refunded bool) *models.SalesLine {
	return &models.SalesLine{
		ID:           uuid.New(),
		BusinessId:   "biz-1",
		LocationId:   "loc-1",
		SourceSystem: models.SourceSystemToast,
		SoldAt:       time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC),
		PosItemId:    "pos-1",
		PosItemName:  "Test Item",
		Quantity:     decimal.RequireFromString(qty),
		IsVoided:     &voided,
		IsRefunded:   &refunded,
	}
}

func packagedMapping(itemId uuid.UUID) *models.POSItemMapping {
	return &models.POSItemMapping{
		ID:              uuid.New(),
		Mode:            models.MappingModePackagedUnit,
		InventoryItemId: &itemId,
	}
}

func TestPlanDepletion_PackagedUnit_DepletesNegative(t *testing.T) {
	itemId := uuid.New()
	events, err := PlanDepletion(saleLine("2", false, false), ResolutionInput{Mapping: packagedMapping(itemId)})
	if err != nil {
		t.Fatalf("PlanDepletion: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.InventoryItemId != itemId {
		t.Fatalf("wrong item: %s", e.InventoryItemId)
	}
	if !e.QuantityDelta.Equal(decimal.RequireFromString("-2")) {
		t.Fatalf("expected delta -2, got %s", e.QuantityDelta)
	}
	if e.EventType != models.EventTypePosSale || e.UOM != models.UOMUnits {
		t.Fatalf("unexpected event shape: %+v", e)
	}
	if e.Confidence != models.ConfidenceTheoretical {
		t.Fatalf("expected theoretical confidence, got %s", e.Confidence)
	}
}

func TestPlanDepletion_VoidedLine_IsExactNegation(t *testing.T) {
	itemId := uuid.New()
	in := ResolutionInput{Mapping: packagedMapping(itemId)}

	forward, err := PlanDepletion(saleLine("3", false, false), in)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	reversed, err := PlanDepletion(saleLine("3", true, false), in)
	if err != nil {
		t.Fatalf("reversed: %v", err)
	}
	sum := forward[0].QuantityDelta.Add(reversed[0].QuantityDelta)
	if !sum.IsZero() {
		t.Fatalf("void should net to zero, got %s", sum)
	}
}

func TestPlanDepletion_Unmapped(t *testing.T) {
	_, err := PlanDepletion(saleLine("1", false, false), ResolutionInput{})
	if !errors.Is(err, ErrUnmapped) {
		t.Fatalf("expected ErrUnmapped, got %v", err)
	}
}

func TestPlanDepletion_PackagedUnitWithoutItem_FailsResolution(t *testing.T) {
	mapping := &models.POSItemMapping{Mode: models.MappingModePackagedUnit}
	_, err := PlanDepletion(saleLine("1", false, false), ResolutionInput{Mapping: mapping})
	if !errors.Is(err, ErrResolutionFailure) {
		t.Fatalf("expected ErrResolutionFailure, got %v", err)
	}
}

func TestPlanDepletion_DraftByTap_PourMath(t *testing.T) {
	kegItemId := uuid.New()
	tapId := uuid.New()
	keg := &models.KegInstance{ID: uuid.New(), InventoryItemId: kegItemId}
	in := ResolutionInput{
		Mapping:       &models.POSItemMapping{Mode: models.MappingModeDraftByTap},
		PourProfile:   &models.PourProfile{Oz: decimal.RequireFromString("12")},
		TapAssignment: &models.TapAssignment{TapLineId: tapId, KegInstanceId: keg.ID},
		Keg:           keg,
	}

	events, err := PlanDepletion(saleLine("2", false, false), in)
	if err != nil {
		t.Fatalf("PlanDepletion: %v", err)
	}
	e := events[0]
	if !e.QuantityDelta.Equal(decimal.RequireFromString("-24")) {
		t.Fatalf("expected -24 oz, got %s", e.QuantityDelta)
	}
	if e.EventType != models.EventTypeTapFlow || e.UOM != models.UOMOz {
		t.Fatalf("unexpected event shape: %+v", e)
	}
	if e.InventoryItemId != kegItemId {
		t.Fatalf("draft depletion must attribute to the keg's item")
	}
	if e.KegInstanceId == nil || *e.KegInstanceId != keg.ID {
		t.Fatalf("missing keg linkage")
	}
	if e.TapLineId == nil || *e.TapLineId != tapId {
		t.Fatalf("missing tap linkage")
	}
}

func TestPlanDepletion_DraftWithoutAssignment_FailsResolution(t *testing.T) {
	in := ResolutionInput{
		Mapping:     &models.POSItemMapping{Mode: models.MappingModeDraftByTap},
		PourProfile: &models.PourProfile{Oz: decimal.RequireFromString("16")},
	}
	_, err := PlanDepletion(saleLine("1", false, false), in)
	if !errors.Is(err, ErrResolutionFailure) {
		t.Fatalf("expected ErrResolutionFailure, got %v", err)
	}
}

func TestPlanDepletion_DraftForwardWithoutProfile_FailsResolution(t *testing.T) {
	keg := &models.KegInstance{ID: uuid.New(), InventoryItemId: uuid.New()}
	in := ResolutionInput{
		Mapping:       &models.POSItemMapping{Mode: models.MappingModeDraftByTap},
		TapAssignment: &models.TapAssignment{TapLineId: uuid.New(), KegInstanceId: keg.ID},
		Keg:           keg,
	}
	_, err := PlanDepletion(saleLine("1", false, false), in)
	if !errors.Is(err, ErrResolutionFailure) {
		t.Fatalf("expected ErrResolutionFailure, got %v", err)
	}
}

func TestPlanDepletion_DraftReversalWithoutProfile_UsesFallbackPour(t *testing.T) {
	keg := &models.KegInstance{ID: uuid.New(), InventoryItemId: uuid.New()}
	in := ResolutionInput{
		Mapping:       &models.POSItemMapping{Mode: models.MappingModeDraftByTap},
		TapAssignment: &models.TapAssignment{TapLineId: uuid.New(), KegInstanceId: keg.ID},
		Keg:           keg,
	}
	events, err := PlanDepletion(saleLine("1", true, false), in)
	if err != nil {
		t.Fatalf("PlanDepletion: %v", err)
	}
	want := decimal.NewFromInt(DefaultReversalPourOz)
	if !events[0].QuantityDelta.Equal(want) {
		t.Fatalf("expected fallback reversal of +%s oz, got %s", want, events[0].QuantityDelta)
	}
}

func TestFallbackReversalPourOz_EnvOverride(t *testing.T) {
	t.Setenv("DRAFT_REVERSAL_FALLBACK_POUR_OZ", "12.5")
	if got := fallbackReversalPourOz(); !got.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected 12.5, got %s", got)
	}
	t.Setenv("DRAFT_REVERSAL_FALLBACK_POUR_OZ", "-3")
	if got := fallbackReversalPourOz(); !got.Equal(decimal.NewFromInt(DefaultReversalPourOz)) {
		t.Fatalf("non-positive override must fall back to default, got %s", got)
	}
}

func TestPlanDepletion_Recipe_FansOutPerIngredient(t *testing.T) {
	gin := uuid.New()
	tonic := uuid.New()
	recipe := &models.Recipe{
		Ingredients: []models.RecipeIngredient{
			{InventoryItemId: gin, Quantity: decimal.RequireFromString("1.5"), UOM: models.UOMOz},
			{InventoryItemId: tonic, Quantity: decimal.RequireFromString("4"), UOM: models.UOMOz},
		},
	}
	in := ResolutionInput{
		Mapping: &models.POSItemMapping{Mode: models.MappingModeRecipe},
		Recipe:  recipe,
	}

	events, err := PlanDepletion(saleLine("2", false, false), in)
	if err != nil {
		t.Fatalf("PlanDepletion: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	byItem := map[uuid.UUID]decimal.Decimal{}
	for _, e := range events {
		byItem[e.InventoryItemId] = e.QuantityDelta
	}
	if !byItem[gin].Equal(decimal.RequireFromString("-3")) {
		t.Fatalf("gin delta: %s", byItem[gin])
	}
	if !byItem[tonic].Equal(decimal.RequireFromString("-8")) {
		t.Fatalf("tonic delta: %s", byItem[tonic])
	}
}

func TestPlanDepletion_RecipeReversal_MirrorsEveryIngredient(t *testing.T) {
	recipe := &models.Recipe{
		Ingredients: []models.RecipeIngredient{
			{InventoryItemId: uuid.New(), Quantity: decimal.RequireFromString("2"), UOM: models.UOMOz},
			{InventoryItemId: uuid.New(), Quantity: decimal.RequireFromString("0.75"), UOM: models.UOMOz},
			{InventoryItemId: uuid.New(), Quantity: decimal.RequireFromString("1"), UOM: models.UOMUnits},
		},
	}
	in := ResolutionInput{
		Mapping: &models.POSItemMapping{Mode: models.MappingModeRecipe},
		Recipe:  recipe,
	}

	forward, err := PlanDepletion(saleLine("1", false, false), in)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	reversed, err := PlanDepletion(saleLine("1", false, true), in)
	if err != nil {
		t.Fatalf("reversed: %v", err)
	}
	if len(forward) != len(reversed) {
		t.Fatalf("reversal must mirror every ingredient: %d vs %d", len(forward), len(reversed))
	}
	for i := range forward {
		if !forward[i].QuantityDelta.Add(reversed[i].QuantityDelta).IsZero() {
			t.Fatalf("ingredient %d does not net to zero", i)
		}
	}
}

func TestPlanDepletion_RecipeWithoutIngredients_FailsResolution(t *testing.T) {
	in := ResolutionInput{
		Mapping: &models.POSItemMapping{Mode: models.MappingModeRecipe},
		Recipe:  &models.Recipe{},
	}
	_, err := PlanDepletion(saleLine("1", false, false), in)
	if !errors.Is(err, ErrResolutionFailure) {
		t.Fatalf("expected ErrResolutionFailure, got %v", err)
	}
}

func TestPlanDepletion_DraftByProduct_Unsupported(t *testing.T) {
	in := ResolutionInput{Mapping: &models.POSItemMapping{Mode: models.MappingModeDraftByProduct}}
	events, err := PlanDepletion(saleLine("1", false, false), in)
	if !errors.Is(err, ErrDraftByProductUnsupported) {
		t.Fatalf("expected ErrDraftByProductUnsupported, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unsupported mode must produce zero events")
	}
}

func TestPlanDepletion_UnknownMode_IsError(t *testing.T) {
	in := ResolutionInput{Mapping: &models.POSItemMapping{Mode: "bottle_service"}}
	if _, err := PlanDepletion(saleLine("1", false, false), in); err == nil {
		t.Fatalf("unknown mode must error, never no-op")
	}
}

func TestIsReversalLine(t *testing.T) {
	if isReversalLine(saleLine("1", false, false)) {
		t.Fatalf("plain sale is not a reversal")
	}
	if !isReversalLine(saleLine("1", true, false)) {
		t.Fatalf("voided line is a reversal")
	}
	if !isReversalLine(saleLine("1", false, true)) {
		t.Fatalf("refunded line is a reversal")
	}
	line := saleLine("1", false, false)
	line.IsVoided = nil
	line.IsRefunded = utils.NewFalse()
	if isReversalLine(line) {
		t.Fatalf("nil void flag must not count as reversal")
	}
}
