package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/models"
)

// DefaultReversalPourOz is the pour size assumed when a draft void/refund
// must be reversed and no pour profile exists at the sale timestamp.
// TODO(product): confirm whether 16oz is the intended default or should be
// configurable per location.
const DefaultReversalPourOz = 16

var (
	ErrUnmapped                  = errors.New("no active mapping at sale time")
	ErrResolutionFailure         = errors.New("mapping resolved but dependent data is missing")
	ErrDraftByProductUnsupported = errors.New("draft_by_product mappings are unsupported")
)

// DepletionStats is the user-visible summary of one window run.
type DepletionStats struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Unmapped  int `json:"unmapped"`
	Skipped   int `json:"skipped"`
}

// PlannedEvent is one ledger row the planner wants written. Planning is pure;
// persistence happens in ProcessWindow inside a per-line transaction.
type PlannedEvent struct {
	InventoryItemId uuid.UUID
	EventType       models.EventType
	QuantityDelta   decimal.Decimal
	UOM             models.UOM
	Confidence      models.ConfidenceLevel
	KegInstanceId   *uuid.UUID
	TapLineId       *uuid.UUID
}

// ResolutionInput carries everything a single sale line's plan depends on,
// pre-loaded so PlanDepletion stays storage-free.
type ResolutionInput struct {
	Mapping       *models.POSItemMapping
	PourProfile   *models.PourProfile
	TapAssignment *models.TapAssignment
	Keg           *models.KegInstance
	Recipe        *models.Recipe
}

// PlanDepletion expands one sale line into its signed ledger rows. Normal
// sales deplete (negative deltas); voided or refunded lines produce the exact
// negation computed through the same resolution path. Dispatch over the
// mapping mode is exhaustive: an unknown mode is an error, never a no-op.
func PlanDepletion(line *models.SalesLine, in ResolutionInput) ([]PlannedEvent, error) {
	if in.Mapping == nil {
		return nil, ErrUnmapped
	}
	reversal := isReversalLine(line)

	switch in.Mapping.Mode {
	case models.MappingModePackagedUnit:
		if in.Mapping.InventoryItemId == nil {
			return nil, fmt.Errorf("%w: packaged_unit mapping has no inventory item", ErrResolutionFailure)
		}
		delta := line.Quantity.Neg()
		if reversal {
			delta = delta.Neg()
		}
		return []PlannedEvent{{
			InventoryItemId: *in.Mapping.InventoryItemId,
			EventType:       models.EventTypePosSale,
			QuantityDelta:   delta,
			UOM:             models.UOMUnits,
			Confidence:      models.ConfidenceTheoretical,
		}}, nil

	case models.MappingModeDraftByTap:
		if in.TapAssignment == nil || in.Keg == nil {
			// Depletion with no physical keg to attribute to is a
			// resolution failure, not a silent drop.
			return nil, fmt.Errorf("%w: no active tap assignment at sale time", ErrResolutionFailure)
		}
		pourOz, err := resolvePourOz(in.PourProfile, reversal)
		if err != nil {
			return nil, err
		}
		delta := line.Quantity.Mul(pourOz).Neg()
		if reversal {
			delta = delta.Neg()
		}
		kegId := in.Keg.ID
		tapId := in.TapAssignment.TapLineId
		return []PlannedEvent{{
			InventoryItemId: in.Keg.InventoryItemId,
			EventType:       models.EventTypeTapFlow,
			QuantityDelta:   delta,
			UOM:             models.UOMOz,
			Confidence:      models.ConfidenceTheoretical,
			KegInstanceId:   &kegId,
			TapLineId:       &tapId,
		}}, nil

	case models.MappingModeRecipe:
		if in.Recipe == nil || len(in.Recipe.Ingredients) == 0 {
			return nil, fmt.Errorf("%w: recipe missing or has no ingredients", ErrResolutionFailure)
		}
		events := make([]PlannedEvent, 0, len(in.Recipe.Ingredients))
		for _, ing := range in.Recipe.Ingredients {
			delta := ing.Quantity.Mul(line.Quantity).Neg()
			if reversal {
				delta = delta.Neg()
			}
			events = append(events, PlannedEvent{
				InventoryItemId: ing.InventoryItemId,
				EventType:       models.EventTypePosSale,
				QuantityDelta:   delta,
				UOM:             ing.UOM,
				Confidence:      models.ConfidenceTheoretical,
			})
		}
		return events, nil

	case models.MappingModeDraftByProduct:
		return nil, ErrDraftByProductUnsupported

	default:
		return nil, fmt.Errorf("unknown mapping mode %q", in.Mapping.Mode)
	}
}

// resolvePourOz picks the ounces per pour. A forward depletion without a
// profile cannot be priced and fails resolution; a reversal falls back to a
// documented default so voids of historical sales still negate cleanly.
func resolvePourOz(profile *models.PourProfile, reversal bool) (decimal.Decimal, error) {
	if profile != nil {
		return profile.Oz, nil
	}
	if !reversal {
		return decimal.Zero, fmt.Errorf("%w: no pour profile for draft mapping", ErrResolutionFailure)
	}
	return fallbackReversalPourOz(), nil
}

func fallbackReversalPourOz() decimal.Decimal {
	if v := strings.TrimSpace(os.Getenv("DRAFT_REVERSAL_FALLBACK_POUR_OZ")); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			return d
		}
	}
	return decimal.NewFromInt(DefaultReversalPourOz)
}

func isReversalLine(line *models.SalesLine) bool {
	if line.IsVoided != nil && *line.IsVoided {
		return true
	}
	if line.IsRefunded != nil && *line.IsRefunded {
		return true
	}
	return false
}

// ProcessWindow runs depletion over a location's sale lines in [fromTs, toTs).
// A line already linked to consumption events is skipped, making re-runs
// idempotent; per-line fan-out is all-or-nothing inside one transaction. Runs
// for the same location serialize on a MySQL advisory lock, and the unique
// (sales_line_id, inventory_item_id) index fails duplicate event creation
// closed if serialization is ever bypassed.
func ProcessWindow(ctx context.Context, db *gorm.DB, logger *logrus.Logger, locationId string, fromTs, toTs time.Time) (DepletionStats, error) {
	stats := DepletionStats{}

	// GET_LOCK is connection-scoped: pin one connection for the lock's whole
	// lifetime so the release reaches the connection that holds it.
	err := db.WithContext(ctx).Connection(func(lockConn *gorm.DB) error {
		if err := AcquireDepletionLock(lockConn, locationId); err != nil {
			return err
		}
		defer ReleaseDepletionLock(lockConn, locationId)
		return processWindowLocked(ctx, db, logger, locationId, fromTs, toTs, &stats)
	})
	if err != nil {
		return stats, err
	}

	logger.WithFields(logrus.Fields{
		"module":     "workflow",
		"locationId": locationId,
		"from":       fromTs,
		"to":         toTs,
		"processed":  stats.Processed,
		"created":    stats.Created,
		"unmapped":   stats.Unmapped,
		"skipped":    stats.Skipped,
	}).Info("depletion window processed")
	return stats, nil
}

func processWindowLocked(ctx context.Context, db *gorm.DB, logger *logrus.Logger, locationId string, fromTs, toTs time.Time, stats *DepletionStats) error {
	lines, err := models.GetSalesLinesInWindow(ctx, db, locationId, fromTs, toTs)
	if err != nil {
		return err
	}

	for _, line := range lines {
		stats.Processed++

		if !config.DepletionEnabledFor(string(line.SourceSystem)) {
			stats.Skipped++
			continue
		}

		already, err := models.HasEventsForSalesLine(ctx, db, line.ID)
		if err != nil {
			return err
		}
		if already {
			stats.Skipped++
			continue
		}

		planned, err := planLine(ctx, db, logger, line)
		if err != nil {
			if errors.Is(err, ErrUnmapped) || errors.Is(err, ErrResolutionFailure) || errors.Is(err, ErrDraftByProductUnsupported) {
				stats.Unmapped++
				logger.WithFields(logrus.Fields{
					"module":      "workflow",
					"salesLineId": line.ID,
					"posItemId":   line.PosItemId,
					"reason":      err.Error(),
				}).Warn("sale line left unmapped")
				continue
			}
			return err
		}

		created, err := persistPlannedEvents(ctx, db, line, planned)
		if err != nil {
			if models.IsDuplicateKeyErr(err) {
				// A concurrent run got there first.
				stats.Skipped++
				continue
			}
			return err
		}
		stats.Created += created
	}
	return nil
}

// planLine loads the resolution dependencies for one sale line and plans its
// events. Resolution always uses the sale's soldAt, never the current time.
func planLine(ctx context.Context, db *gorm.DB, logger *logrus.Logger, line *models.SalesLine) ([]PlannedEvent, error) {
	resolution, err := models.GetActiveMapping(ctx, db, line.LocationId, line.SourceSystem, line.PosItemId, line.SoldAt)
	if err != nil {
		return nil, err
	}
	if len(resolution.Overlapping) > 0 {
		logger.WithFields(logrus.Fields{
			"module":    "workflow",
			"posItemId": line.PosItemId,
			"soldAt":    line.SoldAt,
			"windows":   len(resolution.Overlapping) + 1,
		}).Warn("overlapping mapping windows; most recent effective_from wins")
	}
	if resolution.Mapping == nil {
		return nil, ErrUnmapped
	}

	in := ResolutionInput{Mapping: resolution.Mapping}

	switch resolution.Mapping.Mode {
	case models.MappingModeDraftByTap:
		if resolution.Mapping.PourProfileId != nil {
			var profile models.PourProfile
			if err := db.WithContext(ctx).Where("id = ?", *resolution.Mapping.PourProfileId).Take(&profile).Error; err == nil {
				in.PourProfile = &profile
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
		if resolution.Mapping.TapLineId == nil {
			return nil, fmt.Errorf("%w: draft mapping has no tap line", ErrResolutionFailure)
		}
		assignment, err := models.GetActiveTapAssignment(ctx, db, *resolution.Mapping.TapLineId, line.SoldAt)
		if err != nil {
			return nil, err
		}
		in.TapAssignment = assignment
		if assignment != nil {
			var keg models.KegInstance
			if err := db.WithContext(ctx).Where("id = ?", assignment.KegInstanceId).Take(&keg).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("%w: assigned keg not found", ErrResolutionFailure)
				}
				return nil, err
			}
			in.Keg = &keg
		}

	case models.MappingModeRecipe:
		if resolution.Mapping.RecipeId == nil {
			return nil, fmt.Errorf("%w: recipe mapping has no recipe", ErrResolutionFailure)
		}
		recipe, err := models.GetRecipeWithIngredients(ctx, db, *resolution.Mapping.RecipeId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: recipe not found", ErrResolutionFailure)
			}
			return nil, err
		}
		in.Recipe = recipe
	}

	if in.PourProfile == nil && resolution.Mapping.Mode == models.MappingModeDraftByTap && isReversalLine(line) {
		logger.WithFields(logrus.Fields{
			"module":      "workflow",
			"salesLineId": line.ID,
			"fallbackOz":  fallbackReversalPourOz(),
		}).Warn("draft reversal using fallback pour size")
	}

	return PlanDepletion(line, in)
}

// persistPlannedEvents writes a line's fan-out atomically. Recipe ingredients
// and reversal mirrors land together or not at all.
func persistPlannedEvents(ctx context.Context, db *gorm.DB, line *models.SalesLine, planned []PlannedEvent) (int, error) {
	if len(planned) == 0 {
		return 0, nil
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range planned {
			lineId := line.ID
			receiptId := line.ReceiptId
			event := models.ConsumptionEvent{
				BusinessId:      line.BusinessId,
				LocationId:      line.LocationId,
				InventoryItemId: p.InventoryItemId,
				EventType:       p.EventType,
				SourceSystem:    line.SourceSystem,
				EventTs:         line.SoldAt,
				QuantityDelta:   p.QuantityDelta,
				UOM:             p.UOM,
				ConfidenceLevel: p.Confidence,
				ReceiptId:       &receiptId,
				SalesLineId:     &lineId,
				KegInstanceId:   p.KegInstanceId,
				TapLineId:       p.TapLineId,
			}
			if err := tx.Create(&event).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(planned), nil
}
