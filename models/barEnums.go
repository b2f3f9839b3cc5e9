package models

import "strings"

type SourceSystem string

const (
	SourceSystemToast      SourceSystem = "toast"
	SourceSystemSquare     SourceSystem = "square"
	SourceSystemLightspeed SourceSystem = "lightspeed"
	SourceSystemClover     SourceSystem = "clover"
	SourceSystemOther      SourceSystem = "other"
	SourceSystemManual     SourceSystem = "manual"
)

func ParseSourceSystem(s string) (SourceSystem, bool) {
	switch SourceSystem(strings.ToLower(strings.TrimSpace(s))) {
	case SourceSystemToast:
		return SourceSystemToast, true
	case SourceSystemSquare:
		return SourceSystemSquare, true
	case SourceSystemLightspeed:
		return SourceSystemLightspeed, true
	case SourceSystemClover:
		return SourceSystemClover, true
	case SourceSystemOther:
		return SourceSystemOther, true
	case SourceSystemManual:
		return SourceSystemManual, true
	default:
		return "", false
	}
}

type MappingMode string

const (
	MappingModePackagedUnit MappingMode = "packaged_unit"
	MappingModeDraftByTap   MappingMode = "draft_by_tap"
	MappingModeRecipe       MappingMode = "recipe"
	// MappingModeDraftByProduct is retained for backward compatibility only.
	// The depletion engine refuses to deplete through it.
	MappingModeDraftByProduct MappingMode = "draft_by_product"
)

type EventType string

const (
	EventTypePosSale                  EventType = "pos_sale"
	EventTypeTapFlow                  EventType = "tap_flow"
	EventTypeReceiving                EventType = "receiving"
	EventTypeTransfer                 EventType = "transfer"
	EventTypeManualAdjustment         EventType = "manual_adjustment"
	EventTypeInventoryCountAdjustment EventType = "inventory_count_adjustment"
)

type ConfidenceLevel string

const (
	ConfidenceTheoretical ConfidenceLevel = "theoretical"
	ConfidenceMeasured    ConfidenceLevel = "measured"
	ConfidenceEstimated   ConfidenceLevel = "estimated"
)

type UOM string

const (
	UOMUnits UOM = "units"
	UOMOz    UOM = "oz"
	UOMMl    UOM = "ml"
	UOMGrams UOM = "grams"
)

type VarianceReason string

const (
	VarianceReasonWasteFoam    VarianceReason = "waste_foam"
	VarianceReasonComp         VarianceReason = "comp"
	VarianceReasonStaffDrink   VarianceReason = "staff_drink"
	VarianceReasonTheft        VarianceReason = "theft"
	VarianceReasonBreakage     VarianceReason = "breakage"
	VarianceReasonLineCleaning VarianceReason = "line_cleaning"
	VarianceReasonTransfer     VarianceReason = "transfer"
	VarianceReasonUnknown      VarianceReason = "unknown"
)

type InventoryItemType string

const (
	ItemTypePackagedBeer InventoryItemType = "packaged_beer"
	ItemTypeKegBeer      InventoryItemType = "keg_beer"
	ItemTypeLiquor       InventoryItemType = "liquor"
	ItemTypeWine         InventoryItemType = "wine"
	ItemTypeFood         InventoryItemType = "food"
	ItemTypeMisc         InventoryItemType = "misc"
)

type KegStatus string

const (
	KegStatusInStorage KegStatus = "in_storage"
	KegStatusInService KegStatus = "in_service"
	KegStatusEmpty     KegStatus = "empty"
	KegStatusReturned  KegStatus = "returned"
)

type SessionType string

const (
	SessionTypeShift   SessionType = "shift"
	SessionTypeDaily   SessionType = "daily"
	SessionTypeWeekly  SessionType = "weekly"
	SessionTypeMonthly SessionType = "monthly"
)

type ConnectionMethod string

const (
	ConnectionMethodAPI          ConnectionMethod = "api"
	ConnectionMethodSFTPExport   ConnectionMethod = "sftp_export"
	ConnectionMethodWebhook      ConnectionMethod = "webhook"
	ConnectionMethodManualUpload ConnectionMethod = "manual_upload"
)

type ImportRunStatus string

const (
	ImportRunStatusQueued  ImportRunStatus = "QUEUED"
	ImportRunStatusRunning ImportRunStatus = "RUNNING"
	ImportRunStatusSuccess ImportRunStatus = "SUCCESS"
	ImportRunStatusPartial ImportRunStatus = "PARTIAL"
	ImportRunStatusFailed  ImportRunStatus = "FAILED"
)

// ConfidenceTier classifies how trustworthy a predicted on-hand level is.
type ConfidenceTier string

const (
	ConfidenceTierHigh   ConfidenceTier = "high"
	ConfidenceTierMedium ConfidenceTier = "medium"
	ConfidenceTierLow    ConfidenceTier = "low"
)

// Alert rule names. Unknown names in stored config are treated as disabled.
const (
	AlertRuleVariancePercent  = "variance_percent"
	AlertRuleLowStock         = "low_stock"
	AlertRuleStaleCount       = "stale_count"
	AlertRuleKegNearEmpty     = "keg_near_empty"
	AlertRuleShrinkagePattern = "shrinkage_pattern"
	AlertRuleParLevelReorder  = "par_level_reorder"
)
