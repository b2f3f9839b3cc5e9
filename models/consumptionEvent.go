package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ConsumptionEvent is one row of the append-only inventory ledger: a signed
// quantity movement for one item. Negative deltas deplete, positive deltas
// add stock or reverse a prior depletion.
//
// CRITICAL: rows are never updated or deleted after creation. Corrections go
// through the reversal + replacement workflow, which appends new rows linked
// via ReversalOfEventId. The GORM hooks below fail any update/delete closed.
type ConsumptionEvent struct {
	ID              uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId      string          `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId      string          `gorm:"type:char(36);index:idx_event_loc_item_ts,priority:1;not null" json:"location_id"`
	InventoryItemId uuid.UUID       `gorm:"type:char(36);index:idx_event_loc_item_ts,priority:2;uniqueIndex:uq_event_line_item,priority:2;not null" json:"inventory_item_id"`
	EventType       EventType       `gorm:"type:enum('pos_sale','tap_flow','receiving','transfer','manual_adjustment','inventory_count_adjustment');not null" json:"event_type"`
	SourceSystem    SourceSystem    `gorm:"type:enum('toast','square','lightspeed','clover','other','manual');not null" json:"source_system"`
	EventTs         time.Time       `gorm:"index:idx_event_loc_item_ts,priority:3;not null" json:"event_ts"`
	QuantityDelta   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_delta"`
	UOM             UOM             `gorm:"type:enum('units','oz','ml','grams');not null" json:"uom"`
	ConfidenceLevel ConfidenceLevel `gorm:"type:enum('theoretical','measured','estimated');not null" json:"confidence_level"`
	VarianceReason  *VarianceReason `gorm:"type:enum('waste_foam','comp','staff_drink','theft','breakage','line_cleaning','transfer','unknown')" json:"variance_reason"`

	// Sale linkage. A sales line that fans out to N ingredients produces N
	// rows sharing the same SalesLineId/ReceiptId; the unique index makes a
	// concurrent duplicate depletion of the same (line, item) fail closed.
	ReceiptId   *string    `gorm:"size:191" json:"receipt_id"`
	SalesLineId *uuid.UUID `gorm:"type:char(36);index;uniqueIndex:uq_event_line_item,priority:1" json:"sales_line_id"`

	// Draft linkage.
	KegInstanceId *uuid.UUID `gorm:"type:char(36);index" json:"keg_instance_id"`
	TapLineId     *uuid.UUID `gorm:"type:char(36);index" json:"tap_line_id"`

	// Correction linkage: set on the reversal row, pointing at the corrected event.
	ReversalOfEventId *uuid.UUID `gorm:"type:char(36);index" json:"reversal_of_event_id"`

	Notes         *string   `gorm:"type:text" json:"notes"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e *ConsumptionEvent) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

var ErrLedgerImmutable = errors.New("consumption events are immutable; use the correction workflow")

func (e *ConsumptionEvent) BeforeUpdate(tx *gorm.DB) error {
	_ = tx
	if config.StrictLedgerImmutability() {
		return ErrLedgerImmutable
	}
	return nil
}

func (e *ConsumptionEvent) BeforeDelete(tx *gorm.DB) error {
	_ = tx
	if config.StrictLedgerImmutability() {
		return ErrLedgerImmutable
	}
	return nil
}

// IsReversal reports whether this event corrects another event.
func (e *ConsumptionEvent) IsReversal() bool {
	return e.ReversalOfEventId != nil
}

func GetConsumptionEventById(ctx context.Context, db *gorm.DB, eventId uuid.UUID) (*ConsumptionEvent, error) {
	var event ConsumptionEvent
	if err := db.WithContext(ctx).Where("id = ?", eventId).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// HasEventsForSalesLine is the depletion idempotency check: a linked event
// means the line was already processed.
func HasEventsForSalesLine(ctx context.Context, db *gorm.DB, salesLineId uuid.UUID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&ConsumptionEvent{}).
		Where("sales_line_id = ?", salesLineId).
		Count(&count).Error
	return count > 0, err
}

// GetEventsForItem returns ledger rows for one item in [fromTs, toTs), oldest first.
func GetEventsForItem(ctx context.Context, db *gorm.DB, locationId string, itemId uuid.UUID, fromTs, toTs time.Time) ([]*ConsumptionEvent, error) {
	var events []*ConsumptionEvent
	err := db.WithContext(ctx).
		Where("location_id = ? AND inventory_item_id = ? AND event_ts >= ? AND event_ts < ?",
			locationId, itemId, fromTs, toTs).
		Order("event_ts, created_at").
		Find(&events).Error
	return events, err
}

// GetAllEventsForItem replays the full ledger for one item up to asOf.
func GetAllEventsForItem(ctx context.Context, db *gorm.DB, locationId string, itemId uuid.UUID, asOf time.Time) ([]*ConsumptionEvent, error) {
	var events []*ConsumptionEvent
	err := db.WithContext(ctx).
		Where("location_id = ? AND inventory_item_id = ? AND event_ts <= ?", locationId, itemId, asOf).
		Order("event_ts, created_at").
		Find(&events).Error
	return events, err
}

// SumDeltasForItem is the ledger-side on-hand sum (full replay semantics).
func SumDeltasForItem(ctx context.Context, db *gorm.DB, locationId string, itemId uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	var raw *string
	err := db.WithContext(ctx).
		Model(&ConsumptionEvent{}).
		Select("CAST(SUM(quantity_delta) AS CHAR)").
		Where("location_id = ? AND inventory_item_id = ? AND event_ts <= ?", locationId, itemId, asOf).
		Scan(&raw).Error
	if err != nil || raw == nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(*raw)
}
