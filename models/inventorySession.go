package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventorySession is one physical counting session. Closing a session emits
// inventory_count_adjustment ledger rows; the session itself owns no stock.
type InventorySession struct {
	ID          uuid.UUID   `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId  string      `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId  string      `gorm:"type:char(36);index;not null" json:"location_id"`
	SessionType SessionType `gorm:"type:enum('shift','daily','weekly','monthly');not null" json:"session_type"`
	StartedTs   time.Time   `gorm:"not null" json:"started_ts"`
	EndedTs     *time.Time  `json:"ended_ts"`
	CreatedBy   *int        `json:"created_by"`
	ClosedBy    *int        `json:"closed_by"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`

	Lines []InventorySessionLine `gorm:"foreignKey:SessionId" json:"lines,omitempty"`
}

func (s *InventorySession) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *InventorySession) IsClosed() bool {
	return s.EndedTs != nil
}

// InventorySessionLine records one observation per item. Three count methods:
// unit count (packaged), percent remaining (draft keg), gross weight (liquor
// on a scale).
type InventorySessionLine struct {
	ID              uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	SessionId       uuid.UUID `gorm:"type:char(36);index;not null" json:"session_id"`
	InventoryItemId uuid.UUID `gorm:"type:char(36);index;not null" json:"inventory_item_id"`

	CountUnits *decimal.Decimal `gorm:"type:decimal(20,4)" json:"count_units"`

	TapLineId        *uuid.UUID       `gorm:"type:char(36)" json:"tap_line_id"`
	KegInstanceId    *uuid.UUID       `gorm:"type:char(36)" json:"keg_instance_id"`
	PercentRemaining *decimal.Decimal `gorm:"type:decimal(20,4)" json:"percent_remaining"`

	GrossWeightGrams *decimal.Decimal `gorm:"type:decimal(20,4)" json:"gross_weight_grams"`
	DerivedOz        *decimal.Decimal `gorm:"type:decimal(20,4)" json:"derived_oz"`
	IsManual         *bool            `gorm:"not null;default:false" json:"is_manual"`

	Notes     *string   `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l *InventorySessionLine) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// CountedQuantity resolves the observation to a quantity and unit, trying the
// count methods in priority order. kegStartingOz is needed only for
// percent-remaining lines; pass zero otherwise.
func (l *InventorySessionLine) CountedQuantity(kegStartingOz decimal.Decimal) (*decimal.Decimal, UOM) {
	if l.CountUnits != nil {
		return l.CountUnits, UOMUnits
	}
	if l.PercentRemaining != nil && l.KegInstanceId != nil && kegStartingOz.IsPositive() {
		oz := l.PercentRemaining.Div(decimal.NewFromInt(100)).Mul(kegStartingOz)
		return &oz, UOMOz
	}
	if l.DerivedOz != nil {
		return l.DerivedOz, UOMOz
	}
	if l.GrossWeightGrams != nil {
		return l.GrossWeightGrams, UOMGrams
	}
	return nil, ""
}

// LatestCount is the most recent physical observation per item; the predictor
// treats it as ground truth.
type LatestCount struct {
	InventoryItemId uuid.UUID       `json:"inventory_item_id"`
	CountedAt       time.Time       `json:"counted_at"`
	Quantity        decimal.Decimal `json:"quantity"`
	UOM             UOM             `json:"uom"`
}

// GetLatestCounts returns, per item, the newest session line observation at
// the location, resolved to a concrete quantity. Lines whose count method
// cannot be resolved are skipped.
func GetLatestCounts(ctx context.Context, db *gorm.DB, locationId string, asOf time.Time) (map[uuid.UUID]*LatestCount, error) {
	type row struct {
		InventorySessionLine
		SessionStartedTs time.Time
		StartingOz       *decimal.Decimal
	}

	var rows []row
	err := db.WithContext(ctx).
		Table("inventory_session_lines").
		Select("inventory_session_lines.*, inventory_sessions.started_ts AS session_started_ts, keg_instances.starting_oz AS starting_oz").
		Joins("JOIN inventory_sessions ON inventory_sessions.id = inventory_session_lines.session_id").
		Joins("LEFT JOIN keg_instances ON keg_instances.id = inventory_session_lines.keg_instance_id").
		Where("inventory_sessions.location_id = ? AND inventory_sessions.started_ts <= ?", locationId, asOf).
		Order("inventory_sessions.started_ts DESC, inventory_session_lines.created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[uuid.UUID]*LatestCount)
	for _, r := range rows {
		if _, seen := latest[r.InventoryItemId]; seen {
			continue
		}
		startingOz := decimal.Zero
		if r.StartingOz != nil {
			startingOz = *r.StartingOz
		}
		qty, uom := r.CountedQuantity(startingOz)
		if qty == nil {
			continue
		}
		latest[r.InventoryItemId] = &LatestCount{
			InventoryItemId: r.InventoryItemId,
			CountedAt:       r.SessionStartedTs,
			Quantity:        *qty,
			UOM:             uom,
		}
	}
	return latest, nil
}
