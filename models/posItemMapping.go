package models

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// POSItemMapping is the time-versioned rule that translates a POS item into
// inventory depletion. For a given (location, source system, pos item) at most
// one row should be active and effective at any instant; overlapping windows
// are a data-integrity problem surfaced by ResolveMapping.
type POSItemMapping struct {
	ID              uuid.UUID    `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId      string       `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId      string       `gorm:"type:char(36);index:idx_mapping_loc_src_item,priority:1;not null" json:"location_id"`
	SourceSystem    SourceSystem `gorm:"type:enum('toast','square','lightspeed','clover','other','manual');index:idx_mapping_loc_src_item,priority:2;not null" json:"source_system"`
	PosItemId       string       `gorm:"size:191;index:idx_mapping_loc_src_item,priority:3;not null" json:"pos_item_id"`
	Mode            MappingMode  `gorm:"type:enum('packaged_unit','draft_by_tap','recipe','draft_by_product');not null" json:"mode"`
	InventoryItemId *uuid.UUID   `gorm:"type:char(36);index" json:"inventory_item_id"`
	PourProfileId   *uuid.UUID   `gorm:"type:char(36)" json:"pour_profile_id"`
	TapLineId       *uuid.UUID   `gorm:"type:char(36)" json:"tap_line_id"`
	RecipeId        *uuid.UUID   `gorm:"type:char(36)" json:"recipe_id"`
	Active          *bool        `gorm:"not null;default:true" json:"active"`
	EffectiveFromTs time.Time    `gorm:"index;not null" json:"effective_from_ts"`
	EffectiveToTs   *time.Time   `json:"effective_to_ts"`
	CreatedAt       time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (m *POSItemMapping) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// IsEffective reports whether the mapping's window contains asOf.
func (m *POSItemMapping) IsEffective(asOf time.Time) bool {
	if m.Active == nil || !*m.Active {
		return false
	}
	if m.EffectiveFromTs.After(asOf) {
		return false
	}
	if m.EffectiveToTs != nil && !m.EffectiveToTs.After(asOf) {
		return false
	}
	return true
}

// MappingResolution is the outcome of an interval lookup: the winning mapping
// plus any losers whose windows also contained the instant. Overlap means the
// mapping table for this key violates the single-active-window invariant.
type MappingResolution struct {
	Mapping     *POSItemMapping
	Overlapping []*POSItemMapping
}

// ResolveMapping selects the mapping effective at asOf from candidate rows for
// one (location, source system, pos item) key. When several windows overlap,
// the most recently effective one wins and the rest are reported so callers
// can flag the integrity violation instead of silently picking.
func ResolveMapping(candidates []*POSItemMapping, asOf time.Time) MappingResolution {
	var effective []*POSItemMapping
	for _, m := range candidates {
		if m != nil && m.IsEffective(asOf) {
			effective = append(effective, m)
		}
	}
	if len(effective) == 0 {
		return MappingResolution{}
	}
	sort.Slice(effective, func(i, j int) bool {
		if !effective[i].EffectiveFromTs.Equal(effective[j].EffectiveFromTs) {
			return effective[i].EffectiveFromTs.After(effective[j].EffectiveFromTs)
		}
		return effective[i].CreatedAt.After(effective[j].CreatedAt)
	})
	return MappingResolution{
		Mapping:     effective[0],
		Overlapping: effective[1:],
	}
}

// GetActiveMapping resolves the rule in force at asOf. asOf must be the sale's
// soldAt timestamp, not the current time, so historical re-processing uses the
// rule that applied when the sale happened.
func GetActiveMapping(ctx context.Context, db *gorm.DB, locationId string, sourceSystem SourceSystem, posItemId string, asOf time.Time) (MappingResolution, error) {
	var candidates []*POSItemMapping
	err := db.WithContext(ctx).
		Where("location_id = ? AND source_system = ? AND pos_item_id = ? AND active = ?",
			locationId, sourceSystem, posItemId, true).
		Find(&candidates).Error
	if err != nil {
		return MappingResolution{}, err
	}
	return ResolveMapping(candidates, asOf), nil
}

// FindOverlappingMappings scans a location's mapping table for keys with more
// than one active row effective at the same instant. Used by the audit tool.
func FindOverlappingMappings(ctx context.Context, db *gorm.DB, locationId string) ([][2]*POSItemMapping, error) {
	var rows []*POSItemMapping
	err := db.WithContext(ctx).
		Where("location_id = ? AND active = ?", locationId, true).
		Order("source_system, pos_item_id, effective_from_ts").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	var overlaps [][2]*POSItemMapping
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			a, b := rows[i], rows[j]
			if a.SourceSystem != b.SourceSystem || a.PosItemId != b.PosItemId {
				break
			}
			if windowsOverlap(a, b) {
				overlaps = append(overlaps, [2]*POSItemMapping{a, b})
			}
		}
	}
	return overlaps, nil
}

func windowsOverlap(a, b *POSItemMapping) bool {
	aEnd := a.EffectiveToTs
	bEnd := b.EffectiveToTs
	if aEnd != nil && !aEnd.After(b.EffectiveFromTs) {
		return false
	}
	if bEnd != nil && !bEnd.After(a.EffectiveFromTs) {
		return false
	}
	return true
}
