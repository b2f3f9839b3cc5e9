package models

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// KegSize is a standard keg volume (½ bbl, ¼ bbl, 50L, ...).
type KegSize struct {
	ID      uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	Name    string          `gorm:"size:100;not null" json:"name"`
	TotalOz decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_oz"`
}

func (k *KegSize) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}

// KegInstance tracks one physical keg through its lifecycle. Remaining volume
// is derived from the ledger, never stored.
type KegInstance struct {
	ID              uuid.UUID  `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId      string     `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId      string     `gorm:"type:char(36);index;not null" json:"location_id"`
	InventoryItemId uuid.UUID  `gorm:"type:char(36);index;not null" json:"inventory_item_id"`
	KegSizeId       uuid.UUID  `gorm:"type:char(36);not null" json:"keg_size_id"`
	Status          KegStatus  `gorm:"type:enum('in_storage','in_service','empty','returned');not null;default:in_storage" json:"status"`
	ReceivedTs      time.Time  `gorm:"not null" json:"received_ts"`
	TappedTs        *time.Time `json:"tapped_ts"`
	EmptiedTs       *time.Time `json:"emptied_ts"`

	StartingOz decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"starting_oz"`
	Notes      *string         `gorm:"type:text" json:"notes"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (k *KegInstance) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}

// RemainingOz replays this keg's ledger rows against its starting volume.
// Deltas are negative for pours, so a straight sum applies them.
func RemainingOz(startingOz decimal.Decimal, kegEvents []*ConsumptionEvent, asOf time.Time) decimal.Decimal {
	remaining := startingOz
	for _, e := range kegEvents {
		if e == nil || e.EventTs.After(asOf) {
			continue
		}
		remaining = remaining.Add(e.QuantityDelta)
	}
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// TapLine is a physical tap at a location.
type TapLine struct {
	ID         uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId string    `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId string    `gorm:"type:char(36);index;not null" json:"location_id"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (t *TapLine) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TapAssignment binds a keg to a tap for an effective window. Draft depletion
// requires the assignment in force at the sale's soldAt.
type TapAssignment struct {
	ID               uuid.UUID  `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId       string     `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId       string     `gorm:"type:char(36);index;not null" json:"location_id"`
	TapLineId        uuid.UUID  `gorm:"type:char(36);index;not null" json:"tap_line_id"`
	KegInstanceId    uuid.UUID  `gorm:"type:char(36);index;not null" json:"keg_instance_id"`
	EffectiveStartTs time.Time  `gorm:"index;not null" json:"effective_start_ts"`
	EffectiveEndTs   *time.Time `json:"effective_end_ts"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (t *TapAssignment) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ActiveAssignment picks the assignment whose window contains asOf. Most
// recent start wins if data is dirty with overlaps.
func ActiveAssignment(assignments []*TapAssignment, asOf time.Time) *TapAssignment {
	var active []*TapAssignment
	for _, a := range assignments {
		if a == nil {
			continue
		}
		if a.EffectiveStartTs.After(asOf) {
			continue
		}
		if a.EffectiveEndTs != nil && !a.EffectiveEndTs.After(asOf) {
			continue
		}
		active = append(active, a)
	}
	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].EffectiveStartTs.After(active[j].EffectiveStartTs)
	})
	return active[0]
}

// GetActiveTapAssignment loads candidate assignments for a tap and resolves
// against the sale timestamp.
func GetActiveTapAssignment(ctx context.Context, db *gorm.DB, tapLineId uuid.UUID, asOf time.Time) (*TapAssignment, error) {
	var assignments []*TapAssignment
	err := db.WithContext(ctx).
		Where("tap_line_id = ?", tapLineId).
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return ActiveAssignment(assignments, asOf), nil
}

// PourProfile is a named pour size used to convert draft sales to ounces.
type PourProfile struct {
	ID         uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId string          `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId string          `gorm:"type:char(36);index;not null" json:"location_id"`
	Name       string          `gorm:"size:100;not null" json:"name"`
	Oz         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"oz"`
	Active     *bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (p *PourProfile) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
