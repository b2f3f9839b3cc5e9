package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InventoryItem struct {
	ID           uuid.UUID         `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId   string            `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId   string            `gorm:"type:char(36);index;not null" json:"location_id"`
	Type         InventoryItemType `gorm:"type:enum('packaged_beer','keg_beer','liquor','wine','food','misc');not null" json:"type"`
	Name         string            `gorm:"size:255;not null" json:"name"`
	CategoryName string            `gorm:"size:100" json:"category_name"`
	Barcode      *string           `gorm:"size:100;index" json:"barcode"`
	VendorSku    *string           `gorm:"size:100" json:"vendor_sku"`
	BaseUOM      UOM               `gorm:"type:enum('units','oz','ml','grams');not null" json:"base_uom"`
	PackSize     *decimal.Decimal  `gorm:"type:decimal(20,4)" json:"pack_size"`
	PackUOM      *UOM              `gorm:"type:enum('units','oz','ml','grams')" json:"pack_uom"`
	ParLevel     *decimal.Decimal  `gorm:"type:decimal(20,4)" json:"par_level"`
	Active       *bool             `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	PriceHistory []PriceHistory `gorm:"foreignKey:InventoryItemId" json:"price_history,omitempty"`
}

func (i *InventoryItem) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// PriceHistory is the time-versioned unit cost of an item. It is used for
// valuation only; depletion math never reads it.
type PriceHistory struct {
	ID              uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId      string          `gorm:"type:char(36);index;not null" json:"business_id"`
	InventoryItemId uuid.UUID       `gorm:"type:char(36);index;not null" json:"inventory_item_id"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	Currency        string          `gorm:"size:3;not null;default:CAD" json:"currency"`
	EffectiveFromTs time.Time       `gorm:"index;not null" json:"effective_from_ts"`
	EffectiveToTs   *time.Time      `json:"effective_to_ts"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (p *PriceHistory) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// CurrentPrice returns the unit cost in force at asOf, or nil when the item
// has no effective price row at that instant.
func CurrentPrice(history []PriceHistory, asOf time.Time) *decimal.Decimal {
	sorted := make([]PriceHistory, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EffectiveFromTs.After(sorted[j].EffectiveFromTs)
	})
	for _, p := range sorted {
		if p.EffectiveFromTs.After(asOf) {
			continue
		}
		if p.EffectiveToTs == nil || p.EffectiveToTs.After(asOf) {
			cost := p.UnitCost
			return &cost
		}
	}
	return nil
}
