package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// SalesLine is the canonical, POS-agnostic representation of one sold line.
// Rows are written once on import and never mutated; re-imports of the same
// export are absorbed by the natural-key unique index.
type SalesLine struct {
	ID               uuid.UUID        `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId       string           `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId       string           `gorm:"type:char(36);index;not null" json:"location_id"`
	SourceSystem     SourceSystem     `gorm:"type:enum('toast','square','lightspeed','clover','other','manual');not null;uniqueIndex:uq_sales_line_natural,priority:1" json:"source_system"`
	SourceLocationId string           `gorm:"size:100;not null;uniqueIndex:uq_sales_line_natural,priority:2" json:"source_location_id"`
	BusinessDate     time.Time        `gorm:"type:date;index;not null;uniqueIndex:uq_sales_line_natural,priority:3" json:"business_date"`
	ReceiptId        string           `gorm:"size:191;not null;uniqueIndex:uq_sales_line_natural,priority:4" json:"receipt_id"`
	LineId           string           `gorm:"size:191;not null;uniqueIndex:uq_sales_line_natural,priority:5" json:"line_id"`
	SizeModifierId   string           `gorm:"size:100;not null;default:'';uniqueIndex:uq_sales_line_natural,priority:6" json:"size_modifier_id"`
	SoldAt           time.Time        `gorm:"index;not null" json:"sold_at"`
	PosItemId        string           `gorm:"size:191;index;not null" json:"pos_item_id"`
	PosItemName      string           `gorm:"size:255;not null" json:"pos_item_name"`
	Quantity         decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitSalePrice    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_sale_price"`
	IsVoided         *bool            `gorm:"not null;default:false" json:"is_voided"`
	IsRefunded       *bool            `gorm:"not null;default:false" json:"is_refunded"`
	SizeModifierName *string          `gorm:"size:255" json:"size_modifier_name"`
	RawPayloadJSON   []byte           `gorm:"type:json" json:"raw_payload_json"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (s *SalesLine) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	// gorm's portable duplicate error (also returned by some drivers).
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// InsertSalesLineStats reports what a batch insert actually did.
type InsertSalesLineStats struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// InsertSalesLines appends canonical lines with insert-or-ignore semantics:
// natural-key collisions are counted, not errored, so re-importing the same
// export is a no-op.
func InsertSalesLines(ctx context.Context, tx *gorm.DB, lines []*SalesLine) (InsertSalesLineStats, error) {
	stats := InsertSalesLineStats{}
	for _, line := range lines {
		if line == nil {
			continue
		}
		if err := tx.WithContext(ctx).Create(line).Error; err != nil {
			if IsDuplicateKeyErr(err) {
				stats.Duplicates++
				continue
			}
			return stats, err
		}
		stats.Inserted++
	}
	return stats, nil
}

// GetSalesLinesInWindow returns lines with soldAt in [fromTs, toTs), ordered
// for deterministic processing.
func GetSalesLinesInWindow(ctx context.Context, db *gorm.DB, locationId string, fromTs, toTs time.Time) ([]*SalesLine, error) {
	var lines []*SalesLine
	err := db.WithContext(ctx).
		Where("location_id = ? AND sold_at >= ? AND sold_at < ?", locationId, fromTs, toTs).
		Order("sold_at, receipt_id, line_id").
		Find(&lines).Error
	return lines, err
}
