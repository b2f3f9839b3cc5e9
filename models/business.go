package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/barledger_backend/config"
	"gorm.io/gorm"
)

type Business struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255" json:"email"`
	Timezone  string    `gorm:"size:64;default:UTC" json:"timezone"`
	Active    *bool     `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Locations []Location `gorm:"foreignKey:BusinessId" json:"locations,omitempty"`
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Location is a physical venue under a business. All ledger rows, counts and
// mappings are scoped to one location.
type Location struct {
	ID         uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId string    `gorm:"type:char(36);index;not null" json:"business_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Timezone   string    `gorm:"size:64;default:UTC" json:"timezone"`
	Active     *bool     `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l *Location) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func GetLocationById(ctx context.Context, locationId string) (*Location, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	var location Location
	if err := db.WithContext(ctx).Where("id = ?", locationId).First(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}
