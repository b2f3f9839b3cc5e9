package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recipe is a named multi-ingredient definition. A recipe-mapped sale fans out
// to one ledger row per ingredient.
type Recipe struct {
	ID         uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId string    `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId string    `gorm:"type:char(36);index;not null" json:"location_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Active     *bool     `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	Ingredients []RecipeIngredient `gorm:"foreignKey:RecipeId" json:"ingredients,omitempty"`
}

func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

type RecipeIngredient struct {
	ID              uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	RecipeId        uuid.UUID       `gorm:"type:char(36);index;not null" json:"recipe_id"`
	InventoryItemId uuid.UUID       `gorm:"type:char(36);index;not null" json:"inventory_item_id"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UOM             UOM             `gorm:"type:enum('units','oz','ml','grams');not null" json:"uom"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (ri *RecipeIngredient) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	if ri.ID == uuid.Nil {
		ri.ID = uuid.New()
	}
	return nil
}

func GetRecipeWithIngredients(ctx context.Context, db *gorm.DB, recipeId uuid.UUID) (*Recipe, error) {
	var recipe Recipe
	err := db.WithContext(ctx).
		Preload("Ingredients").
		Where("id = ?", recipeId).
		First(&recipe).Error
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}
