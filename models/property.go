package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Property is a dependent listing row owned by a Seller. Soft delete and
// recovery cascade from the owning seller by SellerId.
type Property struct {
	ID             int              `gorm:"primary_key" json:"id"`
	SellerId       int              `gorm:"index;not null" json:"seller_id" binding:"required"`
	PropertyNumber string           `gorm:"index;size:30;not null" json:"property_number" binding:"required"`
	PropertyType   string           `gorm:"size:50" json:"property_type"`
	Address        string           `gorm:"type:text" json:"address"`
	LandArea       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"land_area"`
	BuildingArea   *decimal.Decimal `gorm:"type:decimal(20,4)" json:"building_area"`
	Price          *decimal.Decimal `gorm:"type:decimal(20,4)" json:"price"`
	DeletedAt      *time.Time       `gorm:"index" json:"deleted_at"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
