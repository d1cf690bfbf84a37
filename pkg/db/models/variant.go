package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Variant is one sellable size/condition of a product. Stock and Reserved
// only move through the stock ledger's conditional updates.
type Variant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TenantID   uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index:ix_variants_tenant"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	SKU        string    `gorm:"column:sku;not null"`
	Size       string    `gorm:"column:size;not null"`
	Condition  string    `gorm:"column:condition;not null;default:'new'"`
	PriceCents int       `gorm:"column:price_cents;not null"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	Reserved   int       `gorm:"column:reserved;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Available is what a new reservation may still claim.
func (v Variant) Available() int {
	return v.Stock - v.Reserved
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
