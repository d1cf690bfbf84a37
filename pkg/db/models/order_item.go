package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderItem freezes the unit price paid for a variant at order creation.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TenantID       uuid.UUID `gorm:"column:tenant_id;type:uuid;not null"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index:ix_order_items_order"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	LineTotalCents int       `gorm:"column:line_total_cents;not null"`
	ReturnedQty    int       `gorm:"column:returned_qty;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// RemainingQty is what can still be returned.
func (i OrderItem) RemainingQty() int {
	return i.Qty - i.ReturnedQty
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
