package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/pkg/enums"
)

// Return records the post-sale disposition of one or more order items.
type Return struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	TenantID        uuid.UUID             `gorm:"column:tenant_id;type:uuid;not null"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index:ix_returns_order"`
	Type            enums.ReturnType      `gorm:"column:type;type:text;not null"`
	InventoryAction enums.InventoryAction `gorm:"column:inventory_action;type:text;not null"`
	Status          enums.ReturnStatus    `gorm:"column:status;type:text;not null"`
	Reason          string                `gorm:"column:reason;not null"`
	Actor           string                `gorm:"column:actor;not null"`
	Items           []ReturnItem          `gorm:"foreignKey:ReturnID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (r *Return) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReturnItem links a return to the order item it covers.
type ReturnItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ReturnID    uuid.UUID `gorm:"column:return_id;type:uuid;not null"`
	OrderItemID uuid.UUID `gorm:"column:order_item_id;type:uuid;not null"`
	VariantID   uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	Qty         int       `gorm:"column:qty;not null"`
}

func (i *ReturnItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
