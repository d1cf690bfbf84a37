package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/pkg/enums"
	"github.com/solestack/storefront/pkg/types"
)

// Order is one checkout attempt that made it past reservation.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TenantID         uuid.UUID         `gorm:"column:tenant_id;type:uuid;not null;index:ix_orders_tenant_status"`
	CustomerID       uuid.UUID         `gorm:"column:customer_id;type:uuid;not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending';index:ix_orders_tenant_status"`
	Currency         string            `gorm:"column:currency;type:text;not null;default:'usd'"`
	SubtotalCents    int               `gorm:"column:subtotal_cents;not null"`
	ShippingCents    int               `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents         int               `gorm:"column:tax_cents;not null;default:0"`
	TotalCents       int               `gorm:"column:total_cents;not null"`
	ShippingAddress  types.Address     `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	ShippingMethod   string            `gorm:"column:shipping_method;not null"`
	PaymentRail      enums.PaymentRail `gorm:"column:payment_rail;type:text;not null"`
	PaymentReference *string           `gorm:"column:payment_reference"`
	RailStatus       *string           `gorm:"column:rail_status"`
	TrackingNumber   *string           `gorm:"column:tracking_number"`
	CancelReason     *string           `gorm:"column:cancel_reason"`
	PaidAt           *time.Time        `gorm:"column:paid_at"`
	FulfilledAt      *time.Time        `gorm:"column:fulfilled_at"`
	ShippedAt        *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time        `gorm:"column:delivered_at"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	RefundedAt       *time.Time        `gorm:"column:refunded_at"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
