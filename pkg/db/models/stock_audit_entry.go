package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/pkg/enums"
)

// StockAuditEntry is the append-only trail written next to every counter change.
type StockAuditEntry struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null"`
	VariantID     uuid.UUID            `gorm:"column:variant_id;type:uuid;not null;index:ix_stock_audit_variant"`
	Operation     enums.StockOperation `gorm:"column:operation;type:text;not null"`
	StockDelta    int                  `gorm:"column:stock_delta;not null;default:0"`
	ReservedDelta int                  `gorm:"column:reserved_delta;not null;default:0"`
	Reason        string               `gorm:"column:reason;not null"`
	Actor         string               `gorm:"column:actor;not null"`
	OrderID       *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (e *StockAuditEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
