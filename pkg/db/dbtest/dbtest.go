// Package dbtest opens throwaway SQLite databases migrated with every model.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	"github.com/solestack/storefront/pkg/types"
)

// New returns an isolated in-memory database. A single connection keeps
// concurrent tests honest: goroutines interleave at statement granularity
// the same way they would against a row lock.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:storefront_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// SeedVariant inserts a variant with the given counters and returns it.
func SeedVariant(t testing.TB, conn *gorm.DB, tenantID uuid.UUID, priceCents, stock, reserved int) models.Variant {
	t.Helper()

	variant := models.Variant{
		TenantID:   tenantID,
		ProductID:  uuid.New(),
		SKU:        "SKU-" + uuid.NewString()[:8],
		Size:       "10",
		Condition:  "new",
		PriceCents: priceCents,
		Stock:      stock,
		Reserved:   reserved,
	}
	if err := conn.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant
}

// LoadVariant reads the current counters of a variant.
func LoadVariant(t testing.TB, conn *gorm.DB, id uuid.UUID) models.Variant {
	t.Helper()

	var variant models.Variant
	if err := conn.First(&variant, "id = ?", id).Error; err != nil {
		t.Fatalf("load variant: %v", err)
	}
	return variant
}

// SeedOrder inserts an order in the given status with items priced from
// the supplied lines. Totals are derived from the items.
func SeedOrder(t testing.TB, conn *gorm.DB, tenantID uuid.UUID, status enums.OrderStatus, items ...models.OrderItem) models.Order {
	t.Helper()

	order := models.Order{
		TenantID:       tenantID,
		CustomerID:     uuid.New(),
		Status:         status,
		Currency:       "usd",
		ShippingMethod: "standard",
		PaymentRail:    enums.PaymentRailCard,
		ShippingAddress: types.Address{
			Name:       "Test Customer",
			Line1:      "1 Test St",
			City:       "Austin",
			Region:     "TX",
			PostalCode: "78701",
			Country:    "US",
		},
	}
	for i := range items {
		items[i].TenantID = tenantID
		if items[i].LineTotalCents == 0 {
			items[i].LineTotalCents = items[i].UnitPriceCents * items[i].Qty
		}
		order.SubtotalCents += items[i].LineTotalCents
	}
	order.TotalCents = order.SubtotalCents
	order.Items = items
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// LoadOrder reads an order with its items.
func LoadOrder(t testing.TB, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()

	var order models.Order
	if err := conn.Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order
}
