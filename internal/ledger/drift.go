package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/pkg/enums"
)

// Drift is a variant whose reserved counter disagrees with the quantities
// held by its tenant's pending orders.
type Drift struct {
	TenantID   uuid.UUID
	VariantID  uuid.UUID
	SKU        string
	Reserved   int
	PendingQty int
}

// Delta is positive when reserved is inflated relative to pending orders.
func (d Drift) Delta() int {
	return d.Reserved - d.PendingQty
}

const driftQuery = `
SELECT v.tenant_id, v.id AS variant_id, v.sku, v.reserved, COALESCE(p.pending_qty, 0) AS pending_qty
FROM variants v
LEFT JOIN (
	SELECT oi.tenant_id, oi.variant_id, SUM(oi.qty) AS pending_qty
	FROM order_items oi
	JOIN orders o ON o.id = oi.order_id AND o.tenant_id = oi.tenant_id
	WHERE o.status = ?
	GROUP BY oi.tenant_id, oi.variant_id
) p ON p.variant_id = v.id AND p.tenant_id = v.tenant_id
WHERE v.reserved <> COALESCE(p.pending_qty, 0)
AND NOT EXISTS (
	SELECT 1 FROM stock_audit_entries a
	WHERE a.tenant_id = v.tenant_id AND a.variant_id = v.id AND a.created_at > ?
)
ORDER BY v.tenant_id, v.id
LIMIT ?`

// DriftReader audits reserved counters. It never writes.
type DriftReader struct {
	db *gorm.DB
}

func NewDriftReader(db *gorm.DB) *DriftReader {
	return &DriftReader{db: db}
}

// ReservationDrift lists mismatched variants. Variants with a counter change
// after quietSince are skipped: checkout reserves before its order row
// commits, so a fresh mismatch may belong to a saga still in flight. A zero
// quietSince applies no grace.
func (r *DriftReader) ReservationDrift(ctx context.Context, limit int, quietSince time.Time) ([]Drift, error) {
	if limit <= 0 {
		limit = 500
	}
	if quietSince.IsZero() {
		quietSince = time.Now().UTC()
	}
	var rows []Drift
	err := r.db.WithContext(ctx).
		Raw(driftQuery, enums.OrderStatusPending, quietSince.UTC(), limit).
		Scan(&rows).Error
	return rows, err
}
