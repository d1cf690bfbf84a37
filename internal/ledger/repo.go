package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/pkg/db/models"
)

// Repository issues the conditional counter updates behind the stock ledger.
// Every method that changes a counter is a single UPDATE whose WHERE clause
// carries the precondition, so concurrent callers never read-then-write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	IncrementReserved(ctx context.Context, tenantID, variantID uuid.UUID, qty int) (bool, error)
	DecrementReserved(ctx context.Context, tenantID, variantID uuid.UUID, qty int) (bool, error)
	ZeroReservedBelow(ctx context.Context, tenantID, variantID uuid.UUID, qty int) (bool, error)
	ConsumeReserved(ctx context.Context, tenantID, variantID uuid.UUID, qty int) (bool, error)
	ShiftStock(ctx context.Context, tenantID, variantID uuid.UUID, delta int) (bool, error)
	FindVariant(ctx context.Context, tenantID, variantID uuid.UUID) (*models.Variant, error)
	AppendAudit(ctx context.Context, entry *models.StockAuditEntry) error
	ListAudit(ctx context.Context, tenantID, variantID uuid.UUID, limit int) ([]models.StockAuditEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) variant(ctx context.Context, tenantID, variantID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("tenant_id = ? AND id = ?", tenantID, variantID)
}

func applied(res *gorm.DB) (bool, error) {
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementReserved(ctx context.Context, tenantID, variantID uuid.UUID, qty int) (bool, error) {
	return applied(r.variant(ctx, tenantID, variantID).
		Where("stock - reserved >= ?", qty).
		UpdateColumns(map[string]any{
			"reserved":   gorm.Expr("reserved + ?", qty),
			"updated_at": time.Now().UTC(),
		}))
}

func (r *repository) DecrementReserved(ctx context.Context, tenantID, variantID uuid.UUID, qty int) (bool, error) {
	return applied(r.variant(ctx, tenantID, variantID).
		Where("reserved >= ?", qty).
		UpdateColumns(map[string]any{
			"reserved":   gorm.Expr("reserved - ?", qty),
			"updated_at": time.Now().UTC(),
		}))
}

func (r *repository) ZeroReservedBelow(ctx context.Context, tenantID, variantID uuid.UUID, qty int) (bool, error) {
	return applied(r.variant(ctx, tenantID, variantID).
		Where("reserved < ?", qty).
		UpdateColumns(map[string]any{
			"reserved":   0,
			"updated_at": time.Now().UTC(),
		}))
}

func (r *repository) ConsumeReserved(ctx context.Context, tenantID, variantID uuid.UUID, qty int) (bool, error) {
	return applied(r.variant(ctx, tenantID, variantID).
		Where("reserved >= ? AND stock >= ?", qty, qty).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"reserved":   gorm.Expr("reserved - ?", qty),
			"updated_at": time.Now().UTC(),
		}))
}

func (r *repository) ShiftStock(ctx context.Context, tenantID, variantID uuid.UUID, delta int) (bool, error) {
	return applied(r.variant(ctx, tenantID, variantID).
		Where("stock + ? >= reserved", delta).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock + ?", delta),
			"updated_at": time.Now().UTC(),
		}))
}

func (r *repository) FindVariant(ctx context.Context, tenantID, variantID uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, variantID).
		First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) AppendAudit(ctx context.Context, entry *models.StockAuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListAudit(ctx context.Context, tenantID, variantID uuid.UUID, limit int) ([]models.StockAuditEntry, error) {
	var entries []models.StockAuditEntry
	q := r.db.WithContext(ctx).
		Where("tenant_id = ? AND variant_id = ?", tenantID, variantID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
