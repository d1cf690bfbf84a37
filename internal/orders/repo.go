package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	"github.com/solestack/storefront/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
// Every call is scoped to one tenant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	DeletePending(ctx context.Context, tenantID, orderID uuid.UUID) (bool, error)
	CompareAndSetStatus(ctx context.Context, tenantID, orderID uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error)
	UpdateRailStatus(ctx context.Context, tenantID, orderID uuid.UUID, railStatus string) (bool, error)
	SetPaymentReference(ctx context.Context, tenantID, orderID uuid.UUID, reference string) (bool, error)
	IncrementReturnedQty(ctx context.Context, tenantID, itemID uuid.UUID, qty int) (bool, error)
	List(ctx context.Context, tenantID uuid.UUID, params pagination.Params, filter ListFilter) (*OrderList, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	for i := range order.Items {
		order.Items[i].TenantID = order.TenantID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("tenant_id = ? AND id = ?", tenantID, orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// DeletePending removes an order that is still pending, together with its
// items; only the checkout compensation path calls it. The boolean is false
// when the order already moved on, in which case nothing is removed.
func (r *repository) DeletePending(ctx context.Context, tenantID, orderID uuid.UUID) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Where("tenant_id = ? AND id = ? AND status = ?", tenantID, orderID, enums.OrderStatusPending).
		Delete(&models.Order{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := db.Where("tenant_id = ? AND order_id = ?", tenantID, orderID).Delete(&models.OrderItem{}).Error; err != nil {
		return false, err
	}
	return true, nil
}

// CompareAndSetStatus moves the order only when it is still in from. The
// boolean reports whether this caller won the transition.
func (r *repository) CompareAndSetStatus(ctx context.Context, tenantID, orderID uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateRailStatus records an intermediate provider status while the order
// is still awaiting settlement.
func (r *repository) UpdateRailStatus(ctx context.Context, tenantID, orderID uuid.UUID, railStatus string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"rail_status": railStatus,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPaymentReference stores the provider reference while the order is
// still pending. False means the order left pending before the write.
func (r *repository) SetPaymentReference(ctx context.Context, tenantID, orderID uuid.UUID, reference string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"payment_reference": reference,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementReturnedQty books qty more units as returned, refusing to exceed
// the ordered quantity.
func (r *repository) IncrementReturnedQty(ctx context.Context, tenantID, itemID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("tenant_id = ? AND id = ? AND returned_qty + ? <= qty", tenantID, itemID, qty).
		UpdateColumn("returned_qty", gorm.Expr("returned_qty + ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, params pagination.Params, filter ListFilter) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Items").
		Where("tenant_id = ?", tenantID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &OrderList{Orders: rows}
	if len(rows) > limit {
		last := rows[limit-1]
		list.Orders = rows[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, nil
}
