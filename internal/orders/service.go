package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/internal/ledger"
	"github.com/solestack/storefront/internal/notifications"
	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/metrics"
	"github.com/solestack/storefront/pkg/pagination"
)

const (
	opFulfill = "fulfill"
	opShip    = "ship"
	opDeliver = "deliver"
	opCancel  = "cancel"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, n notifications.Notification)
}

// PaymentVoider cancels the external payment of an order that will never
// settle.
type PaymentVoider interface {
	Void(ctx context.Context, rail enums.PaymentRail, reference string) error
}

// Service exposes order reads and the staff fulfillment operations.
type Service interface {
	Get(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	GetForCustomer(ctx context.Context, tenantID, customerID, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, tenantID uuid.UUID, params pagination.Params, filter ListFilter) (*OrderList, error)
	Fulfill(ctx context.Context, input BulkInput) []BulkResult
	Ship(ctx context.Context, input ShipInput) []BulkResult
	Deliver(ctx context.Context, input BulkInput) []BulkResult
	Cancel(ctx context.Context, input CancelInput) []BulkResult
}

type service struct {
	repo     Repository
	tx       txRunner
	stock    ledger.Service
	notifier notifier
	payments PaymentVoider
	logg     *logger.Logger
	metrics  *metrics.SagaMetrics
	now      func() time.Time
}

// ServiceParams groups the order service collaborators. Payments and
// Metrics are optional.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Stock    ledger.Service
	Notifier notifier
	Payments PaymentVoider
	Logger   *logger.Logger
	Metrics  *metrics.SagaMetrics
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		stock:    params.Stock,
		notifier: params.Notifier,
		payments: params.Payments,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	return loadOrder(ctx, s.repo, tenantID, orderID)
}

// GetForCustomer hides orders of other customers behind NOT_FOUND.
func (s *service) GetForCustomer(ctx context.Context, tenantID, customerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := loadOrder(ctx, s.repo, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, params pagination.Params, filter ListFilter) (*OrderList, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant is required")
	}
	list, err := s.repo.List(ctx, tenantID, params, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) Fulfill(ctx context.Context, input BulkInput) []BulkResult {
	return s.bulk(ctx, opFulfill, input, func(ctx context.Context, tx *gorm.DB, order *models.Order) (func(), error) {
		now := s.now()
		if err := s.advance(ctx, tx, order, enums.OrderStatusFulfilled, map[string]any{"fulfilled_at": now}); err != nil {
			return nil, err
		}
		order.FulfilledAt = &now
		return nil, nil
	})
}

func (s *service) Ship(ctx context.Context, input ShipInput) []BulkResult {
	var tracking *string
	if input.TrackingNumber != nil {
		if trimmed := strings.TrimSpace(*input.TrackingNumber); trimmed != "" {
			tracking = &trimmed
		}
	}
	return s.bulk(ctx, opShip, input.BulkInput, func(ctx context.Context, tx *gorm.DB, order *models.Order) (func(), error) {
		now := s.now()
		fields := map[string]any{"shipped_at": now}
		if tracking != nil {
			fields["tracking_number"] = *tracking
		}
		if err := s.advance(ctx, tx, order, enums.OrderStatusShipped, fields); err != nil {
			return nil, err
		}
		order.ShippedAt = &now
		if tracking != nil {
			order.TrackingNumber = tracking
		}
		s.notifier.Notify(ctx, tx, notifications.Notification{Type: enums.EventOrderShipped, Order: order, Actor: input.Actor})
		return nil, nil
	})
}

func (s *service) Deliver(ctx context.Context, input BulkInput) []BulkResult {
	return s.bulk(ctx, opDeliver, input, func(ctx context.Context, tx *gorm.DB, order *models.Order) (func(), error) {
		now := s.now()
		if err := s.advance(ctx, tx, order, enums.OrderStatusDelivered, map[string]any{"delivered_at": now}); err != nil {
			return nil, err
		}
		order.DeliveredAt = &now
		s.notifier.Notify(ctx, tx, notifications.Notification{Type: enums.EventOrderDelivered, Order: order, Actor: input.Actor})
		return nil, nil
	})
}

// Cancel moves pending or paid orders to cancelled. A pending order gives
// its reservations back and its external payment is voided after commit.
// A paid order keeps its finalized stock; restocking needs a return.
func (s *service) Cancel(ctx context.Context, input CancelInput) []BulkResult {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "staff_cancel"
	}
	return s.bulk(ctx, opCancel, input.BulkInput, func(ctx context.Context, tx *gorm.DB, order *models.Order) (func(), error) {
		from := order.Status
		if from != enums.OrderStatusPending && from != enums.OrderStatusPaid {
			return nil, InvalidTransition(from, enums.OrderStatusCancelled)
		}

		now := s.now()
		if err := s.advance(ctx, tx, order, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at":  now,
			"cancel_reason": reason,
		}); err != nil {
			return nil, err
		}
		order.CancelledAt = &now
		order.CancelReason = &reason

		var afterCommit func()
		if from == enums.OrderStatusPending {
			stock := s.stock.WithTx(tx)
			for _, item := range order.Items {
				if err := stock.Release(ctx, ledger.Mutation{
					TenantID:  order.TenantID,
					VariantID: item.VariantID,
					Qty:       item.Qty,
					OrderID:   &order.ID,
					Actor:     input.Actor,
					Reason:    ledger.ReasonStaffCancel,
				}); err != nil {
					return nil, err
				}
			}
			afterCommit = s.voidPayment(ctx, *order)
		} else {
			logCtx := s.logg.WithOrderID(ctx, order.ID.String())
			s.logg.Info(logCtx, "orders.cancel_paid_without_restock")
		}

		s.notifier.Notify(ctx, tx, notifications.Notification{
			Type:   enums.EventOrderCancelled,
			Order:  order,
			Actor:  input.Actor,
			Reason: reason,
		})
		return afterCommit, nil
	})
}

// voidPayment returns a best-effort cancel of the external payment. A void
// failure is logged; a late success callback still meets a cancelled order.
func (s *service) voidPayment(ctx context.Context, order models.Order) func() {
	if s.payments == nil || order.PaymentReference == nil || *order.PaymentReference == "" {
		return nil
	}
	return func() {
		if err := s.payments.Void(ctx, order.PaymentRail, *order.PaymentReference); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"tenant_id":    order.TenantID.String(),
				"order_id":     order.ID.String(),
				"payment_rail": string(order.PaymentRail),
				"error":        err.Error(),
			})
			s.logg.Warn(logCtx, "orders.payment_void_failed")
		}
	}
}

type bulkStep func(ctx context.Context, tx *gorm.DB, order *models.Order) (func(), error)

// bulk runs step once per order id, each in its own transaction, and turns
// every failure into a per-order result.
func (s *service) bulk(ctx context.Context, op string, input BulkInput, step bulkStep) []BulkResult {
	results := make([]BulkResult, 0, len(input.OrderIDs))
	succeeded := 0
	for _, raw := range input.OrderIDs {
		result := BulkResult{OrderID: strings.TrimSpace(raw)}
		status, err := s.runOne(ctx, input, result.OrderID, step)
		if err != nil {
			result.Error = bulkErrorFrom(err)
			if !isClientError(err) {
				logCtx := s.logg.WithFields(ctx, map[string]any{"op": op, "order_id": result.OrderID})
				s.logg.Error(logCtx, "orders.bulk_entry_failed", err)
			}
		} else {
			result.Success = true
			result.Status = status
			succeeded++
		}
		s.metrics.ObserveBulkOperation(op, result.Success)
		results = append(results, result)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"op":        op,
		"tenant_id": input.TenantID.String(),
		"requested": len(input.OrderIDs),
		"succeeded": succeeded,
	})
	s.logg.Info(logCtx, "orders.bulk_operation")
	return results
}

func (s *service) runOne(ctx context.Context, input BulkInput, rawID string, step bulkStep) (enums.OrderStatus, error) {
	if input.TenantID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "tenant is required")
	}
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}

	var (
		status      enums.OrderStatus
		afterCommit func()
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := loadOrder(ctx, s.repo.WithTx(tx), input.TenantID, orderID)
		if err != nil {
			return err
		}
		afterCommit, err = step(ctx, tx, order)
		if err != nil {
			return err
		}
		status = order.Status
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order transaction failed")
		}
		return "", err
	}
	if afterCommit != nil {
		afterCommit()
	}
	return status, nil
}

// advance performs the guarded status move inside tx.
func (s *service) advance(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, fields map[string]any) error {
	if !CanTransition(order.Status, to) {
		return InvalidTransition(order.Status, to)
	}
	moved, err := s.repo.WithTx(tx).CompareAndSetStatus(ctx, order.TenantID, order.ID, order.Status, to, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order status changed concurrently").
			WithDetails(map[string]any{"from": string(order.Status), "to": string(to)})
	}
	order.Status = to
	return nil
}

func loadOrder(ctx context.Context, repo Repository, tenantID, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func isClientError(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	return pkgerrors.MetadataFor(typed.Code()).HTTPStatus < 500
}
