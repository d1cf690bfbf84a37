// Package settlement applies payment provider callbacks to orders and the
// stock ledger. Callbacks are delivered at least once and out of order; the
// pending status of the order is the only gate against reprocessing.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/solestack/storefront/internal/ledger"
	"github.com/solestack/storefront/internal/notifications"
	"github.com/solestack/storefront/internal/orders"
	"github.com/solestack/storefront/internal/payments"
	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/metrics"
	"github.com/solestack/storefront/pkg/tracing"
)

// Action is what a callback did.
type Action string

const (
	ActionFinalized         Action = "finalized"
	ActionReleased          Action = "released"
	ActionSubStatusRecorded Action = "sub_status_recorded"
	ActionDuplicate         Action = "duplicate"
	ActionUnknownOrder      Action = "unknown_order"
	ActionIgnored           Action = "ignored"
	ActionRejected          Action = "rejected"
)

// Result is reported back to the webhook endpoint. Every Result is
// acknowledged to the provider.
type Result struct {
	Action  Action
	OrderID string
	Status  enums.OrderStatus
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, n notifications.Notification)
}

// HandlerParams groups the settlement collaborators. Metrics is optional.
type HandlerParams struct {
	Tx       txRunner
	Orders   orders.Repository
	Stock    ledger.Service
	Notifier notifier
	Logger   *logger.Logger
	Metrics  *metrics.SagaMetrics
}

// Handler is shared by every rail; rail specifics stay behind payments.Rail.
type Handler struct {
	tx       txRunner
	orders   orders.Repository
	stock    ledger.Service
	notifier notifier
	logg     *logger.Logger
	metrics  *metrics.SagaMetrics
	now      func() time.Time
}

func NewHandler(params HandlerParams) (*Handler, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
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
	return &Handler{
		tx:       params.Tx,
		orders:   params.Orders,
		stock:    params.Stock,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// errLostRace marks a CAS that found the order already moved by someone else.
var errLostRace = errors.New("order no longer pending")

// Handle applies one verified callback. A returned error means the store
// could not be reached and the provider should retry; everything else is
// acknowledged with a Result.
func (h *Handler) Handle(ctx context.Context, rail payments.Rail, cb *payments.Callback) (res *Result, err error) {
	if rail == nil || cb == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rail and callback are required")
	}
	ctx, span := tracing.Start(ctx, "settlement.handle",
		attribute.String("rail", string(rail.Name())),
		attribute.String("provider_status", cb.ProviderStatus),
	)
	defer func() {
		tracing.End(span, err)
		if res != nil {
			h.metrics.ObserveSettlement(string(rail.Name()), string(res.Action))
		}
	}()

	ctx = h.logg.WithFields(ctx, map[string]any{
		"rail":            string(rail.Name()),
		"event_id":        cb.EventID,
		"provider_status": cb.ProviderStatus,
		"reference":       cb.Reference,
	})

	outcome := rail.MapStatus(cb.ProviderStatus)
	if outcome == payments.OutcomeUnknown {
		h.logg.Info(ctx, "settlement.status_ignored")
		return &Result{Action: ActionIgnored}, nil
	}
	if cb.Correlation == nil {
		h.logg.Warn(ctx, "settlement.uncorrelated_callback")
		return &Result{Action: ActionUnknownOrder}, nil
	}

	ctx = h.logg.WithTenantID(ctx, cb.Correlation.TenantID.String())
	ctx = h.logg.WithOrderID(ctx, cb.Correlation.OrderID.String())
	order, err := h.orders.FindByID(ctx, cb.Correlation.TenantID, cb.Correlation.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logg.Warn(ctx, "settlement.unknown_order")
			return &Result{Action: ActionUnknownOrder, OrderID: cb.Correlation.OrderID.String()}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.PaymentRail != rail.Name() {
		h.logg.Warn(ctx, "settlement.rail_mismatch")
		return h.result(ActionIgnored, order), nil
	}
	if order.PaymentReference != nil && cb.Reference != "" && *order.PaymentReference != cb.Reference {
		h.logg.Warn(ctx, "settlement.reference_mismatch")
		return h.result(ActionIgnored, order), nil
	}

	switch outcome {
	case payments.OutcomeSucceeded:
		return h.settle(ctx, rail, cb, order)
	case payments.OutcomeFailed:
		return h.fail(ctx, rail, cb, order)
	default:
		return h.recordSubStatus(ctx, cb, order)
	}
}

// settle finalizes every item and marks the order paid in one transaction.
func (h *Handler) settle(ctx context.Context, rail payments.Rail, cb *payments.Callback, order *models.Order) (*Result, error) {
	if order.Status != enums.OrderStatusPending {
		h.duplicateSuccess(ctx, order)
		return h.result(ActionDuplicate, order), nil
	}

	actor := "settlement:" + string(rail.Name())
	now := h.now()
	err := h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := h.orders.WithTx(tx).CompareAndSetStatus(ctx, order.TenantID, order.ID,
			enums.OrderStatusPending, enums.OrderStatusPaid, map[string]any{
				"paid_at":     now,
				"rail_status": cb.ProviderStatus,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !moved {
			return errLostRace
		}

		stock := h.stock.WithTx(tx)
		for _, item := range order.Items {
			if err := stock.Finalize(ctx, ledger.Mutation{
				TenantID:  order.TenantID,
				VariantID: item.VariantID,
				Qty:       item.Qty,
				OrderID:   &order.ID,
				Actor:     actor,
				Reason:    ledger.ReasonPaymentSettled,
			}); err != nil {
				return err
			}
		}

		order.Status = enums.OrderStatusPaid
		order.PaidAt = &now
		order.RailStatus = &cb.ProviderStatus
		h.notifier.Notify(ctx, tx, notifications.Notification{Type: enums.EventOrderPaid, Order: order, Actor: actor})
		return nil
	})
	switch {
	case err == nil:
		h.logg.Info(ctx, "settlement.order_paid")
		return h.result(ActionFinalized, order), nil
	case errors.Is(err, errLostRace):
		return h.reloadDuplicate(ctx, order, true)
	case pkgerrors.IsCode(err, pkgerrors.CodeDependency):
		return nil, err
	default:
		// the money moved but the ledger refused; nothing retries this
		h.logg.Critical(ctx, "settlement.finalize_failed", err)
		return h.result(ActionRejected, order), nil
	}
}

// fail releases every item and cancels the order in one transaction.
func (h *Handler) fail(ctx context.Context, rail payments.Rail, cb *payments.Callback, order *models.Order) (*Result, error) {
	if order.Status != enums.OrderStatusPending {
		return h.result(ActionDuplicate, order), nil
	}

	actor := "settlement:" + string(rail.Name())
	reason := "payment_" + cb.ProviderStatus
	now := h.now()
	err := h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := h.orders.WithTx(tx).CompareAndSetStatus(ctx, order.TenantID, order.ID,
			enums.OrderStatusPending, enums.OrderStatusCancelled, map[string]any{
				"cancelled_at":  now,
				"cancel_reason": reason,
				"rail_status":   cb.ProviderStatus,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !moved {
			return errLostRace
		}

		stock := h.stock.WithTx(tx)
		for _, item := range order.Items {
			if err := stock.Release(ctx, ledger.Mutation{
				TenantID:  order.TenantID,
				VariantID: item.VariantID,
				Qty:       item.Qty,
				OrderID:   &order.ID,
				Actor:     actor,
				Reason:    ledger.ReasonPaymentFailed,
			}); err != nil {
				return err
			}
		}

		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		order.CancelReason = &reason
		order.RailStatus = &cb.ProviderStatus
		h.notifier.Notify(ctx, tx, notifications.Notification{
			Type:   enums.EventOrderCancelled,
			Order:  order,
			Actor:  actor,
			Reason: reason,
		})
		return nil
	})
	switch {
	case err == nil:
		h.logg.Info(ctx, "settlement.order_released")
		return h.result(ActionReleased, order), nil
	case errors.Is(err, errLostRace):
		return h.reloadDuplicate(ctx, order, false)
	case pkgerrors.IsCode(err, pkgerrors.CodeDependency):
		return nil, err
	default:
		h.metrics.IncCompensationFailure()
		h.logg.Critical(ctx, "settlement.release_failed", err)
		return h.result(ActionRejected, order), nil
	}
}

func (h *Handler) recordSubStatus(ctx context.Context, cb *payments.Callback, order *models.Order) (*Result, error) {
	if order.Status != enums.OrderStatusPending {
		return h.result(ActionDuplicate, order), nil
	}
	updated, err := h.orders.UpdateRailStatus(ctx, order.TenantID, order.ID, cb.ProviderStatus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record rail status")
	}
	if !updated {
		return h.reloadDuplicate(ctx, order, false)
	}
	order.RailStatus = &cb.ProviderStatus
	h.logg.Info(ctx, "settlement.sub_status_recorded")
	return h.result(ActionSubStatusRecorded, order), nil
}

// reloadDuplicate reports a callback that lost the CAS to a concurrent
// transition with the status that won.
func (h *Handler) reloadDuplicate(ctx context.Context, order *models.Order, succeeded bool) (*Result, error) {
	current, err := h.orders.FindByID(ctx, order.TenantID, order.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Result{Action: ActionUnknownOrder, OrderID: order.ID.String()}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if succeeded {
		h.duplicateSuccess(ctx, current)
	}
	return h.result(ActionDuplicate, current), nil
}

// duplicateSuccess flags a captured payment that arrived after the order
// was cancelled. The customer was charged for nothing and needs a refund.
func (h *Handler) duplicateSuccess(ctx context.Context, order *models.Order) {
	if order.Status != enums.OrderStatusCancelled {
		return
	}
	h.logg.Critical(ctx, "settlement.paid_after_cancel", fmt.Errorf("order %s is %s", order.ID, order.Status))
}

func (h *Handler) result(action Action, order *models.Order) *Result {
	return &Result{Action: action, OrderID: order.ID.String(), Status: order.Status}
}
