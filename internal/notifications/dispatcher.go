package notifications

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/outbox"
	"github.com/solestack/storefront/pkg/outbox/payloads"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notification describes one order lifecycle message for customers.
type Notification struct {
	Type   enums.OutboxEventType
	Order  *models.Order
	Actor  string
	Reason string
}

// Dispatcher hands notifications to the outbox. Delivery is fire-and-forget:
// a failure to enqueue never fails the transition that triggered it.
type Dispatcher struct {
	outbox outboxPublisher
	logg   *logger.Logger
}

func NewDispatcher(publisher outboxPublisher, logg *logger.Logger) (*Dispatcher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{outbox: publisher, logg: logg}, nil
}

// Notify enqueues n inside a savepoint of tx so a failed insert rolls back
// alone and leaves the caller's transaction usable.
func (d *Dispatcher) Notify(ctx context.Context, tx *gorm.DB, n Notification) {
	if n.Order == nil {
		return
	}
	order := n.Order
	event := outbox.DomainEvent{
		EventType:     n.Type,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		TenantID:      order.TenantID,
		Version:       1,
		Data: payloads.OrderEvent{
			OrderID:        order.ID,
			CustomerID:     order.CustomerID,
			Status:         order.Status,
			TotalCents:     order.TotalCents,
			Currency:       order.Currency,
			PaymentRail:    order.PaymentRail,
			TrackingNumber: order.TrackingNumber,
			Reason:         n.Reason,
		},
	}
	if n.Actor != "" {
		event.Actor = &outbox.ActorRef{Actor: n.Actor}
	}

	var err error
	if tx == nil {
		err = fmt.Errorf("transaction required")
	} else {
		err = tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
			return d.outbox.Emit(ctx, sp, event)
		})
	}
	if err != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"tenant_id":  order.TenantID.String(),
			"order_id":   order.ID.String(),
			"event_type": string(n.Type),
		})
		d.logg.Error(logCtx, "notifications.enqueue_failed", err)
	}
}
