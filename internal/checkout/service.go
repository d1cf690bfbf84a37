package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/solestack/storefront/internal/checkout/reservation"
	"github.com/solestack/storefront/internal/orders"
	"github.com/solestack/storefront/internal/payments"
	"github.com/solestack/storefront/internal/quote"
	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/metrics"
	"github.com/solestack/storefront/pkg/tracing"
)

const (
	outcomeSuccess           = "success"
	outcomeRejected          = "rejected"
	outcomeInsufficientStock = "insufficient_stock"
	outcomeOrderFailed       = "order_failed"
	outcomePaymentFailed     = "payment_failed"
	outcomeCancelled         = "cancelled"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type quoter interface {
	Quote(ctx context.Context, req quote.Request) (*quote.Quote, error)
}

type reserver interface {
	ReserveAll(ctx context.Context, tenantID uuid.UUID, actor string, lines []reservation.Line) (*reservation.Set, error)
	Compensate(ctx context.Context, set *reservation.Set) error
}

type paymentBridge interface {
	Supports(rail enums.PaymentRail) bool
	Open(ctx context.Context, rail enums.PaymentRail, order *models.Order) (*payments.Session, error)
	Void(ctx context.Context, rail enums.PaymentRail, reference string) error
}

// Service executes the checkout saga.
type Service interface {
	Execute(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
}

// ServiceParams groups the checkout collaborators. Metrics is optional.
type ServiceParams struct {
	Tx          txRunner
	Orders      orders.Repository
	Quotes      quoter
	Reservation reserver
	Payments    paymentBridge
	Logger      *logger.Logger
	Metrics     *metrics.SagaMetrics
}

type service struct {
	tx          txRunner
	orders      orders.Repository
	quotes      quoter
	reservation reserver
	payments    paymentBridge
	logg        *logger.Logger
	metrics     *metrics.SagaMetrics
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quote engine required")
	}
	if params.Reservation == nil {
		return nil, fmt.Errorf("reservation coordinator required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment bridge required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:          params.Tx,
		orders:      params.Orders,
		quotes:      params.Quotes,
		reservation: params.Reservation,
		payments:    params.Payments,
		logg:        params.Logger,
		metrics:     params.Metrics,
	}, nil
}

// Execute prices the cart, reserves every line, creates the pending order
// and opens payment. Every failure after reservation unwinds what was done
// before returning, so a failed checkout holds no stock.
func (s *service) Execute(ctx context.Context, input CheckoutInput) (result *CheckoutResult, err error) {
	ctx, span := tracing.Start(ctx, "checkout.execute",
		attribute.String("tenant_id", input.TenantID.String()),
		attribute.String("rail", string(input.Rail)),
	)
	defer func() { tracing.End(span, err) }()

	input, lines, err := s.normalize(input)
	if err != nil {
		s.metrics.ObserveCheckout(outcomeRejected)
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"tenant_id":   input.TenantID.String(),
		"customer_id": input.CustomerID.String(),
		"rail":        string(input.Rail),
	})

	priced, err := s.quotes.Quote(ctx, quote.Request{
		TenantID:        input.TenantID,
		Lines:           quoteLines(lines),
		Address:         input.Address,
		RequestedMethod: input.ShippingMethod,
	})
	if err != nil {
		s.metrics.ObserveCheckout(checkoutOutcome(err))
		return nil, err
	}

	actor := input.CustomerID.String()
	set, err := s.reservation.ReserveAll(ctx, input.TenantID, actor, lines)
	if err != nil {
		s.metrics.ObserveCheckout(checkoutOutcome(err))
		return nil, err
	}

	order := buildOrder(input, priced)
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.orders.WithTx(tx).Create(ctx, order)
	}); err != nil {
		s.logg.Error(ctx, "checkout.order_create_failed", err)
		_ = s.reservation.Compensate(ctx, set)
		s.metrics.ObserveCheckout(outcomeOrderFailed)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	session, err := s.payments.Open(ctx, input.Rail, order)
	if err != nil {
		s.abort(ctx, order, set)
		s.metrics.ObserveCheckout(outcomePaymentFailed)
		if pkgerrors.IsCode(err, pkgerrors.CodePaymentInit) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentInit, err, "payment could not be started")
	}

	stored, err := s.orders.SetPaymentReference(ctx, order.TenantID, order.ID, session.Reference)
	if err != nil {
		s.logg.Error(ctx, "checkout.payment_reference_failed", err)
		s.void(ctx, input.Rail, session.Reference)
		s.abort(ctx, order, set)
		s.metrics.ObserveCheckout(outcomePaymentFailed)
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentInit, err, "payment could not be started")
	}
	if !stored {
		// Cancelled while the session was opening; the cancel already
		// released the reservation, so only the session is unwound.
		s.logg.Warn(ctx, "checkout.cancelled_during_payment_open")
		s.void(ctx, input.Rail, session.Reference)
		s.metrics.ObserveCheckout(outcomeCancelled)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order was cancelled before payment started").
			WithDetails(map[string]any{"orderId": order.ID.String()})
	}

	s.logg.Info(ctx, "checkout.completed")
	s.metrics.ObserveCheckout(outcomeSuccess)
	return &CheckoutResult{
		OrderID:        order.ID,
		Status:         order.Status,
		ShippingMethod: order.ShippingMethod,
		Totals: Totals{
			Currency:      order.Currency,
			SubtotalCents: order.SubtotalCents,
			ShippingCents: order.ShippingCents,
			TaxCents:      order.TaxCents,
			TotalCents:    order.TotalCents,
		},
		Payment: PaymentHandle{
			Rail:         session.Rail,
			Reference:    session.Reference,
			ClientSecret: session.ClientSecret,
			PayAddress:   session.PayAddress,
			PayAmount:    session.PayAmount,
			PayCurrency:  session.PayCurrency,
		},
	}, nil
}

// abort deletes the order and releases its reservations, but only while the
// order is still pending. An order that already left pending owns its
// reservation: a staff cancel has released it, and releasing again would eat
// into other orders' holds. When the delete fails the order keeps its
// reservation too, and a staff cancel of that order releases it instead.
func (s *service) abort(ctx context.Context, order *models.Order, set *reservation.Set) {
	var deleted bool
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = s.orders.WithTx(tx).DeletePending(ctx, order.TenantID, order.ID)
		return err
	}); err != nil {
		s.logg.Critical(ctx, "checkout.order_delete_failed", err)
		return
	}
	if !deleted {
		s.logg.Warn(ctx, "checkout.order_left_pending")
		return
	}
	_ = s.reservation.Compensate(ctx, set)
}

func (s *service) void(ctx context.Context, rail enums.PaymentRail, reference string) {
	if err := s.payments.Void(ctx, rail, reference); err != nil {
		s.logg.Error(ctx, "checkout.payment_void_failed", err)
	}
}

// normalize validates the request and merges duplicate variant lines,
// keeping the position of each variant's first occurrence.
func (s *service) normalize(input CheckoutInput) (CheckoutInput, []reservation.Line, error) {
	if input.TenantID == uuid.Nil {
		return input, nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant is required")
	}
	if input.CustomerID == uuid.Nil {
		return input, nil, pkgerrors.New(pkgerrors.CodeValidation, "customer is required")
	}
	if len(input.Lines) == 0 {
		return input, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	if !input.Rail.IsValid() || !s.payments.Supports(input.Rail) {
		return input, nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment rail").
			WithDetails(map[string]any{"rail": string(input.Rail)})
	}

	input.Address = input.Address.Normalize()
	if err := input.Address.Validate(); err != nil {
		return input, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}

	index := make(map[uuid.UUID]int, len(input.Lines))
	lines := make([]reservation.Line, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.VariantID == uuid.Nil {
			return input, nil, pkgerrors.New(pkgerrors.CodeValidation, "variant is required")
		}
		if line.Qty <= 0 {
			return input, nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive").
				WithDetails(map[string]any{"variantId": line.VariantID.String()})
		}
		if pos, ok := index[line.VariantID]; ok {
			lines[pos].Qty += line.Qty
			continue
		}
		index[line.VariantID] = len(lines)
		lines = append(lines, reservation.Line{VariantID: line.VariantID, Qty: line.Qty})
	}
	return input, lines, nil
}

func quoteLines(lines []reservation.Line) []quote.Line {
	out := make([]quote.Line, len(lines))
	for i, line := range lines {
		out[i] = quote.Line{VariantID: line.VariantID, Qty: line.Qty}
	}
	return out
}

func buildOrder(input CheckoutInput, q *quote.Quote) *models.Order {
	order := &models.Order{
		ID:              uuid.New(),
		TenantID:        input.TenantID,
		CustomerID:      input.CustomerID,
		Status:          enums.OrderStatusPending,
		Currency:        q.Currency,
		SubtotalCents:   q.SubtotalCents,
		ShippingCents:   q.ShippingCents,
		TaxCents:        q.TaxCents,
		TotalCents:      q.TotalCents,
		ShippingAddress: input.Address,
		ShippingMethod:  q.ShippingMethod,
		PaymentRail:     input.Rail,
		Items:           make([]models.OrderItem, 0, len(q.Lines)),
	}
	for _, line := range q.Lines {
		order.Items = append(order.Items, models.OrderItem{
			TenantID:       input.TenantID,
			OrderID:        order.ID,
			VariantID:      line.VariantID,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: line.LineTotalCents,
		})
	}
	return order
}

func checkoutOutcome(err error) string {
	if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		return outcomeInsufficientStock
	}
	return outcomeRejected
}
