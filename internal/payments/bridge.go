package payments

import (
	"context"
	"fmt"

	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
)

// Bridge routes payment operations to the rail an order settles through.
type Bridge struct {
	rails map[enums.PaymentRail]Rail
	logg  *logger.Logger
}

func NewBridge(logg *logger.Logger, rails ...Rail) (*Bridge, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	registered := make(map[enums.PaymentRail]Rail, len(rails))
	for _, rail := range rails {
		if rail == nil {
			continue
		}
		name := rail.Name()
		if _, exists := registered[name]; exists {
			return nil, fmt.Errorf("payment rail %q registered twice", name)
		}
		registered[name] = rail
	}
	return &Bridge{rails: registered, logg: logg}, nil
}

// Rail returns the registered rail or a validation error.
func (b *Bridge) Rail(name enums.PaymentRail) (Rail, error) {
	rail, ok := b.rails[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment rail").
			WithDetails(map[string]any{"rail": string(name)})
	}
	return rail, nil
}

func (b *Bridge) Supports(name enums.PaymentRail) bool {
	_, ok := b.rails[name]
	return ok
}

// Open starts an external payment sized to the order total. Any rail failure
// surfaces as PAYMENT_INIT_FAILED so the caller compensates the saga.
func (b *Bridge) Open(ctx context.Context, railName enums.PaymentRail, order *models.Order) (*Session, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	rail, err := b.Rail(railName)
	if err != nil {
		return nil, err
	}

	correlation := CorrelationID{TenantID: order.TenantID, OrderID: order.ID}
	session, err := rail.Open(ctx, OpenRequest{
		Correlation: correlation,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Description: fmt.Sprintf("order %s", order.ID),
	})
	if err != nil {
		ctx = b.logg.WithFields(ctx, map[string]any{
			"rail":        string(railName),
			"correlation": correlation.String(),
		})
		b.logg.Error(ctx, "payments.open_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentInit, err, "payment could not be started")
	}
	return session, nil
}

// Void cancels an external payment that will never settle.
func (b *Bridge) Void(ctx context.Context, railName enums.PaymentRail, reference string) error {
	if reference == "" {
		return nil
	}
	rail, err := b.Rail(railName)
	if err != nil {
		return err
	}
	return rail.Cancel(ctx, reference)
}
