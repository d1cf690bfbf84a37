package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/solestack/storefront/api/responses"
	"github.com/solestack/storefront/internal/payments"
	"github.com/solestack/storefront/internal/settlement"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
)

const maxCallbackBytes = 1 << 20

type settlementHandler interface {
	Handle(ctx context.Context, rail payments.Rail, cb *payments.Callback) (*settlement.Result, error)
}

type callbackGuard interface {
	Seen(ctx context.Context, rail enums.PaymentRail, eventID string) (bool, error)
	Mark(ctx context.Context, rail enums.PaymentRail, eventID string) error
}

type callbackResponse struct {
	Received bool              `json:"received"`
	Action   settlement.Action `json:"action"`
	OrderID  string            `json:"orderId,omitempty"`
}

// actionMalformed acknowledges a verified payload that could not be parsed.
// Retrying it would fail the same way.
const actionMalformed settlement.Action = "malformed"

// Settlement receives one rail's provider callbacks. Only a signature
// failure is answered with 401 and only an infrastructure failure with 503;
// every other outcome is acknowledged with 200 so the provider stops
// retrying.
func Settlement(rail payments.Rail, handler settlementHandler, guard callbackGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if rail == nil || handler == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement endpoint not configured"))
			return
		}
		railName := rail.Name()
		if logg != nil {
			ctx = logg.WithField(ctx, "rail", string(railName))
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read callback body"))
			return
		}

		if err := rail.VerifyCallback(payload, r.Header); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "callback signature invalid"))
			return
		}

		cb, err := rail.ParseCallback(payload)
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.malformed_callback")
			}
			responses.WriteSuccess(w, callbackResponse{Received: true, Action: actionMalformed})
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "event_id", cb.EventID)
		}

		// Payloads without an event id skip de-duplication; the order status
		// CAS still keeps their effects idempotent.
		if cb.EventID != "" {
			duplicate, err := guard.Seen(ctx, railName, cb.EventID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check callback idempotency"))
				return
			}
			if duplicate {
				if logg != nil {
					logg.Info(ctx, "webhook.duplicate_event")
				}
				responses.WriteSuccess(w, callbackResponse{Received: true, Action: settlement.ActionDuplicate})
				return
			}
		}

		result, err := handler.Handle(ctx, rail, cb)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		// Marked only after settlement committed, so a crash in between
		// leaves the provider's retry free to settle the order.
		if cb.EventID != "" {
			if markErr := guard.Mark(ctx, railName, cb.EventID); markErr != nil && logg != nil {
				logg.Error(ctx, "webhook.guard_mark_failed", markErr)
			}
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "action", string(result.Action)), "webhook.processed")
		}
		responses.WriteSuccess(w, callbackResponse{Received: true, Action: result.Action, OrderID: result.OrderID})
	}
}
