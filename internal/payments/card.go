package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	pkgstripe "github.com/solestack/storefront/pkg/stripe"
)

const stripeSignatureHeader = "Stripe-Signature"

var cardOutcomes = map[stripe.EventType]Outcome{
	stripe.EventTypePaymentIntentSucceeded:      OutcomeSucceeded,
	stripe.EventTypePaymentIntentPaymentFailed:  OutcomeFailed,
	stripe.EventTypePaymentIntentCanceled:       OutcomeFailed,
	stripe.EventTypeChargeRefunded:              OutcomeFailed,
	stripe.EventTypePaymentIntentProcessing:     OutcomeIntermediate,
	stripe.EventTypePaymentIntentRequiresAction: OutcomeIntermediate,
}

// CardRail settles through Stripe PaymentIntents.
type CardRail struct {
	intents       pkgstripe.PaymentIntents
	signingSecret string
}

func NewCardRail(intents pkgstripe.PaymentIntents, signingSecret string) (*CardRail, error) {
	if intents == nil {
		return nil, errors.New("stripe payment intents client required")
	}
	if strings.TrimSpace(signingSecret) == "" {
		return nil, errors.New("stripe signing secret required")
	}
	return &CardRail{intents: intents, signingSecret: signingSecret}, nil
}

func (r *CardRail) Name() enums.PaymentRail {
	return enums.PaymentRailCard
}

func (r *CardRail) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(req.AmountCents)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.AddMetadata(CorrelationMetadataKey, req.Correlation.String())
	params.AddMetadata("order_id", req.Correlation.OrderID.String())
	params.SetIdempotencyKey("checkout:" + req.Correlation.String())

	intent, err := r.intents.Create(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe payment intent")
	}
	return &Session{
		Rail:         enums.PaymentRailCard,
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (r *CardRail) Cancel(ctx context.Context, reference string) error {
	if strings.TrimSpace(reference) == "" {
		return nil
	}
	if _, err := r.intents.Cancel(ctx, reference, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel stripe payment intent")
	}
	return nil
}

func (r *CardRail) VerifyCallback(payload []byte, header http.Header) error {
	sig := header.Get(stripeSignatureHeader)
	if sig == "" {
		return pkgerrors.New(pkgerrors.CodeSignature, "missing stripe signature")
	}
	if err := webhook.ValidatePayload(payload, sig, r.signingSecret); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeSignature, err, "invalid stripe signature")
	}
	return nil
}

// ParseCallback reads payment_intent.* and charge.* events. Other event
// types parse with no reference and map to OutcomeUnknown.
func (r *CardRail) ParseCallback(payload []byte) (*Callback, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event")
	}
	if event.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event missing id")
	}

	cb := &Callback{
		Rail:           enums.PaymentRailCard,
		EventID:        event.ID,
		ProviderStatus: string(event.Type),
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return cb, nil
	}

	eventType := string(event.Type)
	switch {
	case strings.HasPrefix(eventType, "payment_intent."):
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe payment intent")
		}
		cb.Reference = intent.ID
		cb.Correlation = correlationFrom(intent.Metadata[CorrelationMetadataKey])
	case strings.HasPrefix(eventType, "charge."):
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe charge")
		}
		cb.Reference = charge.ID
		if charge.PaymentIntent != nil && charge.PaymentIntent.ID != "" {
			cb.Reference = charge.PaymentIntent.ID
		}
		cb.Correlation = correlationFrom(charge.Metadata[CorrelationMetadataKey])
	}
	return cb, nil
}

func (r *CardRail) MapStatus(providerStatus string) Outcome {
	if outcome, ok := cardOutcomes[stripe.EventType(providerStatus)]; ok {
		return outcome
	}
	return OutcomeUnknown
}
