package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/solestack/storefront/pkg/errors"
)

type stubIntents struct {
	created   *stripe.PaymentIntentParams
	cancelled string
	createErr error
	cancelErr error
}

func (s *stubIntents) Create(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.created = params
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret_abc"}, nil
}

func (s *stubIntents) Cancel(_ context.Context, id string, _ *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	s.cancelled = id
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return &stripe.PaymentIntent{ID: id}, nil
}

const testSigningSecret = "whsec_test_secret"

func newTestCardRail(t *testing.T, intents *stubIntents) *CardRail {
	t.Helper()
	rail, err := NewCardRail(intents, testSigningSecret)
	if err != nil {
		t.Fatalf("new card rail: %v", err)
	}
	return rail
}

func TestCardRailOpenCreatesTaggedIntent(t *testing.T) {
	intents := &stubIntents{}
	rail := newTestCardRail(t, intents)
	correlation := CorrelationID{TenantID: uuid.New(), OrderID: uuid.New()}

	session, err := rail.Open(context.Background(), OpenRequest{
		Correlation: correlation,
		AmountCents: 28550,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.Reference != "pi_123" || session.ClientSecret != "pi_123_secret_abc" {
		t.Fatalf("unexpected session %+v", session)
	}
	params := intents.created
	if params == nil || *params.Amount != 28550 || *params.Currency != "usd" {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.Metadata[CorrelationMetadataKey] != correlation.String() {
		t.Fatalf("expected correlation metadata, got %v", params.Metadata)
	}
	if params.AutomaticPaymentMethods == nil || !*params.AutomaticPaymentMethods.Enabled {
		t.Fatalf("expected automatic payment methods")
	}
}

func TestCardRailOpenWrapsProviderError(t *testing.T) {
	rail := newTestCardRail(t, &stubIntents{createErr: errors.New("card network down")})
	_, err := rail.Open(context.Background(), OpenRequest{AmountCents: 100, Currency: "usd"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCardRailCancel(t *testing.T) {
	intents := &stubIntents{}
	rail := newTestCardRail(t, intents)
	if err := rail.Cancel(context.Background(), "pi_9"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if intents.cancelled != "pi_9" {
		t.Fatalf("expected pi_9 cancelled, got %q", intents.cancelled)
	}
	if err := rail.Cancel(context.Background(), ""); err != nil {
		t.Fatalf("expected empty reference to be a no-op: %v", err)
	}
}

func signedStripeHeader(payload []byte, secret string) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	header := http.Header{}
	header.Set(stripeSignatureHeader, signed.Header)
	return header
}

func TestCardRailVerifyCallback(t *testing.T) {
	rail := newTestCardRail(t, &stubIntents{})
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	if err := rail.VerifyCallback(payload, signedStripeHeader(payload, testSigningSecret)); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
	if err := rail.VerifyCallback(payload, signedStripeHeader(payload, "whsec_other")); !pkgerrors.IsCode(err, pkgerrors.CodeSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if err := rail.VerifyCallback(payload, http.Header{}); !pkgerrors.IsCode(err, pkgerrors.CodeSignature) {
		t.Fatalf("expected missing signature error, got %v", err)
	}
}

func TestCardRailParsePaymentIntentEvent(t *testing.T) {
	rail := newTestCardRail(t, &stubIntents{})
	correlation := CorrelationID{TenantID: uuid.New(), OrderID: uuid.New()}
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "object": "payment_intent", "status": "succeeded", "metadata": {"correlation_id": %q}}}
	}`, correlation.String()))

	cb, err := rail.ParseCallback(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cb.EventID != "evt_1" || cb.Reference != "pi_123" || cb.ProviderStatus != "payment_intent.succeeded" {
		t.Fatalf("unexpected callback %+v", cb)
	}
	if cb.Correlation == nil || *cb.Correlation != correlation {
		t.Fatalf("expected correlation %s, got %v", correlation, cb.Correlation)
	}
	if rail.MapStatus(cb.ProviderStatus) != OutcomeSucceeded {
		t.Fatalf("expected succeeded outcome")
	}
}

func TestCardRailParseChargeRefundedUsesIntentReference(t *testing.T) {
	rail := newTestCardRail(t, &stubIntents{})
	payload := []byte(`{
		"id": "evt_2",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_1", "object": "charge", "payment_intent": "pi_777", "metadata": {}}}
	}`)

	cb, err := rail.ParseCallback(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cb.Reference != "pi_777" {
		t.Fatalf("expected payment intent reference, got %q", cb.Reference)
	}
	if cb.Correlation != nil {
		t.Fatalf("expected no correlation, got %v", cb.Correlation)
	}
}

func TestCardRailParseRejectsGarbage(t *testing.T) {
	rail := newTestCardRail(t, &stubIntents{})
	if _, err := rail.ParseCallback([]byte(`not json`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := rail.ParseCallback([]byte(`{"type":"payment_intent.succeeded"}`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected missing id error, got %v", err)
	}
}

func TestCardRailMapStatus(t *testing.T) {
	rail := newTestCardRail(t, &stubIntents{})
	cases := map[string]Outcome{
		"payment_intent.succeeded":       OutcomeSucceeded,
		"payment_intent.payment_failed":  OutcomeFailed,
		"payment_intent.canceled":        OutcomeFailed,
		"charge.refunded":                OutcomeFailed,
		"payment_intent.processing":      OutcomeIntermediate,
		"payment_intent.requires_action": OutcomeIntermediate,
		"payment_intent.created":         OutcomeUnknown,
		"customer.created":               OutcomeUnknown,
	}
	for status, want := range cases {
		if got := rail.MapStatus(status); got != want {
			t.Fatalf("%s: expected %s, got %s", status, want, got)
		}
	}
}
