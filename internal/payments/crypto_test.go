package payments

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/nowpayments"
)

type stubInvoices struct {
	req nowpayments.CreatePaymentRequest
	err error
}

func (s *stubInvoices) CreatePayment(_ context.Context, req nowpayments.CreatePaymentRequest) (*nowpayments.Payment, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &nowpayments.Payment{
		PaymentID:   "5077125051",
		PayAddress:  "bc1qexample",
		PayAmount:   "0.00412",
		PayCurrency: "btc",
	}, nil
}

const testIPNSecret = "ipn-secret"

func newTestCryptoRail(t *testing.T, invoices *stubInvoices) *CryptoRail {
	t.Helper()
	rail, err := NewCryptoRail(invoices, CryptoRailOptions{
		IPNSecret:   testIPNSecret,
		PayCurrency: "BTC",
		CallbackURL: "https://shop.example/api/v1/webhooks/crypto",
	})
	if err != nil {
		t.Fatalf("new crypto rail: %v", err)
	}
	return rail
}

func TestCryptoRailOpenSendsMajorUnits(t *testing.T) {
	invoices := &stubInvoices{}
	rail := newTestCryptoRail(t, invoices)
	correlation := CorrelationID{TenantID: uuid.New(), OrderID: uuid.New()}

	session, err := rail.Open(context.Background(), OpenRequest{
		Correlation: correlation,
		AmountCents: 28550,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if invoices.req.PriceAmount.String() != "285.50" {
		t.Fatalf("expected 285.50, got %s", invoices.req.PriceAmount)
	}
	if invoices.req.OrderID != correlation.String() || invoices.req.PayCurrency != "btc" || invoices.req.PriceCurrency != "usd" {
		t.Fatalf("unexpected request %+v", invoices.req)
	}
	if invoices.req.IPNCallbackURL == "" {
		t.Fatalf("expected callback url")
	}
	if session.Reference != "5077125051" || session.PayAddress != "bc1qexample" || session.PayAmount != "0.00412" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestCryptoRailVerifyAndParse(t *testing.T) {
	rail := newTestCryptoRail(t, &stubInvoices{})
	correlation := CorrelationID{TenantID: uuid.New(), OrderID: uuid.New()}
	payload := []byte(fmt.Sprintf(`{"payment_status":"Confirming","payment_id":5077125051,"order_id":%q,"pay_amount":0.00412}`, correlation.String()))

	signature, err := nowpayments.Sign(payload, testIPNSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	header := http.Header{}
	header.Set(nowpayments.SignatureHeader, signature)
	if err := rail.VerifyCallback(payload, header); err != nil {
		t.Fatalf("verify: %v", err)
	}

	header.Set(nowpayments.SignatureHeader, "deadbeef")
	if err := rail.VerifyCallback(payload, header); !pkgerrors.IsCode(err, pkgerrors.CodeSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if err := rail.VerifyCallback(payload, http.Header{}); !pkgerrors.IsCode(err, pkgerrors.CodeSignature) {
		t.Fatalf("expected missing signature error, got %v", err)
	}

	cb, err := rail.ParseCallback(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cb.ProviderStatus != "confirming" || cb.Reference != "5077125051" || cb.EventID != "5077125051:confirming" {
		t.Fatalf("unexpected callback %+v", cb)
	}
	if cb.Correlation == nil || *cb.Correlation != correlation {
		t.Fatalf("expected correlation, got %v", cb.Correlation)
	}
}

func TestCryptoRailParseWithoutCorrelation(t *testing.T) {
	rail := newTestCryptoRail(t, &stubInvoices{})
	cb, err := rail.ParseCallback([]byte(`{"payment_id":"1","payment_status":"finished","order_id":"legacy-42"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cb.Correlation != nil {
		t.Fatalf("expected nil correlation for foreign order id")
	}
	if _, err := rail.ParseCallback([]byte(`{"payment_status":"finished"}`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCryptoRailMapStatus(t *testing.T) {
	rail := newTestCryptoRail(t, &stubInvoices{})
	cases := map[string]Outcome{
		"finished":       OutcomeSucceeded,
		"failed":         OutcomeFailed,
		"expired":        OutcomeFailed,
		"refunded":       OutcomeFailed,
		"waiting":        OutcomeIntermediate,
		"confirming":     OutcomeIntermediate,
		"confirmed":      OutcomeIntermediate,
		"sending":        OutcomeIntermediate,
		"partially_paid": OutcomeIntermediate,
		"FINISHED":       OutcomeSucceeded,
		"wrong_asset":    OutcomeUnknown,
	}
	for status, want := range cases {
		if got := rail.MapStatus(status); got != want {
			t.Fatalf("%s: expected %s, got %s", status, want, got)
		}
	}
}

func TestCryptoRailCancelIsNoop(t *testing.T) {
	rail := newTestCryptoRail(t, &stubInvoices{})
	if err := rail.Cancel(context.Background(), "5077125051"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}
