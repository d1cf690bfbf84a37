package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
)

type fakeRail struct {
	name      enums.PaymentRail
	openErr   error
	opened    []OpenRequest
	cancelled []string
}

func (f *fakeRail) Name() enums.PaymentRail { return f.name }

func (f *fakeRail) Open(_ context.Context, req OpenRequest) (*Session, error) {
	f.opened = append(f.opened, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &Session{Rail: f.name, Reference: "ref-1"}, nil
}

func (f *fakeRail) Cancel(_ context.Context, reference string) error {
	f.cancelled = append(f.cancelled, reference)
	return nil
}

func (f *fakeRail) VerifyCallback([]byte, http.Header) error { return nil }

func (f *fakeRail) ParseCallback([]byte) (*Callback, error) { return &Callback{Rail: f.name}, nil }

func (f *fakeRail) MapStatus(string) Outcome { return OutcomeUnknown }

func TestBridgeOpenRoutesByRail(t *testing.T) {
	card := &fakeRail{name: enums.PaymentRailCard}
	crypto := &fakeRail{name: enums.PaymentRailCrypto}
	bridge, err := NewBridge(nil, card, crypto)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}

	order := &models.Order{ID: uuid.New(), TenantID: uuid.New(), TotalCents: 1200, Currency: "usd"}
	session, err := bridge.Open(context.Background(), enums.PaymentRailCrypto, order)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.Reference != "ref-1" || len(crypto.opened) != 1 || len(card.opened) != 0 {
		t.Fatalf("expected crypto rail to be used")
	}
	req := crypto.opened[0]
	if req.AmountCents != 1200 || req.Correlation.OrderID != order.ID || req.Correlation.TenantID != order.TenantID {
		t.Fatalf("unexpected open request %+v", req)
	}
}

func TestBridgeOpenFailureIsPaymentInit(t *testing.T) {
	bridge, err := NewBridge(nil, &fakeRail{name: enums.PaymentRailCard, openErr: errors.New("timeout")})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	order := &models.Order{ID: uuid.New(), TenantID: uuid.New(), TotalCents: 100}
	_, err = bridge.Open(context.Background(), enums.PaymentRailCard, order)
	if !pkgerrors.IsCode(err, pkgerrors.CodePaymentInit) {
		t.Fatalf("expected payment init error, got %v", err)
	}
}

func TestBridgeUnsupportedRail(t *testing.T) {
	bridge, err := NewBridge(nil, &fakeRail{name: enums.PaymentRailCard})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	if bridge.Supports(enums.PaymentRailCrypto) {
		t.Fatalf("crypto should not be supported")
	}
	_, err = bridge.Open(context.Background(), enums.PaymentRailCrypto, &models.Order{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBridgeVoid(t *testing.T) {
	card := &fakeRail{name: enums.PaymentRailCard}
	bridge, err := NewBridge(nil, card)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	if err := bridge.Void(context.Background(), enums.PaymentRailCard, "pi_1"); err != nil {
		t.Fatalf("void: %v", err)
	}
	if err := bridge.Void(context.Background(), enums.PaymentRailCard, ""); err != nil {
		t.Fatalf("void empty: %v", err)
	}
	if len(card.cancelled) != 1 || card.cancelled[0] != "pi_1" {
		t.Fatalf("unexpected cancels %v", card.cancelled)
	}
}

func TestNewBridgeRejectsDuplicateRails(t *testing.T) {
	if _, err := NewBridge(nil, &fakeRail{name: enums.PaymentRailCard}, &fakeRail{name: enums.PaymentRailCard}); err == nil {
		t.Fatalf("expected duplicate rail error")
	}
}

func TestParseCorrelationID(t *testing.T) {
	want := CorrelationID{TenantID: uuid.New(), OrderID: uuid.New()}
	got, err := ParseCorrelationID(want.String())
	if err != nil || got != want {
		t.Fatalf("round trip failed: %v %v", got, err)
	}
	for _, raw := range []string{"", "no-separator", "bad:" + uuid.NewString(), uuid.NewString() + ":bad"} {
		if _, err := ParseCorrelationID(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
