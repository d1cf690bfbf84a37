package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/solestack/storefront/api/middleware"
	checkoutsvc "github.com/solestack/storefront/internal/checkout"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
)

type stubCheckoutService struct {
	input  checkoutsvc.CheckoutInput
	calls  int
	result *checkoutsvc.CheckoutResult
	err    error
}

func (s *stubCheckoutService) Execute(_ context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.CheckoutResult, error) {
	s.calls++
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

const validAddress = `{"name":"Ada Lovelace","line1":"1 Analytical Way","city":"London","region":"LDN","postalCode":"N1 9GU","country":"GB"}`

func checkoutBody(variantID uuid.UUID, qty int, rail string) string {
	line, _ := json.Marshal(map[string]any{"variantId": variantID, "qty": qty})
	return `{"lines":[` + string(line) + `],"address":` + validAddress + `,"shippingMethod":"standard","rail":"` + rail + `"}`
}

func doCheckout(t *testing.T, svc checkoutsvc.Service, id middleware.Identity, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req = req.WithContext(middleware.WithIdentity(req.Context(), id))
	rec := httptest.NewRecorder()
	Checkout(svc, logger.Nop()).ServeHTTP(rec, req)
	return rec
}

func customerIdentity() middleware.Identity {
	return middleware.Identity{UserID: uuid.New(), TenantID: uuid.New(), Role: enums.RoleCustomer}
}

func TestCheckoutCreatesPendingOrder(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckoutService{result: &checkoutsvc.CheckoutResult{
		OrderID: orderID,
		Status:  enums.OrderStatusPending,
		Totals:  checkoutsvc.Totals{Currency: "usd", SubtotalCents: 24000, TotalCents: 24000},
		Payment: checkoutsvc.PaymentHandle{Rail: enums.PaymentRailCard, Reference: "pi_1", ClientSecret: "secret"},
	}}
	id := customerIdentity()
	variantID := uuid.New()

	rec := doCheckout(t, svc, id, checkoutBody(variantID, 2, "CARD"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.input.TenantID != id.TenantID || svc.input.CustomerID != id.UserID {
		t.Fatalf("identity not forwarded: %+v", svc.input)
	}
	if svc.input.Rail != enums.PaymentRailCard || len(svc.input.Lines) != 1 || svc.input.Lines[0].Qty != 2 {
		t.Fatalf("unexpected input %+v", svc.input)
	}

	var body struct {
		Data checkoutsvc.CheckoutResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.OrderID != orderID || body.Data.Payment.ClientSecret != "secret" {
		t.Fatalf("unexpected result %+v", body.Data)
	}
}

func TestCheckoutRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown rail": checkoutBody(uuid.New(), 1, "paypal"),
		"zero qty":     checkoutBody(uuid.New(), 0, "card"),
		"no lines":     `{"lines":[],"address":` + validAddress + `,"rail":"card"}`,
		"no address":   `{"lines":[{"variantId":"` + uuid.NewString() + `","qty":1}],"rail":"card"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubCheckoutService{}
			rec := doCheckout(t, svc, customerIdentity(), body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if svc.calls != 0 {
				t.Fatalf("service must not run on invalid input")
			}
		})
	}
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	rec := doCheckout(t, &stubCheckoutService{}, middleware.Identity{}, checkoutBody(uuid.New(), 1, "card"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCheckoutSurfacesShortfallDetails(t *testing.T) {
	variantID := uuid.New()
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{"variantId": variantID.String()})}

	rec := doCheckout(t, svc, customerIdentity(), checkoutBody(variantID, 3, "crypto"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeInsufficientStock) || body.Error.Details["variantId"] != variantID.String() {
		t.Fatalf("unexpected error body %+v", body.Error)
	}
}

func TestCheckoutHidesPaymentProviderErrors(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodePaymentInit, "stripe: card_declined raw provider text")}

	rec := doCheckout(t, svc, customerIdentity(), checkoutBody(uuid.New(), 1, "card"))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "card_declined") {
		t.Fatalf("provider message leaked: %s", rec.Body.String())
	}
}
