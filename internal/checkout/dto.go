package checkout

import (
	"github.com/google/uuid"

	"github.com/solestack/storefront/pkg/enums"
	"github.com/solestack/storefront/pkg/types"
)

// LineInput is one cart entry as submitted by the shopper.
type LineInput struct {
	VariantID uuid.UUID
	Qty       int
}

// CheckoutInput captures a shopper's checkout request.
type CheckoutInput struct {
	TenantID       uuid.UUID
	CustomerID     uuid.UUID
	Lines          []LineInput
	Address        types.Address
	ShippingMethod string
	Rail           enums.PaymentRail
}

// Totals are the quoted amounts frozen on the order.
type Totals struct {
	Currency      string `json:"currency"`
	SubtotalCents int    `json:"subtotalCents"`
	ShippingCents int    `json:"shippingCents"`
	TaxCents      int    `json:"taxCents"`
	TotalCents    int    `json:"totalCents"`
}

// PaymentHandle is what the client needs to complete payment.
type PaymentHandle struct {
	Rail         enums.PaymentRail `json:"rail"`
	Reference    string            `json:"reference"`
	ClientSecret string            `json:"clientSecret,omitempty"`
	PayAddress   string            `json:"payAddress,omitempty"`
	PayAmount    string            `json:"payAmount,omitempty"`
	PayCurrency  string            `json:"payCurrency,omitempty"`
}

// CheckoutResult is returned once the order is pending and payment is open.
type CheckoutResult struct {
	OrderID        uuid.UUID         `json:"orderId"`
	Status         enums.OrderStatus `json:"status"`
	ShippingMethod string            `json:"shippingMethod"`
	Totals         Totals            `json:"totals"`
	Payment        PaymentHandle     `json:"payment"`
}
