package payloads

import (
	"github.com/google/uuid"

	"github.com/solestack/storefront/pkg/enums"
)

// OrderEvent is the payload shared by every order lifecycle notification.
type OrderEvent struct {
	OrderID        uuid.UUID         `json:"orderId"`
	CustomerID     uuid.UUID         `json:"customerId"`
	Status         enums.OrderStatus `json:"status"`
	TotalCents     int               `json:"totalCents"`
	Currency       string            `json:"currency"`
	PaymentRail    enums.PaymentRail `json:"paymentRail,omitempty"`
	TrackingNumber *string           `json:"trackingNumber,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}
