package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solestack/storefront/api/middleware"
	"github.com/solestack/storefront/api/responses"
	"github.com/solestack/storefront/api/validators"
	internalorders "github.com/solestack/storefront/internal/orders"
	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/pagination"
	"github.com/solestack/storefront/pkg/types"
)

// CustomerGet returns one of the caller's own orders. Orders of other
// customers answer 404 rather than 403.
func CustomerGet(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		order, err := svc.GetForCustomer(ctx, middleware.TenantIDFromContext(ctx), middleware.UserIDFromContext(ctx), orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// StaffGet returns any order of the staff member's tenant.
func StaffGet(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), middleware.TenantIDFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// StaffList pages through the tenant's orders, newest first, optionally
// filtered by status and customer.
func StaffList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := buildListFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.List(r.Context(), middleware.TenantIDFromContext(r.Context()), params, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]orderResponse, 0, len(list.Orders))
		for i := range list.Orders {
			out = append(out, newOrderResponse(&list.Orders[i]))
		}
		responses.WritePage(w, out, types.PageMeta{Limit: limit, Count: len(out), NextCursor: list.NextCursor})
	}
}

func buildListFilter(r *http.Request) (internalorders.ListFilter, error) {
	var filter internalorders.ListFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").WithDetails(map[string]any{"field": "status"})
		}
		filter.Status = &status
	}
	customerID, err := validators.ParseQueryUUID(r, "customerId")
	if err != nil {
		return filter, err
	}
	filter.CustomerID = customerID
	return filter, nil
}

type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	CustomerID       uuid.UUID           `json:"customerId"`
	Status           enums.OrderStatus   `json:"status"`
	Currency         string              `json:"currency"`
	SubtotalCents    int                 `json:"subtotalCents"`
	ShippingCents    int                 `json:"shippingCents"`
	TaxCents         int                 `json:"taxCents"`
	TotalCents       int                 `json:"totalCents"`
	ShippingAddress  types.Address       `json:"shippingAddress"`
	ShippingMethod   string              `json:"shippingMethod"`
	PaymentRail      enums.PaymentRail   `json:"paymentRail"`
	PaymentReference *string             `json:"paymentReference,omitempty"`
	RailStatus       *string             `json:"railStatus,omitempty"`
	TrackingNumber   *string             `json:"trackingNumber,omitempty"`
	CancelReason     *string             `json:"cancelReason,omitempty"`
	Items            []orderItemResponse `json:"items"`
	PaidAt           *time.Time          `json:"paidAt,omitempty"`
	FulfilledAt      *time.Time          `json:"fulfilledAt,omitempty"`
	ShippedAt        *time.Time          `json:"shippedAt,omitempty"`
	DeliveredAt      *time.Time          `json:"deliveredAt,omitempty"`
	CancelledAt      *time.Time          `json:"cancelledAt,omitempty"`
	RefundedAt       *time.Time          `json:"refundedAt,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
}

type orderItemResponse struct {
	ID             uuid.UUID `json:"id"`
	VariantID      uuid.UUID `json:"variantId"`
	Qty            int       `json:"qty"`
	UnitPriceCents int       `json:"unitPriceCents"`
	LineTotalCents int       `json:"lineTotalCents"`
	ReturnedQty    int       `json:"returnedQty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		Status:           order.Status,
		Currency:         order.Currency,
		SubtotalCents:    order.SubtotalCents,
		ShippingCents:    order.ShippingCents,
		TaxCents:         order.TaxCents,
		TotalCents:       order.TotalCents,
		ShippingAddress:  order.ShippingAddress,
		ShippingMethod:   order.ShippingMethod,
		PaymentRail:      order.PaymentRail,
		PaymentReference: order.PaymentReference,
		RailStatus:       order.RailStatus,
		TrackingNumber:   order.TrackingNumber,
		CancelReason:     order.CancelReason,
		Items:            make([]orderItemResponse, 0, len(order.Items)),
		PaidAt:           order.PaidAt,
		FulfilledAt:      order.FulfilledAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CancelledAt:      order.CancelledAt,
		RefundedAt:       order.RefundedAt,
		CreatedAt:        order.CreatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:             item.ID,
			VariantID:      item.VariantID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
			ReturnedQty:    item.ReturnedQty,
		})
	}
	return resp
}
