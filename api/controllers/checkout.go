package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/solestack/storefront/api/middleware"
	"github.com/solestack/storefront/api/responses"
	"github.com/solestack/storefront/api/validators"
	checkoutsvc "github.com/solestack/storefront/internal/checkout"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/types"
)

// Checkout runs the checkout saga for the calling customer and answers with
// the pending order and the payment handle the client completes out of band.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		customerID := middleware.UserIDFromContext(r.Context())
		if tenantID == uuid.Nil || customerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rail, err := enums.ParsePaymentRail(payload.Rail)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment rail").WithDetails(map[string]string{"rail": payload.Rail}))
			return
		}

		input := checkoutsvc.CheckoutInput{
			TenantID:       tenantID,
			CustomerID:     customerID,
			Lines:          make([]checkoutsvc.LineInput, 0, len(payload.Lines)),
			Address:        payload.Address,
			ShippingMethod: payload.ShippingMethod,
			Rail:           rail,
		}
		for _, line := range payload.Lines {
			input.Lines = append(input.Lines, checkoutsvc.LineInput{VariantID: line.VariantID, Qty: line.Qty})
		}

		result, err := svc.Execute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type checkoutRequest struct {
	Lines          []checkoutLine `json:"lines" validate:"required,min=1,max=50,dive"`
	Address        types.Address  `json:"address" validate:"required"`
	ShippingMethod string         `json:"shippingMethod" validate:"max=64"`
	Rail           string         `json:"rail" validate:"required"`
}

type checkoutLine struct {
	VariantID uuid.UUID `json:"variantId" validate:"required"`
	Qty       int       `json:"qty" validate:"min=1,max=99"`
}
