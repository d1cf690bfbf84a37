package orders

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/solestack/storefront/api/middleware"
	"github.com/solestack/storefront/api/responses"
	"github.com/solestack/storefront/api/validators"
	"github.com/solestack/storefront/internal/returns"
	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
)

type createReturnRequest struct {
	ItemIDs         []uuid.UUID `json:"itemIds" validate:"required,min=1,max=100"`
	Type            string      `json:"type" validate:"required,oneof=return exchange"`
	InventoryAction string      `json:"inventoryAction" validate:"required,oneof=restock writeoff"`
	Reason          string      `json:"reason" validate:"required,max=500"`
}

type returnResponse struct {
	ID              uuid.UUID             `json:"id"`
	OrderID         uuid.UUID             `json:"orderId"`
	Type            enums.ReturnType      `json:"type"`
	InventoryAction enums.InventoryAction `json:"inventoryAction"`
	Status          enums.ReturnStatus    `json:"status"`
	Reason          string                `json:"reason"`
	Actor           string                `json:"actor"`
	Items           []returnItemResponse  `json:"items"`
	CreatedAt       time.Time             `json:"createdAt"`
}

type returnItemResponse struct {
	OrderItemID uuid.UUID `json:"orderItemId"`
	VariantID   uuid.UUID `json:"variantId"`
	Qty         int       `json:"qty"`
}

// CreateReturn records a return against a settled order.
func CreateReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createReturnRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returnType, err := enums.ParseReturnType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return type"))
			return
		}
		action, err := enums.ParseInventoryAction(payload.InventoryAction)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid inventory action"))
			return
		}

		ret, err := svc.CreateReturn(r.Context(), returns.CreateReturnInput{
			TenantID:        middleware.TenantIDFromContext(r.Context()),
			OrderID:         orderID,
			ItemIDs:         payload.ItemIDs,
			Type:            returnType,
			InventoryAction: action,
			Reason:          validators.SanitizeString(payload.Reason, 500),
			Actor:           actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReturnResponse(ret))
	}
}

// ListReturns returns every return recorded against an order.
func ListReturns(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), middleware.TenantIDFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]returnResponse, 0, len(list))
		for i := range list {
			out = append(out, newReturnResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func newReturnResponse(ret *models.Return) returnResponse {
	resp := returnResponse{
		ID:              ret.ID,
		OrderID:         ret.OrderID,
		Type:            ret.Type,
		InventoryAction: ret.InventoryAction,
		Status:          ret.Status,
		Reason:          ret.Reason,
		Actor:           ret.Actor,
		Items:           make([]returnItemResponse, 0, len(ret.Items)),
		CreatedAt:       ret.CreatedAt,
	}
	for _, item := range ret.Items {
		resp.Items = append(resp.Items, returnItemResponse{
			OrderItemID: item.OrderItemID,
			VariantID:   item.VariantID,
			Qty:         item.Qty,
		})
	}
	return resp
}
