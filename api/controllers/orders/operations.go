package orders

import (
	"net/http"

	"github.com/solestack/storefront/api/middleware"
	"github.com/solestack/storefront/api/responses"
	"github.com/solestack/storefront/api/validators"
	internalorders "github.com/solestack/storefront/internal/orders"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
)

type bulkRequest struct {
	OrderIDs []string `json:"orderIds" validate:"required,min=1,max=100"`
}

type shipRequest struct {
	OrderIDs       []string `json:"orderIds" validate:"required,min=1,max=100"`
	TrackingNumber *string  `json:"trackingNumber,omitempty" validate:"omitempty,max=100"`
}

type cancelRequest struct {
	OrderIDs []string `json:"orderIds" validate:"required,min=1,max=100"`
	Reason   string   `json:"reason" validate:"max=500"`
}

type bulkResponse struct {
	Results   []internalorders.BulkResult `json:"results"`
	Succeeded int                         `json:"succeeded"`
	Failed    int                         `json:"failed"`
}

// Fulfill moves paid orders to fulfilled. Each id succeeds or fails on its
// own; the response is 200 even when some entries failed.
func Fulfill(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload bulkRequest
		if !decodeBulk(w, r, svc, logg, &payload) {
			return
		}
		writeBulk(w, svc.Fulfill(r.Context(), bulkInput(r, payload.OrderIDs)))
	}
}

func Ship(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload shipRequest
		if !decodeBulk(w, r, svc, logg, &payload) {
			return
		}
		tracking := payload.TrackingNumber
		if tracking != nil {
			cleaned := validators.SanitizeString(*tracking, 100)
			tracking = &cleaned
		}
		writeBulk(w, svc.Ship(r.Context(), internalorders.ShipInput{
			BulkInput:      bulkInput(r, payload.OrderIDs),
			TrackingNumber: tracking,
		}))
	}
}

func Deliver(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload bulkRequest
		if !decodeBulk(w, r, svc, logg, &payload) {
			return
		}
		writeBulk(w, svc.Deliver(r.Context(), bulkInput(r, payload.OrderIDs)))
	}
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cancelRequest
		if !decodeBulk(w, r, svc, logg, &payload) {
			return
		}
		writeBulk(w, svc.Cancel(r.Context(), internalorders.CancelInput{
			BulkInput: bulkInput(r, payload.OrderIDs),
			Reason:    validators.SanitizeString(payload.Reason, 500),
		}))
	}
}

func decodeBulk(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger, dest any) bool {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return false
	}
	if err := validators.DecodeJSONBody(w, r, dest); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return false
	}
	return true
}

func bulkInput(r *http.Request, orderIDs []string) internalorders.BulkInput {
	return internalorders.BulkInput{
		TenantID: middleware.TenantIDFromContext(r.Context()),
		OrderIDs: orderIDs,
		Actor:    actorFromRequest(r),
	}
}

// actorFromRequest names the staff member in audit rows.
func actorFromRequest(r *http.Request) string {
	return "staff:" + middleware.UserIDFromContext(r.Context()).String()
}

func writeBulk(w http.ResponseWriter, results []internalorders.BulkResult) {
	resp := bulkResponse{Results: results}
	for _, result := range results {
		if result.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	responses.WriteSuccess(w, resp)
}
