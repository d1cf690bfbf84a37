package inventory

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/solestack/storefront/api/middleware"
	"github.com/solestack/storefront/api/responses"
	"github.com/solestack/storefront/api/validators"
	"github.com/solestack/storefront/internal/ledger"
	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type variantResponse struct {
	ID         uuid.UUID `json:"id"`
	ProductID  uuid.UUID `json:"productId"`
	SKU        string    `json:"sku"`
	Size       string    `json:"size"`
	Condition  string    `json:"condition"`
	PriceCents int       `json:"priceCents"`
	Stock      int       `json:"stock"`
	Reserved   int       `json:"reserved"`
	Available  int       `json:"available"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type auditEntryResponse struct {
	ID            uuid.UUID            `json:"id"`
	Operation     enums.StockOperation `json:"operation"`
	StockDelta    int                  `json:"stockDelta"`
	ReservedDelta int                  `json:"reservedDelta"`
	Reason        string               `json:"reason"`
	Actor         string               `json:"actor"`
	OrderID       *uuid.UUID           `json:"orderId,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
}

type adjustmentRequest struct {
	Delta  int    `json:"delta" validate:"required,min=-100000,max=100000"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// Get returns a variant's counters.
func Get(stock ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stock == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}
		variantID, err := validators.ParseUUIDParam(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variant, err := stock.Get(r.Context(), middleware.TenantIDFromContext(r.Context()), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVariantResponse(variant))
	}
}

// Adjust applies a staff stock correction. A negative delta may not take
// stock below what is currently reserved.
func Adjust(stock ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stock == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}
		variantID, err := validators.ParseUUIDParam(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustmentRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variant, err := stock.Adjust(r.Context(), ledger.Adjustment{
			TenantID:  middleware.TenantIDFromContext(r.Context()),
			VariantID: variantID,
			Delta:     payload.Delta,
			Reason:    validators.SanitizeString(payload.Reason, 500),
			Actor:     "staff:" + middleware.UserIDFromContext(r.Context()).String(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVariantResponse(variant))
	}
}

// Audit returns the newest audit entries of a variant.
func Audit(stock ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stock == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}
		variantID, err := validators.ParseUUIDParam(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultAuditLimit, 1, maxAuditLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := stock.History(r.Context(), middleware.TenantIDFromContext(r.Context()), variantID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]auditEntryResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, auditEntryResponse{
				ID:            entry.ID,
				Operation:     entry.Operation,
				StockDelta:    entry.StockDelta,
				ReservedDelta: entry.ReservedDelta,
				Reason:        entry.Reason,
				Actor:         entry.Actor,
				OrderID:       entry.OrderID,
				CreatedAt:     entry.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

func newVariantResponse(v *models.Variant) variantResponse {
	return variantResponse{
		ID:         v.ID,
		ProductID:  v.ProductID,
		SKU:        v.SKU,
		Size:       v.Size,
		Condition:  v.Condition,
		PriceCents: v.PriceCents,
		Stock:      v.Stock,
		Reserved:   v.Reserved,
		Available:  v.Available(),
		UpdatedAt:  v.UpdatedAt,
	}
}
