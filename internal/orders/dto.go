package orders

import (
	"github.com/google/uuid"

	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
)

// ListFilter narrows a tenant's order listing.
type ListFilter struct {
	Status     *enums.OrderStatus
	CustomerID *uuid.UUID
}

// OrderList is one page of orders.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// BulkInput names the orders a staff operation targets. Ids are raw so a
// malformed one fails alone instead of rejecting the batch.
type BulkInput struct {
	TenantID uuid.UUID
	OrderIDs []string
	Actor    string
}

// ShipInput adds the carrier tracking number to a ship request.
type ShipInput struct {
	BulkInput
	TrackingNumber *string
}

// CancelInput adds the staff-provided reason to a cancel request.
type CancelInput struct {
	BulkInput
	Reason string
}

// BulkResult reports the outcome for one order of a bulk operation.
type BulkResult struct {
	OrderID string            `json:"orderId"`
	Success bool              `json:"success"`
	Status  enums.OrderStatus `json:"status,omitempty"`
	Error   *BulkError        `json:"error,omitempty"`
}

// BulkError is the client-safe failure reason of one bulk entry.
type BulkError struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
}

func bulkErrorFrom(err error) *BulkError {
	typed := pkgerrors.As(err)
	if typed == nil {
		meta := pkgerrors.MetadataFor(pkgerrors.CodeInternal)
		return &BulkError{Code: pkgerrors.CodeInternal, Message: meta.PublicMessage}
	}
	switch typed.Code() {
	case pkgerrors.CodeInternal, pkgerrors.CodeDependency, pkgerrors.CodeCompensation:
		return &BulkError{Code: typed.Code(), Message: pkgerrors.MetadataFor(typed.Code()).PublicMessage}
	default:
		return &BulkError{Code: typed.Code(), Message: typed.Message()}
	}
}
