package payments

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CorrelationMetadataKey is the provider metadata key holding the correlation id.
const CorrelationMetadataKey = "correlation_id"

// CorrelationID ties a provider payment back to a tenant-scoped order.
type CorrelationID struct {
	TenantID uuid.UUID
	OrderID  uuid.UUID
}

func (c CorrelationID) String() string {
	return c.TenantID.String() + ":" + c.OrderID.String()
}

// ParseCorrelationID parses the "<tenant>:<order>" form.
func ParseCorrelationID(raw string) (CorrelationID, error) {
	tenantPart, orderPart, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return CorrelationID{}, fmt.Errorf("correlation id %q missing separator", raw)
	}
	tenantID, err := uuid.Parse(tenantPart)
	if err != nil {
		return CorrelationID{}, fmt.Errorf("correlation tenant: %w", err)
	}
	orderID, err := uuid.Parse(orderPart)
	if err != nil {
		return CorrelationID{}, fmt.Errorf("correlation order: %w", err)
	}
	return CorrelationID{TenantID: tenantID, OrderID: orderID}, nil
}

func correlationFrom(raw string) *CorrelationID {
	if raw == "" {
		return nil
	}
	id, err := ParseCorrelationID(raw)
	if err != nil {
		return nil
	}
	return &id
}
