package payments

import (
	"context"
	"net/http"

	"github.com/solestack/storefront/pkg/enums"
)

// Outcome is the internal meaning of a provider status.
type Outcome string

const (
	OutcomeSucceeded    Outcome = "succeeded"
	OutcomeFailed       Outcome = "failed"
	OutcomeIntermediate Outcome = "intermediate"
	OutcomeUnknown      Outcome = "unknown"
)

// OpenRequest sizes and tags an external payment for one order.
type OpenRequest struct {
	Correlation CorrelationID
	AmountCents int
	Currency    string
	Description string
}

// Session is what the shopper needs to complete payment out of band.
// Card rails fill ClientSecret; invoice rails fill the Pay* fields.
type Session struct {
	Rail         enums.PaymentRail
	Reference    string
	ClientSecret string
	PayAddress   string
	PayAmount    string
	PayCurrency  string
}

// Callback is a provider notification reduced to what settlement needs.
type Callback struct {
	Rail           enums.PaymentRail
	EventID        string
	Reference      string
	ProviderStatus string
	// Correlation is nil when the payload carried no usable order identity.
	Correlation *CorrelationID
}

// Rail is one external payment network.
type Rail interface {
	Name() enums.PaymentRail
	Open(ctx context.Context, req OpenRequest) (*Session, error)
	Cancel(ctx context.Context, reference string) error
	VerifyCallback(payload []byte, header http.Header) error
	ParseCallback(payload []byte) (*Callback, error)
	MapStatus(providerStatus string) Outcome
}
