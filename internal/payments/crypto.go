package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/nowpayments"
)

var cryptoOutcomes = map[string]Outcome{
	"finished":       OutcomeSucceeded,
	"failed":         OutcomeFailed,
	"expired":        OutcomeFailed,
	"refunded":       OutcomeFailed,
	"waiting":        OutcomeIntermediate,
	"confirming":     OutcomeIntermediate,
	"confirmed":      OutcomeIntermediate,
	"sending":        OutcomeIntermediate,
	"partially_paid": OutcomeIntermediate,
}

type invoiceCreator interface {
	CreatePayment(ctx context.Context, req nowpayments.CreatePaymentRequest) (*nowpayments.Payment, error)
}

// CryptoRailOptions configures the invoice rail.
type CryptoRailOptions struct {
	IPNSecret   string
	PayCurrency string
	CallbackURL string
}

// CryptoRail settles through NOWPayments invoices confirmed by IPN callbacks.
type CryptoRail struct {
	client      invoiceCreator
	ipnSecret   string
	payCurrency string
	callbackURL string
}

func NewCryptoRail(client invoiceCreator, opts CryptoRailOptions) (*CryptoRail, error) {
	if client == nil {
		return nil, errors.New("nowpayments client required")
	}
	if strings.TrimSpace(opts.IPNSecret) == "" {
		return nil, errors.New("nowpayments ipn secret required")
	}
	payCurrency := strings.ToLower(strings.TrimSpace(opts.PayCurrency))
	if payCurrency == "" {
		return nil, errors.New("nowpayments pay currency required")
	}
	return &CryptoRail{
		client:      client,
		ipnSecret:   opts.IPNSecret,
		payCurrency: payCurrency,
		callbackURL: strings.TrimSpace(opts.CallbackURL),
	}, nil
}

func (r *CryptoRail) Name() enums.PaymentRail {
	return enums.PaymentRailCrypto
}

func (r *CryptoRail) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	amount := decimal.NewFromInt(int64(req.AmountCents)).Shift(-2)
	payment, err := r.client.CreatePayment(ctx, nowpayments.CreatePaymentRequest{
		PriceAmount:      json.Number(amount.StringFixed(2)),
		PriceCurrency:    strings.ToLower(req.Currency),
		PayCurrency:      r.payCurrency,
		OrderID:          req.Correlation.String(),
		OrderDescription: req.Description,
		IPNCallbackURL:   r.callbackURL,
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		Rail:        enums.PaymentRailCrypto,
		Reference:   payment.PaymentID.String(),
		PayAddress:  payment.PayAddress,
		PayAmount:   payment.PayAmount.String(),
		PayCurrency: payment.PayCurrency,
	}, nil
}

// Cancel is a no-op: unpaid invoices expire on the provider side and the
// expiry arrives as a failed callback.
func (r *CryptoRail) Cancel(context.Context, string) error {
	return nil
}

func (r *CryptoRail) VerifyCallback(payload []byte, header http.Header) error {
	err := nowpayments.VerifyIPN(payload, header.Get(nowpayments.SignatureHeader), r.ipnSecret)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nowpayments.ErrMissingSignature), errors.Is(err, nowpayments.ErrInvalidSignature):
		return pkgerrors.Wrap(pkgerrors.CodeSignature, err, "invalid ipn signature")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode ipn payload")
	}
}

func (r *CryptoRail) ParseCallback(payload []byte) (*Callback, error) {
	ipn, err := nowpayments.ParseIPN(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode ipn payload")
	}
	if ipn.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ipn missing payment_id")
	}
	status := strings.ToLower(strings.TrimSpace(ipn.PaymentStatus))
	return &Callback{
		Rail:           enums.PaymentRailCrypto,
		EventID:        ipn.PaymentID.String() + ":" + status,
		Reference:      ipn.PaymentID.String(),
		ProviderStatus: status,
		Correlation:    correlationFrom(ipn.OrderID),
	}, nil
}

func (r *CryptoRail) MapStatus(providerStatus string) Outcome {
	if outcome, ok := cryptoOutcomes[strings.ToLower(strings.TrimSpace(providerStatus))]; ok {
		return outcome
	}
	return OutcomeUnknown
}
