package quote

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solestack/storefront/pkg/config"
	"github.com/solestack/storefront/pkg/db/models"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/types"
)

type variantLoader interface {
	Get(ctx context.Context, tenantID, variantID uuid.UUID) (*models.Variant, error)
}

// Line is one cart entry to price.
type Line struct {
	VariantID uuid.UUID
	Qty       int
}

// Request carries everything needed to price a cart for one tenant.
type Request struct {
	TenantID        uuid.UUID
	Lines           []Line
	Address         types.Address
	RequestedMethod string
}

// PricedLine is a cart line with the unit price captured at quote time.
type PricedLine struct {
	VariantID      uuid.UUID
	Qty            int
	UnitPriceCents int
	LineTotalCents int
}

// Quote is the priced cart.
type Quote struct {
	Lines          []PricedLine
	Currency       string
	ShippingMethod string
	SubtotalCents  int
	ShippingCents  int
	TaxCents       int
	TotalCents     int
}

// Engine prices carts from current variant prices and the configured
// shipping and tax tables.
type Engine struct {
	variants      variantLoader
	methods       map[string]int
	defaultMethod string
	taxRate       decimal.Decimal
	freeShipping  int
	currency      string
}

func NewEngine(variants variantLoader, cfg config.QuoteConfig) (*Engine, error) {
	if variants == nil {
		return nil, fmt.Errorf("variant loader required")
	}
	methods, err := cfg.ShippingMethods()
	if err != nil {
		return nil, err
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.TaxRate))
	if err != nil {
		return nil, fmt.Errorf("invalid tax rate %q: %w", cfg.TaxRate, err)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("tax rate must not be negative")
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Engine{
		variants:      variants,
		methods:       methods,
		defaultMethod: strings.ToLower(cfg.DefaultMethod),
		taxRate:       rate,
		freeShipping:  cfg.FreeShippingThresholdCents,
		currency:      currency,
	}, nil
}

// Quote prices the request. Stock is checked against current availability
// only as a pre-check; the reservation step remains authoritative.
func (e *Engine) Quote(ctx context.Context, req Request) (*Quote, error) {
	if req.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant is required")
	}
	if len(req.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}

	q := &Quote{
		Lines:    make([]PricedLine, 0, len(req.Lines)),
		Currency: e.currency,
	}
	for _, line := range req.Lines {
		if line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		variant, err := e.variants.Get(ctx, req.TenantID, line.VariantID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart references an unknown variant").
					WithDetails(map[string]any{"variantId": line.VariantID.String()})
			}
			return nil, err
		}
		if variant.Available() < line.Qty {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("variant %s has insufficient stock", variant.ID)).
				WithDetails(map[string]any{
					"variantId": variant.ID.String(),
					"sku":       variant.SKU,
					"requested": line.Qty,
					"available": variant.Available(),
				})
		}
		lineTotal := variant.PriceCents * line.Qty
		q.Lines = append(q.Lines, PricedLine{
			VariantID:      variant.ID,
			Qty:            line.Qty,
			UnitPriceCents: variant.PriceCents,
			LineTotalCents: lineTotal,
		})
		q.SubtotalCents += lineTotal
	}

	q.ShippingMethod, q.ShippingCents = e.shipping(req.RequestedMethod, q.SubtotalCents)
	q.TaxCents = e.tax(q.SubtotalCents)
	q.TotalCents = q.SubtotalCents + q.ShippingCents + q.TaxCents
	return q, nil
}

// shipping resolves the requested method, falling back to the default for
// empty or unknown names. The default method ships free at or above the
// configured threshold.
func (e *Engine) shipping(requested string, subtotal int) (string, int) {
	method := strings.ToLower(strings.TrimSpace(requested))
	cost, ok := e.methods[method]
	if !ok {
		method = e.defaultMethod
		cost = e.methods[method]
	}
	if method == e.defaultMethod && e.freeShipping > 0 && subtotal >= e.freeShipping {
		cost = 0
	}
	return method, cost
}

func (e *Engine) tax(subtotal int) int {
	if e.taxRate.IsZero() {
		return 0
	}
	return int(decimal.NewFromInt(int64(subtotal)).Mul(e.taxRate).RoundBank(0).IntPart())
}
