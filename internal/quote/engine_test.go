package quote

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solestack/storefront/pkg/config"
	"github.com/solestack/storefront/pkg/db/models"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
)

type stubVariants struct {
	variants map[uuid.UUID]models.Variant
}

func (s stubVariants) Get(_ context.Context, tenantID, variantID uuid.UUID) (*models.Variant, error) {
	v, ok := s.variants[variantID]
	if !ok || v.TenantID != tenantID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	return &v, nil
}

func quoteConfig() config.QuoteConfig {
	return config.QuoteConfig{
		Currency:                   "usd",
		TaxRate:                    "0.0825",
		DefaultMethod:              "standard",
		Methods:                    "standard:800,express:2500",
		FreeShippingThresholdCents: 50000,
	}
}

func newEngine(t *testing.T, variants ...models.Variant) *Engine {
	t.Helper()
	stub := stubVariants{variants: map[uuid.UUID]models.Variant{}}
	for _, v := range variants {
		stub.variants[v.ID] = v
	}
	engine, err := NewEngine(stub, quoteConfig())
	require.NoError(t, err)
	return engine
}

func TestQuoteTotals(t *testing.T) {
	t.Parallel()
	tenant := uuid.New()
	a := models.Variant{ID: uuid.New(), TenantID: tenant, SKU: "A-10", PriceCents: 12000, Stock: 5}
	b := models.Variant{ID: uuid.New(), TenantID: tenant, SKU: "B-9", PriceCents: 4550, Stock: 2}
	engine := newEngine(t, a, b)

	q, err := engine.Quote(context.Background(), Request{
		TenantID:        tenant,
		Lines:           []Line{{VariantID: a.ID, Qty: 2}, {VariantID: b.ID, Qty: 1}},
		RequestedMethod: "Express",
	})
	require.NoError(t, err)

	assert.Equal(t, 28550, q.SubtotalCents)
	assert.Equal(t, "express", q.ShippingMethod)
	assert.Equal(t, 2500, q.ShippingCents)
	// 28550 * 0.0825 = 2355.375
	assert.Equal(t, 2355, q.TaxCents)
	assert.Equal(t, 28550+2500+2355, q.TotalCents)
	require.Len(t, q.Lines, 2)
	assert.Equal(t, 12000, q.Lines[0].UnitPriceCents)
	assert.Equal(t, 24000, q.Lines[0].LineTotalCents)
}

func TestQuoteShippingFallbacks(t *testing.T) {
	t.Parallel()
	tenant := uuid.New()
	cheap := models.Variant{ID: uuid.New(), TenantID: tenant, PriceCents: 1000, Stock: 10}
	pricey := models.Variant{ID: uuid.New(), TenantID: tenant, PriceCents: 60000, Stock: 10}
	engine := newEngine(t, cheap, pricey)

	tests := []struct {
		name       string
		variant    uuid.UUID
		method     string
		wantMethod string
		wantCents  int
	}{
		{"empty falls back to default", cheap.ID, "", "standard", 800},
		{"unknown falls back to default", cheap.ID, "drone", "standard", 800},
		{"free standard above threshold", pricey.ID, "standard", "standard", 0},
		{"express is never free", pricey.ID, "express", "express", 2500},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			q, err := engine.Quote(context.Background(), Request{
				TenantID:        tenant,
				Lines:           []Line{{VariantID: tc.variant, Qty: 1}},
				RequestedMethod: tc.method,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantMethod, q.ShippingMethod)
			assert.Equal(t, tc.wantCents, q.ShippingCents)
		})
	}
}

func TestQuoteRejections(t *testing.T) {
	t.Parallel()
	tenant := uuid.New()
	v := models.Variant{ID: uuid.New(), TenantID: tenant, PriceCents: 1000, Stock: 3, Reserved: 2}
	engine := newEngine(t, v)

	_, err := engine.Quote(context.Background(), Request{TenantID: tenant, Lines: []Line{{VariantID: v.ID, Qty: 2}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)

	_, err = engine.Quote(context.Background(), Request{TenantID: tenant, Lines: []Line{{VariantID: uuid.New(), Qty: 1}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = engine.Quote(context.Background(), Request{TenantID: uuid.New(), Lines: []Line{{VariantID: v.ID, Qty: 1}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "other tenant must not see the variant, got %v", err)

	_, err = engine.Quote(context.Background(), Request{TenantID: tenant, Lines: []Line{{VariantID: v.ID, Qty: 0}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = engine.Quote(context.Background(), Request{TenantID: tenant})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestNewEngineRejectsBadTaxRate(t *testing.T) {
	t.Parallel()
	cfg := quoteConfig()
	cfg.TaxRate = "eight percent"
	_, err := NewEngine(stubVariants{}, cfg)
	require.Error(t, err)

	cfg.TaxRate = "-0.1"
	_, err = NewEngine(stubVariants{}, cfg)
	require.Error(t, err)
}
