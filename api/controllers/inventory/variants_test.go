package inventory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/api/middleware"
	"github.com/solestack/storefront/internal/ledger"
	"github.com/solestack/storefront/pkg/db/dbtest"
	"github.com/solestack/storefront/pkg/enums"
	"github.com/solestack/storefront/pkg/logger"
)

type harness struct {
	router *chi.Mux
	tenant uuid.UUID
	staff  uuid.UUID
}

func newHarness(t *testing.T) (*harness, *gorm.DB) {
	t.Helper()
	conn := dbtest.New(t)
	stock, err := ledger.NewService(conn, ledger.NewRepository(conn), logger.Nop(), nil)
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}

	h := &harness{router: chi.NewRouter(), tenant: uuid.New(), staff: uuid.New()}
	h.router.Get("/variants/{variantId}", Get(stock, logger.Nop()))
	h.router.Post("/variants/{variantId}/adjustments", Adjust(stock, logger.Nop()))
	h.router.Get("/variants/{variantId}/audit", Audit(stock, logger.Nop()))
	return h, conn
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithIdentity(req.Context(), middleware.Identity{
		UserID:   h.staff,
		TenantID: h.tenant,
		Role:     enums.RoleStaff,
	}))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestGetReportsAvailability(t *testing.T) {
	h, conn := newHarness(t)
	variant := dbtest.SeedVariant(t, conn, h.tenant, 12000, 10, 3)

	rec := h.do(http.MethodGet, "/variants/"+variant.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data variantResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Stock != 10 || body.Data.Reserved != 3 || body.Data.Available != 7 {
		t.Fatalf("unexpected counters %+v", body.Data)
	}
}

func TestGetIsTenantScoped(t *testing.T) {
	h, conn := newHarness(t)
	variant := dbtest.SeedVariant(t, conn, uuid.New(), 12000, 10, 0)

	rec := h.do(http.MethodGet, "/variants/"+variant.ID.String(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across tenants, got %d", rec.Code)
	}
}

func TestAdjustWritesAuditTrail(t *testing.T) {
	h, conn := newHarness(t)
	variant := dbtest.SeedVariant(t, conn, h.tenant, 12000, 5, 0)

	rec := h.do(http.MethodPost, "/variants/"+variant.ID.String()+"/adjustments", `{"delta":4,"reason":"cycle count"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := dbtest.LoadVariant(t, conn, variant.ID); got.Stock != 9 {
		t.Fatalf("expected stock 9, got %d", got.Stock)
	}

	rec = h.do(http.MethodGet, "/variants/"+variant.ID.String()+"/audit?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d", rec.Code)
	}
	var body struct {
		Data []auditEntryResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(body.Data))
	}
	entry := body.Data[0]
	if entry.Operation != enums.StockOperationAdjust || entry.StockDelta != 4 || entry.Actor != "staff:"+h.staff.String() {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
}

func TestAdjustRefusesToUndercutReservations(t *testing.T) {
	h, conn := newHarness(t)
	variant := dbtest.SeedVariant(t, conn, h.tenant, 12000, 5, 4)

	rec := h.do(http.MethodPost, "/variants/"+variant.ID.String()+"/adjustments", `{"delta":-2,"reason":"shrinkage"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := dbtest.LoadVariant(t, conn, variant.ID); got.Stock != 5 {
		t.Fatalf("stock must be unchanged, got %d", got.Stock)
	}
}

func TestAdjustValidatesPayload(t *testing.T) {
	h, conn := newHarness(t)
	variant := dbtest.SeedVariant(t, conn, h.tenant, 12000, 5, 0)

	for _, body := range []string{`{"delta":0,"reason":"noop"}`, `{"delta":3}`, `{"delta":3,"reason":"x","extra":true}`} {
		rec := h.do(http.MethodPost, "/variants/"+variant.ID.String()+"/adjustments", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}
