package ledger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/pkg/db/dbtest"
	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
)

func newTestLedger(t *testing.T) (Service, *gorm.DB, *bytes.Buffer) {
	t.Helper()
	conn := dbtest.New(t)
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "ledger-test", Output: buf})
	svc, err := NewService(conn, NewRepository(conn), logg, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return svc, conn, buf
}

func auditCount(t *testing.T, conn *gorm.DB, variantID uuid.UUID, op enums.StockOperation) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.StockAuditEntry{}).
		Where("variant_id = ? AND operation = ?", variantID, op).
		Count(&count).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	return count
}

func codeOf(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return ""
}

func TestReserveIncrementsReservedAndAudits(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 12000, 3, 0)

	if err := svc.Reserve(context.Background(), Mutation{TenantID: tenant, VariantID: variant.ID, Qty: 2, Actor: "customer:1"}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	got := dbtest.LoadVariant(t, conn, variant.ID)
	if got.Stock != 3 || got.Reserved != 2 {
		t.Fatalf("unexpected counters %+v", got)
	}
	if n := auditCount(t, conn, variant.ID, enums.StockOperationReserve); n != 1 {
		t.Fatalf("expected one reserve audit row, got %d", n)
	}
}

func TestReserveInsufficientStockHasNoEffect(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 12000, 3, 2)

	err := svc.Reserve(context.Background(), Mutation{TenantID: tenant, VariantID: variant.ID, Qty: 2})
	if codeOf(err) != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	details, _ := pkgerrors.As(err).Details().(map[string]any)
	if details["variantId"] != variant.ID.String() || details["available"] != 1 {
		t.Fatalf("expected error to name the variant, got %+v", details)
	}

	got := dbtest.LoadVariant(t, conn, variant.ID)
	if got.Reserved != 2 {
		t.Fatalf("expected reserved unchanged, got %d", got.Reserved)
	}
	if n := auditCount(t, conn, variant.ID, enums.StockOperationReserve); n != 0 {
		t.Fatalf("expected no audit rows, got %d", n)
	}
}

func TestReserveIsTenantScoped(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	variant := dbtest.SeedVariant(t, conn, uuid.New(), 12000, 3, 0)

	err := svc.Reserve(context.Background(), Mutation{TenantID: uuid.New(), VariantID: variant.ID, Qty: 1})
	if codeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if got := dbtest.LoadVariant(t, conn, variant.ID); got.Reserved != 0 {
		t.Fatalf("expected no reservation, got %d", got.Reserved)
	}
}

func TestMutationValidation(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestLedger(t)
	ctx := context.Background()
	tenant := uuid.New()

	cases := []Mutation{
		{VariantID: uuid.New(), Qty: 1},
		{TenantID: tenant, Qty: 1},
		{TenantID: tenant, VariantID: uuid.New(), Qty: 0},
		{TenantID: tenant, VariantID: uuid.New(), Qty: -3},
	}
	for _, m := range cases {
		for name, op := range map[string]func(context.Context, Mutation) error{
			"reserve":  svc.Reserve,
			"release":  svc.Release,
			"finalize": svc.Finalize,
			"restock":  svc.Restock,
		} {
			if err := op(ctx, m); codeOf(err) != pkgerrors.CodeValidation {
				t.Fatalf("%s(%+v): expected validation error, got %v", name, m, err)
			}
		}
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 9000, 5, 0)

	const attempts = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Reserve(context.Background(), Mutation{TenantID: tenant, VariantID: variant.ID, Qty: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case codeOf(err) == pkgerrors.CodeInsufficientStock:
				rejected++
			default:
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 || rejected != attempts-5 {
		t.Fatalf("expected 5 reservations and %d rejections, got %d/%d", attempts-5, succeeded, rejected)
	}
	got := dbtest.LoadVariant(t, conn, variant.ID)
	if got.Reserved != 5 || got.Reserved > got.Stock {
		t.Fatalf("invariant broken: %+v", got)
	}
}

func TestReleaseDecrementsReserved(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 9000, 5, 3)

	if err := svc.Release(context.Background(), Mutation{TenantID: tenant, VariantID: variant.ID, Qty: 2}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := dbtest.LoadVariant(t, conn, variant.ID); got.Reserved != 1 || got.Stock != 5 {
		t.Fatalf("unexpected counters %+v", got)
	}
	if n := auditCount(t, conn, variant.ID, enums.StockOperationRelease); n != 1 {
		t.Fatalf("expected one release audit row, got %d", n)
	}
}

func TestReleaseBeyondReservedFloorsAtZeroAndLogs(t *testing.T) {
	t.Parallel()
	svc, conn, buf := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 9000, 5, 1)

	if err := svc.Release(context.Background(), Mutation{TenantID: tenant, VariantID: variant.ID, Qty: 4}); err != nil {
		t.Fatalf("release should not fail, got %v", err)
	}
	if got := dbtest.LoadVariant(t, conn, variant.ID); got.Reserved != 0 {
		t.Fatalf("expected reserved floored at 0, got %d", got.Reserved)
	}
	if !strings.Contains(buf.String(), "ledger.release_exceeds_reserved") {
		t.Fatalf("expected over-release to be logged; log=%s", buf.String())
	}

	var entry models.StockAuditEntry
	if err := conn.Where("variant_id = ? AND operation = ?", variant.ID, enums.StockOperationRelease).First(&entry).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if entry.ReservedDelta != -1 || !strings.HasSuffix(entry.Reason, ":clamped") {
		t.Fatalf("unexpected clamped audit entry %+v", entry)
	}
}

func TestFinalizeConsumesReservation(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 9000, 4, 2)
	orderID := uuid.New()

	if err := svc.Finalize(context.Background(), Mutation{TenantID: tenant, VariantID: variant.ID, Qty: 2, OrderID: &orderID}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got := dbtest.LoadVariant(t, conn, variant.ID); got.Stock != 2 || got.Reserved != 0 {
		t.Fatalf("unexpected counters %+v", got)
	}

	var entry models.StockAuditEntry
	if err := conn.Where("variant_id = ? AND operation = ?", variant.ID, enums.StockOperationFinalize).First(&entry).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if entry.StockDelta != -2 || entry.ReservedDelta != -2 || entry.OrderID == nil || *entry.OrderID != orderID {
		t.Fatalf("unexpected finalize audit %+v", entry)
	}
}

func TestFinalizeWithoutReservationFails(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 9000, 4, 1)

	err := svc.Finalize(context.Background(), Mutation{TenantID: tenant, VariantID: variant.ID, Qty: 2})
	if codeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if got := dbtest.LoadVariant(t, conn, variant.ID); got.Stock != 4 || got.Reserved != 1 {
		t.Fatalf("expected no effect, got %+v", got)
	}
}

func TestAdjustRefusesToGoBelowReserved(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 9000, 5, 3)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, Adjustment{TenantID: tenant, VariantID: variant.ID, Delta: -3, Reason: "shrinkage", Actor: "staff:1"})
	if codeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	updated, err := svc.Adjust(ctx, Adjustment{TenantID: tenant, VariantID: variant.ID, Delta: -2, Reason: "shrinkage", Actor: "staff:1"})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if updated.Stock != 3 || updated.Reserved != 3 {
		t.Fatalf("unexpected counters %+v", updated)
	}

	if _, err := svc.Adjust(ctx, Adjustment{TenantID: tenant, VariantID: variant.ID, Delta: 0, Reason: "noop"}); codeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected zero delta to be rejected, got %v", err)
	}
	if _, err := svc.Adjust(ctx, Adjustment{TenantID: tenant, VariantID: variant.ID, Delta: 1}); codeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected missing reason to be rejected, got %v", err)
	}

	history, err := svc.History(ctx, tenant, variant.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Operation != enums.StockOperationAdjust || history[0].Actor != "staff:1" || history[0].StockDelta != -2 {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestRestockTouchesStockOnly(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 9000, 2, 1)

	if err := svc.Restock(context.Background(), Mutation{TenantID: tenant, VariantID: variant.ID, Qty: 3}); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if got := dbtest.LoadVariant(t, conn, variant.ID); got.Stock != 5 || got.Reserved != 1 {
		t.Fatalf("unexpected counters %+v", got)
	}
}

func TestWithTxRollsBackWithOuterTransaction(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestLedger(t)
	tenant := uuid.New()
	variant := dbtest.SeedVariant(t, conn, tenant, 9000, 2, 0)
	boom := errors.New("outer failure")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.WithTx(tx).Reserve(context.Background(), Mutation{TenantID: tenant, VariantID: variant.ID, Qty: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected outer failure, got %v", err)
	}
	if got := dbtest.LoadVariant(t, conn, variant.ID); got.Reserved != 0 {
		t.Fatalf("expected reservation rolled back, got %d", got.Reserved)
	}
	if n := auditCount(t, conn, variant.ID, enums.StockOperationReserve); n != 0 {
		t.Fatalf("expected audit rolled back, got %d", n)
	}
}
