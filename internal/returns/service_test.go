package returns

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/solestack/storefront/internal/ledger"
	"github.com/solestack/storefront/internal/notifications"
	"github.com/solestack/storefront/internal/orders"
	"github.com/solestack/storefront/pkg/db"
	"github.com/solestack/storefront/pkg/db/dbtest"
	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []enums.OutboxEventType
}

func (r *recordingNotifier) Notify(_ context.Context, _ *gorm.DB, n notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n.Type)
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	notifier *recordingNotifier
	tenant   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	logg := logger.Nop()
	stock, err := ledger.NewService(conn, ledger.NewRepository(conn), logg, nil)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	svc, err := NewService(db.NewFromConn(conn), NewRepository(conn), orders.NewRepository(conn), stock, notifier, logg)
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, notifier: notifier, tenant: uuid.New()}
}

// seedPaidOrder creates a paid two-item order whose stock was finalized.
func (f *fixture) seedPaidOrder(t *testing.T, status enums.OrderStatus) (models.Order, models.Variant, models.Variant) {
	t.Helper()
	x := dbtest.SeedVariant(t, f.conn, f.tenant, 1000, 4, 0)
	y := dbtest.SeedVariant(t, f.conn, f.tenant, 2000, 7, 0)
	order := dbtest.SeedOrder(t, f.conn, f.tenant, status,
		models.OrderItem{VariantID: x.ID, Qty: 2, UnitPriceCents: 1000},
		models.OrderItem{VariantID: y.ID, Qty: 1, UnitPriceCents: 2000},
	)
	return order, x, y
}

func itemFor(order models.Order, variantID uuid.UUID) models.OrderItem {
	for _, item := range order.Items {
		if item.VariantID == variantID {
			return item
		}
	}
	return models.OrderItem{}
}

func TestPartialThenFullReturn(t *testing.T) {
	f := newFixture(t)
	order, x, y := f.seedPaidOrder(t, enums.OrderStatusPaid)
	ctx := context.Background()

	ret, err := f.svc.CreateReturn(ctx, CreateReturnInput{
		TenantID:        f.tenant,
		OrderID:         order.ID,
		ItemIDs:         []uuid.UUID{itemFor(order, x.ID).ID},
		Type:            enums.ReturnTypeReturn,
		InventoryAction: enums.InventoryActionRestock,
		Reason:          "wrong size",
		Actor:           "staff-1",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusCompleted, ret.Status)
	require.Len(t, ret.Items, 1)
	assert.Equal(t, 2, ret.Items[0].Qty)

	assert.Equal(t, 6, dbtest.LoadVariant(t, f.conn, x.ID).Stock)
	assert.Equal(t, 0, dbtest.LoadVariant(t, f.conn, x.ID).Reserved)
	assert.Equal(t, 7, dbtest.LoadVariant(t, f.conn, y.ID).Stock)
	assert.Equal(t, enums.OrderStatusPaid, dbtest.LoadOrder(t, f.conn, order.ID).Status)
	assert.Empty(t, f.notifier.sent)

	_, err = f.svc.CreateReturn(ctx, CreateReturnInput{
		TenantID:        f.tenant,
		OrderID:         order.ID,
		ItemIDs:         []uuid.UUID{itemFor(order, y.ID).ID},
		Type:            enums.ReturnTypeReturn,
		InventoryAction: enums.InventoryActionRestock,
		Actor:           "staff-1",
	})
	require.NoError(t, err)

	stored := dbtest.LoadOrder(t, f.conn, order.ID)
	assert.Equal(t, enums.OrderStatusRefunded, stored.Status)
	assert.NotNil(t, stored.RefundedAt)
	assert.Equal(t, 8, dbtest.LoadVariant(t, f.conn, y.ID).Stock)
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderRefunded}, f.notifier.sent)

	list, err := f.svc.List(ctx, f.tenant, order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	var restocks int64
	require.NoError(t, f.conn.Model(&models.StockAuditEntry{}).
		Where("operation = ? AND reason = ?", enums.StockOperationRestock, ledger.ReasonReturnRestock).
		Count(&restocks).Error)
	assert.Equal(t, int64(2), restocks)
}

func TestWriteoffLeavesCountersAlone(t *testing.T) {
	f := newFixture(t)
	order, x, y := f.seedPaidOrder(t, enums.OrderStatusDelivered)

	_, err := f.svc.CreateReturn(context.Background(), CreateReturnInput{
		TenantID:        f.tenant,
		OrderID:         order.ID,
		ItemIDs:         []uuid.UUID{itemFor(order, x.ID).ID, itemFor(order, y.ID).ID},
		Type:            enums.ReturnTypeReturn,
		InventoryAction: enums.InventoryActionWriteoff,
		Reason:          "damaged in transit",
		Actor:           "staff-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, dbtest.LoadVariant(t, f.conn, x.ID).Stock)
	assert.Equal(t, 7, dbtest.LoadVariant(t, f.conn, y.ID).Stock)
	assert.Equal(t, enums.OrderStatusRefunded, dbtest.LoadOrder(t, f.conn, order.ID).Status)
}

func TestReturnRejections(t *testing.T) {
	f := newFixture(t)
	paid, x, _ := f.seedPaidOrder(t, enums.OrderStatusPaid)
	pending, px, _ := f.seedPaidOrder(t, enums.OrderStatusPending)
	ctx := context.Background()

	base := CreateReturnInput{
		TenantID:        f.tenant,
		OrderID:         paid.ID,
		ItemIDs:         []uuid.UUID{itemFor(paid, x.ID).ID},
		Type:            enums.ReturnTypeReturn,
		InventoryAction: enums.InventoryActionRestock,
		Actor:           "staff-1",
	}

	cases := []struct {
		name   string
		mutate func(in *CreateReturnInput)
		code   pkgerrors.Code
	}{
		{name: "no items", mutate: func(in *CreateReturnInput) { in.ItemIDs = nil }, code: pkgerrors.CodeValidation},
		{name: "duplicate item", mutate: func(in *CreateReturnInput) { in.ItemIDs = append(in.ItemIDs, in.ItemIDs[0]) }, code: pkgerrors.CodeValidation},
		{name: "bad action", mutate: func(in *CreateReturnInput) { in.InventoryAction = "donate" }, code: pkgerrors.CodeValidation},
		{name: "foreign item", mutate: func(in *CreateReturnInput) { in.ItemIDs = []uuid.UUID{itemFor(pending, px.ID).ID} }, code: pkgerrors.CodeValidation},
		{name: "unknown order", mutate: func(in *CreateReturnInput) { in.OrderID = uuid.New() }, code: pkgerrors.CodeNotFound},
		{name: "other tenant", mutate: func(in *CreateReturnInput) { in.TenantID = uuid.New() }, code: pkgerrors.CodeNotFound},
		{
			name: "pending order",
			mutate: func(in *CreateReturnInput) {
				in.OrderID = pending.ID
				in.ItemIDs = []uuid.UUID{itemFor(pending, px.ID).ID}
			},
			code: pkgerrors.CodeInvalidTransition,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			in.ItemIDs = append([]uuid.UUID(nil), base.ItemIDs...)
			tc.mutate(&in)
			_, err := f.svc.CreateReturn(ctx, in)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "expected %s, got %v", tc.code, err)
		})
	}
	assert.Equal(t, 4, dbtest.LoadVariant(t, f.conn, x.ID).Stock)

	_, err := f.svc.CreateReturn(ctx, base)
	require.NoError(t, err)
	_, err = f.svc.CreateReturn(ctx, base)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
	assert.Equal(t, 6, dbtest.LoadVariant(t, f.conn, x.ID).Stock)
}
