package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memdb"
)

var (
	day     = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	sales   = shared.NewActor(10, day)
	manager = shared.NewActor(11, day.Add(time.Hour))
)

type fixture struct {
	db       *memdb.DB
	notes    *memdb.Recorder
	svc      *orders.Service
	wh1, wh2 int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memdb.New()
	notes := &memdb.Recorder{}
	f := &fixture{db: db, notes: notes, svc: orders.NewService(db.Orders(), notes, nil)}
	f.wh1, f.wh2 = db.AddWarehouse("WH1"), db.AddWarehouse("WH2")
	return f
}

func (f *fixture) order(t *testing.T, items ...orders.ItemRequest) orders.SalesOrder {
	t.Helper()
	so, err := f.svc.Create(context.Background(), sales, orders.CreateRequest{CustomerID: 3, WarehouseID: f.wh1, Items: items})
	require.NoError(t, err)
	return so
}

func item(productID, qty int64) orders.ItemRequest {
	return orders.ItemRequest{ProductID: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(10)}
}

func TestCreateReservesAcrossWarehouses(t *testing.T) {
	f := newFixture(t)
	f.db.SetStock(1, f.wh1, 3, 0)
	f.db.SetStock(1, f.wh2, 10, 0)

	so := f.order(t, item(1, 5))
	assert.Equal(t, "SO-001/WH1/03-2025", so.Number)
	assert.Equal(t, orders.StatusPending, so.Status)
	require.Len(t, so.Items, 1)
	assert.Equal(t, []inventory.Allocation{{WarehouseID: f.wh1, Quantity: 3}, {WarehouseID: f.wh2, Quantity: 2}}, so.Items[0].Allocations)
	assert.Equal(t, int64(5), so.Items[0].Reserved())

	stored, err := f.svc.Get(context.Background(), so.ID)
	require.NoError(t, err)
	assert.Equal(t, so.Items[0].Allocations, stored.Items[0].Allocations)
	assert.NotEmpty(t, f.db.Activities(so.Ref()))
}

func TestCreateShortStockPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.db.SetStock(1, f.wh1, 5, 0)
	f.db.SetStock(2, f.wh1, 1, 0)

	_, err := f.svc.Create(context.Background(), sales, orders.CreateRequest{CustomerID: 3, WarehouseID: f.wh1, Items: []orders.ItemRequest{item(1, 5), item(2, 2)}})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	_, total, err := f.svc.List(context.Background(), orders.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, f.db.Stock(1, f.wh1).ReservedQuantity)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), sales, orders.CreateRequest{CustomerID: 3, WarehouseID: f.wh1})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, err.Error(), "items")
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.SetStock(1, f.wh1, 5, 0)
	so := f.order(t, item(1, 2))

	_, err := f.svc.UpdateStatus(ctx, sales, so.ID, orders.UpdateStatusRequest{Status: orders.StatusShipped})
	require.ErrorIs(t, err, orders.ErrManualStatus)
	_, err = f.svc.UpdateStatus(ctx, sales, so.ID, orders.UpdateStatusRequest{Status: "LOST"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.UpdateStatus(ctx, sales, so.ID, orders.UpdateStatusRequest{Status: orders.StatusReadyToShip})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	so, err = f.svc.UpdateStatus(ctx, sales, so.ID, orders.UpdateStatusRequest{Status: orders.StatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, so.Status)

	so, err = f.svc.UpdateStatus(ctx, manager, so.ID, orders.UpdateStatusRequest{Status: orders.StatusCancelled, Reason: "customer called"})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, so.Status)
	assert.Equal(t, "customer called", so.Notes)
	assert.Zero(t, f.db.Stock(1, f.wh1).ReservedQuantity)
}

func TestCancelReleasesAndClosesPicking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.SetStock(1, f.wh1, 2, 0)
	f.db.SetStock(1, f.wh2, 4, 0)
	so := f.order(t, item(1, 5))

	picks := picking.NewService(f.db.Picking(), &memdb.Renderer{}, f.notes, nil)
	pl, err := picks.CreateForOrder(ctx, sales, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)

	so, err = f.svc.Cancel(ctx, manager, so.ID, orders.CancelRequest{})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, so.Status)
	assert.Zero(t, f.db.Stock(1, f.wh1).ReservedQuantity)
	assert.Zero(t, f.db.Stock(1, f.wh2).ReservedQuantity)

	releases, err := f.db.Inventory().ListMovements(ctx, inventory.MovementFilter{Reference: so.Ref()})
	require.NoError(t, err)
	var released int64
	for _, m := range releases {
		if m.Type == inventory.MovementRelease {
			released -= m.ReservedChange
		}
	}
	assert.Equal(t, int64(5), released)

	pl, err = picks.Get(ctx, pl.ID)
	require.NoError(t, err)
	assert.Equal(t, picking.StatusCancelled, pl.Status)

	stored, err := f.svc.Get(ctx, so.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Items[0].Allocations)

	sent := f.notes.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, sales.UserID, sent[len(sent)-1].UserID)

	_, err = f.svc.Cancel(ctx, manager, so.ID, orders.CancelRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCancelReadyOrderCancelsOpenDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.SetStock(1, f.wh1, 5, 0)
	so := f.order(t, item(1, 3))

	picks := picking.NewService(f.db.Picking(), &memdb.Renderer{}, f.notes, nil)
	pl, err := picks.CreateForOrder(ctx, sales, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)
	_, err = picks.Complete(ctx, sales, pl.ID)
	require.NoError(t, err)
	deliveries := delivery.NewService(f.db.Delivery(), &memdb.Renderer{}, f.notes, nil)
	do, err := deliveries.CreateFromPickingList(ctx, sales, pl.ID)
	require.NoError(t, err)
	require.Equal(t, delivery.StatusPreparing, do.Status)

	so, err = f.svc.Cancel(ctx, manager, so.ID, orders.CancelRequest{Reason: "customer withdrew"})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, so.Status)
	assert.Zero(t, f.db.Stock(1, f.wh1).ReservedQuantity)

	do, err = deliveries.Get(ctx, do.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCancelled, do.Status)
	_, err = deliveries.MarkAsShipped(ctx, sales, do.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Equal(t, int64(5), f.db.Stock(1, f.wh1).Quantity)
}
