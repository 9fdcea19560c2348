package delivery_test

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
	day       = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	sales     = shared.NewActor(10, day)
	warehouse = shared.NewActor(30, day.Add(2*time.Hour))
	driver    = shared.NewActor(40, day.Add(26*time.Hour))
)

type fixture struct {
	db       *memdb.DB
	notes    *memdb.Recorder
	renderer *memdb.Renderer
	orders   *orders.Service
	picking  *picking.Service
	svc      *delivery.Service
	wh1, wh2 int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memdb.New()
	f := &fixture{db: db, notes: &memdb.Recorder{}, renderer: &memdb.Renderer{}}
	f.orders = orders.NewService(db.Orders(), f.notes, nil)
	f.picking = picking.NewService(db.Picking(), f.renderer, f.notes, nil)
	f.svc = delivery.NewService(db.Delivery(), f.renderer, f.notes, nil)
	f.wh1, f.wh2 = db.AddWarehouse("WH1"), db.AddWarehouse("WH2")
	db.SetStock(1, f.wh1, 2, 0)
	db.SetStock(1, f.wh2, 5, 0)
	return f
}

// readyOrder places an order for 3 units of product 1 and picks it completely.
func (f *fixture) readyOrder(t *testing.T) (orders.SalesOrder, picking.PickingList) {
	t.Helper()
	ctx := context.Background()
	so, err := f.orders.Create(ctx, sales, orders.CreateRequest{
		CustomerID:  4,
		WarehouseID: f.wh1,
		Items:       []orders.ItemRequest{{ProductID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	pl, err := f.picking.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)
	pl, err = f.picking.Complete(ctx, warehouse, pl.ID)
	require.NoError(t, err)
	return so, pl
}

func (f *fixture) orderStatus(t *testing.T, id int64) orders.Status {
	t.Helper()
	so, err := f.orders.Get(context.Background(), id)
	require.NoError(t, err)
	return so.Status
}

func TestCreateRequiresReadyOrder(t *testing.T) {
	f := newFixture(t)
	so, err := f.orders.Create(context.Background(), sales, orders.CreateRequest{
		CustomerID:  4,
		WarehouseID: f.wh1,
		Items:       []orders.ItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), warehouse, delivery.CreateRequest{SalesOrderID: so.ID})
	require.ErrorIs(t, err, delivery.ErrOrderNotReady)

	_, err = f.svc.Create(context.Background(), warehouse, delivery.CreateRequest{})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Create(context.Background(), warehouse, delivery.CreateRequest{SalesOrderID: 1, PickingListID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestShipDeductsAllocations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, pl := f.readyOrder(t)

	do, err := f.svc.Create(ctx, warehouse, delivery.CreateRequest{PickingListID: pl.ID})
	require.NoError(t, err)
	assert.Equal(t, "DO-001/WH1/03-2025", do.Number)
	assert.Equal(t, delivery.StatusPreparing, do.Status)
	assert.Equal(t, so.Ref(), do.Source)
	require.NotNil(t, do.PickingListID)

	_, err = f.svc.Create(ctx, warehouse, delivery.CreateRequest{SalesOrderID: so.ID})
	require.ErrorIs(t, err, delivery.ErrActiveDeliveryExists)

	do, err = f.svc.MarkReady(ctx, warehouse, do.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusReady, do.Status)

	do, err = f.svc.MarkAsShipped(ctx, warehouse, do.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusShipped, do.Status)
	require.NotNil(t, do.ShippedAt)
	assert.Equal(t, orders.StatusShipped, f.orderStatus(t, so.ID))

	wh1, wh2 := f.db.Stock(1, f.wh1), f.db.Stock(1, f.wh2)
	assert.Equal(t, int64(0), wh1.Quantity)
	assert.Equal(t, int64(4), wh2.Quantity)
	assert.Zero(t, wh1.ReservedQuantity)
	assert.Zero(t, wh2.ReservedQuantity)

	moves, err := f.db.Inventory().ListMovements(ctx, inventory.MovementFilter{Reference: do.Ref()})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	for _, m := range moves {
		assert.Equal(t, inventory.MovementOut, m.Type)
	}

	stored, err := f.orders.Get(ctx, so.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Items[0].Allocations)

	_, err = f.svc.MarkAsShipped(ctx, warehouse, do.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Cancel(ctx, warehouse, do.ID, delivery.CancelRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestShipShortOnHandRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, pl := f.readyOrder(t)
	do, err := f.svc.Create(ctx, warehouse, delivery.CreateRequest{PickingListID: pl.ID})
	require.NoError(t, err)

	// wh2 lost its goods outside the system.
	f.db.SetStock(1, f.wh2, 0, 0)

	_, err = f.svc.MarkAsShipped(ctx, warehouse, do.ID)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	got, err := f.svc.Get(ctx, do.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusPreparing, got.Status)
	assert.Equal(t, orders.StatusReadyToShip, f.orderStatus(t, so.ID))
	assert.Equal(t, int64(2), f.db.Stock(1, f.wh1).Quantity)
	assert.Equal(t, int64(2), f.db.Stock(1, f.wh1).ReservedQuantity)
}

func TestDeliveryOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, _ := f.readyOrder(t)
	do, err := f.svc.CreateFromOrder(ctx, warehouse, so.ID)
	require.NoError(t, err)

	_, err = f.svc.MarkAsDelivered(ctx, driver, do.ID, delivery.ReceiveRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition, "not shipped yet")

	do, err = f.svc.MarkAsShipped(ctx, warehouse, do.ID)
	require.NoError(t, err)
	itemID := do.Items[0].ID

	do, err = f.svc.MarkAsDelivered(ctx, driver, do.ID, delivery.ReceiveRequest{Items: []delivery.DeliveredItem{{ItemID: itemID, QuantityDelivered: 2}}})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusShipped, do.Status)
	assert.Equal(t, delivery.ItemPartial, do.Items[0].Status)
	assert.Nil(t, do.DeliveredAt)

	_, err = f.svc.MarkAsDelivered(ctx, driver, do.ID, delivery.ReceiveRequest{Items: []delivery.DeliveredItem{{ItemID: 999}}})
	require.ErrorIs(t, err, delivery.ErrItemNotOnOrder)

	do, err = f.svc.MarkAsDelivered(ctx, driver, do.ID, delivery.ReceiveRequest{Items: []delivery.DeliveredItem{{ItemID: itemID, QuantityDelivered: 3}}})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusDelivered, do.Status)
	require.NotNil(t, do.DeliveredAt)
	assert.Equal(t, orders.StatusShipped, f.orderStatus(t, so.ID), "not invoiced yet")
}

func TestDamagedItemIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, _ := f.readyOrder(t)
	do, err := f.svc.CreateFromOrder(ctx, warehouse, so.ID)
	require.NoError(t, err)
	do, err = f.svc.MarkAsShipped(ctx, warehouse, do.ID)
	require.NoError(t, err)

	do, err = f.svc.MarkAsDelivered(ctx, driver, do.ID, delivery.ReceiveRequest{Items: []delivery.DeliveredItem{
		{ItemID: do.Items[0].ID, QuantityDelivered: 1, Status: delivery.ItemDamaged},
	}})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusShipped, do.Status)

	var damaged int
	for _, a := range f.db.Activities(do.Ref()) {
		if a.Action == "delivery_order.item_damaged" {
			damaged++
		}
	}
	assert.Equal(t, 1, damaged)

	_, err = f.svc.MarkAsDelivered(ctx, driver, do.ID, delivery.ReceiveRequest{Items: []delivery.DeliveredItem{{ItemID: do.Items[0].ID, Status: "LOST"}}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCancelFreesOrderForNewDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, _ := f.readyOrder(t)
	do, err := f.svc.CreateFromOrder(ctx, warehouse, so.ID)
	require.NoError(t, err)

	do, err = f.svc.Cancel(ctx, warehouse, do.ID, delivery.CancelRequest{Reason: "truck broke down"})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCancelled, do.Status)
	assert.Equal(t, int64(3), f.db.Stock(1, f.wh1).ReservedQuantity+f.db.Stock(1, f.wh2).ReservedQuantity)

	again, err := f.svc.CreateFromOrder(ctx, warehouse, so.ID)
	require.NoError(t, err)
	assert.Equal(t, "DO-002/WH1/03-2025", again.Number)

	list, total, err := f.svc.List(ctx, delivery.ListFilter{SalesOrderID: so.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, again.ID, list[0].ID)
}

func TestRenderPDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, _ := f.readyOrder(t)
	do, err := f.svc.CreateFromOrder(ctx, warehouse, so.ID)
	require.NoError(t, err)

	_, got, err := f.svc.RenderPDF(ctx, do.ID)
	require.NoError(t, err)
	assert.Equal(t, do.Number, got.Number)
	require.Len(t, f.renderer.Rendered, 1)
	assert.Equal(t, []string{"#1", "3", "0", "PENDING"}, f.renderer.Rendered[0].Rows[0])
}
