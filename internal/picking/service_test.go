package picking_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memdb"
)

var (
	day       = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	sales     = shared.NewActor(10, day)
	warehouse = shared.NewActor(30, day.Add(2*time.Hour))
)

type fixture struct {
	db       *memdb.DB
	notes    *memdb.Recorder
	renderer *memdb.Renderer
	orders   *orders.Service
	svc      *picking.Service
	wh       int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memdb.New()
	f := &fixture{db: db, notes: &memdb.Recorder{}, renderer: &memdb.Renderer{}}
	f.orders = orders.NewService(db.Orders(), f.notes, nil)
	f.svc = picking.NewService(db.Picking(), f.renderer, f.notes, nil)
	f.wh = db.AddWarehouse("WH1")
	db.SetStock(1, f.wh, 20, 0)
	db.SetStock(2, f.wh, 20, 0)
	return f
}

func (f *fixture) order(t *testing.T) orders.SalesOrder {
	t.Helper()
	so, err := f.orders.Create(context.Background(), sales, orders.CreateRequest{
		CustomerID:  4,
		WarehouseID: f.wh,
		Items: []orders.ItemRequest{
			{ProductID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(5)},
			{ProductID: 2, Quantity: 2, UnitPrice: decimal.NewFromInt(7)},
		},
	})
	require.NoError(t, err)
	return so
}

func (f *fixture) orderStatus(t *testing.T, id int64) orders.Status {
	t.Helper()
	so, err := f.orders.Get(context.Background(), id)
	require.NoError(t, err)
	return so.Status
}

func TestCreateForOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so := f.order(t)

	pl, err := f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)
	assert.Equal(t, "PL-001/WH1/03-2025", pl.Number)
	assert.Equal(t, picking.StatusPending, pl.Status)
	require.Len(t, pl.Items, 2)
	assert.Equal(t, int64(3), pl.Items[0].QuantityRequired)
	assert.Equal(t, picking.ItemPending, pl.Items[0].Status)
	assert.Equal(t, orders.StatusProcessing, f.orderStatus(t, so.ID))
	assert.Equal(t, int64(5), f.db.Stock(1, f.wh).ReservedQuantity+f.db.Stock(2, f.wh).ReservedQuantity)
	assert.Equal(t, int64(20), f.db.Stock(1, f.wh).Quantity)

	_, err = f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.ErrorIs(t, err, picking.ErrDuplicateList)
}

func TestCreateForCancelledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so := f.order(t)
	_, err := f.orders.Cancel(ctx, sales, so.ID, orders.CancelRequest{})
	require.NoError(t, err)

	_, err = f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestPickingProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so := f.order(t)
	pl, err := f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)
	first, second := pl.Items[0].ID, pl.Items[1].ID

	pl, err = f.svc.Pick(ctx, warehouse, pl.ID, picking.PickRequest{Items: []picking.PickItem{{ItemID: first, QuantityPicked: 1}}})
	require.NoError(t, err)
	assert.Equal(t, picking.StatusInProgress, pl.Status)
	assert.Equal(t, picking.ItemPartial, pl.Items[0].Status)

	pl, err = f.svc.Pick(ctx, warehouse, pl.ID, picking.PickRequest{Items: []picking.PickItem{{ItemID: first, QuantityPicked: 0}}})
	require.NoError(t, err)
	assert.Equal(t, picking.StatusPending, pl.Status, "picks are absolute")

	_, err = f.svc.Pick(ctx, warehouse, pl.ID, picking.PickRequest{Items: []picking.PickItem{{ItemID: 999, QuantityPicked: 1}}})
	require.ErrorIs(t, err, picking.ErrItemNotOnList)

	pl, err = f.svc.Pick(ctx, warehouse, pl.ID, picking.PickRequest{Items: []picking.PickItem{
		{ItemID: first, QuantityPicked: 3},
		{ItemID: second, QuantityPicked: 2},
	}})
	require.NoError(t, err)
	assert.Equal(t, picking.StatusCompleted, pl.Status)
	assert.Equal(t, orders.StatusReadyToShip, f.orderStatus(t, so.ID))

	sent := f.notes.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, sales.UserID, sent[0].UserID)

	_, err = f.svc.Pick(ctx, warehouse, pl.ID, picking.PickRequest{Items: []picking.PickItem{{ItemID: first, QuantityPicked: 1}}})
	require.ErrorIs(t, err, picking.ErrCompletedList)
	require.ErrorIs(t, f.svc.Delete(ctx, warehouse, pl.ID), picking.ErrCompletedList)
}

func TestPickValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Pick(context.Background(), warehouse, 1, picking.PickRequest{Items: []picking.PickItem{{ItemID: 1, QuantityPicked: -1}}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCompleteAdvancesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so := f.order(t)
	pl, err := f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)

	pl, err = f.svc.Complete(ctx, warehouse, pl.ID)
	require.NoError(t, err)
	assert.Equal(t, picking.StatusCompleted, pl.Status)
	for _, it := range pl.Items {
		assert.Equal(t, it.QuantityRequired, it.QuantityPicked)
	}
	assert.Equal(t, orders.StatusReadyToShip, f.orderStatus(t, so.ID))
}

func TestDeleteRevertsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so := f.order(t)
	pl, err := f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, warehouse, pl.ID))
	assert.Equal(t, orders.StatusPending, f.orderStatus(t, so.ID))
	_, err = f.svc.Get(ctx, pl.ID)
	require.ErrorIs(t, err, picking.ErrPickingListNotFound)

	pl, err = f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)
	assert.Equal(t, "PL-002/WH1/03-2025", pl.Number)
}

func TestRenderPDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so := f.order(t)
	pl, err := f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)

	pdf, got, err := f.svc.RenderPDF(ctx, pl.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
	assert.Equal(t, pl.Number, got.Number)
	require.Len(t, f.renderer.Rendered, 1)
	doc := f.renderer.Rendered[0]
	assert.Len(t, doc.Rows, 2)
	assert.Equal(t, []string{"#1", "3", "0", "PENDING"}, doc.Rows[0])
}

func TestListBySalesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.order(t), f.order(t)
	_, err := f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: a.ID})
	require.NoError(t, err)
	_, err = f.svc.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: b.ID})
	require.NoError(t, err)

	lists, total, err := f.svc.List(ctx, picking.ListFilter{SalesOrderID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, b.ID, *lists[0].SalesOrderID)
}
