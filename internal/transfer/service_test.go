package transfer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memdb"
	"github.com/odyssey-erp/odyssey-distribution/internal/transfer"
)

var (
	day       = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	requester = shared.NewActor(30, day)
	approver  = shared.NewActor(60, day.Add(time.Hour))
	receiver  = shared.NewActor(31, day.Add(30*time.Hour))
)

type fixture struct {
	db       *memdb.DB
	notes    *memdb.Recorder
	svc      *transfer.Service
	src, dst int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memdb.New()
	f := &fixture{db: db, notes: &memdb.Recorder{}}
	f.svc = transfer.NewService(db.Transfers(), f.notes, nil)
	f.src, f.dst = db.AddWarehouse("JKT"), db.AddWarehouse("SBY")
	db.SetStock(1, f.src, 10, 2)
	return f
}

func (f *fixture) request(t *testing.T, qty int64) transfer.Transfer {
	t.Helper()
	tr, err := f.svc.Request(context.Background(), requester, transfer.RequestInput{
		ProductID: 1, FromWarehouseID: f.src, ToWarehouseID: f.dst, Quantity: qty, Notes: "rebalance",
	})
	require.NoError(t, err)
	return tr
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, requester, transfer.RequestInput{})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Request(ctx, requester, transfer.RequestInput{ProductID: 1, FromWarehouseID: f.src, ToWarehouseID: f.src, Quantity: 1})
	require.ErrorIs(t, err, transfer.ErrSameWarehouse)

	tr := f.request(t, 4)
	assert.Equal(t, "IT-001/JKT/03-2025", tr.Number)
	assert.Equal(t, transfer.StatusRequested, tr.Status)
	assert.True(t, tr.CanApprove())
	assert.False(t, tr.CanReceive())
	assert.Len(t, f.notes.ToRole(shared.RoleApprover), 1)
	assert.Equal(t, int64(2), f.db.Stock(1, f.src).ReservedQuantity, "request does not reserve")
}

func TestTransferLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.request(t, 4)

	_, err := f.svc.Receive(ctx, receiver, tr.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	tr, err = f.svc.Approve(ctx, approver, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusApproved, tr.Status)
	require.NotNil(t, tr.PickingListID)
	assert.Equal(t, int64(6), f.db.Stock(1, f.src).ReservedQuantity)
	pl, err := f.db.Picking().GetPickingList(ctx, *tr.PickingListID)
	require.NoError(t, err)
	assert.Equal(t, picking.StatusDraft, pl.Status)
	assert.Equal(t, "PL-001/JKT/03-2025", pl.Number)

	tr, err = f.svc.Deliver(ctx, approver, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusInTransit, tr.Status)
	require.NotNil(t, tr.DeliveryOrderID)
	src := f.db.Stock(1, f.src)
	assert.Equal(t, int64(6), src.Quantity)
	assert.Equal(t, int64(2), src.ReservedQuantity)
	pl, err = f.db.Picking().GetPickingList(ctx, *tr.PickingListID)
	require.NoError(t, err)
	assert.Equal(t, picking.StatusCompleted, pl.Status)
	do, err := f.db.Delivery().GetDeliveryOrder(ctx, *tr.DeliveryOrderID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusShipped, do.Status)
	assert.Equal(t, tr.Ref(), do.Source)

	_, err = f.svc.Cancel(ctx, approver, tr.ID, transfer.CancelRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition, "goods are on the road")

	tr, err = f.svc.Receive(ctx, receiver, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusReceived, tr.Status)
	assert.Equal(t, int64(4), f.db.Stock(1, f.dst).Quantity)
	do, err = f.db.Delivery().GetDeliveryOrder(ctx, *tr.DeliveryOrderID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusDelivered, do.Status)

	moves, err := f.db.Inventory().ListMovements(ctx, inventory.MovementFilter{Reference: tr.Ref()})
	require.NoError(t, err)
	var types []inventory.MovementType
	for _, m := range moves {
		types = append(types, m.Type)
	}
	assert.Equal(t, []inventory.MovementType{inventory.MovementReservation, inventory.MovementTransferOut, inventory.MovementTransferIn}, types)

	sent := f.notes.Sent()
	last := sent[len(sent)-1]
	assert.Equal(t, requester.UserID, last.UserID)
	assert.Equal(t, shared.SeveritySuccess, last.Severity)
}

func TestApproveShortStockStaysRequested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.request(t, 9)

	_, err := f.svc.Approve(ctx, approver, tr.ID)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	got, err := f.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusRequested, got.Status)
	assert.Nil(t, got.PickingListID)
	assert.Equal(t, int64(2), f.db.Stock(1, f.src).ReservedQuantity)

	_, total, err := f.db.Picking().ListPickingLists(ctx, picking.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCancelApprovedReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.request(t, 3)
	tr, err := f.svc.Approve(ctx, approver, tr.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), f.db.Stock(1, f.src).ReservedQuantity)

	tr, err = f.svc.Cancel(ctx, approver, tr.ID, transfer.CancelRequest{Reason: "stock counted wrong"})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCancelled, tr.Status)
	assert.Equal(t, "stock counted wrong", tr.Notes)
	assert.Equal(t, int64(2), f.db.Stock(1, f.src).ReservedQuantity)
	assert.False(t, tr.CanCancel())

	pl, err := f.db.Picking().GetPickingList(ctx, *tr.PickingListID)
	require.NoError(t, err)
	assert.Equal(t, picking.StatusCancelled, pl.Status)

	requested := f.request(t, 1)
	requested, err = f.svc.Cancel(ctx, requester, requested.ID, transfer.CancelRequest{})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCancelled, requested.Status)

	list, total, err := f.svc.List(ctx, transfer.ListFilter{WarehouseID: f.dst, Status: transfer.StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, list, 2)
}

func TestTransferPickingListCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr, err := f.svc.Approve(ctx, approver, f.request(t, 4).ID)
	require.NoError(t, err)

	lists := picking.NewService(f.db.Picking(), &memdb.Renderer{}, f.notes, nil)
	err = lists.Delete(ctx, approver, *tr.PickingListID)
	require.ErrorIs(t, err, picking.ErrTransferList)
	require.ErrorIs(t, err, shared.ErrBusinessRule)

	pl, err := f.db.Picking().GetPickingList(ctx, *tr.PickingListID)
	require.NoError(t, err)
	assert.Equal(t, picking.StatusDraft, pl.Status)

	tr, err = f.svc.Cancel(ctx, approver, tr.ID, transfer.CancelRequest{})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCancelled, tr.Status)
	assert.Equal(t, int64(2), f.db.Stock(1, f.src).ReservedQuantity, "reservation released with the transfer")
}
