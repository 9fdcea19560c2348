package inventory_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memdb"
)

var actor = shared.NewActor(7, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))

func inTx(t *testing.T, db *memdb.DB, fn func(context.Context, inventory.TxRepository) error) error {
	t.Helper()
	return db.Inventory().WithTx(context.Background(), fn)
}

func TestReserveDrainsMostAvailableFirst(t *testing.T) {
	db := memdb.New()
	wh1, wh2 := db.AddWarehouse("WH1"), db.AddWarehouse("WH2")
	db.SetStock(1, wh1, 4, 0)
	db.SetStock(1, wh2, 10, 2)
	ref := shared.NewRef(shared.RefSalesOrder, 9)

	var allocs []inventory.Allocation
	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		allocs, err = inventory.Reserve(ctx, tx, actor, inventory.ReserveInput{ProductID: 1, Quantity: 11, Reference: ref})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []inventory.Allocation{{WarehouseID: wh2, Quantity: 8}, {WarehouseID: wh1, Quantity: 3}}, allocs)
	assert.Equal(t, int64(10), db.Stock(1, wh2).ReservedQuantity)
	assert.Equal(t, int64(3), db.Stock(1, wh1).ReservedQuantity)

	moves := db.Movements()
	require.Len(t, moves, 2)
	for _, m := range moves {
		assert.Equal(t, inventory.MovementReservation, m.Type)
		assert.Equal(t, int64(0), m.QuantityChange)
		assert.Equal(t, ref, m.Reference)
		assert.Equal(t, actor.UserID, m.ActorID)
	}
}

func TestReservePreferredWarehouseFirst(t *testing.T) {
	db := memdb.New()
	wh1, wh2 := db.AddWarehouse("WH1"), db.AddWarehouse("WH2")
	db.SetStock(1, wh1, 3, 0)
	db.SetStock(1, wh2, 10, 0)

	var allocs []inventory.Allocation
	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		allocs, err = inventory.Reserve(ctx, tx, actor, inventory.ReserveInput{ProductID: 1, Quantity: 5, PreferredWarehouseID: wh1})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []inventory.Allocation{{WarehouseID: wh1, Quantity: 3}, {WarehouseID: wh2, Quantity: 2}}, allocs)
}

func TestReserveInsufficientLeavesNothing(t *testing.T) {
	db := memdb.New()
	wh1, wh2 := db.AddWarehouse("WH1"), db.AddWarehouse("WH2")
	db.SetStock(1, wh1, 2, 0)
	db.SetStock(1, wh2, 2, 1)

	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.Reserve(ctx, tx, actor, inventory.ReserveInput{ProductID: 1, Quantity: 4})
		return err
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
	assert.Equal(t, int64(0), db.Stock(1, wh1).ReservedQuantity)
	assert.Equal(t, int64(1), db.Stock(1, wh2).ReservedQuantity)
	assert.Empty(t, db.Movements())
}

func TestReserveRollsBackWhenLedgerWriteFails(t *testing.T) {
	db := memdb.New()
	wh1, wh2 := db.AddWarehouse("WH1"), db.AddWarehouse("WH2")
	db.SetStock(1, wh1, 5, 0)
	db.SetStock(1, wh2, 5, 0)
	db.FailOn("InsertMovement", nil)

	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.Reserve(ctx, tx, actor, inventory.ReserveInput{ProductID: 1, Quantity: 8})
		return err
	})
	require.ErrorIs(t, err, memdb.ErrInjected)
	assert.Equal(t, int64(0), db.Stock(1, wh1).ReservedQuantity)
	assert.Equal(t, int64(0), db.Stock(1, wh2).ReservedQuantity)
}

func TestReserveAtRequiresStockInWarehouse(t *testing.T) {
	db := memdb.New()
	wh1, wh2 := db.AddWarehouse("WH1"), db.AddWarehouse("WH2")
	db.SetStock(1, wh1, 5, 0)

	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		return inventory.ReserveAt(ctx, tx, actor, inventory.MoveInput{ProductID: 1, WarehouseID: wh2, Quantity: 1})
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
}

func TestDeductFloorsReservedDecrement(t *testing.T) {
	db := memdb.New()
	wh := db.AddWarehouse("WH1")
	db.SetStock(1, wh, 10, 2)

	var move inventory.Movement
	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		move, err = inventory.Deduct(ctx, tx, actor, inventory.DeductInput{
			MoveInput: inventory.MoveInput{ProductID: 1, WarehouseID: wh, Quantity: 5},
			Reserved:  5,
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementOut, move.Type)
	assert.Equal(t, int64(-5), move.QuantityChange)
	assert.Equal(t, int64(-2), move.ReservedChange)
	assert.Equal(t, int64(10), move.PreviousQuantity)
	assert.Equal(t, int64(5), move.NewQuantity)
	st := db.Stock(1, wh)
	assert.Equal(t, int64(5), st.Quantity)
	assert.Equal(t, int64(0), st.ReservedQuantity)
}

func TestDeductRejectsShortOnHand(t *testing.T) {
	db := memdb.New()
	wh := db.AddWarehouse("WH1")
	db.SetStock(1, wh, 3, 3)

	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.Deduct(ctx, tx, actor, inventory.DeductInput{MoveInput: inventory.MoveInput{ProductID: 1, WarehouseID: wh, Quantity: 4}, Reserved: 4})
		return err
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, int64(3), db.Stock(1, wh).Quantity)
}

func TestReceiveCreatesStockRow(t *testing.T) {
	db := memdb.New()
	wh := db.AddWarehouse("WH2")

	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.Receive(ctx, tx, actor, inventory.MovementTransferIn, inventory.MoveInput{ProductID: 4, WarehouseID: wh, Quantity: 6})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), db.Stock(4, wh).Quantity)
	moves := db.Movements()
	require.Len(t, moves, 1)
	assert.Equal(t, inventory.MovementTransferIn, moves[0].Type)
	assert.Equal(t, int64(0), moves[0].PreviousQuantity)
}

func TestIssueCannotTouchReserved(t *testing.T) {
	db := memdb.New()
	wh := db.AddWarehouse("WH1")
	db.SetStock(1, wh, 5, 4)

	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.Issue(ctx, tx, actor, inventory.MovementTransferOut, inventory.MoveInput{ProductID: 1, WarehouseID: wh, Quantity: 2})
		return err
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, int64(5), db.Stock(1, wh).Quantity)
}

func TestReleaseMoreThanReserved(t *testing.T) {
	db := memdb.New()
	wh := db.AddWarehouse("WH1")
	db.SetStock(1, wh, 5, 1)

	err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.Release(ctx, tx, actor, inventory.MoveInput{ProductID: 1, WarehouseID: wh, Quantity: 2})
		return err
	})
	require.ErrorIs(t, err, inventory.ErrReservedExceedsOnHand)
}

func TestServiceAdjust(t *testing.T) {
	db := memdb.New()
	wh := db.AddWarehouse("WH1")
	svc := inventory.NewService(db.Inventory(), nil)
	ctx := context.Background()

	t.Run("increase creates the row and logs activity", func(t *testing.T) {
		move, err := svc.Adjust(ctx, actor, inventory.AdjustInput{ProductID: 1, WarehouseID: wh, Delta: 10, Reason: "count"})
		require.NoError(t, err)
		assert.Equal(t, inventory.MovementAdjustmentIn, move.Type)
		assert.Equal(t, shared.NewRef(shared.RefStockAdjustment, 1), move.Reference)
		assert.Len(t, db.Activities(move.Reference), 1)
	})

	t.Run("damage must reduce", func(t *testing.T) {
		_, err := svc.Adjust(ctx, actor, inventory.AdjustInput{ProductID: 1, WarehouseID: wh, Delta: 2, Damage: true, Reason: "x"})
		require.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("cannot drop below reserved", func(t *testing.T) {
		err := inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
			return inventory.ReserveAt(ctx, tx, actor, inventory.MoveInput{ProductID: 1, WarehouseID: wh, Quantity: 8})
		})
		require.NoError(t, err)
		_, err = svc.Adjust(ctx, actor, inventory.AdjustInput{ProductID: 1, WarehouseID: wh, Delta: -3, Reason: "shrink"})
		require.ErrorIs(t, err, inventory.ErrReservedExceedsOnHand)
		assert.Equal(t, int64(10), db.Stock(1, wh).Quantity)
	})

	t.Run("damage records its own type", func(t *testing.T) {
		move, err := svc.Adjust(ctx, actor, inventory.AdjustInput{ProductID: 1, WarehouseID: wh, Delta: -2, Damage: true, Reason: "forklift"})
		require.NoError(t, err)
		assert.Equal(t, inventory.MovementDamage, move.Type)
		assert.Equal(t, int64(8), move.NewQuantity)
	})
}

func TestReconcileMatchesLedger(t *testing.T) {
	db := memdb.New()
	wh := db.AddWarehouse("WH1")
	svc := inventory.NewService(db.Inventory(), nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, actor, inventory.AdjustInput{ProductID: 1, WarehouseID: wh, Delta: 10, Reason: "opening"})
	require.NoError(t, err)
	err = inTx(t, db, func(ctx context.Context, tx inventory.TxRepository) error {
		return inventory.ReserveAt(ctx, tx, actor, inventory.MoveInput{ProductID: 1, WarehouseID: wh, Quantity: 4})
	})
	require.NoError(t, err)

	rec, err := svc.Reconcile(ctx, 1, wh)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, 2, rec.Movements)

	db.SetStock(1, wh, 11, 4)
	rec, err = svc.Reconcile(ctx, 1, wh)
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
	assert.Equal(t, int64(10), rec.LedgerQuantity)
}

func TestExportMovementsWorkbook(t *testing.T) {
	db := memdb.New()
	wh := db.AddWarehouse("WH1")
	svc := inventory.NewService(db.Inventory(), nil)
	ctx := context.Background()
	_, err := svc.Adjust(ctx, actor, inventory.AdjustInput{ProductID: 3, WarehouseID: wh, Delta: 5, Reason: "opening"})
	require.NoError(t, err)

	raw, err := svc.ExportMovements(ctx, inventory.MovementFilter{ProductID: 3})
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Movements")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Type", rows[0][4])
	assert.Equal(t, "ADJUSTMENT_IN", rows[1][4])
	assert.Equal(t, "STOCK_ADJUSTMENT:3", rows[1][9])
}
