//go:build integration

package inventory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("odyssey"),
		postgres.WithUsername("odyssey"),
		postgres.WithPassword("odyssey"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.ApplySchema(ctx, pool))

	_, err = pool.Exec(ctx, `INSERT INTO warehouses (code, name) VALUES ('WH1', 'Main'), ('WH2', 'Overflow')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO products (sku, name) VALUES ('SKU-1', 'Widget')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO product_stocks (product_id, warehouse_id, quantity) VALUES (1, 1, 3), (1, 2, 2)`)
	require.NoError(t, err)
	return pool
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	pool := startPostgres(t)
	repo := inventory.NewRepository(pool)
	ctx := context.Background()
	actor := shared.NewActor(1, time.Now())

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
		short   atomic.Int64
	)
	for i := range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
				_, err := inventory.Reserve(ctx, tx, actor, inventory.ReserveInput{
					ProductID: 1,
					Quantity:  1,
					Reference: shared.NewRef(shared.RefSalesOrder, int64(i+1)),
				})
				return err
			})
			switch {
			case err == nil:
				granted.Add(1)
			case assert.ErrorIs(t, err, inventory.ErrInsufficientStock):
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), granted.Load())
	assert.Equal(t, int64(7), short.Load())

	stock, _, err := repo.ListStock(ctx, inventory.StockFilter{ProductID: 1, Page: shared.Page{}.Normalize()})
	require.NoError(t, err)
	var reserved int64
	for _, s := range stock {
		assert.LessOrEqual(t, s.ReservedQuantity, s.Quantity)
		reserved += s.ReservedQuantity
	}
	assert.Equal(t, int64(5), reserved)

	moves, err := repo.ListMovements(ctx, inventory.MovementFilter{ProductID: 1})
	require.NoError(t, err)
	assert.Len(t, moves, 5)
}

func TestApplyChangeHonoursCheckConstraint(t *testing.T) {
	pool := startPostgres(t)
	repo := inventory.NewRepository(pool)
	ctx := context.Background()
	actor := shared.NewActor(1, time.Now())

	err := repo.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		return inventory.ReserveAt(ctx, tx, actor, inventory.MoveInput{
			ProductID: 1, WarehouseID: 1, Quantity: 3, Reference: shared.NewRef(shared.RefSalesOrder, 1),
		})
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.Issue(ctx, tx, actor, inventory.MovementOut, inventory.MoveInput{
			ProductID: 1, WarehouseID: 1, Quantity: 1, Reference: shared.NewRef(shared.RefStockAdjustment, 1),
		})
		return err
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	s, err := repo.GetStock(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Quantity)
	assert.Equal(t, int64(3), s.ReservedQuantity)
}
