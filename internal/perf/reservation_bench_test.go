package perf

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memdb"
)

const warehouses = 8

func seeded(b testing.TB, perWarehouse int64) (*memdb.DB, []int64) {
	b.Helper()
	db := memdb.New()
	ids := make([]int64, 0, warehouses)
	for i := range warehouses {
		id := db.AddWarehouse(string(rune('A'+i)) + "WH")
		db.SetStock(1, id, perWarehouse, 0)
		ids = append(ids, id)
	}
	return db, ids
}

func BenchmarkReserveAcrossWarehouses(b *testing.B) {
	db, _ := seeded(b, int64(b.N)*3+10)
	repo := db.Inventory()
	ctx := context.Background()
	actor := shared.NewActor(1, time.Now())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := repo.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
			_, err := inventory.Reserve(ctx, tx, actor, inventory.ReserveInput{
				ProductID: 1,
				Quantity:  20,
				Reference: shared.NewRef(shared.RefSalesOrder, int64(i+1)),
			})
			return err
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPlaceOrder(b *testing.B) {
	db, ids := seeded(b, int64(b.N)*2+10)
	svc := orders.NewService(db.Orders(), &memdb.Recorder{}, nil)
	ctx := context.Background()
	actor := shared.NewActor(1, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	req := orders.CreateRequest{
		CustomerID:  1,
		WarehouseID: ids[0],
		Items:       []orders.ItemRequest{{ProductID: 1, Quantity: 12, UnitPrice: decimal.NewFromInt(10)}},
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Create(ctx, actor, req); err != nil {
			b.Fatal(err)
		}
	}
}

// Placing an order against the in-memory store should stay far below the API budget; a
// regression here usually means the allocation loop went quadratic.
func TestOrderPlacementLatencyBudget(t *testing.T) {
	db, ids := seeded(t, 10_000)
	svc := orders.NewService(db.Orders(), &memdb.Recorder{}, nil)
	ctx := context.Background()
	actor := shared.NewActor(1, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))

	samples := make([]time.Duration, 0, 200)
	for range 200 {
		start := time.Now()
		_, err := svc.Create(ctx, actor, orders.CreateRequest{
			CustomerID:  1,
			WarehouseID: ids[3],
			Items: []orders.ItemRequest{
				{ProductID: 1, Quantity: 30, UnitPrice: decimal.NewFromInt(10)},
			},
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("order placement regression: p95=%s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	return sorted[int(float64(len(sorted)-1)*0.95)]
}
