package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// DeliveryStore implements Store on a pool or transaction.
type DeliveryStore struct {
	db db.DBTX
}

// NewStore binds the store to a pool or transaction.
func NewStore(conn db.DBTX) *DeliveryStore {
	return &DeliveryStore{db: conn}
}

type txRepository struct {
	*DeliveryStore
	*picking.PickingStore
	*orders.OrderStore
	*inventory.StockStore
	*docnumber.CounterStore
	*shared.ActivityLogger
}

// Repository provides PostgreSQL backed persistence for delivery orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback execution within a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			DeliveryStore:  NewStore(tx),
			PickingStore:   picking.NewStore(tx),
			OrderStore:     orders.NewStore(tx),
			StockStore:     inventory.NewStore(tx),
			CounterStore:   docnumber.NewStore(tx),
			ActivityLogger: shared.NewActivityLogger(tx),
		})
	})
}

// GetDeliveryOrder loads a delivery order with items.
func (r *Repository) GetDeliveryOrder(ctx context.Context, id int64) (DeliveryOrder, error) {
	return NewStore(r.pool).load(ctx, id, false)
}

// ListDeliveryOrders returns delivery order headers newest first.
func (r *Repository) ListDeliveryOrders(ctx context.Context, filter ListFilter) ([]DeliveryOrder, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.SalesOrderID > 0 {
		args = append(args, filter.SalesOrderID)
		conds = append(conds, fmt.Sprintf("source_kind = 'SALES_ORDER' AND source_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+deliveryColumns+` FROM delivery_orders`+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []DeliveryOrder
	for rows.Next() {
		do, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, do)
	}
	return out, total, rows.Err()
}

const deliveryColumns = `id, number, source_kind, source_id, picking_list_id, warehouse_id, status, shipped_at, delivered_at,
created_by, created_at, updated_at`

func (s *DeliveryStore) InsertDeliveryOrder(ctx context.Context, do DeliveryOrder) (DeliveryOrder, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO delivery_orders (number, source_kind, source_id, picking_list_id, warehouse_id, status,
shipped_at, delivered_at, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		do.Number, string(do.Source.Kind), do.Source.ID, do.PickingListID, do.WarehouseID, string(do.Status),
		do.ShippedAt, do.DeliveredAt, do.CreatedBy, do.CreatedAt, do.UpdatedAt).Scan(&do.ID)
	if err != nil {
		return DeliveryOrder{}, err
	}
	for i := range do.Items {
		it := &do.Items[i]
		it.DeliveryOrderID = do.ID
		if err := s.db.QueryRow(ctx, `INSERT INTO delivery_order_items (delivery_order_id, product_id, quantity_shipped, quantity_delivered, status)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, do.ID, it.ProductID, it.QuantityShipped, it.QuantityDelivered, string(it.Status)).Scan(&it.ID); err != nil {
			return DeliveryOrder{}, fmt.Errorf("insert delivery item: %w", err)
		}
	}
	return do, nil
}

func (s *DeliveryStore) GetDeliveryOrderForUpdate(ctx context.Context, id int64) (DeliveryOrder, error) {
	return s.load(ctx, id, true)
}

func (s *DeliveryStore) HasActiveDeliveryOrder(ctx context.Context, source shared.Ref) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_orders
WHERE source_kind=$1 AND source_id=$2 AND status <> 'CANCELLED')`, string(source.Kind), source.ID).Scan(&exists)
	return exists, err
}

func (s *DeliveryStore) HasDeliveredOrder(ctx context.Context, salesOrderID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_orders
WHERE source_kind='SALES_ORDER' AND source_id=$1 AND status='DELIVERED')`, salesOrderID).Scan(&exists)
	return exists, err
}

func (s *DeliveryStore) OrderInvoiced(ctx context.Context, salesOrderID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE sales_order_id=$1)`, salesOrderID).Scan(&exists)
	return exists, err
}

func (s *DeliveryStore) SaveDeliveryOrder(ctx context.Context, do DeliveryOrder) error {
	tag, err := s.db.Exec(ctx, `UPDATE delivery_orders SET status=$2, shipped_at=$3, delivered_at=$4, updated_at=$5 WHERE id=$1`,
		do.ID, string(do.Status), do.ShippedAt, do.DeliveredAt, do.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryOrderNotFound
	}
	for _, it := range do.Items {
		if _, err := s.db.Exec(ctx, `UPDATE delivery_order_items SET quantity_delivered=$3, status=$4 WHERE id=$1 AND delivery_order_id=$2`,
			it.ID, do.ID, it.QuantityDelivered, string(it.Status)); err != nil {
			return err
		}
	}
	return nil
}

func (s *DeliveryStore) load(ctx context.Context, id int64, lock bool) (DeliveryOrder, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_orders WHERE id=$1`
	if lock {
		query += " FOR UPDATE"
	}
	do, err := scanDelivery(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeliveryOrder{}, fmt.Errorf("id %d: %w", id, ErrDeliveryOrderNotFound)
		}
		return DeliveryOrder{}, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, delivery_order_id, product_id, quantity_shipped, quantity_delivered, status
FROM delivery_order_items WHERE delivery_order_id=$1 ORDER BY id`, id)
	if err != nil {
		return DeliveryOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it     Item
			status string
		)
		if err := rows.Scan(&it.ID, &it.DeliveryOrderID, &it.ProductID, &it.QuantityShipped, &it.QuantityDelivered, &status); err != nil {
			return DeliveryOrder{}, err
		}
		it.Status = ItemStatus(status)
		do.Items = append(do.Items, it)
	}
	return do, rows.Err()
}

func scanDelivery(row pgx.Row) (DeliveryOrder, error) {
	var (
		do     DeliveryOrder
		kind   string
		status string
	)
	err := row.Scan(&do.ID, &do.Number, &kind, &do.Source.ID, &do.PickingListID, &do.WarehouseID, &status,
		&do.ShippedAt, &do.DeliveredAt, &do.CreatedBy, &do.CreatedAt, &do.UpdatedAt)
	do.Source.Kind = shared.RefKind(kind)
	do.Status = Status(status)
	return do, err
}
