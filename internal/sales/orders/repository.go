package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// OrderStore implements Store on a pool or transaction.
type OrderStore struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *OrderStore {
	return &OrderStore{db: conn}
}

type txRepository struct {
	*OrderStore
	*inventory.StockStore
	*docnumber.CounterStore
	*shared.ActivityLogger
}

// NewTxRepository composes the stores a sales order step needs on one transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{
		OrderStore:     NewStore(tx),
		StockStore:     inventory.NewStore(tx),
		CounterStore:   docnumber.NewStore(tx),
		ActivityLogger: shared.NewActivityLogger(tx),
	}
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *Repository) GetSalesOrder(ctx context.Context, id int64) (SalesOrder, error) {
	return NewStore(r.pool).load(ctx, id, false)
}

func (r *Repository) ListSalesOrders(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM sales_orders`+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []SalesOrder
	for rows.Next() {
		so, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, so)
	}
	return out, total, rows.Err()
}

const orderColumns = `id, number, customer_id, warehouse_id, quotation_id, status, notes,
subtotal, discount_total, tax_total, total, created_by, created_at, updated_at`

func (s *OrderStore) InsertSalesOrder(ctx context.Context, so SalesOrder) (SalesOrder, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO sales_orders (number, customer_id, warehouse_id, quotation_id, status, notes,
subtotal, discount_total, tax_total, total, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		so.Number, so.CustomerID, so.WarehouseID, so.QuotationID, string(so.Status), so.Notes,
		so.Subtotal, so.DiscountTotal, so.TaxTotal, so.Total, so.CreatedBy, so.CreatedAt, so.UpdatedAt).Scan(&so.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return SalesOrder{}, fmt.Errorf("%w: quotation already has a sales order", shared.ErrBusinessRule)
		}
		return SalesOrder{}, err
	}
	for i := range so.Items {
		item := &so.Items[i]
		item.SalesOrderID = so.ID
		err := s.db.QueryRow(ctx, `INSERT INTO sales_order_items (sales_order_id, product_id, quantity, unit_price,
discount_percent, tax_percent, discount_amount, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
			so.ID, item.ProductID, item.Quantity, item.UnitPrice, item.DiscountPercent, item.TaxPercent,
			item.Discount, item.Tax, item.LineTotal).Scan(&item.ID)
		if err != nil {
			return SalesOrder{}, fmt.Errorf("insert item: %w", err)
		}
	}
	return so, nil
}

func (s *OrderStore) GetSalesOrderForUpdate(ctx context.Context, id int64) (SalesOrder, error) {
	return s.load(ctx, id, true)
}

func (s *OrderStore) UpdateSalesOrderStatus(ctx context.Context, id int64, status Status, notes string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE sales_orders SET status=$2, notes=$3, updated_at=$4 WHERE id=$1`, id, string(status), notes, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *OrderStore) UpdateAllocations(ctx context.Context, itemID int64, allocations []inventory.Allocation) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sales_order_allocations WHERE sales_order_item_id=$1`, itemID); err != nil {
		return err
	}
	for _, a := range allocations {
		if _, err := s.db.Exec(ctx, `INSERT INTO sales_order_allocations (sales_order_item_id, warehouse_id, quantity) VALUES ($1,$2,$3)`,
			itemID, a.WarehouseID, a.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderStore) CancelOpenPickingLists(ctx context.Context, salesOrderID int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE picking_lists SET status='CANCELLED', updated_at=$2
WHERE sales_order_id=$1 AND status NOT IN ('COMPLETED', 'CANCELLED')`, salesOrderID, at)
	return err
}

func (s *OrderStore) CancelOpenDeliveryOrders(ctx context.Context, salesOrderID int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE delivery_orders SET status='CANCELLED', updated_at=$2
WHERE source_kind=$3 AND source_id=$1 AND status IN ('PREPARING', 'READY')`, salesOrderID, at, string(shared.RefSalesOrder))
	return err
}

func (s *OrderStore) load(ctx context.Context, id int64, lock bool) (SalesOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders WHERE id=$1`
	if lock {
		query += " FOR UPDATE"
	}
	so, err := scanOrder(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, fmt.Errorf("id %d: %w", id, ErrOrderNotFound)
		}
		return SalesOrder{}, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, sales_order_id, product_id, quantity, unit_price, discount_percent, tax_percent,
discount_amount, tax_amount, line_total FROM sales_order_items WHERE sales_order_id=$1 ORDER BY id`, id)
	if err != nil {
		return SalesOrder{}, err
	}
	index := map[int64]int{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SalesOrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.DiscountPercent,
			&it.TaxPercent, &it.Discount, &it.Tax, &it.LineTotal); err != nil {
			rows.Close()
			return SalesOrder{}, err
		}
		index[it.ID] = len(so.Items)
		so.Items = append(so.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SalesOrder{}, err
	}
	arows, err := s.db.Query(ctx, `SELECT a.sales_order_item_id, a.warehouse_id, a.quantity FROM sales_order_allocations a
JOIN sales_order_items i ON i.id = a.sales_order_item_id WHERE i.sales_order_id=$1 ORDER BY a.id`, id)
	if err != nil {
		return SalesOrder{}, err
	}
	defer arows.Close()
	for arows.Next() {
		var (
			itemID int64
			a      inventory.Allocation
		)
		if err := arows.Scan(&itemID, &a.WarehouseID, &a.Quantity); err != nil {
			return SalesOrder{}, err
		}
		if i, ok := index[itemID]; ok {
			so.Items[i].Allocations = append(so.Items[i].Allocations, a)
		}
	}
	return so, arows.Err()
}

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var (
		so     SalesOrder
		status string
	)
	err := row.Scan(&so.ID, &so.Number, &so.CustomerID, &so.WarehouseID, &so.QuotationID, &status, &so.Notes,
		&so.Subtotal, &so.DiscountTotal, &so.TaxTotal, &so.Total, &so.CreatedBy, &so.CreatedAt, &so.UpdatedAt)
	so.Status = Status(status)
	return so, err
}
