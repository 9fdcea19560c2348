package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/internal/billing"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// ReturnStore implements Store on a pool or transaction.
type ReturnStore struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *ReturnStore {
	return &ReturnStore{db: conn}
}

type txRepository struct {
	*ReturnStore
	*billing.BillingStore
	*inventory.StockStore
	*docnumber.CounterStore
	*shared.ActivityLogger
}

// Repository provides PostgreSQL persistence for sales returns.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			ReturnStore:    NewStore(tx),
			BillingStore:   billing.NewStore(tx),
			StockStore:     inventory.NewStore(tx),
			CounterStore:   docnumber.NewStore(tx),
			ActivityLogger: shared.NewActivityLogger(tx),
		})
	})
}

func (r *Repository) GetSalesReturn(ctx context.Context, id int64) (SalesReturn, error) {
	return NewStore(r.pool).load(ctx, id, false)
}

// ListSalesReturns returns headers newest first.
func (r *Repository) ListSalesReturns(ctx context.Context, filter ListFilter) ([]SalesReturn, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.InvoiceID > 0 {
		args = append(args, filter.InvoiceID)
		conds = append(conds, fmt.Sprintf("invoice_id = $%d", len(args)))
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_returns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+returnColumns+` FROM sales_returns`+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []SalesReturn
	for rows.Next() {
		sr, err := scanReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sr)
	}
	return out, total, rows.Err()
}

const returnColumns = `id, number, invoice_id, sales_order_id, customer_id, warehouse_id, status, reason, credit_note_id,
created_by, created_at, updated_at`

func (s *ReturnStore) InsertSalesReturn(ctx context.Context, sr SalesReturn) (SalesReturn, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO sales_returns (number, invoice_id, sales_order_id, customer_id, warehouse_id, status, reason,
created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		sr.Number, sr.InvoiceID, sr.SalesOrderID, sr.CustomerID, sr.WarehouseID, string(sr.Status), sr.Reason,
		sr.CreatedBy, sr.CreatedAt, sr.UpdatedAt).Scan(&sr.ID)
	if err != nil {
		return SalesReturn{}, err
	}
	for i := range sr.Items {
		it := &sr.Items[i]
		it.SalesReturnID = sr.ID
		if err := s.db.QueryRow(ctx, `INSERT INTO sales_return_items (sales_return_id, product_id, quantity, unit_price, condition)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, sr.ID, it.ProductID, it.Quantity, it.UnitPrice, string(it.Condition)).Scan(&it.ID); err != nil {
			return SalesReturn{}, fmt.Errorf("insert sales return item: %w", err)
		}
	}
	return sr, nil
}

func (s *ReturnStore) GetSalesReturnForUpdate(ctx context.Context, id int64) (SalesReturn, error) {
	return s.load(ctx, id, true)
}

func (s *ReturnStore) UpdateSalesReturnStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE sales_returns SET status=$2, updated_at=$3 WHERE id=$1`, id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSalesReturnNotFound
	}
	return nil
}

func (s *ReturnStore) SetSalesReturnCreditNote(ctx context.Context, id, creditNoteID int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE sales_returns SET credit_note_id=$2, updated_at=$3 WHERE id=$1`, id, creditNoteID, at)
	return err
}

func (s *ReturnStore) ReturnedQuantities(ctx context.Context, invoiceID int64) (map[int64]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT i.product_id, SUM(i.quantity)
FROM sales_return_items i JOIN sales_returns r ON r.id = i.sales_return_id
WHERE r.invoice_id=$1 AND r.status <> 'CANCELLED'
GROUP BY i.product_id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}

func (s *ReturnStore) load(ctx context.Context, id int64, lock bool) (SalesReturn, error) {
	query := `SELECT ` + returnColumns + ` FROM sales_returns WHERE id=$1`
	if lock {
		query += " FOR UPDATE"
	}
	sr, err := scanReturn(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesReturn{}, fmt.Errorf("id %d: %w", id, ErrSalesReturnNotFound)
		}
		return SalesReturn{}, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, sales_return_id, product_id, quantity, unit_price, condition
FROM sales_return_items WHERE sales_return_id=$1 ORDER BY id`, id)
	if err != nil {
		return SalesReturn{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it        Item
			condition string
		)
		if err := rows.Scan(&it.ID, &it.SalesReturnID, &it.ProductID, &it.Quantity, &it.UnitPrice, &condition); err != nil {
			return SalesReturn{}, err
		}
		it.Condition = Condition(condition)
		sr.Items = append(sr.Items, it)
	}
	return sr, rows.Err()
}

func scanReturn(row pgx.Row) (SalesReturn, error) {
	var (
		sr     SalesReturn
		status string
	)
	err := row.Scan(&sr.ID, &sr.Number, &sr.InvoiceID, &sr.SalesOrderID, &sr.CustomerID, &sr.WarehouseID, &status, &sr.Reason,
		&sr.CreditNoteID, &sr.CreatedBy, &sr.CreatedAt, &sr.UpdatedAt)
	sr.Status = Status(status)
	return sr, err
}
