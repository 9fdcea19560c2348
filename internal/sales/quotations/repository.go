package quotations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/internal/approvals"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// QuotationStore implements Store on a pool or transaction.
type QuotationStore struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *QuotationStore {
	return &QuotationStore{db: conn}
}

type txRepository struct {
	*QuotationStore
	*approvals.ApprovalStore
	*orders.OrderStore
	*inventory.StockStore
	*docnumber.CounterStore
	*shared.ActivityLogger
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			QuotationStore: NewStore(tx),
			ApprovalStore:  approvals.NewStore(tx),
			OrderStore:     orders.NewStore(tx),
			StockStore:     inventory.NewStore(tx),
			CounterStore:   docnumber.NewStore(tx),
			ActivityLogger: shared.NewActivityLogger(tx),
		})
	})
}

func (r *Repository) GetQuotation(ctx context.Context, id int64) (Quotation, error) {
	return NewStore(r.pool).load(ctx, id, false)
}

func (r *Repository) ListQuotations(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+quotationColumns+` FROM quotations`+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

const quotationColumns = `id, number, customer_id, warehouse_id, status, valid_until, notes, sales_order_id,
subtotal, discount_total, tax_total, total, created_by, created_at, updated_at`

func (s *QuotationStore) InsertQuotation(ctx context.Context, q Quotation) (Quotation, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO quotations (number, customer_id, warehouse_id, status, valid_until, notes,
subtotal, discount_total, tax_total, total, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		q.Number, q.CustomerID, q.WarehouseID, string(q.Status), q.ValidUntil, q.Notes,
		q.Subtotal, q.DiscountTotal, q.TaxTotal, q.Total, q.CreatedBy, q.CreatedAt, q.UpdatedAt).Scan(&q.ID)
	if err != nil {
		return Quotation{}, err
	}
	if err := s.insertItems(ctx, &q); err != nil {
		return Quotation{}, err
	}
	return q, nil
}

func (s *QuotationStore) UpdateQuotation(ctx context.Context, q Quotation) (Quotation, error) {
	tag, err := s.db.Exec(ctx, `UPDATE quotations SET valid_until=$2, notes=$3, subtotal=$4, discount_total=$5,
tax_total=$6, total=$7, updated_at=$8 WHERE id=$1`,
		q.ID, q.ValidUntil, q.Notes, q.Subtotal, q.DiscountTotal, q.TaxTotal, q.Total, q.UpdatedAt)
	if err != nil {
		return Quotation{}, err
	}
	if tag.RowsAffected() == 0 {
		return Quotation{}, ErrQuotationNotFound
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM quotation_items WHERE quotation_id=$1`, q.ID); err != nil {
		return Quotation{}, err
	}
	if err := s.insertItems(ctx, &q); err != nil {
		return Quotation{}, err
	}
	return q, nil
}

func (s *QuotationStore) insertItems(ctx context.Context, q *Quotation) error {
	for i := range q.Items {
		it := &q.Items[i]
		it.QuotationID = q.ID
		err := s.db.QueryRow(ctx, `INSERT INTO quotation_items (quotation_id, product_id, quantity, unit_price,
discount_percent, tax_percent, discount_amount, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
			q.ID, it.ProductID, it.Quantity, it.UnitPrice, it.DiscountPercent, it.TaxPercent, it.Discount, it.Tax, it.LineTotal).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert quotation item: %w", err)
		}
	}
	return nil
}

func (s *QuotationStore) GetQuotationForUpdate(ctx context.Context, id int64) (Quotation, error) {
	return s.load(ctx, id, true)
}

func (s *QuotationStore) UpdateQuotationStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE quotations SET status=$2, updated_at=$3 WHERE id=$1`, id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotationNotFound
	}
	return nil
}

func (s *QuotationStore) SetQuotationSalesOrder(ctx context.Context, id, salesOrderID int64, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE quotations SET sales_order_id=$2, updated_at=$3 WHERE id=$1 AND sales_order_id IS NULL`, id, salesOrderID, at)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAlreadyConverted
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyConverted
	}
	return nil
}

func (s *QuotationStore) DeleteQuotation(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM quotations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotationNotFound
	}
	return nil
}

func (s *QuotationStore) load(ctx context.Context, id int64, lock bool) (Quotation, error) {
	query := `SELECT ` + quotationColumns + ` FROM quotations WHERE id=$1`
	if lock {
		query += " FOR UPDATE"
	}
	q, err := scanQuotation(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, fmt.Errorf("id %d: %w", id, ErrQuotationNotFound)
		}
		return Quotation{}, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, quotation_id, product_id, quantity, unit_price, discount_percent, tax_percent,
discount_amount, tax_amount, line_total FROM quotation_items WHERE quotation_id=$1 ORDER BY id`, id)
	if err != nil {
		return Quotation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.QuotationID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.DiscountPercent,
			&it.TaxPercent, &it.Discount, &it.Tax, &it.LineTotal); err != nil {
			return Quotation{}, err
		}
		q.Items = append(q.Items, it)
	}
	return q, rows.Err()
}

func scanQuotation(row pgx.Row) (Quotation, error) {
	var (
		q      Quotation
		status string
	)
	err := row.Scan(&q.ID, &q.Number, &q.CustomerID, &q.WarehouseID, &status, &q.ValidUntil, &q.Notes, &q.SalesOrderID,
		&q.Subtotal, &q.DiscountTotal, &q.TaxTotal, &q.Total, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	q.Status = Status(status)
	return q, err
}
