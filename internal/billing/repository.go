package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// BillingStore implements Store on a pool or transaction.
type BillingStore struct {
	db db.DBTX
}

// NewStore binds the store to a pool or transaction.
func NewStore(conn db.DBTX) *BillingStore {
	return &BillingStore{db: conn}
}

type txRepository struct {
	*BillingStore
	*delivery.DeliveryStore
	*orders.OrderStore
	*docnumber.CounterStore
	*shared.ActivityLogger
}

// Repository provides PostgreSQL persistence for invoices, payments and credit notes.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback execution within a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			BillingStore:   NewStore(tx),
			DeliveryStore:  delivery.NewStore(tx),
			OrderStore:     orders.NewStore(tx),
			CounterStore:   docnumber.NewStore(tx),
			ActivityLogger: shared.NewActivityLogger(tx),
		})
	})
}

// GetInvoice loads an invoice with items and the amount paid so far.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	store := NewStore(r.pool)
	inv, err := store.load(ctx, id, false)
	if err != nil {
		return Invoice{}, err
	}
	inv.AmountPaid, err = store.PaidAmount(ctx, id)
	return inv, err
}

// ListInvoices returns invoice headers newest first.
func (r *Repository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		conds = append(conds, fmt.Sprintf("i.customer_id = $%d", len(args)))
	}
	if filter.SalesOrderID > 0 {
		args = append(args, filter.SalesOrderID)
		conds = append(conds, fmt.Sprintf("i.sales_order_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("i.status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices i`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+`,
COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.invoice_id = i.id), 0)
FROM invoices i`+where+fmt.Sprintf(" ORDER BY i.created_at DESC, i.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows, true)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// ListPayments returns the payments of an invoice oldest first.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE invoice_id=$1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListCreditNotes returns credit notes newest first.
func (r *Repository) ListCreditNotes(ctx context.Context, filter CreditNoteFilter) ([]CreditNote, int, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM credit_notes`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+creditColumns+` FROM credit_notes`+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []CreditNote
	for rows.Next() {
		cn, err := scanCreditNote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, cn)
	}
	return out, total, rows.Err()
}

const invoiceColumns = `i.id, i.number, i.source_kind, i.source_id, i.sales_order_id, i.customer_id, i.warehouse_id,
i.issue_date, i.due_date, i.status, i.subtotal, i.discount_total, i.tax_total, i.total, i.created_by, i.created_at, i.updated_at`

const paymentColumns = `id, number, invoice_id, amount, method, credit_note_id, reference, paid_at, created_by, created_at`

const creditColumns = `id, number, customer_id, sales_return_id, amount, status, created_at, updated_at`

func (s *BillingStore) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO invoices (number, source_kind, source_id, sales_order_id, customer_id, warehouse_id,
issue_date, due_date, status, subtotal, discount_total, tax_total, total, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id`,
		inv.Number, string(inv.Source.Kind), inv.Source.ID, inv.SalesOrderID, inv.CustomerID, inv.WarehouseID,
		inv.IssueDate, inv.DueDate, string(inv.Status), inv.Subtotal, inv.DiscountTotal, inv.TaxTotal, inv.Total,
		inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt).Scan(&inv.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Invoice{}, ErrInvoiceExists
		}
		return Invoice{}, err
	}
	for i := range inv.Items {
		it := &inv.Items[i]
		it.InvoiceID = inv.ID
		if err := s.db.QueryRow(ctx, `INSERT INTO invoice_items (invoice_id, product_id, quantity, unit_price, discount_amount, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, inv.ID, it.ProductID, it.Quantity, it.UnitPrice, it.Discount, it.Tax, it.LineTotal).Scan(&it.ID); err != nil {
			return Invoice{}, fmt.Errorf("insert invoice item: %w", err)
		}
	}
	inv.AmountPaid = decimal.Zero
	return inv, nil
}

func (s *BillingStore) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return s.load(ctx, id, true)
}

func (s *BillingStore) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE invoices SET status=$2, updated_at=$3 WHERE id=$1`, id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (s *BillingStore) PaidAmount(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id=$1`, invoiceID).Scan(&paid)
	return paid, err
}

func (s *BillingStore) OverdueCandidates(ctx context.Context, day time.Time) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM invoices WHERE status IN ('UNPAID','PARTIAL') AND due_date < $1 ORDER BY id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *BillingStore) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO payments (number, invoice_id, amount, method, credit_note_id, reference, paid_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		p.Number, p.InvoiceID, p.Amount, string(p.Method), db.NullInt(p.CreditNoteID), p.Reference, p.PaidAt, p.CreatedBy, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Payment{}, ErrCreditNoteUnavailable
		}
		return Payment{}, err
	}
	return p, nil
}

func (s *BillingStore) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, fmt.Errorf("id %d: %w", id, ErrPaymentNotFound)
		}
		return Payment{}, err
	}
	return p, nil
}

func (s *BillingStore) UpdatePayment(ctx context.Context, p Payment) error {
	tag, err := s.db.Exec(ctx, `UPDATE payments SET amount=$2, reference=$3, paid_at=$4 WHERE id=$1`, p.ID, p.Amount, p.Reference, p.PaidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (s *BillingStore) DeletePayment(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM payments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (s *BillingStore) InsertCreditNote(ctx context.Context, cn CreditNote) (CreditNote, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO credit_notes (number, customer_id, sales_return_id, amount, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		cn.Number, cn.CustomerID, cn.SalesReturnID, cn.Amount, string(cn.Status), cn.CreatedAt, cn.UpdatedAt).Scan(&cn.ID)
	return cn, err
}

func (s *BillingStore) GetCreditNoteForUpdate(ctx context.Context, id int64) (CreditNote, error) {
	cn, err := scanCreditNote(s.db.QueryRow(ctx, `SELECT `+creditColumns+` FROM credit_notes WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditNote{}, fmt.Errorf("id %d: %w", id, ErrCreditNoteNotFound)
		}
		return CreditNote{}, err
	}
	return cn, nil
}

func (s *BillingStore) UpdateCreditNoteStatus(ctx context.Context, id int64, status CreditNoteStatus, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE credit_notes SET status=$2, updated_at=$3 WHERE id=$1`, id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCreditNoteNotFound
	}
	return nil
}

func (s *BillingStore) load(ctx context.Context, id int64, lock bool) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices i WHERE i.id=$1`
	if lock {
		query += " FOR UPDATE"
	}
	inv, err := scanInvoice(s.db.QueryRow(ctx, query, id), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("id %d: %w", id, ErrInvoiceNotFound)
		}
		return Invoice{}, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, invoice_id, product_id, quantity, unit_price, discount_amount, tax_amount, line_total
FROM invoice_items WHERE invoice_id=$1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Discount, &it.Tax, &it.LineTotal); err != nil {
			return Invoice{}, err
		}
		inv.Items = append(inv.Items, it)
	}
	return inv, rows.Err()
}

func scanInvoice(row pgx.Row, withPaid bool) (Invoice, error) {
	var (
		inv    Invoice
		kind   string
		status string
	)
	dest := []any{&inv.ID, &inv.Number, &kind, &inv.Source.ID, &inv.SalesOrderID, &inv.CustomerID, &inv.WarehouseID,
		&inv.IssueDate, &inv.DueDate, &status, &inv.Subtotal, &inv.DiscountTotal, &inv.TaxTotal, &inv.Total,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt}
	if withPaid {
		dest = append(dest, &inv.AmountPaid)
	}
	err := row.Scan(dest...)
	inv.Source.Kind = shared.RefKind(kind)
	inv.Status = InvoiceStatus(status)
	return inv, err
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p      Payment
		method string
	)
	err := row.Scan(&p.ID, &p.Number, &p.InvoiceID, &p.Amount, &method, &p.CreditNoteID, &p.Reference, &p.PaidAt, &p.CreatedBy, &p.CreatedAt)
	p.Method = PaymentMethod(method)
	return p, err
}

func scanCreditNote(row pgx.Row) (CreditNote, error) {
	var (
		cn     CreditNote
		status string
	)
	err := row.Scan(&cn.ID, &cn.Number, &cn.CustomerID, &cn.SalesReturnID, &cn.Amount, &status, &cn.CreatedAt, &cn.UpdatedAt)
	cn.Status = CreditNoteStatus(status)
	return cn, err
}
