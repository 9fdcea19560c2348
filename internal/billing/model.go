package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// InvoiceStatus represents the collection state of an invoice.
type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "UNPAID"
	InvoicePartial InvoiceStatus = "PARTIAL"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
)

// InvoiceTransitions covers every flip payment bookkeeping can cause. Manual status
// updates additionally refuse to leave PAID.
var InvoiceTransitions = shared.Transitions[InvoiceStatus]{
	InvoiceUnpaid:  {InvoicePartial, InvoicePaid, InvoiceOverdue},
	InvoicePartial: {InvoiceUnpaid, InvoicePaid, InvoiceOverdue},
	InvoiceOverdue: {InvoiceUnpaid, InvoicePartial, InvoicePaid},
	InvoicePaid:    {InvoiceUnpaid, InvoicePartial, InvoiceOverdue},
}

type PaymentMethod string

const (
	MethodCash       PaymentMethod = "CASH"
	MethodTransfer   PaymentMethod = "TRANSFER"
	MethodCreditNote PaymentMethod = "CREDIT_NOTE"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodTransfer, MethodCreditNote:
		return true
	}
	return false
}

type CreditNoteStatus string

const (
	CreditIssued CreditNoteStatus = "ISSUED"
	CreditUsed   CreditNoteStatus = "USED"
)

// CreditNoteTransitions: a note is consumed by a payment and restored when that payment
// is deleted.
var CreditNoteTransitions = shared.Transitions[CreditNoteStatus]{
	CreditIssued: {CreditUsed},
	CreditUsed:   {CreditIssued},
}

var (
	ErrInvoiceNotFound       = fmt.Errorf("invoice: %w", shared.ErrNotFound)
	ErrPaymentNotFound       = fmt.Errorf("payment: %w", shared.ErrNotFound)
	ErrCreditNoteNotFound    = fmt.Errorf("credit note: %w", shared.ErrNotFound)
	ErrPaidInvoiceLocked     = fmt.Errorf("%w: a PAID invoice cannot change status", shared.ErrBusinessRule)
	ErrStatusMismatch        = fmt.Errorf("%w: status does not match the payments received", shared.ErrBusinessRule)
	ErrOverpayment           = fmt.Errorf("%w: payment exceeds the outstanding balance", shared.ErrBusinessRule)
	ErrInvoiceExists         = fmt.Errorf("%w: sales order already has an invoice", shared.ErrBusinessRule)
	ErrOrderNotShipped       = fmt.Errorf("%w: sales order must be SHIPPED or COMPLETED", shared.ErrBusinessRule)
	ErrDeliveryNotDelivered  = fmt.Errorf("%w: delivery order must be DELIVERED", shared.ErrBusinessRule)
	ErrNothingDelivered      = fmt.Errorf("%w: no delivered quantity to invoice", shared.ErrBusinessRule)
	ErrCreditNoteUnavailable = fmt.Errorf("%w: credit note is not ISSUED", shared.ErrBusinessRule)
	ErrCreditNoteTooSmall    = fmt.Errorf("%w: credit note amount does not cover the payment", shared.ErrBusinessRule)
	ErrCreditNoteCustomer    = fmt.Errorf("%w: credit note belongs to another customer", shared.ErrBusinessRule)
)

// Invoice is a receivable raised against a sales order or one of its deliveries. Totals are
// a snapshot taken at creation.
type Invoice struct {
	ID           int64         `json:"id"`
	Number       string        `json:"number"`
	Source       shared.Ref    `json:"source"`
	SalesOrderID int64         `json:"sales_order_id"`
	CustomerID   int64         `json:"customer_id"`
	WarehouseID  int64         `json:"warehouse_id"`
	IssueDate    time.Time     `json:"issue_date"`
	DueDate      time.Time     `json:"due_date"`
	Status       InvoiceStatus `json:"status"`
	pricing.Totals
	AmountPaid decimal.Decimal `json:"amount_paid"`
	CreatedBy  int64           `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Items      []InvoiceItem   `json:"items"`
}

func (i Invoice) Ref() shared.Ref {
	return shared.NewRef(shared.RefInvoice, i.ID)
}

// Balance is what remains to be collected.
func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

// InvoicedQuantity sums invoiced units of a product.
func (i Invoice) InvoicedQuantity(productID int64) int64 {
	var q int64
	for _, it := range i.Items {
		if it.ProductID == productID {
			q += it.Quantity
		}
	}
	return q
}

type InvoiceItem struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount_amount"`
	Tax       decimal.Decimal `json:"tax_amount"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Payment settles part or all of an invoice.
type Payment struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	InvoiceID    int64           `json:"invoice_id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       PaymentMethod   `json:"method"`
	CreditNoteID *int64          `json:"credit_note_id,omitempty"`
	Reference    string          `json:"reference,omitempty"`
	PaidAt       time.Time       `json:"paid_at"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (p Payment) Ref() shared.Ref {
	return shared.NewRef(shared.RefPayment, p.ID)
}

// CreditNote is customer credit issued by a completed sales return.
type CreditNote struct {
	ID            int64            `json:"id"`
	Number        string           `json:"number"`
	CustomerID    int64            `json:"customer_id"`
	SalesReturnID int64            `json:"sales_return_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Status        CreditNoteStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (c CreditNote) Ref() shared.Ref {
	return shared.NewRef(shared.RefCreditNote, c.ID)
}

type InvoiceFilter struct {
	CustomerID   int64
	SalesOrderID int64
	Status       InvoiceStatus
	Page         shared.Page
}

type CreditNoteFilter struct {
	CustomerID int64
	Status     CreditNoteStatus
	Page       shared.Page
}

// StatusFor derives the collection status from what has been paid.
func StatusFor(total, paid decimal.Decimal, due, at time.Time) InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return InvoicePaid
	case PastDue(due, at):
		return InvoiceOverdue
	case paid.IsPositive():
		return InvoicePartial
	default:
		return InvoiceUnpaid
	}
}

// PastDue reports whether the calendar day of at is after the due date.
func PastDue(due, at time.Time) bool {
	if due.IsZero() {
		return false
	}
	y, m, d := at.UTC().Date()
	dy, dm, dd := due.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).After(time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
