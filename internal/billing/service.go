package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/documents"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// DefaultDueDays is the payment term used when none is configured.
const DefaultDueDays = 30

// Store persists invoices, payments and credit notes inside the caller's transaction.
type Store interface {
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, at time.Time) error
	PaidAmount(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	// OverdueCandidates returns UNPAID and PARTIAL invoices due before day.
	OverdueCandidates(ctx context.Context, day time.Time) ([]int64, error)

	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id int64) error

	InsertCreditNote(ctx context.Context, cn CreditNote) (CreditNote, error)
	GetCreditNoteForUpdate(ctx context.Context, id int64) (CreditNote, error)
	UpdateCreditNoteStatus(ctx context.Context, id int64, status CreditNoteStatus, at time.Time) error
}

// CreditTx is what issuing a credit note needs.
type CreditTx interface {
	Store
	docnumber.Store
	shared.ActivityStore
}

// TxRepository is everything a billing step touches in one transaction.
type TxRepository interface {
	CreditTx
	delivery.Store
	orders.Store
}

type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	ListCreditNotes(ctx context.Context, filter CreditNoteFilter) ([]CreditNote, int, error)
}

type Service struct {
	repo     RepositoryPort
	renderer documents.Renderer
	notifier shared.Notifier
	dueDays  int
	logger   *slog.Logger
}

func NewService(repo RepositoryPort, renderer documents.Renderer, notifier shared.Notifier, dueDays int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if dueDays <= 0 {
		dueDays = DefaultDueDays
	}
	return &Service{repo: repo, renderer: renderer, notifier: notifier, dueDays: dueDays, logger: logger}
}

func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) List(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.ListInvoices(ctx, filter)
}

// Payments lists the payments of an invoice oldest first.
func (s *Service) Payments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, invoiceID)
}

func (s *Service) CreditNotes(ctx context.Context, filter CreditNoteFilter) ([]CreditNote, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.ListCreditNotes(ctx, filter)
}

// RenderPDF prints the invoice with its payment history.
func (s *Service) RenderPDF(ctx context.Context, id int64) ([]byte, Invoice, error) {
	var (
		inv      Invoice
		payments []Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inv, err = s.repo.GetInvoice(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.ListPayments(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, Invoice{}, err
	}
	doc := documents.Document{
		Number: inv.Number,
		Status: string(inv.Status),
		Meta: []documents.Field{
			{Label: "Customer", Value: "#" + strconv.FormatInt(inv.CustomerID, 10)},
			{Label: "Source", Value: inv.Source.String()},
			{Label: "Issue date", Value: documents.FormatDate(inv.IssueDate)},
			{Label: "Due date", Value: documents.FormatDate(inv.DueDate)},
		},
		Columns: []string{"Product", "Qty", "Unit price", "Discount", "Tax", "Total"},
		Totals: []documents.Field{
			{Label: "Subtotal", Value: documents.FormatAmount(inv.Subtotal)},
			{Label: "Discount", Value: documents.FormatAmount(inv.DiscountTotal)},
			{Label: "Tax", Value: documents.FormatAmount(inv.TaxTotal)},
			{Label: "Paid", Value: documents.FormatAmount(inv.AmountPaid)},
			{Label: "Balance", Value: documents.FormatAmount(inv.Balance())},
			{Label: "Total", Value: documents.FormatAmount(inv.Total)},
		},
	}
	for _, it := range inv.Items {
		doc.Rows = append(doc.Rows, []string{
			"#" + strconv.FormatInt(it.ProductID, 10),
			documents.FormatQuantity(it.Quantity),
			documents.FormatAmount(it.UnitPrice),
			documents.FormatAmount(it.Discount),
			documents.FormatAmount(it.Tax),
			documents.FormatAmount(it.LineTotal),
		})
	}
	if len(payments) > 0 {
		doc.Footer = fmt.Sprintf("%d payment(s) received, last on %s", len(payments), documents.FormatDate(payments[len(payments)-1].PaidAt))
	}
	pdf, err := s.renderer.RenderPDF(ctx, documents.TemplateInvoice, doc)
	if err != nil {
		return nil, Invoice{}, err
	}
	return pdf, inv, nil
}

// recompute derives the invoice status from its payments and cascades order completion
// when the invoice becomes PAID.
func recompute(ctx context.Context, tx TxRepository, actor shared.Actor, inv Invoice, outbox *shared.Outbox) (Invoice, error) {
	paid, err := tx.PaidAmount(ctx, inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	inv.AmountPaid = paid
	to := StatusFor(inv.Total, paid, inv.DueDate, actor.At)
	if to == inv.Status {
		return inv, nil
	}
	if inv, err = setStatus(ctx, tx, actor, inv, to); err != nil {
		return Invoice{}, err
	}
	if to != InvoicePaid {
		return inv, nil
	}
	outbox.Add(shared.Notification{
		UserID:   inv.CreatedBy,
		Message:  fmt.Sprintf("Invoice %s is fully paid", inv.Number),
		Severity: shared.SeveritySuccess,
		Link:     link(inv.ID),
	})
	return inv, completeOrder(ctx, tx, actor, inv.SalesOrderID)
}

// completeOrder moves a SHIPPED order with a DELIVERED delivery order to COMPLETED.
func completeOrder(ctx context.Context, tx TxRepository, actor shared.Actor, salesOrderID int64) error {
	so, err := tx.GetSalesOrderForUpdate(ctx, salesOrderID)
	if err != nil {
		return err
	}
	if !orders.Transitions.Allows(so.Status, orders.StatusCompleted) {
		return nil
	}
	delivered, err := tx.HasDeliveredOrder(ctx, so.ID)
	if err != nil || !delivered {
		return err
	}
	_, err = orders.Advance(ctx, tx, tx, actor, so.ID, orders.StatusCompleted)
	return err
}

func setStatus(ctx context.Context, tx TxRepository, actor shared.Actor, inv Invoice, to InvoiceStatus) (Invoice, error) {
	if err := InvoiceTransitions.Check("invoice "+inv.Number, inv.Status, to); err != nil {
		return Invoice{}, err
	}
	from := inv.Status
	if err := tx.UpdateInvoiceStatus(ctx, inv.ID, to, actor.At); err != nil {
		return Invoice{}, fmt.Errorf("update invoice status: %w", err)
	}
	inv.Status = to
	inv.UpdatedAt = actor.At
	err := shared.LogActivity(ctx, tx, actor, "invoice.status_changed",
		fmt.Sprintf("Invoice %s moved from %s to %s", inv.Number, from, to), inv.Ref(),
		map[string]any{"status": string(from)}, map[string]any{"status": string(to)})
	return inv, err
}

func link(id int64) string {
	return "/api/invoices/" + strconv.FormatInt(id, 10)
}
