package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/billing"
	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memdb"
)

var (
	day       = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	sales     = shared.NewActor(10, day)
	warehouse = shared.NewActor(30, day.Add(time.Hour))
	finance   = shared.NewActor(50, day.Add(3*time.Hour))
)

type fixture struct {
	db       *memdb.DB
	notes    *memdb.Recorder
	renderer *memdb.Renderer
	orders   *orders.Service
	picking  *picking.Service
	delivery *delivery.Service
	svc      *billing.Service
	wh1      int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memdb.New()
	f := &fixture{db: db, notes: &memdb.Recorder{}, renderer: &memdb.Renderer{}}
	f.orders = orders.NewService(db.Orders(), f.notes, nil)
	f.picking = picking.NewService(db.Picking(), f.renderer, f.notes, nil)
	f.delivery = delivery.NewService(db.Delivery(), f.renderer, f.notes, nil)
	f.svc = billing.NewService(db.Billing(), f.renderer, f.notes, 14, nil)
	f.wh1 = db.AddWarehouse("WH1")
	db.SetStock(1, f.wh1, 20, 0)
	return f
}

// shipped runs an order of 3 x 10.00 for customer through picking and shipping.
func (f *fixture) shipped(t *testing.T, customerID int64) (orders.SalesOrder, delivery.DeliveryOrder) {
	t.Helper()
	ctx := context.Background()
	so, err := f.orders.Create(ctx, sales, orders.CreateRequest{
		CustomerID:  customerID,
		WarehouseID: f.wh1,
		Items:       []orders.ItemRequest{{ProductID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	pl, err := f.picking.CreateForOrder(ctx, warehouse, picking.CreateRequest{SalesOrderID: so.ID})
	require.NoError(t, err)
	_, err = f.picking.Complete(ctx, warehouse, pl.ID)
	require.NoError(t, err)
	do, err := f.delivery.CreateFromPickingList(ctx, warehouse, pl.ID)
	require.NoError(t, err)
	do, err = f.delivery.MarkAsShipped(ctx, warehouse, do.ID)
	require.NoError(t, err)
	return so, do
}

func (f *fixture) orderStatus(t *testing.T, id int64) orders.Status {
	t.Helper()
	so, err := f.orders.Get(context.Background(), id)
	require.NoError(t, err)
	return so.Status
}

func cash(amount string) billing.PaymentRequest {
	return billing.PaymentRequest{Amount: decimal.RequireFromString(amount), Method: billing.MethodCash}
}

func TestCreateFromOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := f.orders.Create(ctx, sales, orders.CreateRequest{
		CustomerID:  4,
		WarehouseID: f.wh1,
		Items:       []orders.ItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	_, err = f.svc.CreateFromOrder(ctx, finance, pending.ID)
	require.ErrorIs(t, err, billing.ErrOrderNotShipped)

	so, _ := f.shipped(t, 4)
	inv, err := f.svc.Create(ctx, finance, billing.CreateInvoiceRequest{SalesOrderID: so.ID})
	require.NoError(t, err)
	assert.Equal(t, "INV-001/WH1/03-2025", inv.Number)
	assert.Equal(t, billing.InvoiceUnpaid, inv.Status)
	assert.Equal(t, so.Ref(), inv.Source)
	assert.Equal(t, "30.00", inv.Total.StringFixed(2))
	assert.Equal(t, time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC), inv.DueDate.UTC())
	require.Len(t, inv.Items, 1)
	assert.Equal(t, int64(3), inv.InvoicedQuantity(1))

	_, err = f.svc.CreateFromOrder(ctx, finance, so.ID)
	require.ErrorIs(t, err, billing.ErrInvoiceExists)

	_, err = f.svc.Create(ctx, finance, billing.CreateInvoiceRequest{})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Create(ctx, finance, billing.CreateInvoiceRequest{SalesOrderID: so.ID, DeliveryOrderID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateFromDeliveryInvoicesDeliveredQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, do := f.shipped(t, 4)

	_, err := f.svc.CreateFromDelivery(ctx, finance, do.ID)
	require.ErrorIs(t, err, billing.ErrDeliveryNotDelivered)

	// Two of three units accepted; the third is written off at the customer.
	do, err = f.delivery.MarkAsDelivered(ctx, finance, do.ID, delivery.ReceiveRequest{Items: []delivery.DeliveredItem{
		{ItemID: do.Items[0].ID, QuantityDelivered: 2, Status: delivery.ItemDelivered},
	}})
	require.NoError(t, err)
	require.Equal(t, delivery.StatusDelivered, do.Status)

	inv, err := f.svc.Create(ctx, finance, billing.CreateInvoiceRequest{DeliveryOrderID: do.ID})
	require.NoError(t, err)
	assert.Equal(t, do.Ref(), inv.Source)
	assert.Equal(t, so.ID, inv.SalesOrderID)
	assert.Equal(t, int64(2), inv.InvoicedQuantity(1))
	assert.Equal(t, "20.00", inv.Total.StringFixed(2))

	_, err = f.svc.CreateFromOrder(ctx, finance, so.ID)
	require.ErrorIs(t, err, billing.ErrInvoiceExists)
}

func TestPaymentsDriveStatusAndCompleteOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, do := f.shipped(t, 4)
	inv, err := f.svc.CreateFromOrder(ctx, finance, so.ID)
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, billing.PaymentRequest{Amount: decimal.Zero, Method: "CHEQUE"})
	require.ErrorIs(t, err, shared.ErrValidation)

	first, err := f.svc.RecordPayment(ctx, finance, inv.ID, cash("12.50"))
	require.NoError(t, err)
	assert.Equal(t, "PAY-001/WH1/03-2025", first.Number)
	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePartial, got.Status)
	assert.Equal(t, "17.50", got.Balance().StringFixed(2))

	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, cash("17.51"))
	require.ErrorIs(t, err, billing.ErrOverpayment)

	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, billing.PaymentRequest{
		Amount: decimal.RequireFromString("17.50"), Method: billing.MethodTransfer, Reference: "BCA-7781",
	})
	require.NoError(t, err)
	got, err = f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePaid, got.Status)
	assert.Equal(t, orders.StatusShipped, f.orderStatus(t, so.ID), "goods not delivered yet")
	assert.NotEmpty(t, f.notes.Sent())

	// Delivery after payment closes the order from the other side.
	_, err = f.delivery.MarkAsDelivered(ctx, finance, do.ID, delivery.ReceiveRequest{})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, f.orderStatus(t, so.ID))

	payments, err := f.svc.Payments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, first.ID, payments[0].ID)
}

func TestPaymentAfterDeliveryCompletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, do := f.shipped(t, 4)
	_, err := f.delivery.MarkAsDelivered(ctx, warehouse, do.ID, delivery.ReceiveRequest{})
	require.NoError(t, err)
	inv, err := f.svc.CreateFromOrder(ctx, finance, so.ID)
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, cash("30"))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, f.orderStatus(t, so.ID))
}

func TestUpdateAndDeletePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, _ := f.shipped(t, 4)
	inv, err := f.svc.CreateFromOrder(ctx, finance, so.ID)
	require.NoError(t, err)

	p, err := f.svc.RecordPayment(ctx, finance, inv.ID, cash("30"))
	require.NoError(t, err)

	ref := "corrected"
	p, err = f.svc.UpdatePayment(ctx, finance, p.ID, billing.UpdatePaymentRequest{Amount: decimal.NewFromInt(10), Reference: &ref})
	require.NoError(t, err)
	assert.Equal(t, "corrected", p.Reference)
	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePartial, got.Status)

	_, err = f.svc.UpdatePayment(ctx, finance, p.ID, billing.UpdatePaymentRequest{Amount: decimal.NewFromInt(31)})
	require.ErrorIs(t, err, billing.ErrOverpayment)
	_, err = f.svc.UpdatePayment(ctx, finance, p.ID, billing.UpdatePaymentRequest{})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, f.svc.DeletePayment(ctx, finance, p.ID))
	got, err = f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceUnpaid, got.Status)
	assert.True(t, got.AmountPaid.IsZero())

	err = f.svc.DeletePayment(ctx, finance, p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreditNotePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, _ := f.shipped(t, 4)
	inv, err := f.svc.CreateFromOrder(ctx, finance, so.ID)
	require.NoError(t, err)

	issue := func(customerID int64, amount int64) billing.CreditNote {
		var cn billing.CreditNote
		err := f.db.Billing().WithTx(ctx, func(ctx context.Context, tx billing.TxRepository) error {
			var err error
			cn, err = billing.IssueCreditNote(ctx, tx, finance, billing.CreditNoteInput{
				CustomerID: customerID, SalesReturnID: 1, WarehouseID: f.wh1, Amount: decimal.NewFromInt(amount),
			})
			return err
		})
		require.NoError(t, err)
		return cn
	}
	small := issue(4, 5)
	other := issue(9, 50)
	note := issue(4, 20)
	assert.Equal(t, "CN-001/WH1/03-2025", small.Number)
	assert.Equal(t, billing.CreditIssued, note.Status)

	byNote := func(id int64, amount int64) billing.PaymentRequest {
		return billing.PaymentRequest{Amount: decimal.NewFromInt(amount), Method: billing.MethodCreditNote, CreditNoteID: &id}
	}
	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, billing.PaymentRequest{Amount: decimal.NewFromInt(5), Method: billing.MethodCreditNote})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, byNote(small.ID, 10))
	require.ErrorIs(t, err, billing.ErrCreditNoteTooSmall)
	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, byNote(other.ID, 10))
	require.ErrorIs(t, err, billing.ErrCreditNoteCustomer)

	p, err := f.svc.RecordPayment(ctx, finance, inv.ID, byNote(note.ID, 20))
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, byNote(note.ID, 5))
	require.ErrorIs(t, err, billing.ErrCreditNoteUnavailable)

	used, _, err := f.svc.CreditNotes(ctx, billing.CreditNoteFilter{CustomerID: 4, Status: billing.CreditUsed})
	require.NoError(t, err)
	require.Len(t, used, 1)
	assert.Equal(t, note.ID, used[0].ID)

	require.NoError(t, f.svc.DeletePayment(ctx, finance, p.ID))
	issued, total, err := f.svc.CreditNotes(ctx, billing.CreditNoteFilter{CustomerID: 4, Status: billing.CreditIssued})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.ElementsMatch(t, []int64{small.ID, note.ID}, []int64{issued[0].ID, issued[1].ID})
}

func TestManualStatusRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, do := f.shipped(t, 4)
	_, err := f.delivery.MarkAsDelivered(ctx, finance, do.ID, delivery.ReceiveRequest{Items: []delivery.DeliveredItem{
		{ItemID: do.Items[0].ID, QuantityDelivered: 3, Status: delivery.ItemDelivered},
	}})
	require.NoError(t, err)
	inv, err := f.svc.CreateFromOrder(ctx, finance, so.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, finance, inv.ID, billing.UpdateStatusRequest{Status: billing.InvoicePaid})
	require.ErrorIs(t, err, billing.ErrStatusMismatch)
	_, err = f.svc.UpdateStatus(ctx, finance, inv.ID, billing.UpdateStatusRequest{Status: billing.InvoicePartial})
	require.ErrorIs(t, err, billing.ErrStatusMismatch)
	_, err = f.svc.UpdateStatus(ctx, finance, inv.ID, billing.UpdateStatusRequest{Status: billing.InvoiceOverdue})
	require.ErrorIs(t, err, billing.ErrStatusMismatch, "not yet past due")
	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceUnpaid, got.Status)
	assert.Equal(t, orders.StatusShipped, f.orderStatus(t, so.ID), "a refused PAID must not complete the order")

	late := shared.NewActor(50, day.AddDate(0, 0, 20))
	got, err = f.svc.UpdateStatus(ctx, late, inv.ID, billing.UpdateStatusRequest{Status: billing.InvoicePartial})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceOverdue, got.Status)

	_, err = f.svc.RecordPayment(ctx, late, inv.ID, cash("30.00"))
	require.NoError(t, err)
	got, err = f.svc.UpdateStatus(ctx, finance, inv.ID, billing.UpdateStatusRequest{Status: billing.InvoicePaid})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePaid, got.Status)
	assert.Equal(t, orders.StatusCompleted, f.orderStatus(t, so.ID))

	_, err = f.svc.UpdateStatus(ctx, finance, inv.ID, billing.UpdateStatusRequest{Status: billing.InvoiceUnpaid})
	require.ErrorIs(t, err, billing.ErrPaidInvoiceLocked)
	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, cash("1.00"))
	require.ErrorIs(t, err, billing.ErrOverpayment)
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, _ := f.shipped(t, 4)
	inv, err := f.svc.CreateFromOrder(ctx, finance, so.ID)
	require.NoError(t, err)

	onDue := shared.NewActor(0, time.Date(2025, 3, 28, 23, 0, 0, 0, time.UTC))
	swept, err := f.svc.SweepOverdue(ctx, onDue)
	require.NoError(t, err)
	assert.Zero(t, swept, "the due date itself is not overdue")

	before := len(f.notes.Sent())
	nextDay := shared.NewActor(0, time.Date(2025, 3, 29, 1, 0, 0, 0, time.UTC))
	swept, err = f.svc.SweepOverdue(ctx, nextDay)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceOverdue, got.Status)
	sent := f.notes.Sent()
	require.Len(t, sent, before+1)
	assert.Equal(t, finance.UserID, sent[before].UserID)
	assert.Contains(t, sent[before].Message, inv.Number)

	swept, err = f.svc.SweepOverdue(ctx, nextDay)
	require.NoError(t, err)
	assert.Zero(t, swept)

	list, total, err := f.svc.List(ctx, billing.InvoiceFilter{Status: billing.InvoiceOverdue})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, inv.ID, list[0].ID)
}

func TestRenderPDFCarriesPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	so, _ := f.shipped(t, 4)
	inv, err := f.svc.CreateFromOrder(ctx, finance, so.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, finance, inv.ID, cash("10"))
	require.NoError(t, err)

	pdf, got, err := f.svc.RenderPDF(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, got.Number)
	assert.Contains(t, string(pdf), inv.Number)
	doc := f.renderer.Rendered[len(f.renderer.Rendered)-1]
	assert.Contains(t, doc.Footer, "1 payment(s) received")
	assert.Equal(t, "PARTIAL", doc.Status)

	_, _, err = f.svc.RenderPDF(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
