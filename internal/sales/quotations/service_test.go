package quotations_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/approvals"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memdb"
)

var (
	day      = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	sales    = shared.NewActor(10, day)
	approver = shared.NewActor(20, day.Add(time.Hour))
)

type fixture struct {
	db    *memdb.DB
	notes *memdb.Recorder
	svc   *quotations.Service
	wh    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memdb.New()
	notes := &memdb.Recorder{}
	return &fixture{
		db:    db,
		notes: notes,
		svc:   quotations.NewService(db.Quotations(), db, notes, nil),
		wh:    db.AddWarehouse("WH1"),
	}
}

func (f *fixture) create(t *testing.T, items ...quotations.ItemRequest) quotations.Quotation {
	t.Helper()
	q, err := f.svc.Create(context.Background(), sales, quotations.CreateQuotationRequest{CustomerID: 5, WarehouseID: f.wh, Items: items})
	require.NoError(t, err)
	return q
}

func line(productID, qty int64, price string) quotations.ItemRequest {
	return quotations.ItemRequest{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func TestCreatePricesAndNumbers(t *testing.T) {
	f := newFixture(t)
	item := line(1, 2, "100")
	item.DiscountPercent = decimal.NewFromInt(10)
	item.TaxPercent = decimal.NewFromInt(11)

	q := f.create(t, item)
	assert.Equal(t, "QUO-001/WH1/03-2025", q.Number)
	assert.Equal(t, quotations.StatusDraft, q.Status)
	assert.Equal(t, "180.00", q.Subtotal.StringFixed(2))
	assert.Equal(t, "20.00", q.DiscountTotal.StringFixed(2))
	assert.Equal(t, "19.80", q.TaxTotal.StringFixed(2))
	assert.Equal(t, "199.80", q.Total.StringFixed(2))

	second := f.create(t, line(1, 1, "5"))
	assert.Equal(t, "QUO-002/WH1/03-2025", second.Number)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	bad := line(0, 0, "-1")
	_, err := f.svc.Create(context.Background(), sales, quotations.CreateQuotationRequest{Items: []quotations.ItemRequest{bad}})
	require.ErrorIs(t, err, shared.ErrValidation)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "customer_id")
	assert.Contains(t, err.Error(), "items.0.unit_price")
}

func TestSubmitNeedsItems(t *testing.T) {
	f := newFixture(t)
	q := f.create(t)
	_, err := f.svc.Submit(context.Background(), sales, q.ID)
	require.ErrorIs(t, err, quotations.ErrNoItems)
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t, line(1, 1, "10"))

	q, err := f.svc.Submit(ctx, sales, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotations.StatusSubmitted, q.Status)
	require.Len(t, f.notes.ToRole(shared.RoleApprover), 1)

	_, err = f.svc.Submit(ctx, sales, q.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.svc.Update(ctx, sales, q.ID, quotations.UpdateQuotationRequest{Items: []quotations.ItemRequest{line(1, 3, "10")}})
	require.ErrorIs(t, err, quotations.ErrNotEditable)

	q, err = f.svc.Approve(ctx, approver, q.ID, "fine")
	require.NoError(t, err)
	assert.Equal(t, quotations.StatusApproved, q.Status)

	sent := f.notes.Sent()
	last := sent[len(sent)-1]
	assert.Equal(t, sales.UserID, last.UserID)
	assert.Equal(t, shared.SeveritySuccess, last.Severity)

	history, err := f.svc.Approvals(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, approvals.StatusApproved, history[0].Status)
	require.NotNil(t, history[0].ApproverID)
	assert.Equal(t, approver.UserID, *history[0].ApproverID)
	assert.Equal(t, "fine", history[0].Notes)
}

func TestApproveWithoutPendingApproval(t *testing.T) {
	f := newFixture(t)
	q := f.create(t, line(1, 1, "10"))
	_, err := f.svc.Approve(context.Background(), approver, q.ID, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	got, err := f.svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotations.StatusDraft, got.Status)
}

func TestDecidedApprovalCannotBeDecidedAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t, line(1, 1, "10"))
	_, err := f.svc.Submit(ctx, sales, q.ID)
	require.NoError(t, err)
	q, err = f.svc.Approve(ctx, approver, q.ID, "fine")
	require.NoError(t, err)

	sent := len(f.notes.Sent())
	logged := len(f.db.Activities(q.Ref()))

	_, err = f.svc.Approve(ctx, approver, q.ID, "again")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Reject(ctx, approver, q.ID, "changed my mind")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	assert.Len(t, f.notes.Sent(), sent)
	assert.Len(t, f.db.Activities(q.Ref()), logged)
	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotations.StatusApproved, got.Status)

	history, err := f.svc.Approvals(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, approvals.StatusApproved, history[0].Status)
	assert.Equal(t, "fine", history[0].Notes)
}

func TestRejectReviseResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t, line(1, 1, "10"))
	_, err := f.svc.Submit(ctx, sales, q.ID)
	require.NoError(t, err)
	q, err = f.svc.Reject(ctx, approver, q.ID, "too cheap")
	require.NoError(t, err)
	assert.Equal(t, quotations.StatusRejected, q.Status)

	q, err = f.svc.Revise(ctx, sales, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotations.StatusDraft, q.Status)

	notes := "repriced"
	q, err = f.svc.Update(ctx, sales, q.ID, quotations.UpdateQuotationRequest{Notes: &notes, Items: []quotations.ItemRequest{line(1, 1, "15")}})
	require.NoError(t, err)
	assert.Equal(t, "15.00", q.Total.StringFixed(2))

	_, err = f.svc.Submit(ctx, sales, q.ID)
	require.NoError(t, err)
	history, err := f.svc.Approvals(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, approvals.StatusPending, history[0].Status)
	assert.Equal(t, approvals.StatusRejected, history[1].Status)
}

func TestConvertReservesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.SetStock(1, f.wh, 10, 0)
	q := f.create(t, line(1, 4, "25"))
	_, err := f.svc.Submit(ctx, sales, q.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, approver, q.ID, "")
	require.NoError(t, err)

	so, err := f.svc.Convert(ctx, sales, q.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, so.Status)
	require.NotNil(t, so.QuotationID)
	assert.Equal(t, q.ID, *so.QuotationID)
	assert.Equal(t, "SO-001/WH1/03-2025", so.Number)
	assert.Equal(t, "100.00", so.Total.StringFixed(2))
	assert.Equal(t, int64(4), f.db.Stock(1, f.wh).ReservedQuantity)

	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotations.StatusConverted, got.Status)
	require.NotNil(t, got.SalesOrderID)
	assert.Equal(t, so.ID, *got.SalesOrderID)

	_, err = f.svc.Convert(ctx, sales, q.ID)
	require.ErrorIs(t, err, quotations.ErrAlreadyConverted)
	assert.Equal(t, int64(4), f.db.Stock(1, f.wh).ReservedQuantity)
}

func TestConvertShortStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.SetStock(1, f.wh, 10, 0)
	f.db.SetStock(2, f.wh, 1, 0)
	q := f.create(t, line(1, 4, "25"), line(2, 3, "5"))
	_, err := f.svc.Submit(ctx, sales, q.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, approver, q.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Convert(ctx, sales, q.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient stock")

	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotations.StatusApproved, got.Status)
	assert.Nil(t, got.SalesOrderID)
	assert.Equal(t, int64(0), f.db.Stock(1, f.wh).ReservedQuantity)
	assert.Empty(t, f.db.Movements())

	f.db.SetStock(2, f.wh, 5, 0)
	so, err := f.svc.Convert(ctx, sales, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "SO-001/WH1/03-2025", so.Number)
}

func TestConvertRequiresApproval(t *testing.T) {
	f := newFixture(t)
	q := f.create(t, line(1, 1, "1"))
	_, err := f.svc.Convert(context.Background(), sales, q.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestDeleteDraftOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.create(t, line(1, 1, "1"))
	require.NoError(t, f.svc.Delete(ctx, sales, draft.ID))
	_, err := f.svc.Get(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	submitted := f.create(t, line(1, 1, "1"))
	_, err = f.svc.Submit(ctx, sales, submitted.ID)
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.Delete(ctx, sales, submitted.ID), quotations.ErrNotEditable)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, line(1, 1, "1"))
	second := f.create(t, line(1, 1, "1"))
	_, err := f.svc.Submit(ctx, sales, second.ID)
	require.NoError(t, err)

	all, total, err := f.svc.List(ctx, quotations.ListFilter{CustomerID: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, second.ID, all[0].ID)

	drafts, total, err := f.svc.List(ctx, quotations.ListFilter{Status: quotations.StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.ID, drafts[0].ID)
}
