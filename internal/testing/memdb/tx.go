package memdb

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/approvals"
	"github.com/odyssey-erp/odyssey-distribution/internal/billing"
	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/returns"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/transfer"
)

// ---- inventory ----

func (t *Tx) LockProductStocks(_ context.Context, productID int64) ([]inventory.ProductStock, error) {
	s, unlock, err := t.lock("LockProductStocks")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []inventory.ProductStock
	for _, st := range s.stocks {
		if st.ProductID == productID {
			out = append(out, st)
		}
	}
	slices.SortFunc(out, func(a, b inventory.ProductStock) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *Tx) LockStock(_ context.Context, productID, warehouseID int64) (inventory.ProductStock, error) {
	s, unlock, err := t.lock("LockStock")
	if err != nil {
		return inventory.ProductStock{}, err
	}
	defer unlock()
	if st, ok := findStock(s, productID, warehouseID); ok {
		return st, nil
	}
	return inventory.ProductStock{}, fmt.Errorf("product %d warehouse %d: %w", productID, warehouseID, inventory.ErrStockNotFound)
}

func (t *Tx) EnsureStock(_ context.Context, productID, warehouseID int64) (inventory.ProductStock, error) {
	s, unlock, err := t.lock("EnsureStock")
	if err != nil {
		return inventory.ProductStock{}, err
	}
	defer unlock()
	if st, ok := findStock(s, productID, warehouseID); ok {
		return st, nil
	}
	st := inventory.ProductStock{ID: s.id("stocks"), ProductID: productID, WarehouseID: warehouseID, UpdatedAt: time.Now()}
	s.stocks[st.ID] = st
	return st, nil
}

func (t *Tx) TryReserve(_ context.Context, stockID, qty int64) (inventory.ProductStock, bool, error) {
	s, unlock, err := t.lock("TryReserve")
	if err != nil {
		return inventory.ProductStock{}, false, err
	}
	defer unlock()
	st, ok := s.stocks[stockID]
	if !ok || st.Quantity-st.ReservedQuantity < qty {
		return inventory.ProductStock{}, false, nil
	}
	st.ReservedQuantity += qty
	st.UpdatedAt = time.Now()
	s.stocks[stockID] = st
	return st, true, nil
}

func (t *Tx) ApplyChange(_ context.Context, stockID, quantityDelta, reservedDelta int64) (inventory.ProductStock, bool, error) {
	s, unlock, err := t.lock("ApplyChange")
	if err != nil {
		return inventory.ProductStock{}, false, err
	}
	defer unlock()
	st, ok := s.stocks[stockID]
	if !ok {
		return inventory.ProductStock{}, false, nil
	}
	q, r := st.Quantity+quantityDelta, st.ReservedQuantity+reservedDelta
	if q < 0 || r < 0 || r > q {
		return inventory.ProductStock{}, false, nil
	}
	st.Quantity, st.ReservedQuantity = q, r
	st.UpdatedAt = time.Now()
	s.stocks[stockID] = st
	return st, true, nil
}

func (t *Tx) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	s, unlock, err := t.lock("InsertMovement")
	if err != nil {
		return inventory.Movement{}, err
	}
	defer unlock()
	m.ID = s.id("movements")
	s.movements = append(s.movements, m)
	return m, nil
}

func findStock(s *state, productID, warehouseID int64) (inventory.ProductStock, bool) {
	for _, st := range s.stocks {
		if st.ProductID == productID && st.WarehouseID == warehouseID {
			return st, true
		}
	}
	return inventory.ProductStock{}, false
}

// ---- docnumber ----

func (t *Tx) Increment(_ context.Context, docType docnumber.DocType, warehouseID int64, period string) (int64, error) {
	s, unlock, err := t.lock("Increment")
	if err != nil {
		return 0, err
	}
	defer unlock()
	key := fmt.Sprintf("%s|%d|%s", docType, warehouseID, period)
	s.counters[key]++
	return s.counters[key], nil
}

func (t *Tx) WarehouseCode(_ context.Context, warehouseID int64) (string, error) {
	s, unlock, err := t.lock("WarehouseCode")
	if err != nil {
		return "", err
	}
	defer unlock()
	code, ok := s.warehouses[warehouseID]
	if !ok {
		return "", fmt.Errorf("warehouse %d: %w", warehouseID, shared.ErrNotFound)
	}
	return code, nil
}

// ---- activity ----

func (t *Tx) InsertActivity(_ context.Context, a shared.Activity) error {
	s, unlock, err := t.lock("InsertActivity")
	if err != nil {
		return err
	}
	defer unlock()
	a.ID = s.id("activities")
	s.activities = append(s.activities, a)
	return nil
}

// ---- approvals ----

func (t *Tx) InsertApproval(_ context.Context, a approvals.Approval) (int64, error) {
	s, unlock, err := t.lock("InsertApproval")
	if err != nil {
		return 0, err
	}
	defer unlock()
	for _, existing := range s.approvals {
		if existing.Subject == a.Subject && existing.Status == approvals.StatusPending {
			return 0, approvals.ErrPendingExists
		}
	}
	a.ID = s.id("approvals")
	s.approvals[a.ID] = a
	return a.ID, nil
}

func (t *Tx) PendingApproval(_ context.Context, subject shared.Ref) (approvals.Approval, error) {
	s, unlock, err := t.lock("PendingApproval")
	if err != nil {
		return approvals.Approval{}, err
	}
	defer unlock()
	for _, a := range s.approvals {
		if a.Subject == subject && a.Status == approvals.StatusPending {
			return a, nil
		}
	}
	return approvals.Approval{}, approvals.ErrApprovalNotFound
}

func (t *Tx) UpdateApproval(_ context.Context, a approvals.Approval) error {
	s, unlock, err := t.lock("UpdateApproval")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.approvals[a.ID]; !ok {
		return approvals.ErrApprovalNotFound
	}
	s.approvals[a.ID] = a
	return nil
}

// ---- quotations ----

func (t *Tx) InsertQuotation(_ context.Context, q quotations.Quotation) (quotations.Quotation, error) {
	s, unlock, err := t.lock("InsertQuotation")
	if err != nil {
		return quotations.Quotation{}, err
	}
	defer unlock()
	q.ID = s.id("quotations")
	q.Items = slices.Clone(q.Items)
	for i := range q.Items {
		q.Items[i].ID = s.id("quotation_items")
		q.Items[i].QuotationID = q.ID
	}
	s.quotations[q.ID] = cloneQuotation(q)
	return q, nil
}

func (t *Tx) GetQuotationForUpdate(_ context.Context, id int64) (quotations.Quotation, error) {
	s, unlock, err := t.lock("GetQuotationForUpdate")
	if err != nil {
		return quotations.Quotation{}, err
	}
	defer unlock()
	q, ok := s.quotations[id]
	if !ok {
		return quotations.Quotation{}, quotations.ErrQuotationNotFound
	}
	return cloneQuotation(q), nil
}

func (t *Tx) UpdateQuotation(_ context.Context, q quotations.Quotation) (quotations.Quotation, error) {
	s, unlock, err := t.lock("UpdateQuotation")
	if err != nil {
		return quotations.Quotation{}, err
	}
	defer unlock()
	stored, ok := s.quotations[q.ID]
	if !ok {
		return quotations.Quotation{}, quotations.ErrQuotationNotFound
	}
	stored.ValidUntil, stored.Notes, stored.Totals, stored.UpdatedAt = q.ValidUntil, q.Notes, q.Totals, q.UpdatedAt
	q.Items = slices.Clone(q.Items)
	for i := range q.Items {
		q.Items[i].ID = s.id("quotation_items")
		q.Items[i].QuotationID = q.ID
	}
	stored.Items = q.Items
	s.quotations[q.ID] = cloneQuotation(stored)
	return q, nil
}

func (t *Tx) UpdateQuotationStatus(_ context.Context, id int64, status quotations.Status, at time.Time) error {
	s, unlock, err := t.lock("UpdateQuotationStatus")
	if err != nil {
		return err
	}
	defer unlock()
	q, ok := s.quotations[id]
	if !ok {
		return quotations.ErrQuotationNotFound
	}
	q.Status, q.UpdatedAt = status, at
	s.quotations[id] = q
	return nil
}

func (t *Tx) SetQuotationSalesOrder(_ context.Context, id, salesOrderID int64, at time.Time) error {
	s, unlock, err := t.lock("SetQuotationSalesOrder")
	if err != nil {
		return err
	}
	defer unlock()
	q, ok := s.quotations[id]
	if !ok {
		return quotations.ErrQuotationNotFound
	}
	if q.SalesOrderID != nil {
		return quotations.ErrAlreadyConverted
	}
	q.SalesOrderID, q.UpdatedAt = &salesOrderID, at
	s.quotations[id] = q
	return nil
}

func (t *Tx) DeleteQuotation(_ context.Context, id int64) error {
	s, unlock, err := t.lock("DeleteQuotation")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.quotations[id]; !ok {
		return quotations.ErrQuotationNotFound
	}
	delete(s.quotations, id)
	return nil
}

// ---- sales orders ----

func (t *Tx) InsertSalesOrder(_ context.Context, so orders.SalesOrder) (orders.SalesOrder, error) {
	s, unlock, err := t.lock("InsertSalesOrder")
	if err != nil {
		return orders.SalesOrder{}, err
	}
	defer unlock()
	if so.QuotationID != nil {
		for _, existing := range s.orders {
			if existing.QuotationID != nil && *existing.QuotationID == *so.QuotationID {
				return orders.SalesOrder{}, fmt.Errorf("%w: quotation already has a sales order", shared.ErrBusinessRule)
			}
		}
	}
	so.ID = s.id("sales_orders")
	so.Items = slices.Clone(so.Items)
	for i := range so.Items {
		so.Items[i].ID = s.id("sales_order_items")
		so.Items[i].SalesOrderID = so.ID
	}
	s.orders[so.ID] = cloneOrder(so)
	return so, nil
}

func (t *Tx) GetSalesOrderForUpdate(_ context.Context, id int64) (orders.SalesOrder, error) {
	s, unlock, err := t.lock("GetSalesOrderForUpdate")
	if err != nil {
		return orders.SalesOrder{}, err
	}
	defer unlock()
	so, ok := s.orders[id]
	if !ok {
		return orders.SalesOrder{}, orders.ErrOrderNotFound
	}
	return cloneOrder(so), nil
}

func (t *Tx) UpdateSalesOrderStatus(_ context.Context, id int64, status orders.Status, notes string, at time.Time) error {
	s, unlock, err := t.lock("UpdateSalesOrderStatus")
	if err != nil {
		return err
	}
	defer unlock()
	so, ok := s.orders[id]
	if !ok {
		return orders.ErrOrderNotFound
	}
	so.Status, so.Notes, so.UpdatedAt = status, notes, at
	s.orders[id] = so
	return nil
}

func (t *Tx) UpdateAllocations(_ context.Context, itemID int64, allocations []inventory.Allocation) error {
	s, unlock, err := t.lock("UpdateAllocations")
	if err != nil {
		return err
	}
	defer unlock()
	for id, so := range s.orders {
		for i, it := range so.Items {
			if it.ID != itemID {
				continue
			}
			so = cloneOrder(so)
			so.Items[i].Allocations = slices.Clone(allocations)
			s.orders[id] = so
			return nil
		}
	}
	return fmt.Errorf("sales order item %d: %w", itemID, shared.ErrNotFound)
}

func (t *Tx) CancelOpenPickingLists(_ context.Context, salesOrderID int64, at time.Time) error {
	s, unlock, err := t.lock("CancelOpenPickingLists")
	if err != nil {
		return err
	}
	defer unlock()
	for id, pl := range s.picking {
		if pl.SalesOrderID == nil || *pl.SalesOrderID != salesOrderID || !openList(pl.Status) {
			continue
		}
		pl.Status, pl.UpdatedAt = picking.StatusCancelled, at
		s.picking[id] = pl
	}
	return nil
}

func (t *Tx) CancelOpenDeliveryOrders(_ context.Context, salesOrderID int64, at time.Time) error {
	s, unlock, err := t.lock("CancelOpenDeliveryOrders")
	if err != nil {
		return err
	}
	defer unlock()
	source := shared.NewRef(shared.RefSalesOrder, salesOrderID)
	for id, do := range s.deliveries {
		if do.Source != source || (do.Status != delivery.StatusPreparing && do.Status != delivery.StatusReady) {
			continue
		}
		do.Status, do.UpdatedAt = delivery.StatusCancelled, at
		s.deliveries[id] = do
	}
	return nil
}

// ---- picking ----

func openList(st picking.Status) bool {
	return st != picking.StatusCompleted && st != picking.StatusCancelled
}

func (t *Tx) InsertPickingList(_ context.Context, pl picking.PickingList) (picking.PickingList, error) {
	s, unlock, err := t.lock("InsertPickingList")
	if err != nil {
		return picking.PickingList{}, err
	}
	defer unlock()
	if pl.SalesOrderID != nil {
		for _, existing := range s.picking {
			if existing.SalesOrderID != nil && *existing.SalesOrderID == *pl.SalesOrderID && openList(existing.Status) {
				return picking.PickingList{}, picking.ErrDuplicateList
			}
		}
	}
	pl.ID = s.id("picking_lists")
	pl.Items = slices.Clone(pl.Items)
	for i := range pl.Items {
		pl.Items[i].ID = s.id("picking_list_items")
		pl.Items[i].PickingListID = pl.ID
	}
	s.picking[pl.ID] = clonePicking(pl)
	return pl, nil
}

func (t *Tx) GetPickingListForUpdate(_ context.Context, id int64) (picking.PickingList, error) {
	s, unlock, err := t.lock("GetPickingListForUpdate")
	if err != nil {
		return picking.PickingList{}, err
	}
	defer unlock()
	pl, ok := s.picking[id]
	if !ok {
		return picking.PickingList{}, picking.ErrPickingListNotFound
	}
	return clonePicking(pl), nil
}

func (t *Tx) HasOpenPickingList(_ context.Context, salesOrderID int64) (bool, error) {
	s, unlock, err := t.lock("HasOpenPickingList")
	if err != nil {
		return false, err
	}
	defer unlock()
	for _, pl := range s.picking {
		if pl.SalesOrderID != nil && *pl.SalesOrderID == salesOrderID && openList(pl.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) SavePickingList(_ context.Context, pl picking.PickingList) error {
	s, unlock, err := t.lock("SavePickingList")
	if err != nil {
		return err
	}
	defer unlock()
	stored, ok := s.picking[pl.ID]
	if !ok {
		return picking.ErrPickingListNotFound
	}
	stored = clonePicking(stored)
	stored.Status, stored.UpdatedAt = pl.Status, pl.UpdatedAt
	for _, it := range pl.Items {
		for i := range stored.Items {
			if stored.Items[i].ID == it.ID {
				stored.Items[i].QuantityPicked, stored.Items[i].Status = it.QuantityPicked, it.Status
			}
		}
	}
	s.picking[pl.ID] = stored
	return nil
}

func (t *Tx) DeletePickingList(_ context.Context, id int64) error {
	s, unlock, err := t.lock("DeletePickingList")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.picking[id]; !ok {
		return picking.ErrPickingListNotFound
	}
	delete(s.picking, id)
	return nil
}

// ---- delivery ----

func (t *Tx) InsertDeliveryOrder(_ context.Context, do delivery.DeliveryOrder) (delivery.DeliveryOrder, error) {
	s, unlock, err := t.lock("InsertDeliveryOrder")
	if err != nil {
		return delivery.DeliveryOrder{}, err
	}
	defer unlock()
	do.ID = s.id("delivery_orders")
	do.Items = slices.Clone(do.Items)
	for i := range do.Items {
		do.Items[i].ID = s.id("delivery_order_items")
		do.Items[i].DeliveryOrderID = do.ID
	}
	s.deliveries[do.ID] = cloneDelivery(do)
	return do, nil
}

func (t *Tx) GetDeliveryOrderForUpdate(_ context.Context, id int64) (delivery.DeliveryOrder, error) {
	s, unlock, err := t.lock("GetDeliveryOrderForUpdate")
	if err != nil {
		return delivery.DeliveryOrder{}, err
	}
	defer unlock()
	do, ok := s.deliveries[id]
	if !ok {
		return delivery.DeliveryOrder{}, delivery.ErrDeliveryOrderNotFound
	}
	return cloneDelivery(do), nil
}

func (t *Tx) HasActiveDeliveryOrder(_ context.Context, source shared.Ref) (bool, error) {
	s, unlock, err := t.lock("HasActiveDeliveryOrder")
	if err != nil {
		return false, err
	}
	defer unlock()
	for _, do := range s.deliveries {
		if do.Source == source && do.Status != delivery.StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) HasDeliveredOrder(_ context.Context, salesOrderID int64) (bool, error) {
	s, unlock, err := t.lock("HasDeliveredOrder")
	if err != nil {
		return false, err
	}
	defer unlock()
	src := shared.NewRef(shared.RefSalesOrder, salesOrderID)
	for _, do := range s.deliveries {
		if do.Source == src && do.Status == delivery.StatusDelivered {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) SaveDeliveryOrder(_ context.Context, do delivery.DeliveryOrder) error {
	s, unlock, err := t.lock("SaveDeliveryOrder")
	if err != nil {
		return err
	}
	defer unlock()
	stored, ok := s.deliveries[do.ID]
	if !ok {
		return delivery.ErrDeliveryOrderNotFound
	}
	stored = cloneDelivery(stored)
	stored.Status, stored.ShippedAt, stored.DeliveredAt, stored.UpdatedAt = do.Status, do.ShippedAt, do.DeliveredAt, do.UpdatedAt
	for _, it := range do.Items {
		for i := range stored.Items {
			if stored.Items[i].ID == it.ID {
				stored.Items[i].QuantityDelivered, stored.Items[i].Status = it.QuantityDelivered, it.Status
			}
		}
	}
	s.deliveries[do.ID] = stored
	return nil
}

func (t *Tx) OrderInvoiced(_ context.Context, salesOrderID int64) (bool, error) {
	s, unlock, err := t.lock("OrderInvoiced")
	if err != nil {
		return false, err
	}
	defer unlock()
	for _, inv := range s.invoices {
		if inv.SalesOrderID == salesOrderID {
			return true, nil
		}
	}
	return false, nil
}

// ---- billing ----

func (t *Tx) InsertInvoice(_ context.Context, inv billing.Invoice) (billing.Invoice, error) {
	s, unlock, err := t.lock("InsertInvoice")
	if err != nil {
		return billing.Invoice{}, err
	}
	defer unlock()
	for _, existing := range s.invoices {
		if existing.SalesOrderID == inv.SalesOrderID {
			return billing.Invoice{}, billing.ErrInvoiceExists
		}
	}
	inv.ID = s.id("invoices")
	inv.AmountPaid = decimal.Zero
	inv.Items = slices.Clone(inv.Items)
	for i := range inv.Items {
		inv.Items[i].ID = s.id("invoice_items")
		inv.Items[i].InvoiceID = inv.ID
	}
	s.invoices[inv.ID] = cloneInvoice(inv)
	return inv, nil
}

func (t *Tx) GetInvoiceForUpdate(_ context.Context, id int64) (billing.Invoice, error) {
	s, unlock, err := t.lock("GetInvoiceForUpdate")
	if err != nil {
		return billing.Invoice{}, err
	}
	defer unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (t *Tx) UpdateInvoiceStatus(_ context.Context, id int64, status billing.InvoiceStatus, at time.Time) error {
	s, unlock, err := t.lock("UpdateInvoiceStatus")
	if err != nil {
		return err
	}
	defer unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	inv.Status, inv.UpdatedAt = status, at
	s.invoices[id] = inv
	return nil
}

func (t *Tx) PaidAmount(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	s, unlock, err := t.lock("PaidAmount")
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()
	return paidAmount(s, invoiceID), nil
}

func paidAmount(s *state, invoiceID int64) decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			total = total.Add(p.Amount)
		}
	}
	return total
}

func (t *Tx) OverdueCandidates(_ context.Context, day time.Time) ([]int64, error) {
	s, unlock, err := t.lock("OverdueCandidates")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var ids []int64
	for id, inv := range s.invoices {
		if (inv.Status == billing.InvoiceUnpaid || inv.Status == billing.InvoicePartial) && inv.DueDate.Before(day) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *Tx) InsertPayment(_ context.Context, p billing.Payment) (billing.Payment, error) {
	s, unlock, err := t.lock("InsertPayment")
	if err != nil {
		return billing.Payment{}, err
	}
	defer unlock()
	if p.CreditNoteID != nil {
		for _, existing := range s.payments {
			if existing.CreditNoteID != nil && *existing.CreditNoteID == *p.CreditNoteID {
				return billing.Payment{}, billing.ErrCreditNoteUnavailable
			}
		}
	}
	p.ID = s.id("payments")
	s.payments[p.ID] = p
	return p, nil
}

func (t *Tx) GetPaymentForUpdate(_ context.Context, id int64) (billing.Payment, error) {
	s, unlock, err := t.lock("GetPaymentForUpdate")
	if err != nil {
		return billing.Payment{}, err
	}
	defer unlock()
	p, ok := s.payments[id]
	if !ok {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return p, nil
}

func (t *Tx) UpdatePayment(_ context.Context, p billing.Payment) error {
	s, unlock, err := t.lock("UpdatePayment")
	if err != nil {
		return err
	}
	defer unlock()
	stored, ok := s.payments[p.ID]
	if !ok {
		return billing.ErrPaymentNotFound
	}
	stored.Amount, stored.Reference, stored.PaidAt = p.Amount, p.Reference, p.PaidAt
	s.payments[p.ID] = stored
	return nil
}

func (t *Tx) DeletePayment(_ context.Context, id int64) error {
	s, unlock, err := t.lock("DeletePayment")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.payments[id]; !ok {
		return billing.ErrPaymentNotFound
	}
	delete(s.payments, id)
	return nil
}

func (t *Tx) InsertCreditNote(_ context.Context, cn billing.CreditNote) (billing.CreditNote, error) {
	s, unlock, err := t.lock("InsertCreditNote")
	if err != nil {
		return billing.CreditNote{}, err
	}
	defer unlock()
	cn.ID = s.id("credit_notes")
	s.credits[cn.ID] = cn
	return cn, nil
}

func (t *Tx) GetCreditNoteForUpdate(_ context.Context, id int64) (billing.CreditNote, error) {
	s, unlock, err := t.lock("GetCreditNoteForUpdate")
	if err != nil {
		return billing.CreditNote{}, err
	}
	defer unlock()
	cn, ok := s.credits[id]
	if !ok {
		return billing.CreditNote{}, billing.ErrCreditNoteNotFound
	}
	return cn, nil
}

func (t *Tx) UpdateCreditNoteStatus(_ context.Context, id int64, status billing.CreditNoteStatus, at time.Time) error {
	s, unlock, err := t.lock("UpdateCreditNoteStatus")
	if err != nil {
		return err
	}
	defer unlock()
	cn, ok := s.credits[id]
	if !ok {
		return billing.ErrCreditNoteNotFound
	}
	cn.Status, cn.UpdatedAt = status, at
	s.credits[id] = cn
	return nil
}

// ---- returns ----

func (t *Tx) InsertSalesReturn(_ context.Context, sr returns.SalesReturn) (returns.SalesReturn, error) {
	s, unlock, err := t.lock("InsertSalesReturn")
	if err != nil {
		return returns.SalesReturn{}, err
	}
	defer unlock()
	sr.ID = s.id("sales_returns")
	sr.Items = slices.Clone(sr.Items)
	for i := range sr.Items {
		sr.Items[i].ID = s.id("sales_return_items")
		sr.Items[i].SalesReturnID = sr.ID
	}
	s.returns[sr.ID] = cloneReturn(sr)
	return sr, nil
}

func (t *Tx) GetSalesReturnForUpdate(_ context.Context, id int64) (returns.SalesReturn, error) {
	s, unlock, err := t.lock("GetSalesReturnForUpdate")
	if err != nil {
		return returns.SalesReturn{}, err
	}
	defer unlock()
	sr, ok := s.returns[id]
	if !ok {
		return returns.SalesReturn{}, returns.ErrSalesReturnNotFound
	}
	return cloneReturn(sr), nil
}

func (t *Tx) UpdateSalesReturnStatus(_ context.Context, id int64, status returns.Status, at time.Time) error {
	s, unlock, err := t.lock("UpdateSalesReturnStatus")
	if err != nil {
		return err
	}
	defer unlock()
	sr, ok := s.returns[id]
	if !ok {
		return returns.ErrSalesReturnNotFound
	}
	sr.Status, sr.UpdatedAt = status, at
	s.returns[id] = sr
	return nil
}

func (t *Tx) SetSalesReturnCreditNote(_ context.Context, id, creditNoteID int64, at time.Time) error {
	s, unlock, err := t.lock("SetSalesReturnCreditNote")
	if err != nil {
		return err
	}
	defer unlock()
	sr, ok := s.returns[id]
	if !ok {
		return returns.ErrSalesReturnNotFound
	}
	sr.CreditNoteID, sr.UpdatedAt = &creditNoteID, at
	s.returns[id] = sr
	return nil
}

func (t *Tx) ReturnedQuantities(_ context.Context, invoiceID int64) (map[int64]int64, error) {
	s, unlock, err := t.lock("ReturnedQuantities")
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := map[int64]int64{}
	for _, sr := range s.returns {
		if sr.InvoiceID != invoiceID || sr.Status == returns.StatusCancelled {
			continue
		}
		for _, it := range sr.Items {
			out[it.ProductID] += it.Quantity
		}
	}
	return out, nil
}

// ---- transfers ----

func (t *Tx) InsertTransfer(_ context.Context, tr transfer.Transfer) (transfer.Transfer, error) {
	s, unlock, err := t.lock("InsertTransfer")
	if err != nil {
		return transfer.Transfer{}, err
	}
	defer unlock()
	if tr.FromWarehouseID == tr.ToWarehouseID {
		return transfer.Transfer{}, transfer.ErrSameWarehouse
	}
	tr.ID = s.id("warehouse_transfers")
	s.transfers[tr.ID] = tr
	return tr, nil
}

func (t *Tx) GetTransferForUpdate(_ context.Context, id int64) (transfer.Transfer, error) {
	s, unlock, err := t.lock("GetTransferForUpdate")
	if err != nil {
		return transfer.Transfer{}, err
	}
	defer unlock()
	tr, ok := s.transfers[id]
	if !ok {
		return transfer.Transfer{}, transfer.ErrTransferNotFound
	}
	return tr, nil
}

func (t *Tx) SaveTransfer(_ context.Context, tr transfer.Transfer) error {
	s, unlock, err := t.lock("SaveTransfer")
	if err != nil {
		return err
	}
	defer unlock()
	stored, ok := s.transfers[tr.ID]
	if !ok {
		return transfer.ErrTransferNotFound
	}
	stored.Status, stored.PickingListID, stored.DeliveryOrderID = tr.Status, tr.PickingListID, tr.DeliveryOrderID
	stored.Notes, stored.UpdatedAt = tr.Notes, tr.UpdatedAt
	s.transfers[tr.ID] = stored
	return nil
}

// ---- clones ----

func cloneQuotation(q quotations.Quotation) quotations.Quotation {
	q.Items = slices.Clone(q.Items)
	return q
}

func cloneOrder(so orders.SalesOrder) orders.SalesOrder {
	so.Items = slices.Clone(so.Items)
	for i := range so.Items {
		so.Items[i].Allocations = slices.Clone(so.Items[i].Allocations)
	}
	return so
}

func clonePicking(pl picking.PickingList) picking.PickingList {
	pl.Items = slices.Clone(pl.Items)
	return pl
}

func cloneDelivery(do delivery.DeliveryOrder) delivery.DeliveryOrder {
	do.Items = slices.Clone(do.Items)
	return do
}

func cloneInvoice(inv billing.Invoice) billing.Invoice {
	inv.Items = slices.Clone(inv.Items)
	return inv
}

func cloneReturn(sr returns.SalesReturn) returns.SalesReturn {
	sr.Items = slices.Clone(sr.Items)
	return sr
}

