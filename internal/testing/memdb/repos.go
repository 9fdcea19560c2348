package memdb

import (
	"cmp"
	"context"
	"slices"

	"github.com/odyssey-erp/odyssey-distribution/internal/approvals"
	"github.com/odyssey-erp/odyssey-distribution/internal/billing"
	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/returns"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/transfer"
)

// window applies a listing page and returns the slice plus the unpaged total.
func window[T any](rows []T, page shared.Page) ([]T, int) {
	total := len(rows)
	start := min(page.Offset(), total)
	end := min(start+page.Limit(), total)
	return rows[start:end], total
}

// newestFirst orders rows by created_at desc, id desc.
func newestFirst[T any](rows []T, key func(T) (int64, int64)) {
	slices.SortFunc(rows, func(a, b T) int {
		at, aid := key(a)
		bt, bid := key(b)
		if c := cmp.Compare(bt, at); c != 0 {
			return c
		}
		return cmp.Compare(bid, aid)
	})
}

func (r *InventoryRepo) ListStock(_ context.Context, filter inventory.StockFilter) ([]inventory.ProductStock, int, error) {
	var out []inventory.ProductStock
	r.db.read(func(s *state) {
		for _, st := range s.stocks {
			if (filter.ProductID == 0 || st.ProductID == filter.ProductID) && (filter.WarehouseID == 0 || st.WarehouseID == filter.WarehouseID) {
				out = append(out, st)
			}
		}
	})
	slices.SortFunc(out, func(a, b inventory.ProductStock) int {
		if c := cmp.Compare(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		return cmp.Compare(a.WarehouseID, b.WarehouseID)
	})
	out, total := window(out, filter.Page)
	return out, total, nil
}

func (r *InventoryRepo) GetStock(_ context.Context, productID, warehouseID int64) (inventory.ProductStock, error) {
	var (
		st inventory.ProductStock
		ok bool
	)
	r.db.read(func(s *state) { st, ok = findStock(s, productID, warehouseID) })
	if !ok {
		return inventory.ProductStock{}, inventory.ErrStockNotFound
	}
	return st, nil
}

func (r *InventoryRepo) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	r.db.read(func(s *state) {
		for _, m := range s.movements {
			switch {
			case filter.ProductID > 0 && m.ProductID != filter.ProductID,
				filter.WarehouseID > 0 && m.WarehouseID != filter.WarehouseID,
				!filter.Reference.IsZero() && m.Reference != filter.Reference,
				!filter.From.IsZero() && m.CreatedAt.Before(filter.From),
				!filter.To.IsZero() && m.CreatedAt.After(filter.To):
				continue
			}
			out = append(out, m)
		}
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListApprovals implements approvals.Lister.
func (d *DB) ListApprovals(_ context.Context, filter approvals.ListFilter) ([]approvals.Approval, error) {
	var out []approvals.Approval
	d.read(func(s *state) {
		for _, a := range s.approvals {
			if (filter.Subject.IsZero() || a.Subject == filter.Subject) && (filter.Status == "" || a.Status == filter.Status) {
				out = append(out, a)
			}
		}
	})
	newestFirst(out, func(a approvals.Approval) (int64, int64) { return a.RequestedAt.UnixNano(), a.ID })
	return out, nil
}

func (r *QuotationRepo) GetQuotation(_ context.Context, id int64) (quotations.Quotation, error) {
	var (
		q  quotations.Quotation
		ok bool
	)
	r.db.read(func(s *state) { q, ok = s.quotations[id] })
	if !ok {
		return quotations.Quotation{}, quotations.ErrQuotationNotFound
	}
	return cloneQuotation(q), nil
}

func (r *QuotationRepo) ListQuotations(_ context.Context, filter quotations.ListFilter) ([]quotations.Quotation, int, error) {
	var out []quotations.Quotation
	r.db.read(func(s *state) {
		for _, q := range s.quotations {
			if (filter.CustomerID == 0 || q.CustomerID == filter.CustomerID) && (filter.Status == "" || q.Status == filter.Status) {
				out = append(out, cloneQuotation(q))
			}
		}
	})
	newestFirst(out, func(q quotations.Quotation) (int64, int64) { return q.CreatedAt.UnixNano(), q.ID })
	out, total := window(out, filter.Page)
	return out, total, nil
}

func (r *OrderRepo) GetSalesOrder(_ context.Context, id int64) (orders.SalesOrder, error) {
	var (
		so orders.SalesOrder
		ok bool
	)
	r.db.read(func(s *state) { so, ok = s.orders[id] })
	if !ok {
		return orders.SalesOrder{}, orders.ErrOrderNotFound
	}
	return cloneOrder(so), nil
}

func (r *OrderRepo) ListSalesOrders(_ context.Context, filter orders.ListFilter) ([]orders.SalesOrder, int, error) {
	var out []orders.SalesOrder
	r.db.read(func(s *state) {
		for _, so := range s.orders {
			if (filter.CustomerID == 0 || so.CustomerID == filter.CustomerID) && (filter.Status == "" || so.Status == filter.Status) {
				out = append(out, cloneOrder(so))
			}
		}
	})
	newestFirst(out, func(so orders.SalesOrder) (int64, int64) { return so.CreatedAt.UnixNano(), so.ID })
	out, total := window(out, filter.Page)
	return out, total, nil
}

func (r *PickingRepo) GetPickingList(_ context.Context, id int64) (picking.PickingList, error) {
	var (
		pl picking.PickingList
		ok bool
	)
	r.db.read(func(s *state) { pl, ok = s.picking[id] })
	if !ok {
		return picking.PickingList{}, picking.ErrPickingListNotFound
	}
	return clonePicking(pl), nil
}

func (r *PickingRepo) ListPickingLists(_ context.Context, filter picking.ListFilter) ([]picking.PickingList, int, error) {
	var out []picking.PickingList
	r.db.read(func(s *state) {
		for _, pl := range s.picking {
			if filter.SalesOrderID > 0 && (pl.SalesOrderID == nil || *pl.SalesOrderID != filter.SalesOrderID) {
				continue
			}
			if filter.Status == "" || pl.Status == filter.Status {
				out = append(out, clonePicking(pl))
			}
		}
	})
	newestFirst(out, func(pl picking.PickingList) (int64, int64) { return pl.CreatedAt.UnixNano(), pl.ID })
	out, total := window(out, filter.Page)
	return out, total, nil
}

func (r *DeliveryRepo) GetDeliveryOrder(_ context.Context, id int64) (delivery.DeliveryOrder, error) {
	var (
		do delivery.DeliveryOrder
		ok bool
	)
	r.db.read(func(s *state) { do, ok = s.deliveries[id] })
	if !ok {
		return delivery.DeliveryOrder{}, delivery.ErrDeliveryOrderNotFound
	}
	return cloneDelivery(do), nil
}

func (r *DeliveryRepo) ListDeliveryOrders(_ context.Context, filter delivery.ListFilter) ([]delivery.DeliveryOrder, int, error) {
	var out []delivery.DeliveryOrder
	src := shared.NewRef(shared.RefSalesOrder, filter.SalesOrderID)
	r.db.read(func(s *state) {
		for _, do := range s.deliveries {
			if (filter.SalesOrderID == 0 || do.Source == src) && (filter.Status == "" || do.Status == filter.Status) {
				out = append(out, cloneDelivery(do))
			}
		}
	})
	newestFirst(out, func(do delivery.DeliveryOrder) (int64, int64) { return do.CreatedAt.UnixNano(), do.ID })
	out, total := window(out, filter.Page)
	return out, total, nil
}

func (r *BillingRepo) GetInvoice(_ context.Context, id int64) (billing.Invoice, error) {
	var (
		inv billing.Invoice
		ok  bool
	)
	r.db.read(func(s *state) {
		inv, ok = s.invoices[id]
		inv.AmountPaid = paidAmount(s, id)
	})
	if !ok {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (r *BillingRepo) ListInvoices(_ context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int, error) {
	var out []billing.Invoice
	r.db.read(func(s *state) {
		for id, inv := range s.invoices {
			switch {
			case filter.CustomerID > 0 && inv.CustomerID != filter.CustomerID,
				filter.SalesOrderID > 0 && inv.SalesOrderID != filter.SalesOrderID,
				filter.Status != "" && inv.Status != filter.Status:
				continue
			}
			inv = cloneInvoice(inv)
			inv.AmountPaid = paidAmount(s, id)
			out = append(out, inv)
		}
	})
	newestFirst(out, func(inv billing.Invoice) (int64, int64) { return inv.CreatedAt.UnixNano(), inv.ID })
	out, total := window(out, filter.Page)
	return out, total, nil
}

func (r *BillingRepo) ListPayments(_ context.Context, invoiceID int64) ([]billing.Payment, error) {
	var out []billing.Payment
	r.db.read(func(s *state) {
		for _, p := range s.payments {
			if p.InvoiceID == invoiceID {
				out = append(out, p)
			}
		}
	})
	slices.SortFunc(out, func(a, b billing.Payment) int {
		if c := a.PaidAt.Compare(b.PaidAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *BillingRepo) ListCreditNotes(_ context.Context, filter billing.CreditNoteFilter) ([]billing.CreditNote, int, error) {
	var out []billing.CreditNote
	r.db.read(func(s *state) {
		for _, cn := range s.credits {
			if (filter.CustomerID == 0 || cn.CustomerID == filter.CustomerID) && (filter.Status == "" || cn.Status == filter.Status) {
				out = append(out, cn)
			}
		}
	})
	newestFirst(out, func(cn billing.CreditNote) (int64, int64) { return cn.CreatedAt.UnixNano(), cn.ID })
	out, total := window(out, filter.Page)
	return out, total, nil
}

func (r *ReturnRepo) GetSalesReturn(_ context.Context, id int64) (returns.SalesReturn, error) {
	var (
		sr returns.SalesReturn
		ok bool
	)
	r.db.read(func(s *state) { sr, ok = s.returns[id] })
	if !ok {
		return returns.SalesReturn{}, returns.ErrSalesReturnNotFound
	}
	return cloneReturn(sr), nil
}

func (r *ReturnRepo) ListSalesReturns(_ context.Context, filter returns.ListFilter) ([]returns.SalesReturn, int, error) {
	var out []returns.SalesReturn
	r.db.read(func(s *state) {
		for _, sr := range s.returns {
			if (filter.InvoiceID == 0 || sr.InvoiceID == filter.InvoiceID) && (filter.Status == "" || sr.Status == filter.Status) {
				out = append(out, cloneReturn(sr))
			}
		}
	})
	newestFirst(out, func(sr returns.SalesReturn) (int64, int64) { return sr.CreatedAt.UnixNano(), sr.ID })
	out, total := window(out, filter.Page)
	return out, total, nil
}

func (r *TransferRepo) GetTransfer(_ context.Context, id int64) (transfer.Transfer, error) {
	var (
		tr transfer.Transfer
		ok bool
	)
	r.db.read(func(s *state) { tr, ok = s.transfers[id] })
	if !ok {
		return transfer.Transfer{}, transfer.ErrTransferNotFound
	}
	return tr, nil
}

func (r *TransferRepo) ListTransfers(_ context.Context, filter transfer.ListFilter) ([]transfer.Transfer, int, error) {
	var out []transfer.Transfer
	r.db.read(func(s *state) {
		for _, tr := range s.transfers {
			switch {
			case filter.WarehouseID > 0 && tr.FromWarehouseID != filter.WarehouseID && tr.ToWarehouseID != filter.WarehouseID,
				filter.ProductID > 0 && tr.ProductID != filter.ProductID,
				filter.Status != "" && tr.Status != filter.Status:
				continue
			}
			out = append(out, tr)
		}
	})
	newestFirst(out, func(tr transfer.Transfer) (int64, int64) { return tr.CreatedAt.UnixNano(), tr.ID })
	out, total := window(out, filter.Page)
	return out, total, nil
}

var (
	_ inventory.RepositoryPort  = (*InventoryRepo)(nil)
	_ quotations.RepositoryPort = (*QuotationRepo)(nil)
	_ orders.RepositoryPort     = (*OrderRepo)(nil)
	_ picking.RepositoryPort    = (*PickingRepo)(nil)
	_ delivery.RepositoryPort   = (*DeliveryRepo)(nil)
	_ billing.RepositoryPort    = (*BillingRepo)(nil)
	_ returns.RepositoryPort    = (*ReturnRepo)(nil)
	_ transfer.RepositoryPort   = (*TransferRepo)(nil)
	_ approvals.Lister          = (*DB)(nil)
)
