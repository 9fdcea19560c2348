package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Create dispatches to CreateFromOrder or CreateFromDelivery.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateInvoiceRequest) (Invoice, error) {
	switch {
	case req.SalesOrderID > 0 && req.DeliveryOrderID > 0:
		return Invoice{}, shared.NewValidationError("delivery_order_id", "give either sales_order_id or delivery_order_id")
	case req.DeliveryOrderID > 0:
		return s.CreateFromDelivery(ctx, actor, req.DeliveryOrderID)
	case req.SalesOrderID > 0:
		return s.CreateFromOrder(ctx, actor, req.SalesOrderID)
	}
	return Invoice{}, shared.NewValidationError("sales_order_id", "is required")
}

// CreateFromOrder invoices every order line at its ordered quantity.
func (s *Service) CreateFromOrder(ctx context.Context, actor shared.Actor, salesOrderID int64) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		so, err := s.invoiceableOrder(ctx, tx, salesOrderID)
		if err != nil {
			return err
		}
		items := make([]InvoiceItem, 0, len(so.Items))
		for _, it := range so.Items {
			items = append(items, InvoiceItem{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Discount:  it.Discount,
				Tax:       it.Tax,
				LineTotal: it.LineTotal,
			})
		}
		inv, err = s.insert(ctx, tx, actor, so, so.Ref(), items, so.Totals)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.logger.Info("invoice created", slog.Int64("id", inv.ID), slog.String("number", inv.Number))
	return inv, nil
}

// CreateFromDelivery invoices the delivered quantities of a DELIVERED delivery order at the
// order's prices.
func (s *Service) CreateFromDelivery(ctx context.Context, actor shared.Actor, deliveryOrderID int64) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		do, err := tx.GetDeliveryOrderForUpdate(ctx, deliveryOrderID)
		if err != nil {
			return err
		}
		if do.Source.Kind != shared.RefSalesOrder {
			return fmt.Errorf("%w: delivery order %s does not belong to a sales order", shared.ErrBusinessRule, do.Number)
		}
		if do.Status != delivery.StatusDelivered {
			return ErrDeliveryNotDelivered
		}
		so, err := s.invoiceableOrder(ctx, tx, do.Source.ID)
		if err != nil {
			return err
		}
		prices := make(map[int64]orders.Item, len(so.Items))
		for _, it := range so.Items {
			if _, ok := prices[it.ProductID]; !ok {
				prices[it.ProductID] = it
			}
		}
		var (
			items []InvoiceItem
			lines []pricing.LineTotals
		)
		for _, it := range do.Items {
			src, ok := prices[it.ProductID]
			if !ok || it.QuantityDelivered <= 0 {
				continue
			}
			line := src.Line()
			line.Quantity = it.QuantityDelivered
			lt := pricing.CalculateLine(line)
			lines = append(lines, lt)
			items = append(items, InvoiceItem{
				ProductID: it.ProductID,
				Quantity:  it.QuantityDelivered,
				UnitPrice: src.UnitPrice,
				Discount:  lt.Discount,
				Tax:       lt.Tax,
				LineTotal: lt.Total,
			})
		}
		if len(items) == 0 {
			return ErrNothingDelivered
		}
		inv, err = s.insert(ctx, tx, actor, so, do.Ref(), items, pricing.Sum(lines))
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.logger.Info("invoice created", slog.Int64("id", inv.ID), slog.Int64("delivery_order_id", deliveryOrderID))
	return inv, nil
}

func (s *Service) invoiceableOrder(ctx context.Context, tx TxRepository, salesOrderID int64) (orders.SalesOrder, error) {
	so, err := tx.GetSalesOrderForUpdate(ctx, salesOrderID)
	if err != nil {
		return orders.SalesOrder{}, err
	}
	if so.Status != orders.StatusShipped && so.Status != orders.StatusCompleted {
		return orders.SalesOrder{}, fmt.Errorf("%w (sales order %s is %s)", ErrOrderNotShipped, so.Number, so.Status)
	}
	invoiced, err := tx.OrderInvoiced(ctx, so.ID)
	if err != nil {
		return orders.SalesOrder{}, err
	}
	if invoiced {
		return orders.SalesOrder{}, ErrInvoiceExists
	}
	return so, nil
}

func (s *Service) insert(ctx context.Context, tx TxRepository, actor shared.Actor, so orders.SalesOrder, source shared.Ref, items []InvoiceItem, totals pricing.Totals) (Invoice, error) {
	number, err := docnumber.Next(ctx, tx, docnumber.Invoice, so.WarehouseID, actor.At)
	if err != nil {
		return Invoice{}, err
	}
	issued := dateOf(actor.At)
	inv, err := tx.InsertInvoice(ctx, Invoice{
		Number:       number,
		Source:       source,
		SalesOrderID: so.ID,
		CustomerID:   so.CustomerID,
		WarehouseID:  so.WarehouseID,
		IssueDate:    issued,
		DueDate:      issued.AddDate(0, 0, s.dueDays),
		Status:       InvoiceUnpaid,
		Totals:       totals,
		CreatedBy:    actor.UserID,
		CreatedAt:    actor.At,
		UpdatedAt:    actor.At,
		Items:        items,
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	err = shared.LogActivity(ctx, tx, actor, "invoice.created",
		fmt.Sprintf("Invoice %s created for %s", inv.Number, so.Number), inv.Ref(), nil,
		map[string]any{"status": string(inv.Status), "total": inv.Total.StringFixed(2), "source": source.String()})
	return inv, err
}

// UpdateStatus applies a manual status. PAID invoices are locked, UNPAID or PARTIAL
// requested past the due date become OVERDUE, and the result must agree with the
// amount paid so far.
func (s *Service) UpdateStatus(ctx context.Context, actor shared.Actor, id int64, req UpdateStatusRequest) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == InvoicePaid {
			if req.Status == InvoicePaid {
				inv = current
				return nil
			}
			return ErrPaidInvoiceLocked
		}
		to := req.Status
		if (to == InvoiceUnpaid || to == InvoicePartial) && PastDue(current.DueDate, actor.At) {
			to = InvoiceOverdue
		}
		paid, err := tx.PaidAmount(ctx, current.ID)
		if err != nil {
			return err
		}
		if derived := StatusFor(current.Total, paid, current.DueDate, actor.At); to != derived {
			return fmt.Errorf("%w: paid %s of %s means %s, not %s",
				ErrStatusMismatch, paid.StringFixed(2), current.Total.StringFixed(2), derived, to)
		}
		if to == current.Status {
			inv = current
			return nil
		}
		if inv, err = setStatus(ctx, tx, actor, current, to); err != nil {
			return err
		}
		if to == InvoicePaid {
			return completeOrder(ctx, tx, actor, inv.SalesOrderID)
		}
		return nil
	})
	return inv, err
}

// SweepOverdue promotes every past-due UNPAID or PARTIAL invoice to OVERDUE.
func (s *Service) SweepOverdue(ctx context.Context, actor shared.Actor) (int, error) {
	var (
		swept  int
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids, err := tx.OverdueCandidates(ctx, dateOf(actor.At))
		if err != nil {
			return err
		}
		for _, id := range ids {
			inv, err := tx.GetInvoiceForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !PastDue(inv.DueDate, actor.At) || !InvoiceTransitions.Allows(inv.Status, InvoiceOverdue) || inv.Status == InvoicePaid {
				continue
			}
			if _, err := setStatus(ctx, tx, actor, inv, InvoiceOverdue); err != nil {
				return err
			}
			outbox.Add(shared.Notification{
				UserID:   inv.CreatedBy,
				Message:  fmt.Sprintf("Invoice %s is overdue", inv.Number),
				Severity: shared.SeverityWarning,
				Link:     link(inv.ID),
			})
			swept++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	if swept > 0 {
		s.logger.Info("overdue invoices swept", slog.Int("count", swept))
	}
	return swept, nil
}
