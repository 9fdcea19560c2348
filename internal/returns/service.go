package returns

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/billing"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Store persists sales returns inside the caller's transaction.
type Store interface {
	InsertSalesReturn(ctx context.Context, sr SalesReturn) (SalesReturn, error)
	GetSalesReturnForUpdate(ctx context.Context, id int64) (SalesReturn, error)
	UpdateSalesReturnStatus(ctx context.Context, id int64, status Status, at time.Time) error
	SetSalesReturnCreditNote(ctx context.Context, id, creditNoteID int64, at time.Time) error
	// ReturnedQuantities sums quantities per product over the invoice's returns that are
	// not CANCELLED.
	ReturnedQuantities(ctx context.Context, invoiceID int64) (map[int64]int64, error)
}

// TxRepository is everything a return step touches in one transaction.
type TxRepository interface {
	Store
	billing.CreditTx
	inventory.Store
}

type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSalesReturn(ctx context.Context, id int64) (SalesReturn, error)
	ListSalesReturns(ctx context.Context, filter ListFilter) ([]SalesReturn, int, error)
}

type Service struct {
	repo     RepositoryPort
	notifier shared.Notifier
	logger   *slog.Logger
}

func NewService(repo RepositoryPort, notifier shared.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// Create opens a DRAFT return against an invoice. Per product, the quantity returned over all
// live returns cannot exceed what was invoiced.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (SalesReturn, error) {
	verr := &shared.ValidationError{}
	if req.InvoiceID <= 0 {
		verr.Add("invoice_id", "is required")
	}
	if len(req.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	requested := make(map[int64]int64, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			verr.Add(fmt.Sprintf("items.%d.quantity", i), "must be greater than 0")
		}
		if it.Condition != ConditionGood && it.Condition != ConditionDamaged {
			verr.Add(fmt.Sprintf("items.%d.condition", i), "must be GOOD or DAMAGED")
		}
		requested[it.ProductID] += it.Quantity
	}
	if err := verr.OrNil(); err != nil {
		return SalesReturn{}, err
	}
	var sr SalesReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		returned, err := tx.ReturnedQuantities(ctx, inv.ID)
		if err != nil {
			return err
		}
		for productID, qty := range requested {
			invoiced := inv.InvoicedQuantity(productID)
			if invoiced == 0 {
				return fmt.Errorf("product %d: %w", productID, ErrProductNotInvoiced)
			}
			if left := invoiced - returned[productID]; qty > left {
				return fmt.Errorf("%w: product %d invoiced %d, returned %d, requested %d", ErrExceedsInvoiced, productID, invoiced, returned[productID], qty)
			}
		}
		number, err := docnumber.Next(ctx, tx, docnumber.SalesReturn, inv.WarehouseID, actor.At)
		if err != nil {
			return err
		}
		sr = SalesReturn{
			Number:       number,
			InvoiceID:    inv.ID,
			SalesOrderID: inv.SalesOrderID,
			CustomerID:   inv.CustomerID,
			WarehouseID:  inv.WarehouseID,
			Status:       StatusDraft,
			Reason:       req.Reason,
			CreatedBy:    actor.UserID,
			CreatedAt:    actor.At,
			UpdatedAt:    actor.At,
		}
		for _, it := range req.Items {
			sr.Items = append(sr.Items, Item{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: unitPrice(inv, it.ProductID),
				Condition: it.Condition,
			})
		}
		if sr, err = tx.InsertSalesReturn(ctx, sr); err != nil {
			return fmt.Errorf("insert sales return: %w", err)
		}
		return shared.LogActivity(ctx, tx, actor, "sales_return.created",
			fmt.Sprintf("Sales return %s created for %s", sr.Number, inv.Number), sr.Ref(), nil,
			map[string]any{"status": string(sr.Status), "amount": sr.Amount().StringFixed(2)})
	})
	if err != nil {
		return SalesReturn{}, err
	}
	s.logger.Info("sales return created", slog.Int64("id", sr.ID), slog.String("number", sr.Number))
	return sr, nil
}

func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (SalesReturn, error) {
	var sr SalesReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSalesReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		sr, err = move(ctx, tx, actor, current, StatusApproved, "")
		return err
	})
	return sr, err
}

// Complete restocks GOOD items into the return's warehouse and issues a credit note for the
// whole return. DAMAGED items are recorded in the activity log only.
func (s *Service) Complete(ctx context.Context, actor shared.Actor, id int64) (SalesReturn, error) {
	var (
		sr     SalesReturn
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSalesReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Transitions.Check("sales return "+current.Number, current.Status, StatusCompleted); err != nil {
			return err
		}
		for _, it := range current.Items {
			if it.Condition == ConditionDamaged {
				if err := shared.LogActivity(ctx, tx, actor, "sales_return.item_damaged",
					fmt.Sprintf("%d unit(s) of product %d returned damaged on %s", it.Quantity, it.ProductID, current.Number),
					current.Ref(), nil, map[string]any{"product_id": it.ProductID, "quantity": it.Quantity}); err != nil {
					return err
				}
				continue
			}
			if _, err := inventory.Receive(ctx, tx, actor, inventory.MovementReturnIn, inventory.MoveInput{
				ProductID:   it.ProductID,
				WarehouseID: current.WarehouseID,
				Quantity:    it.Quantity,
				Reference:   current.Ref(),
				Note:        "Return " + current.Number,
			}); err != nil {
				return err
			}
		}
		cn, err := billing.IssueCreditNote(ctx, tx, actor, billing.CreditNoteInput{
			CustomerID:    current.CustomerID,
			SalesReturnID: current.ID,
			WarehouseID:   current.WarehouseID,
			Amount:        current.Amount(),
		})
		if err != nil {
			return err
		}
		if err := tx.SetSalesReturnCreditNote(ctx, current.ID, cn.ID, actor.At); err != nil {
			return err
		}
		current.CreditNoteID = &cn.ID
		if sr, err = move(ctx, tx, actor, current, StatusCompleted, ""); err != nil {
			return err
		}
		outbox.Add(shared.Notification{
			UserID:   sr.CreatedBy,
			Message:  fmt.Sprintf("Sales return %s completed, credit note %s issued", sr.Number, cn.Number),
			Severity: shared.SeveritySuccess,
			Link:     "/api/sales-returns/" + strconv.FormatInt(sr.ID, 10),
		})
		return nil
	})
	if err != nil {
		return SalesReturn{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	s.logger.Info("sales return completed", slog.Int64("id", sr.ID))
	return sr, nil
}

// Cancel voids a DRAFT or APPROVED return. Nothing has touched stock yet.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, req CancelRequest) (SalesReturn, error) {
	var sr SalesReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSalesReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		sr, err = move(ctx, tx, actor, current, StatusCancelled, req.Reason)
		return err
	})
	return sr, err
}

func (s *Service) Get(ctx context.Context, id int64) (SalesReturn, error) {
	return s.repo.GetSalesReturn(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]SalesReturn, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.ListSalesReturns(ctx, filter)
}

func move(ctx context.Context, tx TxRepository, actor shared.Actor, sr SalesReturn, to Status, reason string) (SalesReturn, error) {
	if err := Transitions.Check("sales return "+sr.Number, sr.Status, to); err != nil {
		return SalesReturn{}, err
	}
	if err := tx.UpdateSalesReturnStatus(ctx, sr.ID, to, actor.At); err != nil {
		return SalesReturn{}, fmt.Errorf("update sales return status: %w", err)
	}
	from := sr.Status
	sr.Status = to
	sr.UpdatedAt = actor.At
	newValues := map[string]any{"status": string(to)}
	if reason != "" {
		newValues["reason"] = reason
	}
	err := shared.LogActivity(ctx, tx, actor, "sales_return.status_changed",
		fmt.Sprintf("Sales return %s moved from %s to %s", sr.Number, from, to), sr.Ref(),
		map[string]any{"status": string(from)}, newValues)
	return sr, err
}

func unitPrice(inv billing.Invoice, productID int64) decimal.Decimal {
	for _, it := range inv.Items {
		if it.ProductID == productID {
			return it.UnitPrice
		}
	}
	return decimal.Zero
}
