package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-distribution/internal/approvals"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Store persists quotations inside the caller's transaction.
type Store interface {
	InsertQuotation(ctx context.Context, q Quotation) (Quotation, error)
	GetQuotationForUpdate(ctx context.Context, id int64) (Quotation, error)
	// UpdateQuotation rewrites the header and replaces all items.
	UpdateQuotation(ctx context.Context, q Quotation) (Quotation, error)
	UpdateQuotationStatus(ctx context.Context, id int64, status Status, at time.Time) error
	SetQuotationSalesOrder(ctx context.Context, id, salesOrderID int64, at time.Time) error
	DeleteQuotation(ctx context.Context, id int64) error
}

// TxRepository is everything a quotation step touches in one transaction. Conversion
// places the sales order on the same transaction.
type TxRepository interface {
	Store
	approvals.Store
	orders.TxRepository
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuotation(ctx context.Context, id int64) (Quotation, error)
	ListQuotations(ctx context.Context, filter ListFilter) ([]Quotation, int, error)
}

type Service struct {
	repo      RepositoryPort
	approvals approvals.Lister
	notifier  shared.Notifier
	logger    *slog.Logger
}

func NewService(repo RepositoryPort, approvalLister approvals.Lister, notifier shared.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, approvals: approvalLister, notifier: notifier, logger: logger}
}

func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateQuotationRequest) (Quotation, error) {
	verr := &shared.ValidationError{}
	if req.CustomerID <= 0 {
		verr.Add("customer_id", "is required")
	}
	if req.WarehouseID <= 0 {
		verr.Add("warehouse_id", "is required")
	}
	validateItems(verr, req.Items)
	if err := verr.OrNil(); err != nil {
		return Quotation{}, err
	}
	var q Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := docnumber.Next(ctx, tx, docnumber.Quotation, req.WarehouseID, actor.At)
		if err != nil {
			return err
		}
		q = Quotation{
			Number:      number,
			CustomerID:  req.CustomerID,
			WarehouseID: req.WarehouseID,
			Status:      StatusDraft,
			ValidUntil:  req.ValidUntil,
			Notes:       req.Notes,
			CreatedBy:   actor.UserID,
			CreatedAt:   actor.At,
			UpdatedAt:   actor.At,
		}
		q.Items, q.Totals = priceItems(req.Items)
		q, err = tx.InsertQuotation(ctx, q)
		if err != nil {
			return fmt.Errorf("insert quotation: %w", err)
		}
		return shared.LogActivity(ctx, tx, actor, "quotation.created",
			fmt.Sprintf("Quotation %s created", q.Number), q.Ref(), nil,
			map[string]any{"status": string(q.Status), "total": q.Total.StringFixed(2)})
	})
	if err != nil {
		return Quotation{}, err
	}
	s.logger.Info("quotation created", slog.Int64("id", q.ID), slog.String("number", q.Number))
	return q, nil
}

func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdateQuotationRequest) (Quotation, error) {
	verr := &shared.ValidationError{}
	validateItems(verr, req.Items)
	if err := verr.OrNil(); err != nil {
		return Quotation{}, err
	}
	var q Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return ErrNotEditable
		}
		before := current.Total.StringFixed(2)
		if req.ValidUntil != nil {
			current.ValidUntil = req.ValidUntil
		}
		if req.Notes != nil {
			current.Notes = *req.Notes
		}
		current.Items, current.Totals = priceItems(req.Items)
		current.UpdatedAt = actor.At
		q, err = tx.UpdateQuotation(ctx, current)
		if err != nil {
			return fmt.Errorf("update quotation: %w", err)
		}
		return shared.LogActivity(ctx, tx, actor, "quotation.updated",
			fmt.Sprintf("Quotation %s updated", q.Number), q.Ref(),
			map[string]any{"total": before}, map[string]any{"total": q.Total.StringFixed(2)})
	})
	return q, err
}

func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Status != StatusDraft {
			return ErrNotEditable
		}
		if err := tx.DeleteQuotation(ctx, id); err != nil {
			return err
		}
		return shared.LogActivity(ctx, tx, actor, "quotation.deleted",
			fmt.Sprintf("Quotation %s deleted", q.Number), q.Ref(), map[string]any{"status": string(q.Status)}, nil)
	})
}

// Submit opens the single pending approval and notifies approvers.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	var (
		q      Quotation
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		q, err = tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Transitions.Check("quotation "+q.Number, q.Status, StatusSubmitted); err != nil {
			return err
		}
		if len(q.Items) == 0 {
			return ErrNoItems
		}
		if _, err := approvals.Request(ctx, tx, actor, q.Ref(), ""); err != nil {
			return err
		}
		if q, err = s.move(ctx, tx, actor, q, StatusSubmitted); err != nil {
			return err
		}
		outbox.Add(shared.Notification{
			Role:     shared.RoleApprover,
			Message:  fmt.Sprintf("Quotation %s is waiting for approval", q.Number),
			Severity: shared.SeverityInfo,
			Link:     link(q.ID),
		})
		return nil
	})
	if err != nil {
		return Quotation{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	return q, nil
}

func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64, notes string) (Quotation, error) {
	return s.decide(ctx, actor, id, approvals.StatusApproved, StatusApproved, notes)
}

func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, notes string) (Quotation, error) {
	return s.decide(ctx, actor, id, approvals.StatusRejected, StatusRejected, notes)
}

func (s *Service) decide(ctx context.Context, actor shared.Actor, id int64, decision approvals.Status, to Status, notes string) (Quotation, error) {
	var (
		q      Quotation
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		q, err = tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := approvals.Decide(ctx, tx, actor, q.Ref(), decision, notes); err != nil {
			return err
		}
		if q, err = s.move(ctx, tx, actor, q, to); err != nil {
			return err
		}
		severity := shared.SeveritySuccess
		if to == StatusRejected {
			severity = shared.SeverityDanger
		}
		outbox.Add(shared.Notification{
			UserID:   q.CreatedBy,
			Message:  fmt.Sprintf("Quotation %s was %s", q.Number, lower(to)),
			Severity: severity,
			Link:     link(q.ID),
		})
		return nil
	})
	if err != nil {
		return Quotation{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	return q, nil
}

// Revise reopens a rejected quotation for editing.
func (s *Service) Revise(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	var q Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		q, err = tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		q, err = s.move(ctx, tx, actor, q, StatusDraft)
		return err
	})
	return q, err
}

// Convert places a PENDING sales order from an approved quotation, reserving stock, and
// marks the quotation CONVERTED. It succeeds at most once per quotation.
func (s *Service) Convert(ctx context.Context, actor shared.Actor, id int64) (orders.SalesOrder, error) {
	var so orders.SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.SalesOrderID != nil || q.Status == StatusConverted {
			return ErrAlreadyConverted
		}
		if err := Transitions.Check("quotation "+q.Number, q.Status, StatusConverted); err != nil {
			return err
		}
		quotationID := q.ID
		req := orders.CreateRequest{
			CustomerID:  q.CustomerID,
			WarehouseID: q.WarehouseID,
			Notes:       q.Notes,
			QuotationID: &quotationID,
		}
		for _, it := range q.Items {
			req.Items = append(req.Items, orders.ItemRequest{
				ProductID:       it.ProductID,
				Quantity:        it.Quantity,
				UnitPrice:       it.UnitPrice,
				DiscountPercent: it.DiscountPercent,
				TaxPercent:      it.TaxPercent,
			})
		}
		so, err = orders.Place(ctx, tx, actor, req)
		if err != nil {
			return err
		}
		if err := tx.SetQuotationSalesOrder(ctx, q.ID, so.ID, actor.At); err != nil {
			return fmt.Errorf("link sales order: %w", err)
		}
		_, err = s.move(ctx, tx, actor, q, StatusConverted)
		return err
	})
	if err != nil {
		return orders.SalesOrder{}, err
	}
	s.logger.Info("quotation converted", slog.Int64("quotation_id", id), slog.Int64("sales_order_id", so.ID))
	return so, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Quotation, error) {
	return s.repo.GetQuotation(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.ListQuotations(ctx, filter)
}

// Approvals returns the approval history of a quotation.
func (s *Service) Approvals(ctx context.Context, id int64) ([]approvals.Approval, error) {
	if _, err := s.repo.GetQuotation(ctx, id); err != nil {
		return nil, err
	}
	return s.approvals.ListApprovals(ctx, approvals.ListFilter{Subject: shared.NewRef(shared.RefQuotation, id)})
}

func (s *Service) move(ctx context.Context, tx TxRepository, actor shared.Actor, q Quotation, to Status) (Quotation, error) {
	if err := Transitions.Check("quotation "+q.Number, q.Status, to); err != nil {
		return Quotation{}, err
	}
	from := q.Status
	if err := tx.UpdateQuotationStatus(ctx, q.ID, to, actor.At); err != nil {
		return Quotation{}, fmt.Errorf("update quotation status: %w", err)
	}
	q.Status = to
	q.UpdatedAt = actor.At
	err := shared.LogActivity(ctx, tx, actor, "quotation.status_changed",
		fmt.Sprintf("Quotation %s moved from %s to %s", q.Number, from, to), q.Ref(),
		map[string]any{"status": string(from)}, map[string]any{"status": string(to)})
	return q, err
}

func priceItems(reqs []ItemRequest) ([]Item, pricing.Totals) {
	items := make([]Item, 0, len(reqs))
	lines := make([]pricing.LineTotals, 0, len(reqs))
	for _, r := range reqs {
		lt := pricing.CalculateLine(pricing.Line{
			Quantity:        r.Quantity,
			UnitPrice:       r.UnitPrice,
			DiscountPercent: r.DiscountPercent,
			TaxPercent:      r.TaxPercent,
		})
		lines = append(lines, lt)
		items = append(items, Item{
			ProductID:       r.ProductID,
			Quantity:        r.Quantity,
			UnitPrice:       r.UnitPrice,
			DiscountPercent: r.DiscountPercent,
			TaxPercent:      r.TaxPercent,
			Discount:        lt.Discount,
			Tax:             lt.Tax,
			LineTotal:       lt.Total,
		})
	}
	return items, pricing.Sum(lines)
}

func validateItems(verr *shared.ValidationError, items []ItemRequest) {
	for i, it := range items {
		orders.ValidateLine(verr, fmt.Sprintf("items.%d", i), it.ProductID, it.Quantity, it.UnitPrice, it.DiscountPercent, it.TaxPercent)
	}
}

func link(id int64) string {
	return "/api/quotations/" + strconv.FormatInt(id, 10)
}

func lower(s Status) string {
	switch s {
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	}
	return string(s)
}
