package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSalesOrder(ctx context.Context, id int64) (SalesOrder, error)
	ListSalesOrders(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error)
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

// Create places a direct order. Stock is reserved exactly as for converted quotations.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (SalesOrder, error) {
	req.QuotationID = nil
	var so SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		so, err = Place(ctx, tx, actor, req)
		return err
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.logger.Info("sales order created", slog.Int64("id", so.ID), slog.String("number", so.Number))
	return so, nil
}

func (s *Service) Get(ctx context.Context, id int64) (SalesOrder, error) {
	return s.repo.GetSalesOrder(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.ListSalesOrders(ctx, filter)
}

// UpdateStatus applies a manual status change. CANCELLED is routed through Cancel so the
// reservation is released.
func (s *Service) UpdateStatus(ctx context.Context, actor shared.Actor, id int64, req UpdateStatusRequest) (SalesOrder, error) {
	if !manualTargets[req.Status] {
		if req.Status == StatusShipped || req.Status == StatusCompleted {
			return SalesOrder{}, ErrManualStatus
		}
		return SalesOrder{}, shared.NewValidationError("status", "is not a valid sales order status")
	}
	if req.Status == StatusCancelled {
		return s.Cancel(ctx, actor, id, CancelRequest{Reason: req.Reason})
	}
	var so SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		so, err = Advance(ctx, tx, tx, actor, id, req.Status)
		return err
	})
	return so, err
}

// Cancel releases every outstanding reservation and cancels open picking lists and
// delivery orders that have not shipped.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, req CancelRequest) (SalesOrder, error) {
	var (
		so     SalesOrder
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSalesOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Transitions.Check("sales order "+current.Number, current.Status, StatusCancelled); err != nil {
			return err
		}
		if err := ReleaseAll(ctx, tx, actor, current, current.Ref()); err != nil {
			return err
		}
		if err := tx.CancelOpenPickingLists(ctx, current.ID, actor.At); err != nil {
			return fmt.Errorf("cancel picking lists: %w", err)
		}
		if err := tx.CancelOpenDeliveryOrders(ctx, current.ID, actor.At); err != nil {
			return fmt.Errorf("cancel delivery orders: %w", err)
		}
		note := current.Notes
		if req.Reason != "" {
			note = req.Reason
		}
		so, err = advanceLoaded(ctx, tx, tx, actor, current, StatusCancelled, note)
		if err != nil {
			return err
		}
		if so.CreatedBy != actor.UserID {
			outbox.Add(shared.Notification{
				UserID:   so.CreatedBy,
				Message:  fmt.Sprintf("Sales order %s was cancelled", so.Number),
				Severity: shared.SeverityWarning,
				Link:     "/api/sales-orders/" + strconv.FormatInt(so.ID, 10),
			})
		}
		return nil
	})
	if err != nil {
		return SalesOrder{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	s.logger.Info("sales order cancelled", slog.Int64("id", so.ID), slog.String("number", so.Number))
	return so, nil
}
